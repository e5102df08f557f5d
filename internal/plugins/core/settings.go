// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package core

import (
	"fmt"

	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/plugin"
	"github.com/prismmud/prism/internal/setting"
)

// settingsPlugin is the introspection and write surface over the
// settings registry.
type settingsPlugin struct {
	kit *plugin.Kit
}

func (p *settingsPlugin) Registration() plugin.Registration {
	return plugin.Registration{
		Init: []plugin.Hook{captureKit(&p.kit)},
		Commands: []command.Spec{
			{
				Name: "list",
				Help: "list a plugin's settings with their current values",
				Args: []command.Arg{{Name: "plugin", Help: "plugin id"}},
				Fn:   p.cmdList,
			},
			{
				Name: "detail",
				Help: "show one setting's type, default, and current value",
				Args: []command.Arg{{Name: "setting", Help: "setting name"}},
				Fn:   p.cmdDetail,
			},
			{
				Name: "set",
				Help: "write a setting; the value \"default\" resets it",
				Args: []command.Arg{
					{Name: "setting", Help: "setting name"},
					{Name: "value", Help: "new value", Rest: true},
				},
				Fn: p.cmdSet,
			},
			{
				Name: "reset",
				Help: "reset one setting to its registered default",
				Args: []command.Arg{{Name: "setting", Help: "setting name"}},
				Fn:   p.cmdReset,
			},
		},
		Capabilities: []plugin.CapabilityReg{
			{
				Name:        "get",
				Description: "read a setting value by name",
				Fn: func(args ...any) (any, error) {
					if len(args) != 1 {
						return nil, fmt.Errorf("get takes one argument, the setting name")
					}
					name, ok := args[0].(string)
					if !ok {
						return nil, fmt.Errorf("setting name must be a string")
					}
					return p.kit.Settings.Get(name)
				},
			},
			{
				Name:        "set",
				Description: "write a setting value by name",
				Fn: func(args ...any) (any, error) {
					if len(args) != 2 {
						return nil, fmt.Errorf("set takes a setting name and a value")
					}
					name, ok := args[0].(string)
					if !ok {
						return nil, fmt.Errorf("setting name must be a string")
					}
					return p.kit.Settings.Set(name, args[1], SettingsID)
				},
			},
		},
	}
}

func (p *settingsPlugin) cmdList(inv *command.Invocation) (bool, []string) {
	id, _ := inv.Args["plugin"].(string)
	details := p.kit.Settings.List(id, false)
	if len(details) == 0 {
		return false, []string{"no settings registered by " + id}
	}
	out := make([]string, 0, len(details)+1)
	out = append(out, "settings of "+id+":")
	for _, d := range details {
		out = append(out, fmt.Sprintf("  %-24s %-8s = %v", d.Spec.Name, d.Spec.Type, d.Current))
	}
	return true, out
}

func (p *settingsPlugin) cmdDetail(inv *command.Invocation) (bool, []string) {
	name, _ := inv.Args["setting"].(string)
	d, err := p.kit.Settings.Detail(name)
	if err != nil {
		return false, []string{"unknown setting " + name}
	}
	out := []string{
		"setting:  " + d.Spec.Name,
		"plugin:   " + d.Spec.Plugin,
		"type:     " + string(d.Spec.Type),
		fmt.Sprintf("default:  %v", d.Spec.Default),
		fmt.Sprintf("current:  %v", d.Current),
	}
	if d.Spec.Help != "" {
		out = append(out, "help:     "+d.Spec.Help)
	}
	if d.Spec.ReadOnly {
		out = append(out, "read-only")
	}
	return true, out
}

func (p *settingsPlugin) cmdSet(inv *command.Invocation) (bool, []string) {
	name, _ := inv.Args["setting"].(string)
	value, _ := inv.Args["value"].(string)
	afterSet, err := p.kit.Settings.Set(name, value, SettingsID)
	if err != nil {
		return false, []string{err.Error()}
	}
	out := []string{fmt.Sprintf("%s set to %v", name, value)}
	if afterSet != "" {
		out = append(out, afterSet)
	}
	return true, out
}

func (p *settingsPlugin) cmdReset(inv *command.Invocation) (bool, []string) {
	name, _ := inv.Args["setting"].(string)
	if _, err := p.kit.Settings.Set(name, setting.Default, SettingsID); err != nil {
		return false, []string{err.Error()}
	}
	return true, []string{name + " reset to its default"}
}
