// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package core

import (
	"fmt"

	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/plugin"
)

// triggersPlugin is the introspection and toggle surface over the
// trigger engine.
type triggersPlugin struct {
	kit *plugin.Kit
}

func (p *triggersPlugin) Registration() plugin.Registration {
	toggleArgs := []command.Arg{
		{Name: "trigger", Help: "trigger name"},
		{Name: "state", Help: "on or off", Choices: []string{"on", "off"}},
	}
	return plugin.Registration{
		Init: []plugin.Hook{captureKit(&p.kit)},
		Commands: []command.Spec{
			{
				Name: "list",
				Help: "list all triggers with owners, groups, and hit counts",
				Fn:   p.cmdList,
			},
			{
				Name: "detail",
				Help: "show one trigger's pattern, event, and accounting",
				Args: []command.Arg{{Name: "trigger", Help: "trigger name"}},
				Fn:   p.cmdDetail,
			},
			{
				Name: "toggle",
				Help: "enable or disable one trigger",
				Args: toggleArgs,
				Fn:   p.cmdToggle,
			},
			{
				Name: "togglegroup",
				Help: "enable or disable every trigger whose group matches a glob",
				Args: []command.Arg{
					{Name: "group", Help: "group glob pattern"},
					{Name: "state", Help: "on or off", Choices: []string{"on", "off"}},
				},
				Fn: p.cmdToggleGroup,
			},
		},
	}
}

func (p *triggersPlugin) cmdList(*command.Invocation) (bool, []string) {
	details := p.kit.Triggers.List()
	if len(details) == 0 {
		return true, []string{"no triggers registered"}
	}
	out := make([]string, 0, len(details)+1)
	out = append(out, fmt.Sprintf("%-20s %-32s %-12s %-5s %s", "name", "owner", "group", "state", "hits"))
	for _, d := range details {
		out = append(out, fmt.Sprintf("%-20s %-32s %-12s %-5s %d",
			d.Spec.Name, d.Spec.Owner, d.Spec.Group, onOff(d.Enabled), d.Hits))
	}
	return true, out
}

func (p *triggersPlugin) cmdDetail(inv *command.Invocation) (bool, []string) {
	name, _ := inv.Args["trigger"].(string)
	d, err := p.kit.Triggers.Get(name)
	if err != nil {
		return false, []string{"unknown trigger " + name}
	}
	out := []string{
		"trigger:  " + d.Spec.Name,
		"owner:    " + d.Spec.Owner,
		"pattern:  " + d.Spec.Pattern,
		"event:    " + d.Event,
		"state:    " + onOff(d.Enabled),
		fmt.Sprintf("priority: %d", d.Spec.Priority),
		fmt.Sprintf("hits:     %d", d.Hits),
	}
	if d.Spec.Group != "" {
		out = append(out, "group:    "+d.Spec.Group)
	}
	if d.Spec.Omit {
		out = append(out, "omits matched lines")
	}
	if d.Spec.StopEvaluating {
		out = append(out, "stops trigger evaluation on match")
	}
	return true, out
}

func (p *triggersPlugin) cmdToggle(inv *command.Invocation) (bool, []string) {
	name, _ := inv.Args["trigger"].(string)
	state, _ := inv.Args["state"].(string)
	if err := p.kit.Triggers.Toggle(name, state == "on"); err != nil {
		return false, []string{"unknown trigger " + name}
	}
	return true, []string{"trigger " + name + " is now " + state}
}

func (p *triggersPlugin) cmdToggleGroup(inv *command.Invocation) (bool, []string) {
	pattern, _ := inv.Args["group"].(string)
	state, _ := inv.Args["state"].(string)
	n, err := p.kit.Triggers.ToggleGroup(pattern, state == "on")
	if err != nil {
		return false, []string{err.Error()}
	}
	return true, []string{fmt.Sprintf("%d triggers in group %s are now %s", n, pattern, state)}
}
