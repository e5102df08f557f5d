// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package core

import (
	"fmt"

	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/plugin"
)

// commandsPlugin is the introspection surface over the command engine.
type commandsPlugin struct {
	kit *plugin.Kit
}

func (p *commandsPlugin) Registration() plugin.Registration {
	return plugin.Registration{
		Init: []plugin.Hook{captureKit(&p.kit)},
		Commands: []command.Spec{
			{
				Name: "list",
				Help: "list commands; without an argument, list plugins with commands",
				Args: []command.Arg{{Name: "plugin", Help: "plugin id", Default: ""}},
				Fn:   p.cmdList,
			},
			{
				Name: "detail",
				Help: "show one command's help and usage",
				Args: []command.Arg{
					{Name: "plugin", Help: "plugin id"},
					{Name: "command", Help: "command name"},
				},
				Fn: p.cmdDetail,
			},
			{
				Name:            "history",
				Help:            "show the command history, oldest first",
				HideFromHistory: true,
				Fn:              p.cmdHistory,
			},
			{
				Name:            "clear",
				Help:            "clear the command history",
				HideFromHistory: true,
				Fn:              p.cmdClear,
			},
		},
	}
}

func (p *commandsPlugin) cmdList(inv *command.Invocation) (bool, []string) {
	id, _ := inv.Args["plugin"].(string)
	if id == "" {
		ids := p.kit.Commands.Plugins()
		out := make([]string, 0, len(ids)+1)
		out = append(out, "plugins with commands:")
		for _, pid := range ids {
			out = append(out, fmt.Sprintf("  %-32s %d commands", pid, len(p.kit.Commands.List(pid))))
		}
		return true, out
	}
	specs := p.kit.Commands.List(id)
	if len(specs) == 0 {
		return false, []string{"no commands registered by " + id}
	}
	out := make([]string, 0, len(specs)+1)
	out = append(out, "commands of "+id+":")
	for _, spec := range specs {
		out = append(out, fmt.Sprintf("  %-16s %s", spec.Name, spec.Help))
	}
	return true, out
}

func (p *commandsPlugin) cmdDetail(inv *command.Invocation) (bool, []string) {
	pid, _ := inv.Args["plugin"].(string)
	name, _ := inv.Args["command"].(string)
	spec, err := p.kit.Commands.Detail(pid, name)
	if err != nil {
		return false, []string{command.ClientMessage(err)}
	}
	out := []string{
		spec.Plugin + "." + spec.Name + ": " + spec.Help,
		"usage: " + p.kit.Commands.Usage(spec),
	}
	for _, arg := range spec.Args {
		required := "required"
		if arg.Default != nil {
			required = fmt.Sprintf("default %v", arg.Default)
		}
		out = append(out, fmt.Sprintf("  %-12s %s (%s)", arg.Name, arg.Help, required))
	}
	return true, out
}

func (p *commandsPlugin) cmdHistory(*command.Invocation) (bool, []string) {
	entries := p.kit.Commands.History()
	if len(entries) == 0 {
		return true, []string{"history is empty"}
	}
	out := make([]string, 0, len(entries))
	for i, entry := range entries {
		out = append(out, fmt.Sprintf("%3d: %s", i-len(entries), entry))
	}
	return true, out
}

func (p *commandsPlugin) cmdClear(*command.Invocation) (bool, []string) {
	p.kit.Commands.ClearHistory()
	return true, []string{"history cleared"}
}
