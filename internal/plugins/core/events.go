// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package core

import (
	"fmt"
	"sort"

	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/plugin"
)

// eventsPlugin is the introspection surface over the event bus.
type eventsPlugin struct {
	kit *plugin.Kit
}

func (p *eventsPlugin) Registration() plugin.Registration {
	return plugin.Registration{
		Init: []plugin.Hook{captureKit(&p.kit)},
		Commands: []command.Spec{
			{
				Name: "list",
				Help: "list all registered event names",
				Fn:   p.cmdList,
			},
			{
				Name: "detail",
				Help: "show one event's creator, schema, and registrations",
				Args: []command.Arg{{Name: "event", Help: "event name"}},
				Fn:   p.cmdDetail,
			},
			{
				Name: "history",
				Help: "show recent invocations of one event",
				Args: []command.Arg{
					{Name: "event", Help: "event name"},
					{Name: "count", Help: "how many invocations", Type: "int", Default: 10},
				},
				Fn: p.cmdHistory,
			},
			{
				Name: "raise",
				Help: "raise an event with an empty argument record",
				Args: []command.Arg{{Name: "event", Help: "event name"}},
				Fn:   p.cmdRaise,
			},
		},
		Capabilities: []plugin.CapabilityReg{
			{
				Name:        "raise",
				Description: "raise an event by name with an args map",
				Fn: func(args ...any) (any, error) {
					if len(args) < 1 {
						return nil, fmt.Errorf("raise takes an event name and an optional args map")
					}
					name, ok := args[0].(string)
					if !ok {
						return nil, fmt.Errorf("event name must be a string")
					}
					var eventArgs map[string]any
					if len(args) > 1 {
						eventArgs, _ = args[1].(map[string]any)
					}
					return p.kit.Bus.Raise(name, eventArgs, EventsID)
				},
			},
		},
	}
}

func (p *eventsPlugin) cmdList(*command.Invocation) (bool, []string) {
	names := p.kit.Bus.Names()
	out := make([]string, 0, len(names)+1)
	out = append(out, fmt.Sprintf("%d events registered:", len(names)))
	for _, name := range names {
		out = append(out, "  "+name)
	}
	return true, out
}

func (p *eventsPlugin) cmdDetail(inv *command.Invocation) (bool, []string) {
	name, _ := inv.Args["event"].(string)
	d, err := p.kit.Bus.Detail(name)
	if err != nil {
		return false, []string{"unknown event " + name}
	}
	out := []string{
		"event:   " + d.Name,
		"creator: " + d.Creator,
	}
	if d.Description != "" {
		out = append(out, "about:   "+d.Description)
	}
	out = append(out, fmt.Sprintf("raised:  %d times", d.RaiseCount))
	if len(d.ArgSchema) > 0 {
		out = append(out, "args:")
		keys := make([]string, 0, len(d.ArgSchema))
		for k := range d.ArgSchema {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, fmt.Sprintf("  %-16s %s", k, d.ArgSchema[k]))
		}
	}
	if len(d.Registrations) > 0 {
		out = append(out, "registrations:")
		for _, reg := range d.Registrations {
			out = append(out, fmt.Sprintf("  %3d %-32s %-24s %d calls",
				reg.Priority, reg.Owner, reg.Name, reg.Calls))
		}
	}
	return true, out
}

func (p *eventsPlugin) cmdHistory(inv *command.Invocation) (bool, []string) {
	name, _ := inv.Args["event"].(string)
	count, _ := inv.Args["count"].(int)
	invocations, err := p.kit.Bus.History(name, count)
	if err != nil {
		return false, []string{"unknown event " + name}
	}
	if len(invocations) == 0 {
		return true, []string{name + " has never been raised"}
	}
	out := make([]string, 0, len(invocations))
	for _, rec := range invocations {
		out = append(out, fmt.Sprintf("%s  actor=%s passes=%d",
			rec.Start.Format("15:04:05.000"), rec.Actor, rec.Passes))
	}
	return true, out
}

func (p *eventsPlugin) cmdRaise(inv *command.Invocation) (bool, []string) {
	name, _ := inv.Args["event"].(string)
	if _, err := p.kit.Bus.Raise(name, nil, EventsID); err != nil {
		return false, []string{"unknown event " + name}
	}
	return true, []string{"raised " + name}
}
