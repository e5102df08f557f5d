// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package core

import (
	"fmt"

	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/plugin"
	"github.com/prismmud/prism/internal/timer"
)

// timersPlugin is the introspection and toggle surface over the timer
// scheduler.
type timersPlugin struct {
	kit *plugin.Kit
}

func (p *timersPlugin) Registration() plugin.Registration {
	return plugin.Registration{
		Init: []plugin.Hook{captureKit(&p.kit)},
		Commands: []command.Spec{
			{
				Name: "list",
				Help: "list all timers with next-fire times and fire counts",
				Fn:   p.cmdList,
			},
			{
				Name: "detail",
				Help: "show one timer's schedule and accounting",
				Args: []command.Arg{{Name: "timer", Help: "timer name"}},
				Fn:   p.cmdDetail,
			},
			{
				Name: "toggle",
				Help: "enable or disable one timer",
				Args: []command.Arg{
					{Name: "timer", Help: "timer name"},
					{Name: "state", Help: "on or off", Choices: []string{"on", "off"}},
				},
				Fn: p.cmdToggle,
			},
		},
	}
}

func schedule(d *timer.Detail) string {
	if d.TimeOfDay != "" {
		return "daily at " + d.TimeOfDay + " UTC"
	}
	if d.OneShot {
		return "once after " + d.Interval.String()
	}
	return "every " + d.Interval.String()
}

func (p *timersPlugin) cmdList(*command.Invocation) (bool, []string) {
	details := p.kit.Timers.List()
	if len(details) == 0 {
		return true, []string{"no timers registered"}
	}
	out := make([]string, 0, len(details)+1)
	out = append(out, fmt.Sprintf("%-20s %-32s %-22s %-5s %s", "name", "owner", "schedule", "state", "fires"))
	for _, d := range details {
		out = append(out, fmt.Sprintf("%-20s %-32s %-22s %-5s %d",
			d.Name, d.Owner, schedule(d), onOff(d.Enabled), d.FireCount))
	}
	return true, out
}

func (p *timersPlugin) cmdDetail(inv *command.Invocation) (bool, []string) {
	name, _ := inv.Args["timer"].(string)
	d, err := p.kit.Timers.Get(name)
	if err != nil {
		return false, []string{"unknown timer " + name}
	}
	out := []string{
		"timer:     " + d.Name,
		"owner:     " + d.Owner,
		"schedule:  " + schedule(d),
		"state:     " + onOff(d.Enabled),
		fmt.Sprintf("fires:     %d", d.FireCount),
	}
	if !d.LastFire.IsZero() {
		out = append(out, "last fire: "+d.LastFire.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	if d.Enabled {
		out = append(out, "next fire: "+d.NextFire.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	return true, out
}

func (p *timersPlugin) cmdToggle(inv *command.Invocation) (bool, []string) {
	name, _ := inv.Args["timer"].(string)
	state, _ := inv.Args["state"].(string)
	if err := p.kit.Timers.Toggle(name, state == "on"); err != nil {
		return false, []string{"unknown timer " + name}
	}
	return true, []string{"timer " + name + " is now " + state}
}
