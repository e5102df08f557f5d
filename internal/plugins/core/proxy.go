// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package core

import (
	"fmt"

	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/event"
	"github.com/prismmud/prism/internal/plugin"
	"github.com/prismmud/prism/internal/setting"
)

// proxyPlugin owns the proxy-wide settings and the process control
// commands.
type proxyPlugin struct {
	svc Services
	kit *plugin.Kit
}

func (p *proxyPlugin) Registration() plugin.Registration {
	return plugin.Registration{
		Init: []plugin.Hook{captureKit(&p.kit)},
		Settings: []setting.Spec{
			{Name: "command_prefix", Type: setting.TypeStr, Default: command.DefaultPrefix,
				Help:     "prefix marking a client line as a proxy command",
				AfterSet: "commands now use the new prefix"},
			{Name: "command_separator", Type: setting.TypeStr, Default: "|",
				Help: "separator splitting one client line into several mud commands"},
			{Name: "preamble_text", Type: setting.TypeStr, Default: "#BP",
				Help: "marker prepended to proxy-generated lines"},
			{Name: "preamble_color", Type: setting.TypeColor, Default: "@C",
				Help: "color code applied to the preamble marker"},
			{Name: "loglevel", Type: setting.TypeStr, Default: "info",
				Help:     "runtime log level: debug, info, warn, error",
				AfterSet: "log level updated"},
		},
		Callbacks: []plugin.CallbackReg{
			{
				Event: setting.ChangeEventName(ProxyID, "loglevel"),
				Name:  "apply_loglevel",
				Fn: func(data *event.DataRecord) error {
					if p.svc.SetLogLevel == nil {
						return nil
					}
					p.svc.SetLogLevel(data.GetString("newvalue"))
					return nil
				},
			},
		},
		Commands: []command.Spec{
			{
				Name: "info",
				Help: "show proxy version, upstream state, and client count",
				Fn:   p.cmdInfo,
			},
			{
				Name: "clients",
				Help: "list connected clients",
				Fn:   p.cmdClients,
			},
			{
				Name: "shutdown",
				Help: "shut the proxy down gracefully",
				Fn:   p.cmdShutdown,
			},
		},
		Capabilities: []plugin.CapabilityReg{
			{
				Name:        "clients",
				Description: "ids of the currently connected clients",
				Fn: func(args ...any) (any, error) {
					if p.svc.Clients == nil {
						return []string{}, nil
					}
					infos := p.svc.Clients()
					ids := make([]string, len(infos))
					for i, ci := range infos {
						ids[i] = ci.ID
					}
					return ids, nil
				},
			},
		},
	}
}

func (p *proxyPlugin) cmdInfo(*command.Invocation) (bool, []string) {
	upstream := "unknown"
	if p.svc.MudConnected != nil {
		upstream = "disconnected"
		if p.svc.MudConnected() {
			upstream = "connected"
		}
	}
	clients := 0
	if p.svc.Clients != nil {
		clients = len(p.svc.Clients())
	}
	loaded := 0
	if p.svc.Manager != nil {
		loaded = len(p.svc.Manager.LoadedIDs())
	}
	return true, []string{
		"prism " + p.svc.Version,
		fmt.Sprintf("mud: %s (%s)", p.svc.MudAddr, upstream),
		fmt.Sprintf("clients: %d", clients),
		fmt.Sprintf("plugins loaded: %d", loaded),
	}
}

func (p *proxyPlugin) cmdClients(*command.Invocation) (bool, []string) {
	if p.svc.Clients == nil {
		return true, []string{"no client table available"}
	}
	infos := p.svc.Clients()
	if len(infos) == 0 {
		return true, []string{"no clients connected"}
	}
	out := make([]string, 0, len(infos)+1)
	out = append(out, fmt.Sprintf("%-26s %-21s %-6s %s", "id", "remote", "state", "mode"))
	for _, ci := range infos {
		state := "login"
		if ci.LoggedIn {
			state = "active"
		}
		mode := "full"
		if ci.ViewOnly {
			mode = "view"
		}
		out = append(out, fmt.Sprintf("%-26s %-21s %-6s %s", ci.ID, ci.Remote, state, mode))
	}
	return true, out
}

func (p *proxyPlugin) cmdShutdown(*command.Invocation) (bool, []string) {
	if p.svc.Shutdown == nil {
		return false, []string{"shutdown is not wired"}
	}
	p.svc.Shutdown()
	return true, []string{"shutting down"}
}
