// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package core holds the builtin plugins compiled into the proxy. They
// expose the interactive command surface over the fabric subsystems:
// proxy control, plugin lifecycle, and the introspection commands for
// commands, settings, triggers, timers, and events.
package core

import (
	"fmt"

	"github.com/prismmud/prism/internal/plugin"
	"github.com/prismmud/prism/internal/proxy"
)

// Builtin plugin ids.
const (
	ProxyID    = "plugins.core.proxy"
	PluginsID  = plugin.ManagerID
	CommandsID = "plugins.core.commands"
	SettingsID = "plugins.core.settings"
	TriggersID = "plugins.core.triggers"
	TimersID   = "plugins.core.timers"
	EventsID   = "plugins.core.events"
)

// Services are the process-level handles the builtins reach beyond the
// fabric kit: the plugin manager itself, the client table, the upstream
// connection state, and process control.
type Services struct {
	Version      string
	Manager      *plugin.Manager
	MudAddr      string
	MudConnected func() bool
	Clients      func() []proxy.ClientInfo
	Shutdown     func()
	SetLogLevel  func(level string)
}

// RegisterAll registers every builtin with the manager. The builtins are
// required plugins: they refuse unload and are always present.
func RegisterAll(m *plugin.Manager, svc Services) error {
	builtins := []struct {
		id, name, purpose string
		factory           plugin.Factory
	}{
		{ProxyID, "Proxy", "proxy control, core settings, client listing",
			func(id string, info *plugin.Info) (plugin.Plugin, error) {
				return &proxyPlugin{svc: svc}, nil
			}},
		{PluginsID, "Plugins", "plugin lifecycle commands",
			func(id string, info *plugin.Info) (plugin.Plugin, error) {
				return &pluginsPlugin{svc: svc}, nil
			}},
		{CommandsID, "Commands", "command listing, help, and history",
			func(id string, info *plugin.Info) (plugin.Plugin, error) {
				return &commandsPlugin{}, nil
			}},
		{SettingsID, "Settings", "settings introspection and writes",
			func(id string, info *plugin.Info) (plugin.Plugin, error) {
				return &settingsPlugin{}, nil
			}},
		{TriggersID, "Triggers", "trigger introspection and toggles",
			func(id string, info *plugin.Info) (plugin.Plugin, error) {
				return &triggersPlugin{}, nil
			}},
		{TimersID, "Timers", "timer introspection and toggles",
			func(id string, info *plugin.Info) (plugin.Plugin, error) {
				return &timersPlugin{}, nil
			}},
		{EventsID, "Events", "event introspection and manual raises",
			func(id string, info *plugin.Info) (plugin.Plugin, error) {
				return &eventsPlugin{}, nil
			}},
	}
	for _, b := range builtins {
		info := plugin.Info{
			ID:       b.id,
			Name:     b.name,
			Author:   "prism",
			Version:  1,
			Purpose:  b.purpose,
			Required: true,
		}
		if err := m.RegisterBuiltin(info, b.factory); err != nil {
			return fmt.Errorf("register builtin %s: %w", b.id, err)
		}
	}
	return nil
}

// captureKit is the shared init hook: every builtin stashes its kit so
// command functions can reach the fabric at dispatch time.
func captureKit(dst **plugin.Kit) plugin.Hook {
	return plugin.Hook{
		Name: "capture_kit",
		Fn: func(k *plugin.Kit) error {
			*dst = k
			return nil
		},
	}
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
