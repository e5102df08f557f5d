// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package core

import (
	"fmt"
	"strings"

	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/plugin"
)

// pluginsPlugin exposes the plugin lifecycle as commands. It registers
// under the manager's own id, so the manager's lifecycle callbacks and
// these commands share one owner.
type pluginsPlugin struct {
	svc Services
	kit *plugin.Kit
}

func (p *pluginsPlugin) Registration() plugin.Registration {
	return plugin.Registration{
		Init: []plugin.Hook{captureKit(&p.kit)},
		Commands: []command.Spec{
			{
				Name: "list",
				Help: "list all known plugins and their states",
				Fn:   p.cmdList,
			},
			{
				Name: "detail",
				Help: "show one plugin's metadata and registrations",
				Args: []command.Arg{{Name: "plugin", Help: "plugin id"}},
				Fn:   p.cmdDetail,
			},
			{
				Name: "load",
				Help: "load a discovered plugin",
				Args: []command.Arg{{Name: "plugin", Help: "plugin id"}},
				Fn:   p.cmdLoad,
			},
			{
				Name: "unload",
				Help: "unload a loaded plugin",
				Args: []command.Arg{{Name: "plugin", Help: "plugin id"}},
				Fn:   p.cmdUnload,
			},
			{
				Name: "reload",
				Help: "hot-reload a plugin, preserving its saved attributes",
				Args: []command.Arg{{Name: "plugin", Help: "plugin id"}},
				Fn:   p.cmdReload,
			},
			{
				Name: "save",
				Help: "run every plugin's save hooks and flush settings",
				Fn:   p.cmdSave,
			},
			{
				Name: "reset",
				Help: "reset a plugin's settings to their defaults",
				Args: []command.Arg{{Name: "plugin", Help: "plugin id"}},
				Fn:   p.cmdReset,
			},
		},
	}
}

func (p *pluginsPlugin) manager() *plugin.Manager { return p.svc.Manager }

func (p *pluginsPlugin) cmdList(*command.Invocation) (bool, []string) {
	infos := p.manager().List()
	if len(infos) == 0 {
		return true, []string{"no plugins known"}
	}
	out := make([]string, 0, len(infos)+1)
	out = append(out, fmt.Sprintf("%-32s %-12s %s", "id", "state", "purpose"))
	for _, info := range infos {
		out = append(out, fmt.Sprintf("%-32s %-12s %s", info.ID, info.State, info.Purpose))
	}
	return true, out
}

func (p *pluginsPlugin) cmdDetail(inv *command.Invocation) (bool, []string) {
	id, _ := inv.Args["plugin"].(string)
	info, err := p.manager().Get(id)
	if err != nil {
		return false, []string{"unknown plugin " + id}
	}
	out := []string{
		"id:       " + info.ID,
		"name:     " + info.Name,
		"author:   " + info.Author,
		fmt.Sprintf("version:  %d", info.Version),
		"purpose:  " + info.Purpose,
		"state:    " + string(info.State),
		"required: " + onOff(info.Required),
	}
	if info.Path != "" {
		out = append(out, "path:     "+info.Path)
	}
	if len(info.Dependencies) > 0 {
		out = append(out, "depends:  "+strings.Join(info.Dependencies, ", "))
	}
	if len(info.SaveOnReload) > 0 {
		out = append(out, "saved on reload: "+strings.Join(info.SaveOnReload, ", "))
	}
	if info.State == plugin.StateLoaded {
		out = append(out, "loaded:   "+info.LoadedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
		if p.kit != nil {
			out = append(out,
				fmt.Sprintf("commands: %d", len(p.kit.Commands.List(id))),
				fmt.Sprintf("settings: %d", len(p.kit.Settings.List(id, false))))
		}
	}
	return true, out
}

func (p *pluginsPlugin) cmdLoad(inv *command.Invocation) (bool, []string) {
	id, _ := inv.Args["plugin"].(string)
	if err := p.manager().Load(id); err != nil {
		return false, []string{err.Error()}
	}
	if !p.manager().IsLoaded(id) {
		return false, []string{"load failed for " + id + ", see the proxy log"}
	}
	return true, []string{"loaded " + id}
}

func (p *pluginsPlugin) cmdUnload(inv *command.Invocation) (bool, []string) {
	id, _ := inv.Args["plugin"].(string)
	if err := p.manager().Unload(id); err != nil {
		return false, []string{err.Error()}
	}
	return true, []string{"unloaded " + id}
}

func (p *pluginsPlugin) cmdReload(inv *command.Invocation) (bool, []string) {
	id, _ := inv.Args["plugin"].(string)
	if err := p.manager().Reload(id); err != nil {
		return false, []string{err.Error()}
	}
	return true, []string{"reloaded " + id}
}

func (p *pluginsPlugin) cmdSave(*command.Invocation) (bool, []string) {
	if p.kit != nil {
		if _, err := p.kit.Bus.Raise(plugin.EventSave, nil, PluginsID); err != nil {
			return false, []string{err.Error()}
		}
	} else {
		p.manager().SaveAll()
	}
	return true, []string{"plugins saved"}
}

func (p *pluginsPlugin) cmdReset(inv *command.Invocation) (bool, []string) {
	id, _ := inv.Args["plugin"].(string)
	if err := p.manager().ResetSettings(id); err != nil {
		return false, []string{err.Error()}
	}
	return true, []string{"settings reset for " + id}
}
