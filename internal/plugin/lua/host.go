// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package lua hosts plugins implemented as Lua scripts. A script returns
// a table of lifecycle functions and declaration tables; the host maps it
// onto the loader's registration contract and exposes a prism.* API back
// into the fabric.
package lua

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/event"
	"github.com/prismmud/prism/internal/plugin"
	"github.com/prismmud/prism/internal/record"
)

// Host instantiates Lua plugins. It implements plugin.Host.
type Host struct {
	deps plugin.Deps
	log  *slog.Logger
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithLogger overrides the host's logger.
func WithLogger(log *slog.Logger) HostOption {
	return func(h *Host) { h.log = log }
}

// NewHost creates a Lua plugin host over the fabric subsystems.
func NewHost(deps plugin.Deps, opts ...HostOption) *Host {
	h := &Host{deps: deps, log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Instantiate reads the plugin's entry script from disk and runs it. The
// script must return a table. Re-reading on every call is what makes
// hot-reload pick up edited code.
func (h *Host) Instantiate(info *plugin.Info, manifest *plugin.Manifest) (plugin.Plugin, error) {
	errb := oops.In("lua").With("plugin", info.ID)
	path := filepath.Join(info.Path, manifest.Entry)
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errb.With("operation", "read").Wrapf(err, "reading %s", path)
	}

	state := lua.NewState()
	s := &Script{
		id:    info.ID,
		info:  info,
		state: state,
		log:   h.log.With("plugin", info.ID),
	}
	h.installAPI(state, info.ID)

	if err := state.DoString(string(src)); err != nil {
		state.Close()
		return nil, errb.With("operation", "run").Wrapf(err, "running %s", path)
	}
	ret := state.Get(-1)
	state.Pop(1)
	table, ok := ret.(*lua.LTable)
	if !ok {
		state.Close()
		return nil, errb.With("operation", "run").Errorf("script %s did not return a table", path)
	}
	s.table = table
	return s, nil
}

// installAPI exposes the prism module to a plugin state.
func (h *Host) installAPI(state *lua.LState, id string) {
	mod := state.NewTable()
	state.SetGlobal("prism", mod)
	state.SetField(mod, "plugin_id", lua.LString(id))

	logAt := func(level slog.Level) *lua.LFunction {
		return state.NewFunction(func(L *lua.LState) int {
			h.log.Log(context.Background(), level, L.CheckString(1), "plugin", id)
			return 0
		})
	}
	state.SetField(mod, "log_debug", logAt(slog.LevelDebug))
	state.SetField(mod, "log_info", logAt(slog.LevelInfo))
	state.SetField(mod, "log_warn", logAt(slog.LevelWarn))

	state.SetField(mod, "raise", state.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		args := map[string]any{}
		if t, ok := L.Get(2).(*lua.LTable); ok {
			if m, mapOK := luaToGo(t).(map[string]any); mapOK {
				args = m
			}
		}
		if _, err := h.deps.Bus.Raise(name, args, id); err != nil {
			L.Push(lua.LString(err.Error()))
			return 1
		}
		return 0
	}))

	state.SetField(mod, "setting_get", state.NewFunction(func(L *lua.LState) int {
		v, err := h.deps.Settings.Get(L.CheckString(1))
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(goToLua(L, v))
		return 1
	}))

	state.SetField(mod, "setting_set", state.NewFunction(func(L *lua.LState) int {
		msg, err := h.deps.Settings.Set(L.CheckString(1), luaToGo(L.Get(2)), id)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LString(msg))
		return 1
	}))

	state.SetField(mod, "call", state.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		var args []any
		for i := 2; i <= L.GetTop(); i++ {
			args = append(args, luaToGo(L.Get(i)))
		}
		out, err := h.deps.Caps.Call(id, name, args...)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(goToLua(L, out))
		return 1
	}))
}

// Script is one instantiated Lua plugin. All entry into the state goes
// through the mutex; the state itself is single-threaded.
type Script struct {
	id    string
	info  *plugin.Info
	log   *slog.Logger
	mu    sync.Mutex
	state *lua.LState
	table *lua.LTable
}

var _ plugin.Plugin = (*Script)(nil)
var _ plugin.StateCarrier = (*Script)(nil)

// Registration maps the script's returned table onto the loader contract.
func (s *Script) Registration() plugin.Registration {
	var reg plugin.Registration
	for _, hook := range []struct {
		key  string
		dst  *[]plugin.Hook
		name string
	}{
		{"init", &reg.Init, "init"},
		{"initialize", &reg.Initialize, "initialize"},
		{"uninitialize", &reg.Uninitialize, "uninitialize"},
		{"save", &reg.Save, "save"},
	} {
		if fn := tableFunc(s.table, hook.key); fn != nil {
			*hook.dst = append(*hook.dst, plugin.Hook{
				Name: hook.name,
				Fn:   s.hookFunc(fn),
			})
		}
	}

	eachEntry(s.table, "events", func(t *lua.LTable) {
		reg.Events = append(reg.Events, plugin.EventDef{
			Name:        tableString(t, "name"),
			Description: tableString(t, "description"),
		})
	})
	eachEntry(s.table, "callbacks", func(t *lua.LTable) {
		fn := tableFunc(t, "fn")
		if fn == nil {
			return
		}
		reg.Callbacks = append(reg.Callbacks, plugin.CallbackReg{
			Event:    tableString(t, "event"),
			Name:     tableString(t, "name"),
			Priority: tableInt(t, "priority", 0),
			Fn:       s.callbackFunc(fn),
		})
	})
	eachEntry(s.table, "commands", func(t *lua.LTable) {
		reg.Commands = append(reg.Commands, s.commandSpec(t))
	})
	eachEntry(s.table, "triggers", func(t *lua.LTable) {
		reg.Triggers = append(reg.Triggers, triggerSpec(t))
	})
	eachEntry(s.table, "timers", func(t *lua.LTable) {
		fn := tableFunc(t, "fn")
		if fn == nil {
			return
		}
		reg.Timers = append(reg.Timers, plugin.TimerReg{
			Name:      tableString(t, "name"),
			Interval:  secondsField(t, "interval"),
			OneShot:   tableBool(t, "oneshot"),
			TimeOfDay: tableString(t, "time"),
			Disabled:  tableBool(t, "disabled"),
			Fn:        s.timerFunc(fn),
		})
	})
	eachEntry(s.table, "settings", func(t *lua.LTable) {
		reg.Settings = append(reg.Settings, settingSpec(t))
	})
	eachEntry(s.table, "capabilities", func(t *lua.LTable) {
		fn := tableFunc(t, "fn")
		if fn == nil {
			return
		}
		reg.Capabilities = append(reg.Capabilities, plugin.CapabilityReg{
			Name:        tableString(t, "name"),
			Description: tableString(t, "description"),
			Fn:          s.capabilityFunc(fn),
		})
	})
	return reg
}

// SnapshotState copies the attributes named by the manifest's
// save_on_reload list out of the plugin table.
func (s *Script) SnapshotState() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.info.SaveOnReload) == 0 {
		return nil
	}
	out := make(map[string]any, len(s.info.SaveOnReload))
	for _, attr := range s.info.SaveOnReload {
		out[attr] = luaToGo(s.table.RawGetString(attr))
	}
	return out
}

// RestoreState writes snapshotted attributes onto the fresh instance.
func (s *Script) RestoreState(snapshot map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, attr := range s.info.SaveOnReload {
		if v, ok := snapshot[attr]; ok {
			s.state.SetField(s.table, attr, goToLua(s.state, v))
		}
	}
}

// Close releases the Lua state. The manager calls this at unload.
func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Close()
	return nil
}

func (s *Script) hookFunc(fn *lua.LFunction) func(*plugin.Kit) error {
	return func(*plugin.Kit) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
	}
}

// callbackFunc bridges an event callback. The data record crosses as a
// table; string keys written by the script are copied back so scripts
// can rewrite event data. A "line" record crosses as {text, send, ...}
// and text/send edits flow back through the record's mutators.
func (s *Script) callbackFunc(fn *lua.LFunction) func(*event.DataRecord) error {
	return func(data *event.DataRecord) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		t := s.state.NewTable()
		var line *record.Line
		for _, k := range data.Keys() {
			v, _ := data.Get(k)
			if ln, ok := v.(*record.Line); ok && line == nil {
				line = ln
				s.state.SetField(t, k, lineTable(s.state, ln))
				continue
			}
			s.state.SetField(t, k, goToLua(s.state, v))
		}
		if err := s.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, t); err != nil {
			return err
		}
		t.ForEach(func(k, v lua.LValue) {
			ks, ok := k.(lua.LString)
			if !ok {
				return
			}
			if line != nil {
				if lt, isTable := v.(*lua.LTable); isTable {
					if prev, _ := data.Get(string(ks)); prev == any(line) {
						applyLineTable(line, lt, s.id)
						return
					}
				}
			}
			data.Set(string(ks), luaToGo(v))
		})
		return nil
	}
}

func (s *Script) commandSpec(t *lua.LTable) (spec command.Spec) {
	spec.Name = tableString(t, "name")
	spec.Help = tableString(t, "help")
	spec.Group = tableString(t, "group")
	eachEntry(t, "args", func(a *lua.LTable) {
		arg := command.Arg{
			Name: tableString(a, "name"),
			Help: tableString(a, "help"),
			Type: tableString(a, "type"),
			Rest: tableBool(a, "rest"),
		}
		if d := a.RawGetString("default"); d != lua.LNil {
			arg.Default = luaToGo(d)
		}
		if choices, ok := luaToGo(a.RawGetString("choices")).([]any); ok {
			for _, c := range choices {
				if cs, isString := c.(string); isString {
					arg.Choices = append(arg.Choices, cs)
				}
			}
		}
		spec.Args = append(spec.Args, arg)
	})
	fn := tableFunc(t, "fn")
	spec.Fn = func(inv *command.Invocation) (bool, []string) {
		if fn == nil {
			return false, nil
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		args := s.state.NewTable()
		for k, v := range inv.Args {
			s.state.SetField(args, k, goToLua(s.state, v))
		}
		if err := s.state.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, args); err != nil {
			s.log.Warn("command handler failed", "command", spec.Name, "error", err)
			return false, []string{err.Error()}
		}
		msgsVal := s.state.Get(-1)
		okVal := s.state.Get(-2)
		s.state.Pop(2)
		var msgs []string
		if items, isList := luaToGo(msgsVal).([]any); isList {
			for _, item := range items {
				if str, isString := item.(string); isString {
					msgs = append(msgs, str)
				}
			}
		}
		return lua.LVAsBool(okVal), msgs
	}
	return spec
}

func (s *Script) timerFunc(fn *lua.LFunction) func() error {
	return func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.state.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
	}
}

func (s *Script) capabilityFunc(fn *lua.LFunction) func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		lvs := make([]lua.LValue, len(args))
		for i, a := range args {
			lvs[i] = goToLua(s.state, a)
		}
		if err := s.state.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lvs...); err != nil {
			return nil, err
		}
		out := luaToGo(s.state.Get(-1))
		s.state.Pop(1)
		return out, nil
	}
}
