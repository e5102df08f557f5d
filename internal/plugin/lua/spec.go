// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package lua

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/prismmud/prism/internal/record"
	"github.com/prismmud/prism/internal/setting"
	"github.com/prismmud/prism/internal/trigger"
)

// triggerSpec maps a script trigger declaration onto the engine spec.
func triggerSpec(t *lua.LTable) trigger.Spec {
	spec := trigger.Spec{
		Name:           tableString(t, "name"),
		Pattern:        tableString(t, "pattern"),
		Priority:       tableInt(t, "priority", 0),
		Disabled:       tableBool(t, "disabled"),
		Group:          tableString(t, "group"),
		MatchColor:     tableBool(t, "match_color"),
		Omit:           tableBool(t, "omit"),
		StopEvaluating: tableBool(t, "stop"),
		Event:          tableString(t, "event"),
	}
	if types, ok := luaToGo(t.RawGetString("argtypes")).(map[string]any); ok {
		spec.ArgTypes = make(map[string]string, len(types))
		for k, v := range types {
			if s, isString := v.(string); isString {
				spec.ArgTypes[k] = s
			}
		}
	}
	return spec
}

// settingSpec maps a script setting declaration onto the registry spec.
func settingSpec(t *lua.LTable) setting.Spec {
	spec := setting.Spec{
		Name:     tableString(t, "name"),
		Type:     setting.Type(tableString(t, "type")),
		Help:     tableString(t, "help"),
		ReadOnly: tableBool(t, "readonly"),
		Hidden:   tableBool(t, "hidden"),
		AfterSet: tableString(t, "after_set"),
	}
	if d := t.RawGetString("default"); d != lua.LNil {
		spec.Default = luaToGo(d)
	}
	return spec
}

// secondsField reads a numeric field as a duration in seconds.
func secondsField(t *lua.LTable, key string) time.Duration {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return time.Duration(float64(n) * float64(time.Second))
	}
	return 0
}

// lineTable exposes a line record to a script.
func lineTable(state *lua.LState, ln *record.Line) *lua.LTable {
	t := state.NewTable()
	state.SetField(t, "text", lua.LString(ln.Text()))
	state.SetField(t, "original", lua.LString(ln.Original()))
	state.SetField(t, "send", lua.LBool(ln.Send()))
	state.SetField(t, "prompt", lua.LBool(ln.IsPrompt()))
	state.SetField(t, "internal", lua.LBool(ln.Internal()))
	return t
}

// applyLineTable folds a script's edits back through the record's
// mutators so the update log captures them.
func applyLineTable(ln *record.Line, t *lua.LTable, actor string) {
	if text, ok := t.RawGetString("text").(lua.LString); ok && string(text) != ln.Text() {
		_ = ln.SetText(string(text), actor)
	}
	if send, ok := t.RawGetString("send").(lua.LBool); ok && bool(send) != ln.Send() {
		_ = ln.SetSend(bool(send), actor)
	}
}
