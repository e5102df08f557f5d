// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// goToLua converts a Go value into a Lua value. Maps become tables keyed
// by string; slices become array tables. Unconvertible values surface as
// their string form so scripts always get something printable.
func goToLua(state *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []string:
		t := state.NewTable()
		for _, s := range val {
			t.Append(lua.LString(s))
		}
		return t
	case []any:
		t := state.NewTable()
		for _, item := range val {
			t.Append(goToLua(state, item))
		}
		return t
	case map[string]any:
		t := state.NewTable()
		for k, item := range val {
			state.SetField(t, k, goToLua(state, item))
		}
		return t
	default:
		return lua.LString(stringify(val))
	}
}

// luaToGo converts a Lua value into a Go value. Array-shaped tables
// become []any; everything else table-shaped becomes map[string]any.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == float64(int(f)) {
			return int(f)
		}
		return f
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if n := val.Len(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, luaToGo(val.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, item lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				out[string(ks)] = luaToGo(item)
			}
		})
		return out
	default:
		return v.String()
	}
}

func stringify(v any) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return ""
}

// tableString reads a string field, empty when absent.
func tableString(t *lua.LTable, key string) string {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

// tableBool reads a boolean field, false when absent.
func tableBool(t *lua.LTable, key string) bool {
	if b, ok := t.RawGetString(key).(lua.LBool); ok {
		return bool(b)
	}
	return false
}

// tableInt reads a numeric field, def when absent.
func tableInt(t *lua.LTable, key string, def int) int {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return int(n)
	}
	return def
}

// tableFunc reads a function field, nil when absent.
func tableFunc(t *lua.LTable, key string) *lua.LFunction {
	if fn, ok := t.RawGetString(key).(*lua.LFunction); ok {
		return fn
	}
	return nil
}

// eachEntry iterates the array part of a table field, passing each
// element that is itself a table.
func eachEntry(t *lua.LTable, key string, fn func(*lua.LTable)) {
	arr, ok := t.RawGetString(key).(*lua.LTable)
	if !ok {
		return
	}
	for i := 1; i <= arr.Len(); i++ {
		if entry, entryOK := arr.RawGetInt(i).(*lua.LTable); entryOK {
			fn(entry)
		}
	}
}
