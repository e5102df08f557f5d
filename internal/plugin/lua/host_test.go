// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package lua

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismmud/prism/internal/capability"
	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/event"
	"github.com/prismmud/prism/internal/plugin"
	"github.com/prismmud/prism/internal/record"
	"github.com/prismmud/prism/internal/setting"
	"github.com/prismmud/prism/internal/timer"
	"github.com/prismmud/prism/internal/trigger"
)

const testScript = `
local counter = 0
return {
  counter = 0,
  init = function() end,
  callbacks = {
    {
      event = "ev_test_line",
      name = "rewrite",
      fn = function(data)
        data.line.text = "rewritten"
        data.seen = true
      end,
    },
  },
  commands = {
    {
      name = "greet",
      help = "say hello",
      args = { { name = "who", default = "world" } },
      fn = function(args)
        return true, { "hello " .. args.who }
      end,
    },
  },
  triggers = {
    { name = "gold", pattern = "You have (?P<amount>\\d+) gold", argtypes = { amount = "int" } },
  },
  settings = {
    { name = "greeting", type = "str", default = "hi", help = "greeting text" },
  },
}
`

func testDeps(t *testing.T) plugin.Deps {
	t.Helper()
	bus := event.NewBus()
	triggers, err := trigger.NewEngine(bus, "plugins.core.triggers")
	require.NoError(t, err)
	return plugin.Deps{
		Bus:  bus,
		Caps: capability.NewRegistry(),
		Settings: setting.NewRegistry(bus, func(string) (setting.Store, error) {
			return setting.NewMemStore(), nil
		}),
		Timers:   timer.NewScheduler(),
		Triggers: triggers,
		Commands: command.NewEngine(nil, nil),
	}
}

func instantiate(t *testing.T, script string) (*Script, plugin.Deps) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.lua"), []byte(script), 0o644))
	deps := testDeps(t)
	host := NewHost(deps)
	p, err := host.Instantiate(
		&plugin.Info{ID: "plugins.test.lua", Path: dir, SaveOnReload: []string{"counter"}},
		&plugin.Manifest{Name: "Lua Test", Author: "test", Version: 1, Entry: "plugin.lua"},
	)
	require.NoError(t, err)
	s, ok := p.(*Script)
	require.True(t, ok)
	t.Cleanup(func() { _ = s.Close() })
	return s, deps
}

func TestInstantiateParsesDeclarations(t *testing.T) {
	s, _ := instantiate(t, testScript)
	reg := s.Registration()

	require.Len(t, reg.Callbacks, 1)
	assert.Equal(t, "ev_test_line", reg.Callbacks[0].Event)

	require.Len(t, reg.Commands, 1)
	assert.Equal(t, "greet", reg.Commands[0].Name)
	require.Len(t, reg.Commands[0].Args, 1)
	assert.Equal(t, "world", reg.Commands[0].Args[0].Default)

	require.Len(t, reg.Triggers, 1)
	assert.Equal(t, "gold", reg.Triggers[0].Name)
	assert.Equal(t, map[string]string{"amount": "int"}, reg.Triggers[0].ArgTypes)

	require.Len(t, reg.Settings, 1)
	assert.Equal(t, setting.TypeStr, reg.Settings[0].Type)

	require.Len(t, reg.Init, 1)
}

func TestInstantiateErrors(t *testing.T) {
	dir := t.TempDir()
	deps := testDeps(t)
	host := NewHost(deps)
	info := &plugin.Info{ID: "plugins.test.lua", Path: dir}
	manifest := &plugin.Manifest{Name: "Lua Test", Author: "test", Version: 1, Entry: "plugin.lua"}

	_, err := host.Instantiate(info, manifest)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.lua"), []byte("return ((("), 0o644))
	_, err = host.Instantiate(info, manifest)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.lua"), []byte("return 7"), 0o644))
	_, err = host.Instantiate(info, manifest)
	assert.Error(t, err)
}

func TestCallbackRewritesLine(t *testing.T) {
	s, _ := instantiate(t, testScript)
	reg := s.Registration()
	require.Len(t, reg.Callbacks, 1)

	line := record.New("You have 5 gold", record.OriginMud, record.KindIO)
	data := event.NewDataRecord(map[string]any{"line": line})
	require.NoError(t, reg.Callbacks[0].Fn(data))

	assert.Equal(t, "rewritten", line.Text())
	assert.Equal(t, "You have 5 gold", line.Original())
	seen, _ := data.Get("seen")
	assert.Equal(t, true, seen)
}

func TestCommandBridge(t *testing.T) {
	s, _ := instantiate(t, testScript)
	reg := s.Registration()
	require.Len(t, reg.Commands, 1)

	ok, msgs := reg.Commands[0].Fn(&command.Invocation{Args: map[string]any{"who": "mud"}})
	assert.True(t, ok)
	assert.Equal(t, []string{"hello mud"}, msgs)
}

func TestSnapshotRestore(t *testing.T) {
	s, _ := instantiate(t, testScript)

	snap := s.SnapshotState()
	assert.Equal(t, map[string]any{"counter": 0}, snap)

	s.RestoreState(map[string]any{"counter": 42})
	assert.Equal(t, map[string]any{"counter": 42}, s.SnapshotState())
}
