// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package setting

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismmud/prism/internal/event"
)

func newTestRegistry(t *testing.T) (*Registry, *event.Bus, *MemStore) {
	t.Helper()
	bus := event.NewBus()
	store := NewMemStore()
	reg := NewRegistry(bus, func(string) (Store, error) { return store, nil })
	return reg, bus, store
}

func TestRegisterAndGetDefault(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(Spec{
		Plugin:  "plugins.core.proxy",
		Name:    "command_prefix",
		Type:    TypeStr,
		Default: "#bp",
		Help:    "prefix that marks a client line as a proxy command",
	}))

	got, err := reg.GetString("command_prefix")
	require.NoError(t, err)
	assert.Equal(t, "#bp", got)
}

func TestNamesGloballyUnique(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "shared", Type: TypeStr, Default: "a"}))
	err := reg.Register(Spec{Plugin: "p2", Name: "shared", Type: TypeStr, Default: "b"})
	require.Error(t, err)
}

func TestSetRaisesChangeEventAndFlushes(t *testing.T) {
	reg, bus, store := newTestRegistry(t)
	require.NoError(t, reg.Register(Spec{
		Plugin:   "plugins.core.proxy",
		Name:     "command_prefix",
		Type:     TypeStr,
		Default:  "#bp",
		AfterSet: "the new prefix takes effect immediately",
	}))

	evName := ChangeEventName("plugins.core.proxy", "command_prefix")
	assert.Equal(t, "ev_plugins.core.proxy_var_command_prefix_modified", evName)

	var gotVar, gotOld, gotNew string
	_, err := bus.RegisterCallback(evName, event.Callback{
		Name:  "watch",
		Owner: "test",
		Fn: func(d *event.DataRecord) error {
			gotVar = d.GetString("var")
			ov, _ := d.Get("oldvalue")
			nv, _ := d.Get("newvalue")
			gotOld, _ = ov.(string)
			gotNew, _ = nv.(string)
			return nil
		},
	}, event.DefaultPriority)
	require.NoError(t, err)

	msg, err := reg.Set("command_prefix", "@px", "test")
	require.NoError(t, err)
	assert.Equal(t, "the new prefix takes effect immediately", msg)
	assert.Equal(t, "command_prefix", gotVar)
	assert.Equal(t, "#bp", gotOld)
	assert.Equal(t, "@px", gotNew)
	assert.Equal(t, 1, store.Flushes())

	got, err := reg.GetString("command_prefix")
	require.NoError(t, err)
	assert.Equal(t, "@px", got)
}

type countingStore struct {
	*MemStore
	puts    int
	deletes int
}

func (c *countingStore) Put(key string, value any) {
	c.puts++
	c.MemStore.Put(key, value)
}

func (c *countingStore) Delete(key string) {
	c.deletes++
	c.MemStore.Delete(key)
}

func TestSetNoopLeavesStoreUntouched(t *testing.T) {
	bus := event.NewBus()
	store := &countingStore{MemStore: NewMemStore()}
	reg := NewRegistry(bus, func(string) (Store, error) { return store, nil })
	require.NoError(t, reg.Register(Spec{
		Plugin:  "plugins.core.proxy",
		Name:    "command_prefix",
		Type:    TypeStr,
		Default: "#bp",
	}))

	_, err := reg.Set("command_prefix", "@px", "test")
	require.NoError(t, err)
	assert.Equal(t, 1, store.puts)
	assert.Equal(t, 1, store.MemStore.Flushes())

	// Writing the current value again is a no-op end to end.
	_, err = reg.Set("command_prefix", "@px", "test")
	require.NoError(t, err)
	assert.Equal(t, 1, store.puts)
	assert.Equal(t, 0, store.deletes)
	assert.Equal(t, 1, store.MemStore.Flushes())

	// Resetting an already-default setting is a no-op too.
	_, err = reg.Set("command_prefix", Default, "test")
	require.NoError(t, err)
	_, err = reg.Set("command_prefix", Default, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, store.deletes)
	assert.Equal(t, 2, store.MemStore.Flushes())
}

func TestSetSentinelResetsToDefault(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "rows", Type: TypeInt, Default: 24}))

	_, err := reg.Set("rows", "40", "test")
	require.NoError(t, err)
	got, err := reg.GetInt("rows")
	require.NoError(t, err)
	assert.Equal(t, 40, got)

	_, err = reg.Set("rows", Default, "test")
	require.NoError(t, err)
	got, err = reg.GetInt("rows")
	require.NoError(t, err)
	assert.Equal(t, 24, got)
}

func TestSetRejectsBadValues(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "rows", Type: TypeInt, Default: 24}))
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "banner_color", Type: TypeColor, Default: "@C"}))
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "idle", Type: TypeDuration, Default: "30s"}))

	_, err := reg.Set("rows", "not a number", "test")
	require.Error(t, err)
	_, err = reg.Set("banner_color", "red", "test")
	require.Error(t, err)
	_, err = reg.Set("idle", "soon", "test")
	require.Error(t, err)

	// Rejected writes leave the current value untouched.
	got, err := reg.GetInt("rows")
	require.NoError(t, err)
	assert.Equal(t, 24, got)
}

func TestDurationCoercesToSeconds(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "idle", Type: TypeDuration, Default: "1h30m"}))
	got, err := reg.GetInt("idle")
	require.NoError(t, err)
	assert.Equal(t, 5400, got)
}

func TestBoolVariants(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "echo", Type: TypeBool, Default: false}))

	for _, v := range []string{"true", "yes", "on", "1"} {
		_, err := reg.Set("echo", v, "test")
		require.NoError(t, err)
		got, err := reg.GetBool("echo")
		require.NoError(t, err)
		assert.True(t, got, v)

		_, err = reg.Set("echo", "off", "test")
		require.NoError(t, err)
	}
}

func TestReadOnlyRejected(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "version", Type: TypeStr, Default: "1", ReadOnly: true}))
	_, err := reg.Set("version", "2", "test")
	require.Error(t, err)
}

func TestHiddenSettingSkipsEventAndListing(t *testing.T) {
	reg, bus, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "secret", Type: TypeStr, Default: "x", Hidden: true}))

	assert.False(t, bus.Has(ChangeEventName("p1", "secret")))
	_, err := reg.Set("secret", "y", "test")
	require.NoError(t, err)

	assert.Empty(t, reg.List("p1", false))
	assert.Len(t, reg.List("p1", true), 1)
}

func TestRemovePluginDropsSpecs(t *testing.T) {
	reg, _, store := newTestRegistry(t)
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "a", Type: TypeStr, Default: "x"}))
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "b", Type: TypeStr, Default: "y"}))

	assert.Equal(t, 2, reg.RemovePlugin("p1"))
	_, err := reg.Get("a")
	require.Error(t, err)
	assert.GreaterOrEqual(t, store.Flushes(), 1)

	// The name is free for re-registration after unload.
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "a", Type: TypeStr, Default: "x"}))
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugins.core.proxy", "settings.yaml")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	s.Put("command_prefix", "@px")
	s.Put("rows", 40)
	require.NoError(t, s.Flush())

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	v, ok := reopened.Get("command_prefix")
	require.True(t, ok)
	assert.Equal(t, "@px", v)
	n, ok := reopened.Get("rows")
	require.True(t, ok)
	assert.Equal(t, 40, n)
}

func TestPersistedValueSurvivesReRegistration(t *testing.T) {
	bus := event.NewBus()
	store := NewMemStore()
	reg := NewRegistry(bus, func(string) (Store, error) { return store, nil })

	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "rows", Type: TypeInt, Default: 24}))
	_, err := reg.Set("rows", 40, "test")
	require.NoError(t, err)

	reg.RemovePlugin("p1")

	// Reload: the same store comes back with the persisted override.
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "rows", Type: TypeInt, Default: 24}))
	got, err := reg.GetInt("rows")
	require.NoError(t, err)
	assert.Equal(t, 40, got)
}

func TestCustomType(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	reg.RegisterType("upper", func(raw any) (any, error) {
		s, ok := raw.(string)
		if !ok {
			return nil, assert.AnError
		}
		return strings.ToUpper(s), nil
	})
	require.NoError(t, reg.Register(Spec{Plugin: "p1", Name: "custom", Type: "upper", Default: "ok"}))

	got, err := reg.GetString("custom")
	require.NoError(t, err)
	assert.Equal(t, "OK", got)

	err = reg.Register(Spec{Plugin: "p1", Name: "bogus", Type: "missing", Default: 1})
	require.Error(t, err)
}
