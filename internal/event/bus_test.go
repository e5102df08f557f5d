// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package event

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cb(owner, name string, fn func(*DataRecord) error) Callback {
	return Callback{Name: name, Owner: owner, Fn: fn}
}

func noop(*DataRecord) error { return nil }

func TestRegisterRejectsDuplicates(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Register("ev_test", "plugins.core.proxy", "a test event", nil))
	err := b.Register("ev_test", "plugins.core.other", "again", nil)
	require.Error(t, err)
	assert.True(t, b.Has("ev_test"))
}

func TestRegisterClaimsPlaceholder(t *testing.T) {
	b := NewBus()
	_, err := b.RegisterCallback("ev_later", cb("p1", "h", noop), DefaultPriority)
	require.NoError(t, err)
	// The real creator arrives after the early subscriber.
	require.NoError(t, b.Register("ev_later", "plugins.core.proxy", "late", nil))

	d, err := b.Detail("ev_later")
	require.NoError(t, err)
	assert.Equal(t, "plugins.core.proxy", d.Creator)
	assert.Len(t, d.Registrations, 1)
}

func TestRegisterCallbackIdempotent(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Register("ev_test", "p", "", nil))

	added, err := b.RegisterCallback("ev_test", cb("p1", "h", noop), 50)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = b.RegisterCallback("ev_test", cb("p1", "h", noop), 50)
	require.NoError(t, err)
	assert.False(t, added)

	removed, err := b.UnregisterCallback("ev_test", cb("p1", "h", noop))
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = b.UnregisterCallback("ev_test", cb("p1", "h", noop))
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRaiseUnknownEvent(t *testing.T) {
	b := NewBus()
	_, err := b.Raise("ev_missing", nil, "test")
	require.Error(t, err)
}

func TestDispatchPriorityOrder(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Register("ev_test", "p", "", nil))

	var order []string
	mk := func(label string) func(*DataRecord) error {
		return func(*DataRecord) error {
			order = append(order, label)
			return nil
		}
	}
	_, err := b.RegisterCallback("ev_test", cb("p1", "late", mk("late")), 75)
	require.NoError(t, err)
	_, err = b.RegisterCallback("ev_test", cb("p1", "early", mk("early")), 10)
	require.NoError(t, err)
	_, err = b.RegisterCallback("ev_test", cb("p2", "mid", mk("mid")), 50)
	require.NoError(t, err)

	_, err = b.Raise("ev_test", nil, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "mid", "late"}, order)
}

func TestDispatchTiesRunInRegistrationOrder(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Register("ev_test", "p", "", nil))

	var order []string
	for i := 0; i < 4; i++ {
		label := fmt.Sprintf("cb%d", i)
		_, err := b.RegisterCallback("ev_test", cb("p1", label, func(*DataRecord) error {
			order = append(order, label)
			return nil
		}), 50)
		require.NoError(t, err)
	}
	_, err := b.Raise("ev_test", nil, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"cb0", "cb1", "cb2", "cb3"}, order)
}

func TestCallbackRegisteredDuringDispatchRuns(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Register("ev_test", "p", "", nil))

	var ran []string
	_, err := b.RegisterCallback("ev_test", cb("p1", "first", func(*DataRecord) error {
		ran = append(ran, "first")
		_, err := b.RegisterCallback("ev_test", cb("p1", "second", func(*DataRecord) error {
			ran = append(ran, "second")
			return nil
		}), 10)
		return err
	}), 50)
	require.NoError(t, err)

	inv, err := b.Raise("ev_test", nil, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, ran)
	assert.GreaterOrEqual(t, inv.Passes, 2)
}

func TestCallbackFaultDoesNotStopDispatch(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Register("ev_test", "p", "", nil))

	var ran []string
	_, err := b.RegisterCallback("ev_test", cb("p1", "bad", func(*DataRecord) error {
		ran = append(ran, "bad")
		return errors.New("boom")
	}), 10)
	require.NoError(t, err)
	_, err = b.RegisterCallback("ev_test", cb("p1", "panicky", func(*DataRecord) error {
		ran = append(ran, "panicky")
		panic("boom")
	}), 20)
	require.NoError(t, err)
	_, err = b.RegisterCallback("ev_test", cb("p1", "good", func(*DataRecord) error {
		ran = append(ran, "good")
		return nil
	}), 30)
	require.NoError(t, err)

	_, err = b.Raise("ev_test", nil, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"bad", "panicky", "good"}, ran)
}

func TestReentrantRaise(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Register("ev_outer", "p", "", nil))
	require.NoError(t, b.Register("ev_inner", "p", "", nil))

	var sawStack []string
	_, err := b.RegisterCallback("ev_inner", cb("p1", "inner", func(*DataRecord) error {
		sawStack = b.Stack()
		return nil
	}), 50)
	require.NoError(t, err)
	_, err = b.RegisterCallback("ev_outer", cb("p1", "outer", func(*DataRecord) error {
		_, err := b.Raise("ev_inner", nil, "p1")
		return err
	}), 50)
	require.NoError(t, err)

	_, err = b.Raise("ev_outer", nil, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"ev_outer", "ev_inner"}, sawStack)
	assert.Empty(t, b.Stack())
}

func TestRecursiveRaiseOfSameEvent(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Register("ev_test", "p", "", nil))

	depth := 0
	_, err := b.RegisterCallback("ev_test", cb("p1", "recurse", func(*DataRecord) error {
		depth++
		if depth < 3 {
			_, err := b.Raise("ev_test", nil, "p1")
			return err
		}
		return nil
	}), 50)
	require.NoError(t, err)

	_, err = b.Raise("ev_test", nil, "test")
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
	assert.Empty(t, b.Stack())
}

func TestDataListDispatchesPerElement(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Register("ev_test", "p", "", nil))

	var seen []string
	_, err := b.RegisterCallback("ev_test", cb("p1", "h", func(d *DataRecord) error {
		seen = append(seen, d.GetString("line"))
		return nil
	}), 50)
	require.NoError(t, err)

	_, err = b.Raise("ev_test", map[string]any{"dir": "mud"}, "test",
		WithDataList([]any{"one", "two", "three"}, "line"))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, seen)

	d, err := b.Detail("ev_test")
	require.NoError(t, err)
	assert.Equal(t, 3, d.RaiseCount)
}

func TestCurrentRecord(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Register("ev_test", "p", "", nil))

	var got string
	_, err := b.RegisterCallback("ev_test", cb("p1", "h", func(*DataRecord) error {
		got = b.CurrentRecord().GetString("payload")
		return nil
	}), 50)
	require.NoError(t, err)

	assert.Nil(t, b.CurrentRecord())
	_, err = b.Raise("ev_test", map[string]any{"payload": "hello"}, "test")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Nil(t, b.CurrentRecord())
}

func TestRemoveOwner(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Register("ev_a", "p", "", nil))
	require.NoError(t, b.Register("ev_b", "p", "", nil))

	for _, ev := range []string{"ev_a", "ev_b"} {
		_, err := b.RegisterCallback(ev, cb("doomed", "h", noop), 50)
		require.NoError(t, err)
		_, err = b.RegisterCallback(ev, cb("keeper", "h", noop), 50)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, b.RemoveOwner("doomed"))

	for _, ev := range []string{"ev_a", "ev_b"} {
		d, err := b.Detail(ev)
		require.NoError(t, err)
		require.Len(t, d.Registrations, 1)
		assert.Equal(t, "keeper", d.Registrations[0].Owner)
	}
}

func TestHistoryBounded(t *testing.T) {
	b := NewBus(WithHistorySize(5))
	require.NoError(t, b.Register("ev_test", "p", "", nil))

	for i := 0; i < 12; i++ {
		_, err := b.Raise("ev_test", map[string]any{"n": i}, "test")
		require.NoError(t, err)
	}

	hist, err := b.History("ev_test", 0)
	require.NoError(t, err)
	require.Len(t, hist, 5)
	last, _ := hist[4].Data.Get("n")
	assert.Equal(t, 11, last)

	d, err := b.Detail("ev_test")
	require.NoError(t, err)
	assert.Equal(t, 12, d.RaiseCount)
}

func TestCallCountsTracked(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Register("ev_test", "p", "", nil))
	_, err := b.RegisterCallback("ev_test", cb("p1", "h", noop), 50)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := b.Raise("ev_test", nil, "test")
		require.NoError(t, err)
	}
	d, err := b.Detail("ev_test")
	require.NoError(t, err)
	require.Len(t, d.Registrations, 1)
	assert.Equal(t, 3, d.Registrations[0].Calls)
}

func TestRaiseHook(t *testing.T) {
	var names []string
	b := NewBus(WithRaiseHook(func(name string) { names = append(names, name) }))
	require.NoError(t, b.Register("ev_test", "p", "", nil))
	_, err := b.Raise("ev_test", nil, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"ev_test"}, names)
}
