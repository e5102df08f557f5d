// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismmud/prism/internal/event"
	"github.com/prismmud/prism/internal/record"
)

func newEngine(t *testing.T) (*Engine, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	e, err := NewEngine(bus, "plugins.core.triggers")
	require.NoError(t, err)
	return e, bus
}

func watch(t *testing.T, bus *event.Bus, eventName string, got *[]*event.DataRecord) {
	t.Helper()
	_, err := bus.RegisterCallback(eventName, event.Callback{
		Name:  "watch",
		Owner: "test",
		Fn: func(d *event.DataRecord) error {
			*got = append(*got, d)
			return nil
		},
	}, event.DefaultPriority)
	require.NoError(t, err)
}

func mudLine(text string) *record.Line {
	return record.New(text, record.OriginMud, record.KindIO)
}

func TestAddRejectsBadPatternAndDuplicates(t *testing.T) {
	e, _ := newEngine(t)
	require.Error(t, e.Add(Spec{Name: "bad", Owner: "p1", Pattern: "("}))
	require.NoError(t, e.Add(Spec{Name: "ok", Owner: "p1", Pattern: "^x"}))
	require.Error(t, e.Add(Spec{Name: "ok", Owner: "p2", Pattern: "^y"}))
}

func TestMatchRaisesEventWithCoercedGroups(t *testing.T) {
	e, bus := newEngine(t)
	require.NoError(t, e.Add(Spec{
		Name:     "gold",
		Owner:    "p1",
		Pattern:  `^You have (?P<amount>\d+) gold`,
		ArgTypes: map[string]string{"amount": "int"},
	}))

	var fired []*event.DataRecord
	watch(t, bus, EventName("gold"), &fired)

	e.ProcessLine(mudLine("You have 250 gold coins."))

	require.Len(t, fired, 1)
	assert.Equal(t, "gold", fired[0].GetString("trigger_name"))
	matchesAny, _ := fired[0].Get("matches")
	matches := matchesAny.(map[string]any)
	assert.Equal(t, 250, matches["amount"])

	d, err := e.Get("gold")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Hits)
}

func TestOmitClearsSendFlag(t *testing.T) {
	e, bus := newEngine(t)
	require.NoError(t, e.Add(Spec{
		Name:    "gag_spam",
		Owner:   "p1",
		Pattern: `^\[SPAM\]`,
		Omit:    true,
	}))

	var fired []*event.DataRecord
	watch(t, bus, EventName("gag_spam"), &fired)

	line := mudLine("[SPAM]buy gold")
	e.ProcessLine(line)

	require.Len(t, fired, 1)
	matchesAny, _ := fired[0].Get("matches")
	assert.Empty(t, matchesAny.(map[string]any))
	assert.False(t, line.Send())
}

func TestSharedPatternPriorityOrderAndStop(t *testing.T) {
	e, bus := newEngine(t)
	require.NoError(t, e.Add(Spec{
		Name: "low", Owner: "p1", Pattern: `^hit`, Priority: 50,
	}))
	require.NoError(t, e.Add(Spec{
		Name: "high", Owner: "p2", Pattern: `^hit`, Priority: 10,
		StopEvaluating: true,
	}))

	var lowFired, highFired []*event.DataRecord
	watch(t, bus, EventName("low"), &lowFired)
	watch(t, bus, EventName("high"), &highFired)

	e.ProcessLine(mudLine("hit the orc"))
	assert.Len(t, highFired, 1)
	assert.Empty(t, lowFired, "stop-evaluating on the higher-priority trigger")
}

func TestSharedPatternBothFireWithoutStop(t *testing.T) {
	e, bus := newEngine(t)
	require.NoError(t, e.Add(Spec{Name: "low", Owner: "p1", Pattern: `^hit`, Priority: 50}))
	require.NoError(t, e.Add(Spec{Name: "high", Owner: "p2", Pattern: `^hit`, Priority: 10}))

	var order []string
	for _, name := range []string{"low", "high"} {
		ev := EventName(name)
		label := name
		_, err := bus.RegisterCallback(ev, event.Callback{
			Name:  "watch",
			Owner: "test",
			Fn: func(*event.DataRecord) error {
				order = append(order, label)
				return nil
			},
		}, event.DefaultPriority)
		require.NoError(t, err)
	}

	e.ProcessLine(mudLine("hit the orc"))
	assert.Equal(t, []string{"high", "low"}, order)
}

func TestPseudoTriggers(t *testing.T) {
	e, bus := newEngine(t)

	var beall, all, empty []*event.DataRecord
	watch(t, bus, EventBeforeAll, &beall)
	watch(t, bus, EventAfterAll, &all)
	watch(t, bus, EventEmptyLine, &empty)

	e.ProcessLine(mudLine("a real line"))
	assert.Len(t, beall, 1)
	assert.Len(t, all, 1)
	assert.Empty(t, empty)

	e.ProcessLine(mudLine("   "))
	assert.Len(t, beall, 2)
	assert.Len(t, all, 2)
	assert.Len(t, empty, 1)
}

func TestSkipsInternalAndTelnetLines(t *testing.T) {
	e, bus := newEngine(t)

	var beall []*event.DataRecord
	watch(t, bus, EventBeforeAll, &beall)

	e.ProcessLine(record.New("internal note", record.OriginInternal, record.KindIO))
	e.ProcessLine(record.New("\xff\xfb\x01", record.OriginMud, record.KindTelnetCommand))
	assert.Empty(t, beall)
}

func TestMatchColorSurface(t *testing.T) {
	e, bus := newEngine(t)
	require.NoError(t, e.Add(Spec{
		Name:       "redalert",
		Owner:      "p1",
		Pattern:    `@R\[ALERT\]`,
		MatchColor: true,
	}))

	var fired []*event.DataRecord
	watch(t, bus, EventName("redalert"), &fired)

	e.ProcessLine(mudLine("\x1b[1;31m[ALERT]\x1b[0m intruder"))
	require.Len(t, fired, 1)

	// The stripped surface does not carry the color codes.
	e.ProcessLine(mudLine("[ALERT] intruder"))
	assert.Len(t, fired, 1)
}

func TestToggleAndGroups(t *testing.T) {
	e, bus := newEngine(t)
	require.NoError(t, e.Add(Spec{Name: "a", Owner: "p1", Pattern: `^aaa`, Group: "combat.melee"}))
	require.NoError(t, e.Add(Spec{Name: "b", Owner: "p1", Pattern: `^bbb`, Group: "combat.spells"}))
	require.NoError(t, e.Add(Spec{Name: "c", Owner: "p1", Pattern: `^ccc`, Group: "chat"}))

	var aFired, bFired, cFired []*event.DataRecord
	watch(t, bus, EventName("a"), &aFired)
	watch(t, bus, EventName("b"), &bFired)
	watch(t, bus, EventName("c"), &cFired)

	n, err := e.ToggleGroup("combat.*", false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	e.ProcessLine(mudLine("aaa"))
	e.ProcessLine(mudLine("bbb"))
	e.ProcessLine(mudLine("ccc"))
	assert.Empty(t, aFired)
	assert.Empty(t, bFired)
	assert.Len(t, cFired, 1)

	_, err = e.ToggleGroup("combat.*", true)
	require.NoError(t, err)
	e.ProcessLine(mudLine("aaa"))
	assert.Len(t, aFired, 1)

	require.NoError(t, e.Toggle("a", false))
	e.ProcessLine(mudLine("aaa"))
	assert.Len(t, aFired, 1)
}

func TestRemoveOwner(t *testing.T) {
	e, bus := newEngine(t)
	require.NoError(t, e.Add(Spec{Name: "a", Owner: "doomed", Pattern: `^aaa`}))
	require.NoError(t, e.Add(Spec{Name: "b", Owner: "keeper", Pattern: `^bbb`}))

	var aFired, bFired []*event.DataRecord
	watch(t, bus, EventName("a"), &aFired)
	watch(t, bus, EventName("b"), &bFired)

	assert.Equal(t, 1, e.RemoveOwner("doomed"))
	e.ProcessLine(mudLine("aaa"))
	e.ProcessLine(mudLine("bbb"))
	assert.Empty(t, aFired)
	assert.Len(t, bFired, 1)
	assert.Len(t, e.List(), 1)
}

func TestCustomEventName(t *testing.T) {
	e, bus := newEngine(t)
	require.NoError(t, e.Add(Spec{
		Name:    "tell",
		Owner:   "p1",
		Pattern: `^(?P<who>\w+) tells you`,
		Event:   "ev_chat_tell",
	}))

	var fired []*event.DataRecord
	watch(t, bus, "ev_chat_tell", &fired)

	e.ProcessLine(mudLine("Bob tells you 'hi'"))
	require.Len(t, fired, 1)
	matchesAny, _ := fired[0].Get("matches")
	assert.Equal(t, "Bob", matchesAny.(map[string]any)["who"])
}
