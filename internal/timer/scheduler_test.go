// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package timer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeClock is a settable time source for driving fireDue directly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAddValidation(t *testing.T) {
	s := NewScheduler()
	require.Error(t, s.Add("bad", "p1", func() error { return nil }, 0))
	require.Error(t, s.Add("bad", "p1", func() error { return nil }, time.Second, WithTimeOfDay("2560")))
	require.Error(t, s.Add("bad", "p1", func() error { return nil }, time.Second, WithTimeOfDay("12:00")))
	require.NoError(t, s.Add("ok", "p1", func() error { return nil }, time.Second))
	require.Error(t, s.Add("ok", "p2", func() error { return nil }, time.Second))
}

func TestIntervalFiring(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	s := NewScheduler(WithClock(clock.Now))

	fired := 0
	require.NoError(t, s.Add("tick", "p1", func() error {
		fired++
		return nil
	}, 10*time.Second))

	s.fireDue()
	assert.Equal(t, 0, fired, "not due yet")

	clock.Advance(10 * time.Second)
	s.fireDue()
	assert.Equal(t, 1, fired)

	d, err := s.Get("tick")
	require.NoError(t, err)
	assert.Equal(t, 1, d.FireCount)
	assert.Equal(t, clock.Now().Add(10*time.Second), d.NextFire)
}

func TestClockJumpCatchesUpOnce(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	s := NewScheduler(WithClock(clock.Now))

	fired := 0
	require.NoError(t, s.Add("tick", "p1", func() error {
		fired++
		return nil
	}, 10*time.Second))

	// Five intervals pass at once; the timer fires once and reschedules
	// relative to now.
	clock.Advance(50 * time.Second)
	s.fireDue()
	assert.Equal(t, 1, fired)

	s.fireDue()
	assert.Equal(t, 1, fired, "no second fire until the next interval elapses")

	clock.Advance(10 * time.Second)
	s.fireDue()
	assert.Equal(t, 2, fired)
}

func TestOneShotRemovedAfterFire(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	s := NewScheduler(WithClock(clock.Now))

	fired := 0
	require.NoError(t, s.Add("once", "p1", func() error {
		fired++
		return nil
	}, time.Second, WithOneShot()))

	clock.Advance(5 * time.Second)
	s.fireDue()
	clock.Advance(5 * time.Second)
	s.fireDue()
	assert.Equal(t, 1, fired)

	_, err := s.Get("once")
	require.Error(t, err)
}

func TestTimeOfDayAnchor(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC))
	s := NewScheduler(WithClock(clock.Now))

	fired := 0
	require.NoError(t, s.Add("noon", "p1", func() error {
		fired++
		return nil
	}, 0, WithTimeOfDay("1200")))

	d, err := s.Get("noon")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC), d.NextFire)

	// A clock jump past noon fires exactly once and re-anchors to the
	// next day's noon.
	clock.Advance(3 * time.Hour)
	s.fireDue()
	s.fireDue()
	assert.Equal(t, 1, fired)

	d, err = s.Get("noon")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC), d.NextFire)
}

func TestFaultyTimerKeepsRunning(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	s := NewScheduler(WithClock(clock.Now))

	fired := 0
	require.NoError(t, s.Add("flaky", "p1", func() error {
		fired++
		if fired == 1 {
			return errors.New("boom")
		}
		return nil
	}, time.Second))
	require.NoError(t, s.Add("panicky", "p1", func() error {
		panic("boom")
	}, time.Second))

	clock.Advance(time.Second)
	s.fireDue()
	clock.Advance(time.Second)
	s.fireDue()
	assert.Equal(t, 2, fired)

	d, err := s.Get("panicky")
	require.NoError(t, err)
	assert.Equal(t, 2, d.FireCount)
}

func TestToggle(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	s := NewScheduler(WithClock(clock.Now))

	fired := 0
	require.NoError(t, s.Add("tick", "p1", func() error {
		fired++
		return nil
	}, time.Second, WithDisabled()))

	clock.Advance(5 * time.Second)
	s.fireDue()
	assert.Equal(t, 0, fired)

	require.NoError(t, s.Toggle("tick", true))
	clock.Advance(time.Second)
	s.fireDue()
	assert.Equal(t, 1, fired)

	require.NoError(t, s.Toggle("tick", false))
	clock.Advance(time.Minute)
	s.fireDue()
	assert.Equal(t, 1, fired)
}

func TestRemoveChecksOwner(t *testing.T) {
	s := NewScheduler()
	require.NoError(t, s.Add("tick", "p1", func() error { return nil }, time.Second))
	require.Error(t, s.Remove("tick", "p2"))
	require.NoError(t, s.Remove("tick", "p1"))
}

func TestRemoveOwner(t *testing.T) {
	s := NewScheduler()
	require.NoError(t, s.Add("a", "doomed", func() error { return nil }, time.Second))
	require.NoError(t, s.Add("b", "doomed", func() error { return nil }, time.Second))
	require.NoError(t, s.Add("c", "keeper", func() error { return nil }, time.Second))

	assert.Equal(t, 2, s.RemoveOwner("doomed"))
	assert.Len(t, s.List(), 1)
}

func TestDispatchHookUsed(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	dispatched := 0
	s := NewScheduler(
		WithClock(clock.Now),
		WithDispatch(func(fn func()) {
			dispatched++
			fn()
		}),
	)
	require.NoError(t, s.Add("tick", "p1", func() error { return nil }, time.Second))
	clock.Advance(time.Second)
	s.fireDue()
	assert.Equal(t, 1, dispatched)
}

func TestTickLoopFiresAndStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler()
	fired := make(chan struct{}, 1)
	require.NoError(t, s.Add("fast", "p1", func() error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}, 5*time.Millisecond))

	s.Start()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	s.Stop()
}
