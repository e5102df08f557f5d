// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package timer implements the proxy's timer scheduler: interval,
// one-shot, and time-of-day timers fired from a single tick goroutine.
package timer

import (
	"container/heap"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Timer is one scheduled job.
type Timer struct {
	name     string
	owner    string
	fn       func() error
	interval time.Duration
	enabled  bool
	oneShot  bool
	// anchor is the "HHMM" UTC time-of-day string, empty for interval
	// timers.
	anchor string
	// log controls per-fire debug logging; chatty timers turn it off.
	log bool

	lastFire  time.Time
	nextFire  time.Time
	fireCount int
}

// heapEntry is a lazy-deletion queue item: it is valid only while its
// `at` still equals the timer's scheduled nextFire.
type heapEntry struct {
	at time.Time
	t  *Timer
}

type timerHeap []heapEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)        { *h = append(*h, x.(heapEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Scheduler owns the timer table and the tick goroutine.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*Timer
	queue  timerHeap

	wake     chan struct{}
	done     chan struct{}
	finished chan struct{}
	started  bool

	// dispatch runs a fire; the proxy points it at the dispatcher so
	// timer functions execute on the same goroutine as event callbacks.
	dispatch func(fn func())
	clock    func() time.Time
	fireHook func(name string)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithDispatch routes timer fires through the given executor. The
// executor must run the function before returning.
func WithDispatch(fn func(func())) SchedulerOption {
	return func(s *Scheduler) { s.dispatch = fn }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.clock = clock }
}

// WithFireHook installs a hook called once per fire, used for metrics.
func WithFireHook(fn func(name string)) SchedulerOption {
	return func(s *Scheduler) { s.fireHook = fn }
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		timers:   make(map[string]*Timer),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		dispatch: func(fn func()) { fn() },
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option adjusts one timer registration.
type Option func(*Timer)

// WithOneShot removes the timer after its first fire.
func WithOneShot() Option {
	return func(t *Timer) { t.oneShot = true }
}

// WithTimeOfDay anchors the timer to a UTC "HHMM" wall-clock time
// instead of an interval.
func WithTimeOfDay(anchor string) Option {
	return func(t *Timer) { t.anchor = anchor }
}

// WithDisabled registers the timer disabled; Toggle arms it later.
func WithDisabled() Option {
	return func(t *Timer) { t.enabled = false }
}

// WithoutLogging suppresses the per-fire debug log line.
func WithoutLogging() Option {
	return func(t *Timer) { t.log = false }
}

// Add registers a timer. Interval timers first fire one interval from
// now; time-of-day timers first fire at the next UTC wall-clock match.
func (s *Scheduler) Add(name, owner string, fn func() error, interval time.Duration, opts ...Option) error {
	t := &Timer{
		name:     name,
		owner:    owner,
		fn:       fn,
		interval: interval,
		enabled:  true,
		log:      true,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.anchor == "" && interval <= 0 {
		return ErrBadInterval(name, interval)
	}
	if t.anchor != "" {
		if _, _, err := parseAnchor(t.anchor); err != nil {
			return ErrBadAnchor(name, t.anchor)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.timers[name]; ok {
		return ErrDuplicateTimer(name, existing.owner)
	}
	t.nextFire = s.nextFireAfter(t, s.clock())
	s.timers[name] = t
	heap.Push(&s.queue, heapEntry{at: t.nextFire, t: t})
	s.kick()
	return nil
}

// Remove drops a timer. The owner must match the registration.
func (s *Scheduler) Remove(name, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[name]
	if !ok || t.owner != owner {
		return ErrUnknownTimer(name)
	}
	delete(s.timers, name)
	s.kick()
	return nil
}

// RemoveOwner drops every timer owned by a plugin id, returning the
// number removed. Called at plugin unload.
func (s *Scheduler) RemoveOwner(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for name, t := range s.timers {
		if t.owner == owner {
			delete(s.timers, name)
			removed++
		}
	}
	if removed > 0 {
		s.kick()
	}
	return removed
}

// Toggle enables or disables a timer. Re-enabling reschedules from now.
func (s *Scheduler) Toggle(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[name]
	if !ok {
		return ErrUnknownTimer(name)
	}
	if t.enabled == enabled {
		return nil
	}
	t.enabled = enabled
	if enabled {
		t.nextFire = s.nextFireAfter(t, s.clock())
		heap.Push(&s.queue, heapEntry{at: t.nextFire, t: t})
	}
	s.kick()
	return nil
}

// Detail is a timer snapshot for introspection surfaces.
type Detail struct {
	Name      string
	Owner     string
	Interval  time.Duration
	Enabled   bool
	OneShot   bool
	TimeOfDay string
	LastFire  time.Time
	NextFire  time.Time
	FireCount int
}

func (t *Timer) detail() *Detail {
	return &Detail{
		Name:      t.name,
		Owner:     t.owner,
		Interval:  t.interval,
		Enabled:   t.enabled,
		OneShot:   t.oneShot,
		TimeOfDay: t.anchor,
		LastFire:  t.lastFire,
		NextFire:  t.nextFire,
		FireCount: t.fireCount,
	}
}

// Get returns a snapshot of one timer.
func (s *Scheduler) Get(name string) (*Detail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[name]
	if !ok {
		return nil, ErrUnknownTimer(name)
	}
	return t.detail(), nil
}

// List returns snapshots of all timers sorted by name.
func (s *Scheduler) List() []*Detail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Detail, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.detail())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// kick wakes the tick loop after a schedule change.
func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the tick goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	go s.run()
}

// Stop terminates the tick goroutine and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	close(s.done)
	<-s.finished
}

func (s *Scheduler) run() {
	defer close(s.finished)
	for {
		next, ok := s.earliest()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		wait := next.Sub(s.clock())
		if wait <= 0 {
			s.fireDue()
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
			s.fireDue()
		case <-s.wake:
			t.Stop()
		case <-s.done:
			t.Stop()
			return
		}
	}
}

// earliest returns the soonest valid nextFire, discarding stale queue
// entries for removed, disabled, or rescheduled timers.
func (s *Scheduler) earliest() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.queue.Len() > 0 {
		e := s.queue[0]
		if live, ok := s.timers[e.t.name]; ok && live == e.t && e.t.enabled && e.at.Equal(e.t.nextFire) {
			return e.at, true
		}
		heap.Pop(&s.queue)
	}
	return time.Time{}, false
}

// fireDue fires every timer whose nextFire has passed. A clock jump
// yields at most one catch-up fire per timer: rescheduling is relative
// to now, not to the missed slot.
func (s *Scheduler) fireDue() {
	now := s.clock()

	var due []*Timer
	s.mu.Lock()
	for s.queue.Len() > 0 {
		e := s.queue[0]
		live, ok := s.timers[e.t.name]
		if !ok || live != e.t || !e.t.enabled || !e.at.Equal(e.t.nextFire) {
			heap.Pop(&s.queue)
			continue
		}
		if e.at.After(now) {
			break
		}
		heap.Pop(&s.queue)
		due = append(due, e.t)
	}
	s.mu.Unlock()

	for _, t := range due {
		s.fire(t, now)
	}
}

func (s *Scheduler) fire(t *Timer, now time.Time) {
	if t.log {
		slog.Debug("timer firing", "timer", t.name, "owner", t.owner)
	}
	if s.fireHook != nil {
		s.fireHook(t.name)
	}
	s.dispatch(func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("timer function panicked",
					"timer", t.name,
					"owner", t.owner,
					"panic", r)
			}
		}()
		if err := t.fn(); err != nil {
			slog.Error("timer function failed",
				"timer", t.name,
				"owner", t.owner,
				"error", err)
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	t.lastFire = now
	t.fireCount++
	if t.oneShot {
		delete(s.timers, t.name)
		return
	}
	t.nextFire = s.nextFireAfter(t, now)
	heap.Push(&s.queue, heapEntry{at: t.nextFire, t: t})
}

// nextFireAfter computes a timer's next fire strictly after `after`.
func (s *Scheduler) nextFireAfter(t *Timer, after time.Time) time.Time {
	if t.anchor == "" {
		return after.Add(t.interval)
	}
	hour, minute, _ := parseAnchor(t.anchor)
	candidate := time.Date(after.UTC().Year(), after.UTC().Month(), after.UTC().Day(),
		hour, minute, 0, 0, time.UTC)
	if !candidate.After(after) {
		candidate = candidate.Add(24 * time.Hour)
	}
	return candidate
}

// parseAnchor validates an "HHMM" UTC anchor.
func parseAnchor(anchor string) (hour, minute int, err error) {
	if len(anchor) != 4 {
		return 0, 0, strconv.ErrSyntax
	}
	hour, err = strconv.Atoi(anchor[:2])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, strconv.ErrRange
	}
	minute, err = strconv.Atoi(anchor[2:])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, strconv.ErrRange
	}
	return hour, minute, nil
}
