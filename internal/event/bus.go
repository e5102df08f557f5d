// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package event

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultPriority is used when a registration does not care about order.
const DefaultPriority = 50

// DefaultHistorySize bounds the per-event invocation ring.
const DefaultHistorySize = 1000

// Bus is the event registry and dispatcher. All dispatch runs on the
// proxy dispatcher goroutine; the mutex exists so introspection surfaces
// on other goroutines see consistent snapshots.
type Bus struct {
	mu          sync.RWMutex
	events      map[string]*Definition
	stack       []*Invocation
	historySize int
	raiseHook   func(name string)
}

// Option configures a Bus.
type Option func(*Bus)

// WithHistorySize overrides the per-event invocation ring size.
func WithHistorySize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.historySize = n
		}
	}
}

// WithRaiseHook installs a hook called once per raise, used for metrics.
func WithRaiseHook(fn func(name string)) Option {
	return func(b *Bus) { b.raiseHook = fn }
}

// NewBus creates an event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		events:      make(map[string]*Definition),
		historySize: DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register creates an event. Registering an existing name fails.
func (b *Bus) Register(name, creator, description string, argSchema map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.events[name]; ok {
		// A placeholder created by an early callback registration is
		// claimed by the real creator.
		if existing.creator == "" {
			existing.creator = creator
			existing.description = description
			existing.argSchema = argSchema
			return nil
		}
		return ErrDuplicateEvent(name, existing.creator)
	}
	b.events[name] = newDefinition(name, creator, description, argSchema)
	return nil
}

// Has reports whether an event name is registered.
func (b *Bus) Has(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.events[name]
	return ok
}

// RegisterCallback subscribes a callback at the given priority. It is
// idempotent per (event, owner, name) and reports whether the callback
// was newly added. Registering against an event that does not exist yet
// creates a placeholder definition; the eventual creator claims it.
func (b *Bus) RegisterCallback(eventName string, cb Callback, priority int) (bool, error) {
	if cb.Fn == nil {
		return false, fmt.Errorf("register callback %s on %s: nil function", cb.key(), eventName)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	def, ok := b.events[eventName]
	if !ok {
		slog.Debug("callback registered before event creation",
			"event", eventName,
			"owner", cb.Owner)
		def = newDefinition(eventName, "", "", nil)
		b.events[eventName] = def
	}
	added := def.add(cb, priority)
	if added {
		// A callback re-registered during dispatch becomes eligible to
		// run again in any active invocation of this event.
		for _, inv := range b.stack {
			if inv.EventName == eventName {
				delete(inv.executed, cb.key())
			}
		}
	}
	return added, nil
}

// UnregisterCallback removes a callback and reports whether it was
// present.
func (b *Bus) UnregisterCallback(eventName string, cb Callback) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	def, ok := b.events[eventName]
	if !ok {
		return false, ErrUnknownEvent(eventName)
	}
	return def.remove(cb.key()), nil
}

// RemoveOwner drops every callback owned by a plugin id across all
// events, returning the number removed. Called at plugin unload.
func (b *Bus) RemoveOwner(owner string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for _, def := range b.events {
		removed += def.removeOwner(owner)
	}
	return removed
}

// RaiseOption adjusts one raise.
type RaiseOption func(*raiseConfig)

type raiseConfig struct {
	dataList []any
	keyName  string
}

// WithDataList dispatches the raise once per element: before each
// dispatch the data record's keyName field is set to the element. A
// single raise can process many lines under the same event this way.
func WithDataList(list []any, keyName string) RaiseOption {
	return func(c *raiseConfig) {
		c.dataList = list
		c.keyName = keyName
	}
}

// Raise dispatches an event synchronously and returns the final
// invocation record. Args are wrapped in a DataRecord; callbacks at all
// priorities run, in all passes, before Raise returns.
func (b *Bus) Raise(name string, args map[string]any, actor string, opts ...RaiseOption) (*Invocation, error) {
	var cfg raiseConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	b.mu.RLock()
	def, ok := b.events[name]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownEvent(name)
	}
	if b.raiseHook != nil {
		b.raiseHook(name)
	}

	data := NewDataRecord(args)
	if len(cfg.dataList) > 0 {
		var last *Invocation
		for _, elem := range cfg.dataList {
			data.Set(cfg.keyName, elem)
			last = b.dispatch(def, data, actor)
		}
		return last, nil
	}
	return b.dispatch(def, data, actor), nil
}

// dispatch runs one invocation: scan priority buckets ascending, run
// every not-yet-executed callback, and restart the scan whenever a full
// pass invoked anything. Callbacks registered during dispatch are picked
// up by later passes.
func (b *Bus) dispatch(def *Definition, data *DataRecord, actor string) *Invocation {
	inv := &Invocation{
		EventName: def.name,
		Data:      data,
		Actor:     actor,
		Start:     time.Now().UTC(),
		executed:  make(map[string]bool),
	}

	b.mu.Lock()
	b.stack = append(b.stack, inv)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.stack = b.stack[:len(b.stack)-1]
		def.raiseCount++
		def.history.PushBack(inv)
		for def.history.Len() > b.historySize {
			def.history.PopFront()
		}
		b.mu.Unlock()
	}()

	for {
		inv.Passes++
		invoked := false
		for _, reg := range b.snapshot(def) {
			key := reg.cb.key()
			b.mu.Lock()
			done := inv.executed[key]
			if !done {
				inv.executed[key] = true
				reg.callCount++
			}
			b.mu.Unlock()
			if done {
				continue
			}
			invoked = true
			inv.Current = key
			b.invoke(def.name, reg, data)
			inv.Current = ""
		}
		if !invoked {
			break
		}
	}
	if inv.Passes > 2 {
		slog.Warn("event dispatch needed extra passes",
			"event", def.name,
			"passes", inv.Passes,
			"actor", actor)
	}
	return inv
}

// snapshot copies the definition's registrations in priority order so
// dispatch can run them without holding the bus lock.
func (b *Bus) snapshot(def *Definition) []*registration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*registration
	for _, p := range def.priorities() {
		out = append(out, def.buckets[p]...)
	}
	return out
}

// invoke runs one callback, containing faults so dispatch continues.
func (b *Bus) invoke(eventName string, reg *registration, data *DataRecord) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event callback panicked",
				"event", eventName,
				"owner", reg.cb.Owner,
				"callback", reg.cb.Name,
				"panic", r)
		}
	}()
	if err := reg.cb.Fn(data); err != nil {
		slog.Error("event callback failed",
			"event", eventName,
			"owner", reg.cb.Owner,
			"callback", reg.cb.Name,
			"error", err)
	}
}

// CurrentRecord returns the data record of the innermost active raise,
// or nil when no raise is active.
func (b *Bus) CurrentRecord() *DataRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1].Data
}

// Stack returns the names of active raises, outer to inner.
func (b *Bus) Stack() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.stack))
	for i, inv := range b.stack {
		out[i] = inv.EventName
	}
	return out
}

// Names returns all registered event names, sorted.
func (b *Bus) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.events))
	for name := range b.events {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Detail returns an introspection snapshot of one event.
func (b *Bus) Detail(name string) (*Detail, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	def, ok := b.events[name]
	if !ok {
		return nil, ErrUnknownEvent(name)
	}
	d := &Detail{
		Name:        def.name,
		Creator:     def.creator,
		Description: def.description,
		ArgSchema:   def.argSchema,
		RaiseCount:  def.raiseCount,
		HistoryLen:  def.history.Len(),
	}
	for _, p := range def.priorities() {
		for _, reg := range def.buckets[p] {
			d.Registrations = append(d.Registrations, Registration{
				Priority: p,
				Owner:    reg.cb.Owner,
				Name:     reg.cb.Name,
				Calls:    reg.callCount,
			})
		}
	}
	return d, nil
}

// History returns up to n of the most recent invocations of an event,
// newest last.
func (b *Bus) History(name string, n int) ([]*Invocation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	def, ok := b.events[name]
	if !ok {
		return nil, ErrUnknownEvent(name)
	}
	total := def.history.Len()
	if n <= 0 || n > total {
		n = total
	}
	out := make([]*Invocation, 0, n)
	for i := total - n; i < total; i++ {
		out = append(out, def.history.At(i))
	}
	return out, nil
}
