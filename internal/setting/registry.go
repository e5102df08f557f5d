// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package setting implements the typed, persisted settings store. Names
// are unique across all plugins; every write is validated, flushed, and
// announced on the event bus.
package setting

import (
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/prismmud/prism/internal/event"
)

// Default is the sentinel write value that resets a setting to its
// registered default.
const Default = "default"

// Spec declares one setting.
type Spec struct {
	Plugin   string
	Name     string
	Type     Type
	Default  any
	Help     string
	ReadOnly bool
	// Hidden settings do not raise change events and are skipped by
	// listing surfaces.
	Hidden bool
	// AfterSet is echoed to the writer after a successful change.
	AfterSet string
}

// ChangeEventName returns the event raised when a setting changes:
// ev_<plugin>_var_<name>_modified.
func ChangeEventName(plugin, name string) string {
	return "ev_" + plugin + "_var_" + name + "_modified"
}

type entry struct {
	spec    Spec
	store   Store
	eventID string
}

// Registry is the process-wide settings table.
type Registry struct {
	mu       sync.RWMutex
	bus      *event.Bus
	coercers map[Type]CoerceFunc
	entries  map[string]*entry
	stores   map[string]Store
	storeFor func(plugin string) (Store, error)
}

// NewRegistry creates a settings registry. storeFor supplies the
// per-plugin persistence container the first time a plugin registers a
// setting.
func NewRegistry(bus *event.Bus, storeFor func(plugin string) (Store, error)) *Registry {
	return &Registry{
		bus:      bus,
		coercers: builtinCoercers(),
		entries:  make(map[string]*entry),
		stores:   make(map[string]Store),
		storeFor: storeFor,
	}
}

// RegisterType plugs in an additional value type.
func (r *Registry) RegisterType(t Type, fn CoerceFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coercers[t] = fn
}

// Register declares a setting. The name must be unique across all
// plugins; the default must pass the type's coercer. A persisted value
// from an earlier run is validated on load and dropped when invalid.
func (r *Registry) Register(spec Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	coerce, ok := r.coercers[spec.Type]
	if !ok {
		return ErrUnknownType(spec.Name, spec.Type)
	}
	if existing, taken := r.entries[spec.Name]; taken {
		return ErrDuplicateSetting(spec.Name, existing.spec.Plugin)
	}
	def, err := coerce(spec.Default)
	if err != nil {
		return ErrBadValue(spec.Name, spec.Type, spec.Default, err)
	}
	spec.Default = def

	store, ok := r.stores[spec.Plugin]
	if !ok {
		store, err = r.storeFor(spec.Plugin)
		if err != nil {
			return err
		}
		r.stores[spec.Plugin] = store
	}

	if raw, present := store.Get(spec.Name); present {
		if _, err := coerce(raw); err != nil {
			slog.Warn("dropping invalid persisted setting value",
				"setting", spec.Name,
				"plugin", spec.Plugin,
				"value", raw,
				"error", err)
			store.Delete(spec.Name)
		}
	}

	e := &entry{spec: spec, store: store}
	if !spec.Hidden {
		e.eventID = ChangeEventName(spec.Plugin, spec.Name)
		if !r.bus.Has(e.eventID) {
			err := r.bus.Register(e.eventID, spec.Plugin,
				"raised when the "+spec.Name+" setting changes",
				map[string]string{
					"var":      "the setting name",
					"oldvalue": "value before the change",
					"newvalue": "value after the change",
				})
			if err != nil {
				return err
			}
		}
	}
	r.entries[spec.Name] = e
	return nil
}

// Get returns a setting's current value coerced to its declared type.
func (r *Registry) Get(name string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, ErrUnknownSetting(name)
	}
	return r.currentLocked(e), nil
}

func (r *Registry) currentLocked(e *entry) any {
	if raw, present := e.store.Get(e.spec.Name); present {
		if v, err := r.coercers[e.spec.Type](raw); err == nil {
			return v
		}
	}
	return e.spec.Default
}

// GetString returns a str or color setting's value.
func (r *Registry) GetString(name string) (string, error) {
	v, err := r.Get(name)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// GetInt returns an int or duration setting's value.
func (r *Registry) GetInt(name string) (int, error) {
	v, err := r.Get(name)
	if err != nil {
		return 0, err
	}
	n, _ := v.(int)
	return n, nil
}

// GetBool returns a bool setting's value.
func (r *Registry) GetBool(name string) (bool, error) {
	v, err := r.Get(name)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// Set validates and writes a setting, flushes its store, and raises the
// change event unless the setting is hidden. Writing the sentinel
// "default" resets to the registered default. The returned string is
// the spec's after-set message for echoing to the writer.
func (r *Registry) Set(name string, raw any, actor string) (string, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return "", ErrUnknownSetting(name)
	}
	if e.spec.ReadOnly {
		r.mu.Unlock()
		return "", ErrReadOnly(name)
	}

	old := r.currentLocked(e)
	var next any
	reset := false
	if s, isString := raw.(string); isString && s == Default {
		next = e.spec.Default
		reset = true
	} else {
		v, err := r.coercers[e.spec.Type](raw)
		if err != nil {
			r.mu.Unlock()
			return "", ErrBadValue(name, e.spec.Type, raw, err)
		}
		next = v
	}

	// A no-op write leaves the store untouched.
	if reflect.DeepEqual(old, next) {
		r.mu.Unlock()
		return e.spec.AfterSet, nil
	}
	if reset {
		e.store.Delete(name)
	} else {
		e.store.Put(name, next)
	}
	if err := e.store.Flush(); err != nil {
		slog.Error("settings flush failed",
			"plugin", e.spec.Plugin,
			"setting", name,
			"error", err)
	}
	eventID := e.eventID
	afterSet := e.spec.AfterSet
	r.mu.Unlock()

	if eventID != "" {
		if _, err := r.bus.Raise(eventID, map[string]any{
			"var":      name,
			"oldvalue": old,
			"newvalue": next,
		}, actor); err != nil {
			slog.Error("setting change event failed",
				"event", eventID,
				"error", err)
		}
	}
	return afterSet, nil
}

// Detail is a setting snapshot for introspection surfaces.
type Detail struct {
	Spec    Spec
	Current any
}

// Detail returns an introspection snapshot of one setting.
func (r *Registry) Detail(name string) (*Detail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, ErrUnknownSetting(name)
	}
	return &Detail{Spec: e.spec, Current: r.currentLocked(e)}, nil
}

// List returns details for a plugin's settings sorted by name. Hidden
// settings are included only when includeHidden is set.
func (r *Registry) List(plugin string, includeHidden bool) []*Detail {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Detail
	for _, e := range r.entries {
		if e.spec.Plugin != plugin {
			continue
		}
		if e.spec.Hidden && !includeHidden {
			continue
		}
		out = append(out, &Detail{Spec: e.spec, Current: r.currentLocked(e)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spec.Name < out[j].Spec.Name })
	return out
}

// FlushPlugin flushes a plugin's store, used by the plugin-save event.
func (r *Registry) FlushPlugin(plugin string) error {
	r.mu.RLock()
	store, ok := r.stores[plugin]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return store.Flush()
}

// RemovePlugin flushes and drops a plugin's settings at unload,
// returning the number of specs removed. Persisted values survive for
// the next load.
func (r *Registry) RemovePlugin(plugin string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for name, e := range r.entries {
		if e.spec.Plugin == plugin {
			delete(r.entries, name)
			removed++
		}
	}
	if store, ok := r.stores[plugin]; ok {
		if err := store.Flush(); err != nil {
			slog.Error("settings flush at unload failed",
				"plugin", plugin,
				"error", err)
		}
		delete(r.stores, plugin)
	}
	return removed
}
