// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package capability implements the registry of callable endpoints that
// plugins expose to each other. Names are fully qualified as
// "<top-level>:<dotted-path>", for example "plugins.core.events:raise".
package capability

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
)

// Callable is the uniform endpoint signature. Owners wrap their typed
// functions; callers coerce the result.
type Callable func(args ...any) (any, error)

// Entry is one registered endpoint with its call accounting.
type Entry struct {
	fullName    string
	owner       string
	fn          Callable
	description string
	instance    bool
	added       time.Time

	callCount int
	callers   map[string]int

	// predecessor retains an entry displaced by a force overwrite so the
	// displacing owner can still reach it.
	predecessor *Entry
}

// FullName returns the entry's fully qualified name.
func (e *Entry) FullName() string { return e.fullName }

// Owner returns the registering plugin id.
func (e *Entry) Owner() string { return e.owner }

// Description returns the registered description.
func (e *Entry) Description() string { return e.description }

// Instance reports whether the entry is instance-scoped.
func (e *Entry) Instance() bool { return e.instance }

// Registry is the process-wide capability table. Instance-scoped
// entries live in an overlay that shadows the process table on lookup.
type Registry struct {
	mu      sync.RWMutex
	process map[string]*Entry
	overlay map[string]*Entry
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		process: make(map[string]*Entry),
		overlay: make(map[string]*Entry),
	}
}

// AddOptions adjust a registration.
type AddOptions struct {
	// Instance scopes the entry to the overlay, shadowing any
	// process-wide entry of the same name.
	Instance bool
	// Force permits displacing an existing entry; the displaced entry is
	// retained as the new entry's predecessor.
	Force bool
}

// FullName joins a top-level and sub-name into a qualified name.
func FullName(topLevel, subName string) string {
	return topLevel + ":" + subName
}

// expand replaces the "{plugin-id}" placeholder with the owner id.
func expand(s, owner string) string {
	return strings.ReplaceAll(s, "{plugin-id}", owner)
}

// Add registers an endpoint. The "{plugin-id}" placeholder in either
// name part expands to the owner id. Name collisions fail unless
// opts.Force is set, in which case the displaced entry is retained as
// the predecessor.
func (r *Registry) Add(owner, topLevel, subName string, fn Callable, description string, opts AddOptions) error {
	full := FullName(expand(topLevel, owner), expand(subName, owner))

	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.process
	if opts.Instance {
		table = r.overlay
	}
	entry := &Entry{
		fullName:    full,
		owner:       owner,
		fn:          fn,
		description: description,
		instance:    opts.Instance,
		added:       time.Now().UTC(),
		callers:     make(map[string]int),
	}
	if existing, ok := table[full]; ok {
		if !opts.Force {
			return ErrDuplicateCapability(full, existing.owner)
		}
		entry.predecessor = existing
	}
	table[full] = entry
	return nil
}

// Remove drops every entry under a top-level namespace from both
// tables, returning the number removed. Used at plugin unload.
func (r *Registry) Remove(topLevel string) int {
	prefix := topLevel + ":"
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for _, table := range []map[string]*Entry{r.process, r.overlay} {
		for name := range table {
			if strings.HasPrefix(name, prefix) {
				delete(table, name)
				removed++
			}
		}
	}
	return removed
}

// RemoveOwner drops every entry registered by a plugin id, returning
// the number removed. Entries displaced by the owner resurface via
// their retained predecessor.
func (r *Registry) RemoveOwner(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for _, table := range []map[string]*Entry{r.process, r.overlay} {
		for name, entry := range table {
			if entry.owner != owner {
				continue
			}
			removed++
			if entry.predecessor != nil && entry.predecessor.owner != owner {
				table[name] = entry.predecessor
			} else {
				delete(table, name)
			}
		}
	}
	return removed
}

// Has reports whether a fully qualified name is registered.
func (r *Registry) Has(fullName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.lookup(fullName)
	return ok
}

// lookup checks the instance overlay before the process table.
func (r *Registry) lookup(fullName string) (*Entry, bool) {
	if e, ok := r.overlay[fullName]; ok {
		return e, true
	}
	e, ok := r.process[fullName]
	return e, ok
}

// Get returns a callable wrapper for an endpoint. Each call through the
// wrapper increments the entry's total and per-caller counts under the
// given caller id.
func (r *Registry) Get(caller, fullName string) (Callable, error) {
	r.mu.RLock()
	entry, ok := r.lookup(fullName)
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownCapability(fullName)
	}
	return func(args ...any) (any, error) {
		r.mu.Lock()
		entry.callCount++
		entry.callers[caller]++
		r.mu.Unlock()
		return entry.fn(args...)
	}, nil
}

// Call resolves and invokes an endpoint in one step.
func (r *Registry) Call(caller, fullName string, args ...any) (any, error) {
	fn, err := r.Get(caller, fullName)
	if err != nil {
		return nil, err
	}
	return fn(args...)
}

// List returns registered names matching a glob pattern, sorted. An
// empty pattern lists everything; a bare top-level name lists its
// namespace.
func (r *Registry) List(pattern string) ([]string, error) {
	var matcher glob.Glob
	switch {
	case pattern == "":
		matcher = nil
	case !strings.ContainsAny(pattern, "*?[{"):
		// A literal top-level name lists the whole namespace.
		g, err := glob.Compile(pattern + ":*")
		if err != nil {
			return nil, ErrBadPattern(pattern, err)
		}
		matcher = g
	default:
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, ErrBadPattern(pattern, err)
		}
		matcher = g
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, table := range []map[string]*Entry{r.overlay, r.process} {
		for name := range table {
			if seen[name] {
				continue
			}
			if matcher == nil || matcher.Match(name) {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Detail is an endpoint snapshot for introspection surfaces.
type Detail struct {
	FullName    string
	Owner       string
	Description string
	Instance    bool
	Added       time.Time
	CallCount   int
	Callers     map[string]int
	// Predecessor is the owner of a displaced entry, empty when none.
	Predecessor string
}

// Detail returns an introspection snapshot of one endpoint.
func (r *Registry) Detail(fullName string) (*Detail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.lookup(fullName)
	if !ok {
		return nil, ErrUnknownCapability(fullName)
	}
	d := &Detail{
		FullName:    entry.fullName,
		Owner:       entry.owner,
		Description: entry.description,
		Instance:    entry.instance,
		Added:       entry.added,
		CallCount:   entry.callCount,
		Callers:     make(map[string]int, len(entry.callers)),
	}
	for k, v := range entry.callers {
		d.Callers[k] = v
	}
	if entry.predecessor != nil {
		d.Predecessor = entry.predecessor.owner
	}
	return d, nil
}
