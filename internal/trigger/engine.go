// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package trigger implements the regex trigger engine that inspects
// every client-bound line. All enabled patterns on one match surface
// compile into a single union regex; identical patterns share one id so
// a line is scanned once regardless of how many triggers watch it.
package trigger

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/prismmud/prism/internal/event"
	"github.com/prismmud/prism/internal/record"
)

// Pseudo-trigger events raised around every client-bound line.
const (
	EventBeforeAll = "ev_trigger_beall"
	EventAfterAll  = "ev_trigger_all"
	EventEmptyLine = "ev_trigger_emptyline"
)

// EventName derives the default event raised when a trigger matches.
func EventName(trigger string) string {
	return "ev_trigger_" + trigger
}

// Spec declares one trigger.
type Spec struct {
	Name     string
	Owner    string
	Pattern  string
	Priority int
	// Disabled registers the trigger off; ToggleGroup or Toggle arms it.
	Disabled bool
	// Group is a label shared by triggers toggled together.
	Group string
	// ArgTypes maps named capture groups to coercions: "int", "float",
	// "bool"; unlisted groups stay strings.
	ArgTypes map[string]string
	// MatchColor matches against the color-coded surface instead of the
	// stripped one.
	MatchColor bool
	// Omit suppresses the matched line.
	Omit bool
	// StopEvaluating skips remaining triggers for the matched line.
	StopEvaluating bool
	// Event overrides the raised event name.
	Event string
}

type trig struct {
	spec    Spec
	re      *regexp.Regexp
	id      string
	enabled bool
	event   string
	hits    int
}

// union is the combined regex for one match surface, rebuilt lazily.
type union struct {
	re    *regexp.Regexp
	byID  map[string][]*trig
	dirty bool
}

// Engine owns the trigger table and the two match surfaces.
type Engine struct {
	mu       sync.Mutex
	bus      *event.Bus
	creator  string
	triggers map[string]*trig
	ids      map[string]string // pattern -> shared id
	nextID   int
	plain    union
	colored  union
	hitHook  func(name string)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHitHook installs a hook called once per trigger hit, for metrics.
func WithHitHook(fn func(name string)) EngineOption {
	return func(e *Engine) { e.hitHook = fn }
}

// NewEngine creates a trigger engine and registers the pseudo-trigger
// events under the creator id.
func NewEngine(bus *event.Bus, creator string, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		bus:      bus,
		creator:  creator,
		triggers: make(map[string]*trig),
		ids:      make(map[string]string),
	}
	e.plain.byID = make(map[string][]*trig)
	e.colored.byID = make(map[string][]*trig)
	for _, opt := range opts {
		opt(e)
	}
	pseudo := map[string]string{
		EventBeforeAll: "raised before any trigger is checked on a client-bound line",
		EventAfterAll:  "raised after all triggers have been checked on a client-bound line",
		EventEmptyLine: "raised when a client-bound line is empty after color stripping",
	}
	for name, desc := range pseudo {
		if err := bus.Register(name, creator, desc, map[string]string{"line": "the line record"}); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Add registers a trigger. The pattern must compile; identical patterns
// on the same surface share a union id and their triggers run in
// priority order when the pattern matches.
func (e *Engine) Add(spec Spec) error {
	re, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return ErrBadPattern(spec.Name, spec.Pattern, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.triggers[spec.Name]; ok {
		return ErrDuplicateTrigger(spec.Name, existing.spec.Owner)
	}

	id, ok := e.ids[spec.Pattern]
	if !ok {
		e.nextID++
		id = "t_" + strconv.Itoa(e.nextID)
		e.ids[spec.Pattern] = id
	}
	t := &trig{
		spec:    spec,
		re:      re,
		id:      id,
		enabled: !spec.Disabled,
		event:   spec.Event,
	}
	if t.event == "" {
		t.event = EventName(spec.Name)
	}
	if !e.bus.Has(t.event) {
		err := e.bus.Register(t.event, spec.Owner,
			"raised when the "+spec.Name+" trigger matches",
			map[string]string{
				"trigger_name": "name of the matched trigger",
				"matches":      "named capture groups, coerced per argtypes",
				"line":         "the matched line record",
			})
		if err != nil {
			return err
		}
	}
	e.triggers[spec.Name] = t
	e.surface(spec.MatchColor).dirty = true
	return nil
}

// Remove drops a trigger. The owner must match the registration.
func (e *Engine) Remove(name, owner string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.triggers[name]
	if !ok || t.spec.Owner != owner {
		return ErrUnknownTrigger(name)
	}
	delete(e.triggers, name)
	e.surface(t.spec.MatchColor).dirty = true
	return nil
}

// RemoveOwner drops every trigger owned by a plugin id, returning the
// number removed. Called at plugin unload.
func (e *Engine) RemoveOwner(owner string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for name, t := range e.triggers {
		if t.spec.Owner == owner {
			delete(e.triggers, name)
			e.surface(t.spec.MatchColor).dirty = true
			removed++
		}
	}
	return removed
}

// Toggle enables or disables one trigger.
func (e *Engine) Toggle(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.triggers[name]
	if !ok {
		return ErrUnknownTrigger(name)
	}
	if t.enabled != enabled {
		t.enabled = enabled
		e.surface(t.spec.MatchColor).dirty = true
	}
	return nil
}

// ToggleGroup enables or disables every trigger whose group label
// matches the glob pattern, returning the number toggled.
func (e *Engine) ToggleGroup(pattern string, enabled bool) (int, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("compile group pattern %q: %w", pattern, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	toggled := 0
	for _, t := range e.triggers {
		if t.spec.Group == "" || !g.Match(t.spec.Group) {
			continue
		}
		if t.enabled != enabled {
			t.enabled = enabled
			e.surface(t.spec.MatchColor).dirty = true
		}
		toggled++
	}
	return toggled, nil
}

func (e *Engine) surface(color bool) *union {
	if color {
		return &e.colored
	}
	return &e.plain
}

// namedGroupPattern strips named captures when folding a pattern into
// the union, where duplicate group names would not compile.
var namedGroupPattern = regexp.MustCompile(`\(\?P<[A-Za-z_][A-Za-z0-9_]*>`)

// rebuild recompiles a surface's union regex from its enabled triggers.
func (e *Engine) rebuild(u *union, color bool) {
	u.byID = make(map[string][]*trig)
	for _, t := range e.triggers {
		if t.spec.MatchColor != color || !t.enabled {
			continue
		}
		u.byID[t.id] = append(u.byID[t.id], t)
	}

	ids := make([]string, 0, len(u.byID))
	for id, list := range u.byID {
		ids = append(ids, id)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].spec.Priority < list[j].spec.Priority
		})
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		u.re = nil
		u.dirty = false
		return
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		pattern := u.byID[id][0].spec.Pattern
		anon := namedGroupPattern.ReplaceAllString(pattern, "(?:")
		parts = append(parts, "(?P<"+id+">"+anon+")")
	}
	combined, err := regexp.Compile(strings.Join(parts, "|"))
	if err != nil {
		// Individual patterns compiled, so the union should too; if it
		// does not, disable the surface rather than wedge the pipeline.
		slog.Error("trigger union failed to compile", "error", err)
		u.re = nil
		u.dirty = false
		return
	}
	u.re = combined
	u.dirty = false
}

// ProcessLine runs the trigger pass for one client-bound line: beall,
// then either emptyline or the union match, then all. Telnet-command
// frames and internal lines are skipped entirely.
func (e *Engine) ProcessLine(line *record.Line) {
	if !line.IsIO() || line.Internal() {
		return
	}
	e.raise(EventBeforeAll, map[string]any{"line": line})

	if strings.TrimSpace(line.NoANSI()) == "" {
		e.raise(EventEmptyLine, map[string]any{"line": line})
	} else {
		stopped := e.matchSurface(&e.plain, false, line)
		if !stopped {
			e.matchSurface(&e.colored, true, line)
		}
	}
	e.raise(EventAfterAll, map[string]any{"line": line})
}

// matchSurface applies one union to the line and fires the triggers
// sharing the matched pattern id in priority order. It reports whether
// a matched trigger requested stop-evaluating.
func (e *Engine) matchSurface(u *union, color bool, line *record.Line) bool {
	e.mu.Lock()
	if u.dirty {
		e.rebuild(u, color)
	}
	re := u.re
	e.mu.Unlock()
	if re == nil {
		return false
	}

	text := line.NoANSI()
	if color {
		text = line.ColorCoded()
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return false
	}
	var matchedID string
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(m) && m[i] != "" {
			matchedID = name
			break
		}
	}
	if matchedID == "" {
		return false
	}

	e.mu.Lock()
	list := append([]*trig(nil), u.byID[matchedID]...)
	e.mu.Unlock()

	for _, t := range list {
		if !t.enabled {
			continue
		}
		e.fire(t, text, line)
		if t.spec.StopEvaluating {
			return true
		}
	}
	return false
}

// fire re-matches the trigger's own pattern to extract named groups,
// coerces them, and raises the trigger's event.
func (e *Engine) fire(t *trig, text string, line *record.Line) {
	m := t.re.FindStringSubmatch(text)
	if m == nil {
		return
	}
	matches := make(map[string]any)
	for i, name := range t.re.SubexpNames() {
		if name == "" || i >= len(m) {
			continue
		}
		matches[name] = coerceArg(m[i], t.spec.ArgTypes[name])
	}

	e.mu.Lock()
	t.hits++
	e.mu.Unlock()
	if e.hitHook != nil {
		e.hitHook(t.spec.Name)
	}

	e.raise(t.event, map[string]any{
		"trigger_name": t.spec.Name,
		"matches":      matches,
		"line":         line,
	})

	if t.spec.Omit {
		if err := line.SetSend(false, t.spec.Owner); err != nil {
			slog.Warn("trigger omit on locked line",
				"trigger", t.spec.Name,
				"error", err)
		}
	}
}

func (e *Engine) raise(name string, args map[string]any) {
	if _, err := e.bus.Raise(name, args, e.creator); err != nil {
		slog.Error("trigger event raise failed", "event", name, "error", err)
	}
}

func coerceArg(raw, typ string) any {
	switch typ {
	case "int":
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	case "float":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case "bool":
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}

// Detail is a trigger snapshot for introspection surfaces.
type Detail struct {
	Spec    Spec
	Enabled bool
	Event   string
	Hits    int
}

// Get returns a snapshot of one trigger.
func (e *Engine) Get(name string) (*Detail, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.triggers[name]
	if !ok {
		return nil, ErrUnknownTrigger(name)
	}
	return &Detail{Spec: t.spec, Enabled: t.enabled, Event: t.event, Hits: t.hits}, nil
}

// List returns snapshots of all triggers sorted by name.
func (e *Engine) List() []*Detail {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Detail, 0, len(e.triggers))
	for _, t := range e.triggers {
		out = append(out, &Detail{Spec: t.spec, Enabled: t.enabled, Event: t.event, Hits: t.hits})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spec.Name < out[j].Spec.Name })
	return out
}
