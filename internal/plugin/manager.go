// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package plugin implements discovery, dependency-ordered loading,
// unloading, and hot-reload of the proxy's plugins, both builtin Go
// plugins and script plugins hosted from directories.
package plugin

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/prismmud/prism/internal/capability"
	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/event"
	"github.com/prismmud/prism/internal/setting"
	"github.com/prismmud/prism/internal/timer"
	"github.com/prismmud/prism/internal/trigger"
)

// ManagerID is the owner id the manager itself registers under.
const ManagerID = "plugins.core.plugins"

// Lifecycle events raised by the manager.
const (
	EventLoaded   = "ev_plugin_loaded"
	EventUnloaded = "ev_plugin_unloaded"
	EventSave     = "ev_plugin_save"
	EventReset    = "ev_plugin_reset"
)

// Host instantiates directory plugins from their manifests.
type Host interface {
	Instantiate(info *Info, manifest *Manifest) (Plugin, error)
}

// Deps are the fabric subsystems the loader wires registrations into.
type Deps struct {
	Bus      *event.Bus
	Caps     *capability.Registry
	Settings *setting.Registry
	Timers   *timer.Scheduler
	Triggers *trigger.Engine
	Commands *command.Engine
}

type instance struct {
	info     *Info
	manifest *Manifest
	plugin   Plugin
	reg      Registration
}

// Manager owns the plugin table and drives the lifecycle.
type Manager struct {
	mu   sync.RWMutex
	deps Deps
	log  *slog.Logger

	version *semver.Version
	roots   []string

	factories map[string]Factory
	host      Host

	infos     map[string]*Info
	manifests map[string]*Manifest
	loaded    map[string]*instance
	order     []string // load order of currently loaded plugins

	// scratch holds reload snapshots keyed by plugin id.
	scratch map[string]map[string]any
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSearchRoots sets the directories scanned for plugin directories.
func WithSearchRoots(roots ...string) ManagerOption {
	return func(m *Manager) { m.roots = append(m.roots, roots...) }
}

// WithProxyVersion sets the version manifests check their requires
// constraint against.
func WithProxyVersion(v *semver.Version) ManagerOption {
	return func(m *Manager) { m.version = v }
}

// WithHost installs the script host used to instantiate directory
// plugins.
func WithHost(h Host) ManagerOption {
	return func(m *Manager) { m.host = h }
}

// WithLogger overrides the manager's logger.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a plugin manager and registers the lifecycle events
// on the bus.
func NewManager(deps Deps, opts ...ManagerOption) *Manager {
	m := &Manager{
		deps:      deps,
		log:       slog.Default(),
		factories: make(map[string]Factory),
		infos:     make(map[string]*Info),
		manifests: make(map[string]*Manifest),
		loaded:    make(map[string]*instance),
		scratch:   make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.deps.Bus != nil {
		events := []struct{ name, desc string }{
			{EventLoaded, "a plugin finished loading"},
			{EventUnloaded, "a plugin was unloaded"},
			{EventSave, "plugins should persist their state"},
			{EventReset, "a plugin's settings were reset to defaults"},
		}
		for _, ev := range events {
			if err := m.deps.Bus.Register(ev.name, ManagerID, ev.desc,
				map[string]string{"plugin_id": "plugin id"}); err != nil {
				m.log.Warn("registering lifecycle event", "event", ev.name, "error", err)
			}
		}
		_, _ = m.deps.Bus.RegisterCallback(EventSave, event.Callback{
			Name:  "save_all_plugins",
			Owner: ManagerID,
			Fn: func(*event.DataRecord) error {
				m.SaveAll()
				return nil
			},
		}, event.DefaultPriority)
	}
	return m
}

// RegisterBuiltin adds a compiled-in plugin. Builtins have no directory;
// their code is always present, so they start in the imported state.
func (m *Manager) RegisterBuiltin(info Info, factory Factory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info.ID == "" || factory == nil {
		return ErrInvalidManifest(info.ID, nil)
	}
	if _, exists := m.infos[info.ID]; exists {
		return ErrDuplicatePlugin(info.ID)
	}
	info.State = StateImported
	m.infos[info.ID] = &info
	m.factories[info.ID] = factory
	return nil
}

// Discover scans the search roots for plugin directories. Directories
// with an unreadable or invalid manifest are logged and marked invalid;
// discovery continues.
func (m *Manager) Discover() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, root := range m.roots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return err
			}
			if _, statErr := os.Stat(filepath.Join(path, ManifestFile)); statErr != nil {
				return nil
			}
			id, idErr := IDFromPath(root, path)
			if idErr != nil {
				m.log.Warn("skipping plugin directory", "path", path, "error", idErr)
				return filepath.SkipDir
			}
			if _, exists := m.infos[id]; exists {
				m.log.Warn("duplicate plugin id, keeping first", "plugin", id, "path", path)
				return filepath.SkipDir
			}
			manifest, mErr := LoadManifest(path)
			if mErr != nil {
				m.log.Warn("invalid plugin manifest", "plugin", id, "error", mErr)
				m.infos[id] = &Info{ID: id, Path: path, State: StateInvalid}
				return filepath.SkipDir
			}
			if vErr := manifest.CheckProxyVersion(id, m.version); vErr != nil {
				m.log.Warn("plugin incompatible with proxy version", "plugin", id, "error", vErr)
				m.infos[id] = &Info{ID: id, Path: path, State: StateInvalid}
				return filepath.SkipDir
			}
			m.infos[id] = manifest.info(id, path)
			m.manifests[id] = manifest
			return filepath.SkipDir
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadAll loads every known loadable plugin in dependency order and then
// runs the initialize hooks. Individual load failures are logged and do
// not stop the batch.
func (m *Manager) LoadAll() error {
	m.mu.RLock()
	var ids []string
	for id, info := range m.infos {
		if info.State == StateInvalid {
			continue
		}
		if _, isLoaded := m.loaded[id]; !isLoaded {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return m.Load(ids...)
}

// Load loads a batch of plugins in dependency order, then runs their
// initialize hooks. A dependency cycle aborts the whole batch; any other
// failure skips that plugin and its dependents.
func (m *Manager) Load(ids ...string) error {
	ordered, err := m.sortBatch(ids)
	if err != nil {
		return err
	}
	var loadedIDs []string
	for _, id := range ordered {
		if err := m.loadOne(id); err != nil {
			m.log.Error("plugin load failed", "plugin", id, "error", err)
			continue
		}
		loadedIDs = append(loadedIDs, id)
	}
	m.initialize(loadedIDs)
	return nil
}

// sortBatch topologically orders a batch by the dependency edges inside
// it. Dependencies outside the batch must already be loaded; that is
// checked per-plugin at load time.
func (m *Manager) sortBatch(ids []string) ([]string, error) {
	inBatch := make(map[string]bool, len(ids))
	for _, id := range ids {
		inBatch[id] = true
	}
	m.mu.RLock()
	indegree := make(map[string]int, len(ids))
	dependents := make(map[string][]string)
	for _, id := range ids {
		indegree[id] = 0
	}
	for _, id := range ids {
		info, ok := m.infos[id]
		if !ok {
			continue
		}
		for _, dep := range info.Dependencies {
			if inBatch[dep] {
				indegree[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}
	m.mu.RUnlock()

	var ready []string
	for _, id := range ids {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	var ordered []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		ordered = append(ordered, id)
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	if len(ordered) != len(ids) {
		var stuck []string
		for _, id := range ids {
			if indegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, ErrDependencyCycle(stuck)
	}
	return ordered, nil
}

func (m *Manager) kit(id string) *Kit {
	return &Kit{
		ID:       id,
		Log:      m.log.With("plugin", id),
		Bus:      m.deps.Bus,
		Caps:     m.deps.Caps,
		Settings: m.deps.Settings,
		Timers:   m.deps.Timers,
		Triggers: m.deps.Triggers,
		Commands: m.deps.Commands,
	}
}

func (m *Manager) loadOne(id string) error {
	m.mu.Lock()
	info, ok := m.infos[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownPlugin(id)
	}
	if _, isLoaded := m.loaded[id]; isLoaded {
		m.mu.Unlock()
		return ErrAlreadyLoaded(id)
	}
	for _, dep := range info.Dependencies {
		if _, depLoaded := m.loaded[dep]; !depLoaded {
			m.mu.Unlock()
			return ErrMissingDependency(id, dep)
		}
	}
	factory := m.factories[id]
	manifest := m.manifests[id]
	snapshot := m.scratch[id]
	delete(m.scratch, id)
	m.mu.Unlock()

	var p Plugin
	var err error
	switch {
	case factory != nil:
		p, err = factory(id, info.clone())
	case m.host != nil && manifest != nil:
		p, err = m.host.Instantiate(info.clone(), manifest)
	default:
		err = ErrUnknownPlugin(id)
	}
	if err != nil {
		m.setState(id, StateInvalid)
		return ErrInstantiate(id, err)
	}

	reg := p.Registration()
	kit := m.kit(id)
	for _, h := range sortHooks(reg.Init, false) {
		if hookErr := h.Fn(kit); hookErr != nil {
			m.setState(id, StateImported)
			return ErrInstantiate(id, hookErr)
		}
	}

	m.register(id, reg)

	if snapshot != nil {
		if sc, isCarrier := p.(StateCarrier); isCarrier {
			sc.RestoreState(snapshot)
		}
	}

	m.mu.Lock()
	m.loaded[id] = &instance{info: info, manifest: manifest, plugin: p, reg: reg}
	m.order = append(m.order, id)
	info.State = StateLoaded
	info.LoadedAt = time.Now()
	m.mu.Unlock()

	m.log.Info("plugin loaded", "plugin", id)
	if m.deps.Bus != nil {
		_, _ = m.deps.Bus.Raise(EventLoaded, map[string]any{"plugin_id": id}, id)
	}
	return nil
}

// register wires a plugin's declaration tables into the subsystems.
// Individual registration failures are logged; the load continues.
func (m *Manager) register(id string, reg Registration) {
	warn := func(kind, name string, err error) {
		if err != nil {
			m.log.Warn("plugin registration failed",
				"plugin", id, "kind", kind, "name", name, "error", err)
		}
	}
	for _, ev := range reg.Events {
		warn("event", ev.Name, m.deps.Bus.Register(ev.Name, id, ev.Description, ev.Args))
	}
	for i, cb := range reg.Callbacks {
		name := cb.Name
		if name == "" {
			name = cb.Event + "_cb" + strconv.Itoa(i)
		}
		priority := cb.Priority
		if priority == 0 {
			priority = event.DefaultPriority
		}
		_, err := m.deps.Bus.RegisterCallback(cb.Event, event.Callback{
			Name:  name,
			Owner: id,
			Fn:    cb.Fn,
		}, priority)
		warn("callback", name, err)
	}
	for _, spec := range reg.Commands {
		spec.Plugin = id
		warn("command", spec.Name, m.deps.Commands.Add(spec))
	}
	for _, spec := range reg.Triggers {
		spec.Owner = id
		warn("trigger", spec.Name, m.deps.Triggers.Add(spec))
	}
	for _, t := range reg.Timers {
		var opts []timer.Option
		if t.OneShot {
			opts = append(opts, timer.WithOneShot())
		}
		if t.TimeOfDay != "" {
			opts = append(opts, timer.WithTimeOfDay(t.TimeOfDay))
		}
		if t.Disabled {
			opts = append(opts, timer.WithDisabled())
		}
		if t.Silent {
			opts = append(opts, timer.WithoutLogging())
		}
		warn("timer", t.Name, m.deps.Timers.Add(t.Name, id, t.Fn, t.Interval, opts...))
	}
	for _, spec := range reg.Settings {
		spec.Plugin = id
		warn("setting", spec.Name, m.deps.Settings.Register(spec))
	}
	for _, c := range reg.Capabilities {
		warn("capability", c.Name, m.deps.Caps.Add(id, id, c.Name, c.Fn, c.Description,
			capability.AddOptions{Instance: c.Instance, Force: c.Force}))
	}
}

// initialize runs initialize hooks for a batch in load order, after every
// plugin in the batch exists. Hook errors are logged and do not undo the
// load.
func (m *Manager) initialize(ids []string) {
	for _, id := range ids {
		m.mu.RLock()
		inst, ok := m.loaded[id]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		kit := m.kit(id)
		for _, h := range sortHooks(inst.reg.Initialize, false) {
			if err := h.Fn(kit); err != nil {
				m.log.Warn("initialize hook failed", "plugin", id, "hook", h.Name, "error", err)
			}
		}
	}
}

// Unload removes a loaded plugin and everything it registered. Required
// plugins refuse; hot-reload bypasses that check internally.
func (m *Manager) Unload(id string) error {
	m.mu.RLock()
	inst, ok := m.loaded[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotLoaded(id)
	}
	if inst.info.Required {
		return ErrRequiredPlugin(id)
	}
	return m.unloadOne(id)
}

func (m *Manager) unloadOne(id string) error {
	m.mu.RLock()
	inst, ok := m.loaded[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotLoaded(id)
	}

	kit := m.kit(id)
	for _, h := range sortHooks(inst.reg.Uninitialize, true) {
		if err := h.Fn(kit); err != nil {
			m.log.Warn("uninitialize hook failed", "plugin", id, "hook", h.Name, "error", err)
		}
	}

	m.deps.Bus.RemoveOwner(id)
	m.deps.Caps.Remove(id)
	m.deps.Caps.RemoveOwner(id)
	m.deps.Timers.RemoveOwner(id)
	m.deps.Triggers.RemoveOwner(id)
	m.deps.Commands.RemoveOwner(id)
	m.deps.Settings.RemovePlugin(id)

	if c, closeable := inst.plugin.(interface{ Close() error }); closeable {
		if err := c.Close(); err != nil {
			m.log.Warn("closing plugin", "plugin", id, "error", err)
		}
	}

	m.mu.Lock()
	delete(m.loaded, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if inst.info.Path == "" {
		inst.info.State = StateImported
	} else {
		inst.info.State = StateNotImported
	}
	m.mu.Unlock()

	m.log.Info("plugin unloaded", "plugin", id)
	if m.deps.Bus != nil {
		_, _ = m.deps.Bus.Raise(EventUnloaded, map[string]any{"plugin_id": id}, id)
	}
	return nil
}

// Reload hot-reloads a plugin: state is snapshotted, the plugin (and its
// dependents when the manifest asks) is unloaded and loaded again, the
// snapshot restored, and initialize hooks run once every member of the
// reload set is back.
func (m *Manager) Reload(id string) error {
	m.mu.RLock()
	_, ok := m.loaded[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotLoaded(id)
	}

	set := m.reloadSet(id)
	ordered, err := m.sortBatch(set)
	if err != nil {
		return err
	}

	// Snapshot before anything is torn down.
	for _, pid := range ordered {
		m.mu.RLock()
		inst := m.loaded[pid]
		m.mu.RUnlock()
		if inst == nil {
			continue
		}
		if sc, isCarrier := inst.plugin.(StateCarrier); isCarrier {
			if snap := sc.SnapshotState(); snap != nil {
				m.mu.Lock()
				m.scratch[pid] = snap
				m.mu.Unlock()
			}
		}
	}

	// Unload dependents before their dependencies.
	for i := len(ordered) - 1; i >= 0; i-- {
		if err := m.unloadOne(ordered[i]); err != nil {
			m.log.Warn("reload unload failed", "plugin", ordered[i], "error", err)
		}
	}

	var reloaded []string
	for _, pid := range ordered {
		if err := m.loadOne(pid); err != nil {
			m.log.Error("reload load failed", "plugin", pid, "error", err)
			continue
		}
		reloaded = append(reloaded, pid)
	}
	m.initialize(reloaded)
	return nil
}

// reloadSet returns the plugin plus, when flagged, every loaded plugin
// that transitively depends on it.
func (m *Manager) reloadSet(id string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := m.infos[id]
	if info == nil || !info.ReloadDependents {
		return []string{id}
	}
	set := map[string]bool{id: true}
	for changed := true; changed; {
		changed = false
		for pid := range m.loaded {
			if set[pid] {
				continue
			}
			for _, dep := range m.infos[pid].Dependencies {
				if set[dep] {
					set[pid] = true
					changed = true
					break
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for pid := range set {
		out = append(out, pid)
	}
	sort.Strings(out)
	return out
}

// SaveAll runs every loaded plugin's save hooks and flushes its settings.
func (m *Manager) SaveAll() {
	m.mu.RLock()
	ids := append([]string(nil), m.order...)
	m.mu.RUnlock()
	for _, id := range ids {
		m.mu.RLock()
		inst := m.loaded[id]
		m.mu.RUnlock()
		if inst == nil {
			continue
		}
		kit := m.kit(id)
		for _, h := range sortHooks(inst.reg.Save, false) {
			if err := h.Fn(kit); err != nil {
				m.log.Warn("save hook failed", "plugin", id, "hook", h.Name, "error", err)
			}
		}
		if err := m.deps.Settings.FlushPlugin(id); err != nil {
			m.log.Warn("flushing plugin settings", "plugin", id, "error", err)
		}
	}
}

// ResetSettings resets every setting of a loaded plugin to its default
// and raises ev_plugin_reset.
func (m *Manager) ResetSettings(id string) error {
	m.mu.RLock()
	_, ok := m.loaded[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotLoaded(id)
	}
	for _, d := range m.deps.Settings.List(id, true) {
		if _, err := m.deps.Settings.Set(d.Spec.Name, setting.Default, id); err != nil {
			m.log.Warn("resetting setting", "plugin", id, "setting", d.Spec.Name, "error", err)
		}
	}
	if m.deps.Bus != nil {
		_, _ = m.deps.Bus.Raise(EventReset, map[string]any{"plugin_id": id}, id)
	}
	return nil
}

// Shutdown unloads every loaded plugin in reverse load order, required
// plugins included, so uninitialize hooks run before the proxy closes
// its sockets.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	ids := append([]string(nil), m.order...)
	m.mu.RUnlock()
	for i := len(ids) - 1; i >= 0; i-- {
		if err := m.unloadOne(ids[i]); err != nil {
			m.log.Warn("shutdown unload failed", "plugin", ids[i], "error", err)
		}
	}
}

// Get returns a copy of one plugin's info.
func (m *Manager) Get(id string) (*Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.infos[id]
	if !ok {
		return nil, ErrUnknownPlugin(id)
	}
	return info.clone(), nil
}

// List returns every known plugin's info, sorted by id.
func (m *Manager) List() []*Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Info, 0, len(m.infos))
	for _, info := range m.infos {
		out = append(out, info.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadedIDs returns the loaded plugin ids in load order.
func (m *Manager) LoadedIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// IsLoaded reports whether a plugin is currently loaded.
func (m *Manager) IsLoaded(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.loaded[id]
	return ok
}

// PathOwner returns the loaded directory plugin owning a file path.
func (m *Manager) PathOwner(path string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, inst := range m.loaded {
		if inst.info.Path == "" {
			continue
		}
		if rel, err := filepath.Rel(inst.info.Path, path); err == nil && filepath.IsLocal(rel) {
			return id, true
		}
	}
	return "", false
}

func (m *Manager) setState(id string, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.infos[id]; ok {
		info.State = s
	}
}
