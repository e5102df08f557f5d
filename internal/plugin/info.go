// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package plugin

import "time"

// State is a plugin's position in the lifecycle.
type State string

const (
	// StateNotImported marks a discovered plugin whose code has not run.
	StateNotImported State = "not-imported"
	// StateImported marks a plugin whose code is present but not loaded.
	StateImported State = "imported"
	// StateLoaded marks an active plugin.
	StateLoaded State = "loaded"
	// StateInvalid marks a plugin rejected at discovery or instantiation.
	StateInvalid State = "invalid"
)

// Info describes one plugin, discovered or builtin. The manager owns the
// State and LoadedAt fields; everything else is static metadata.
type Info struct {
	ID      string
	Name    string
	Author  string
	Version int
	Purpose string
	// Required plugins cannot be unloaded once loaded.
	Required bool
	// Dependencies lists plugin ids that must load before this one.
	Dependencies []string
	// ReloadDependents extends a hot-reload to every plugin that depends
	// on this one.
	ReloadDependents bool
	// SaveOnReload names instance attributes snapshotted across a reload
	// for plugins hosted from scripts.
	SaveOnReload []string
	// Path is the plugin directory; empty for builtins.
	Path string

	State    State
	LoadedAt time.Time
}

func (i *Info) clone() *Info {
	out := *i
	out.Dependencies = append([]string(nil), i.Dependencies...)
	out.SaveOnReload = append([]string(nil), i.SaveOnReload...)
	return &out
}
