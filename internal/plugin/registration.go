// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package plugin

import (
	"log/slog"
	"sort"
	"time"

	"github.com/prismmud/prism/internal/capability"
	"github.com/prismmud/prism/internal/command"
	"github.com/prismmud/prism/internal/event"
	"github.com/prismmud/prism/internal/setting"
	"github.com/prismmud/prism/internal/timer"
	"github.com/prismmud/prism/internal/trigger"
)

// Plugin is the contract a plugin implementation exposes: a declarative
// Registration describing everything the loader wires into the fabric on
// its behalf.
type Plugin interface {
	Registration() Registration
}

// StateCarrier is implemented by plugins that preserve state across a
// hot-reload. SnapshotState runs before unload; RestoreState runs on the
// fresh instance before its initialize hooks.
type StateCarrier interface {
	SnapshotState() map[string]any
	RestoreState(map[string]any)
}

// Factory constructs a builtin plugin instance.
type Factory func(id string, info *Info) (Plugin, error)

// Kit is the view of the fabric handed to a plugin's lifecycle hooks.
type Kit struct {
	ID       string
	Log      *slog.Logger
	Bus      *event.Bus
	Caps     *capability.Registry
	Settings *setting.Registry
	Timers   *timer.Scheduler
	Triggers *trigger.Engine
	Commands *command.Engine
}

// Hook is one lifecycle function. Lower priority runs first; uninitialize
// hooks run in reverse.
type Hook struct {
	Name     string
	Priority int
	Fn       func(*Kit) error
}

// EventDef declares an event this plugin creates.
type EventDef struct {
	Name        string
	Description string
	Args        map[string]string
}

// CallbackReg attaches a function to an event. A zero Priority means
// event.DefaultPriority.
type CallbackReg struct {
	Event    string
	Name     string
	Priority int
	Fn       func(*event.DataRecord) error
}

// TimerReg declares a recurring or one-shot timer.
type TimerReg struct {
	Name     string
	Interval time.Duration
	OneShot  bool
	// TimeOfDay anchors the first fire to an HHMM wall-clock time.
	TimeOfDay string
	Disabled  bool
	Silent    bool
	Fn        func() error
}

// CapabilityReg exposes one callable under the plugin's top-level name.
type CapabilityReg struct {
	Name        string
	Description string
	Fn          capability.Callable
	Instance    bool
	Force       bool
}

// Registration is the declarative wiring table the loader scans at load.
// The loader fills owner fields (command Plugin, trigger Owner, setting
// Plugin) with the plugin id.
type Registration struct {
	Init         []Hook
	Initialize   []Hook
	Uninitialize []Hook
	Save         []Hook

	Events       []EventDef
	Callbacks    []CallbackReg
	Commands     []command.Spec
	Triggers     []trigger.Spec
	Timers       []TimerReg
	Settings     []setting.Spec
	Capabilities []CapabilityReg
}

// sortHooks orders hooks by priority, stable on declaration order.
func sortHooks(hooks []Hook, reverse bool) []Hook {
	out := append([]Hook(nil), hooks...)
	sort.SliceStable(out, func(i, j int) bool {
		if reverse {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Priority < out[j].Priority
	})
	return out
}
