// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package record

import (
	"runtime"
	"strings"
	"time"
)

// Update kinds.
const (
	UpdateInfo     = "Info"
	UpdateModify   = "Modify"
	UpdateSetFlag  = "Set Flag"
	UpdateLock     = "Lock"
	UpdateSend     = "Send"
	UpdateDrop     = "Drop"
	UpdateFormat   = "Format"
	UpdateRejected = "Rejected"
)

// EventStackFunc, when set, supplies the names of the currently active
// event raises (outer to inner) for update snapshots. The proxy wires it
// to the event bus at startup.
var EventStackFunc func() []string

// UpdateEntry records one mutation, lock attempt, send, drop, or format
// step on a record, with enough context for a post-mortem.
type UpdateEntry struct {
	Kind       string
	Action     string
	Actor      string
	CallStack  []string
	EventStack []string
	Time       time.Time
	Data       map[string]any
}

// UpdateLog is an append-only list of update entries.
type UpdateLog struct {
	entries []UpdateEntry
}

// Append adds an entry, snapshotting the call and event stacks.
func (l *UpdateLog) Append(kind, action, actor string, data map[string]any) {
	l.entries = append(l.entries, UpdateEntry{
		Kind:       kind,
		Action:     action,
		Actor:      actor,
		CallStack:  callStack(3),
		EventStack: eventStack(),
		Time:       time.Now().UTC(),
		Data:       data,
	})
}

// Entries returns a copy of the log.
func (l *UpdateLog) Entries() []UpdateEntry {
	out := make([]UpdateEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *UpdateLog) Len() int { return len(l.entries) }

func eventStack() []string {
	if EventStackFunc == nil {
		return nil
	}
	return EventStackFunc()
}

// callStack returns up to four caller function names, innermost first,
// skipping frames inside this package.
func callStack(skip int) []string {
	pcs := make([]uintptr, 8)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	var out []string
	for {
		frame, more := frames.Next()
		name := frame.Function
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		if !strings.HasPrefix(name, "record.") {
			out = append(out, name)
		}
		if len(out) == 4 || !more {
			break
		}
	}
	return out
}
