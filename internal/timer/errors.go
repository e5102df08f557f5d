// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package timer

import (
	"github.com/samber/oops"
)

// Error codes for timer scheduler contract violations.
const (
	CodeDuplicateTimer = "DUPLICATE_TIMER"
	CodeUnknownTimer   = "UNKNOWN_TIMER"
	CodeBadAnchor      = "BAD_TIME_ANCHOR"
	CodeBadInterval    = "BAD_INTERVAL"
)

// ErrDuplicateTimer creates an error for a timer name registered twice.
func ErrDuplicateTimer(name, owner string) error {
	return oops.Code(CodeDuplicateTimer).
		With("timer", name).
		With("owner", owner).
		Errorf("timer %s already registered by %s", name, owner)
}

// ErrUnknownTimer creates an error for operations on an unregistered timer.
func ErrUnknownTimer(name string) error {
	return oops.Code(CodeUnknownTimer).
		With("timer", name).
		Errorf("unknown timer %s", name)
}

// ErrBadAnchor creates an error for a malformed HHMM time-of-day anchor.
func ErrBadAnchor(name, anchor string) error {
	return oops.Code(CodeBadAnchor).
		With("timer", name).
		With("anchor", anchor).
		Errorf("timer %s has invalid time-of-day anchor %q, want HHMM", name, anchor)
}

// ErrBadInterval creates an error for a non-positive interval.
func ErrBadInterval(name string, interval any) error {
	return oops.Code(CodeBadInterval).
		With("timer", name).
		With("interval", interval).
		Errorf("timer %s has non-positive interval", name)
}
