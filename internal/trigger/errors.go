// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package trigger

import (
	"github.com/samber/oops"
)

// Error codes for trigger engine contract violations.
const (
	CodeDuplicateTrigger = "DUPLICATE_TRIGGER"
	CodeUnknownTrigger   = "UNKNOWN_TRIGGER"
	CodeBadPattern       = "BAD_TRIGGER_PATTERN"
)

// ErrDuplicateTrigger creates an error for a trigger name registered twice.
func ErrDuplicateTrigger(name, owner string) error {
	return oops.Code(CodeDuplicateTrigger).
		With("trigger", name).
		With("owner", owner).
		Errorf("trigger %s already registered by %s", name, owner)
}

// ErrUnknownTrigger creates an error for operations on an unregistered trigger.
func ErrUnknownTrigger(name string) error {
	return oops.Code(CodeUnknownTrigger).
		With("trigger", name).
		Errorf("unknown trigger %s", name)
}

// ErrBadPattern creates an error for a pattern that does not compile.
func ErrBadPattern(name, pattern string, err error) error {
	return oops.Code(CodeBadPattern).
		With("trigger", name).
		With("pattern", pattern).
		Wrapf(err, "trigger %s pattern does not compile", name)
}
