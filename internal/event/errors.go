// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package event

import (
	"github.com/samber/oops"
)

// Error codes for event bus contract violations.
const (
	CodeDuplicateEvent = "DUPLICATE_EVENT"
	CodeUnknownEvent   = "UNKNOWN_EVENT"
)

// ErrDuplicateEvent creates an error for registering an event name twice.
func ErrDuplicateEvent(name, creator string) error {
	return oops.Code(CodeDuplicateEvent).
		With("event", name).
		With("creator", creator).
		Errorf("event %s already exists", name)
}

// ErrUnknownEvent creates an error for operations on an event that was
// never registered.
func ErrUnknownEvent(name string) error {
	return oops.Code(CodeUnknownEvent).
		With("event", name).
		Errorf("unknown event %s", name)
}
