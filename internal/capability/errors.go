// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package capability

import (
	"github.com/samber/oops"
)

// Error codes for capability registry contract violations.
const (
	CodeDuplicateCapability = "DUPLICATE_CAPABILITY"
	CodeUnknownCapability   = "UNKNOWN_CAPABILITY"
	CodeBadPattern          = "BAD_PATTERN"
)

// ErrDuplicateCapability creates an error for a name collision without force.
func ErrDuplicateCapability(fullName, owner string) error {
	return oops.Code(CodeDuplicateCapability).
		With("capability", fullName).
		With("owner", owner).
		Errorf("capability %s already registered by %s", fullName, owner)
}

// ErrUnknownCapability creates an error for a lookup of an unregistered name.
func ErrUnknownCapability(fullName string) error {
	return oops.Code(CodeUnknownCapability).
		With("capability", fullName).
		Errorf("unknown capability %s", fullName)
}

// ErrBadPattern creates an error for an invalid list filter.
func ErrBadPattern(pattern string, err error) error {
	return oops.Code(CodeBadPattern).
		With("pattern", pattern).
		Wrapf(err, "invalid glob pattern %q", pattern)
}
