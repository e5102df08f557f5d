// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package record

import (
	"github.com/samber/oops"
)

// Error codes for record contract violations.
const (
	CodeRecordLocked = "RECORD_LOCKED"
	CodeBadItem      = "BAD_ITEM"
)

// ErrRecordLocked creates an error for a mutation attempt on a locked record.
func ErrRecordLocked(id, field string) error {
	return oops.Code(CodeRecordLocked).
		With("record_id", id).
		With("field", field).
		Errorf("record %s is locked", id)
}

// ErrBadItem creates an error for an unsupported container item type.
func ErrBadItem(got any) error {
	return oops.Code(CodeBadItem).
		With("type", got).
		Errorf("container items must be *Line, string, or []byte")
}
