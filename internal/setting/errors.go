// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package setting

import (
	"github.com/samber/oops"
)

// Error codes for settings store contract violations.
const (
	CodeDuplicateSetting = "DUPLICATE_SETTING"
	CodeUnknownSetting   = "UNKNOWN_SETTING"
	CodeBadValue         = "BAD_SETTING_VALUE"
	CodeReadOnly         = "READONLY_SETTING"
	CodeUnknownType      = "UNKNOWN_SETTING_TYPE"
)

// ErrDuplicateSetting creates an error for a name registered twice.
// Setting names are unique across all plugins.
func ErrDuplicateSetting(name, owner string) error {
	return oops.Code(CodeDuplicateSetting).
		With("setting", name).
		With("owner", owner).
		Errorf("setting %s already registered by %s", name, owner)
}

// ErrUnknownSetting creates an error for a lookup of an unregistered name.
func ErrUnknownSetting(name string) error {
	return oops.Code(CodeUnknownSetting).
		With("setting", name).
		Errorf("unknown setting %s", name)
}

// ErrBadValue creates an error for a value rejected by the type coercer.
func ErrBadValue(name string, typ Type, raw any, err error) error {
	return oops.Code(CodeBadValue).
		With("setting", name).
		With("type", string(typ)).
		With("value", raw).
		Wrapf(err, "invalid %s value for setting %s", typ, name)
}

// ErrReadOnly creates an error for a write to a readonly setting.
func ErrReadOnly(name string) error {
	return oops.Code(CodeReadOnly).
		With("setting", name).
		Errorf("setting %s is readonly", name)
}

// ErrUnknownType creates an error for a spec using an unregistered type.
func ErrUnknownType(name string, typ Type) error {
	return oops.Code(CodeUnknownType).
		With("setting", name).
		With("type", string(typ)).
		Errorf("setting %s uses unknown type %s", name, typ)
}
