// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package setting

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prismmud/prism/internal/color"
)

// Type names a setting value type. The built-in types are below;
// additional types plug in through Registry.RegisterType.
type Type string

const (
	TypeStr      Type = "str"
	TypeInt      Type = "int"
	TypeBool     Type = "bool"
	TypeColor    Type = "color"
	TypeDuration Type = "duration"
)

// CoerceFunc validates a raw value and returns its canonical form.
type CoerceFunc func(raw any) (any, error)

func builtinCoercers() map[Type]CoerceFunc {
	return map[Type]CoerceFunc{
		TypeStr:      coerceStr,
		TypeInt:      coerceInt,
		TypeBool:     coerceBool,
		TypeColor:    coerceColor,
		TypeDuration: coerceDuration,
	}
}

func coerceStr(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return fmt.Sprintf("%v", raw), nil
	}
}

func coerceInt(raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to int", raw)
	}
}

func coerceBool(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0":
			return false, nil
		}
		return nil, fmt.Errorf("%q is not a boolean", v)
	case int:
		return v != 0, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to bool", raw)
	}
}

func coerceColor(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("cannot coerce %T to color", raw)
	}
	if !color.Valid(s) {
		return nil, fmt.Errorf("%q is not a color code string", s)
	}
	return s, nil
}

// coerceDuration parses strings like "30s", "5m", "1h30m" and returns
// whole seconds.
func coerceDuration(raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		if v < 0 {
			return nil, fmt.Errorf("duration %d is negative", v)
		}
		return v, nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%q is not a duration", v)
		}
		if d < 0 {
			return nil, fmt.Errorf("duration %q is negative", v)
		}
		return int(d / time.Second), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to duration", raw)
	}
}
