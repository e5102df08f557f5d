// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Arg declares one positional argument in a command's parser spec.
type Arg struct {
	Name string
	Help string
	// Type is "string", "int", "float", or "bool"; empty means string.
	Type string
	// Default applies when the token is absent; a nil default makes the
	// argument required.
	Default any
	// Choices restricts the accepted values after coercion to strings.
	Choices []string
	// Rest makes the argument consume all remaining tokens joined by
	// spaces. Only valid on the last argument.
	Rest bool
}

// splitTokens breaks an argument string into tokens, honoring single
// and double quotes.
func splitTokens(s string) []string {
	var out []string
	var cur strings.Builder
	var quote byte
	pending := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			pending = true
		case c == ' ' || c == '\t':
			if cur.Len() > 0 || pending {
				out = append(out, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 || pending {
		out = append(out, cur.String())
	}
	return out
}

// parseArgs matches tokens against a spec, applying defaults, choice
// restrictions, and type coercion.
func parseArgs(spec []Arg, raw string) (map[string]any, error) {
	tokens := splitTokens(raw)
	out := make(map[string]any, len(spec))
	for i, arg := range spec {
		var token string
		var have bool
		switch {
		case arg.Rest:
			if i < len(tokens) {
				token = strings.Join(tokens[i:], " ")
				have = token != ""
				tokens = tokens[:i]
			}
		case i < len(tokens):
			token = tokens[i]
			have = true
		}
		if !have {
			if arg.Default == nil {
				return nil, fmt.Errorf("missing required argument %s", arg.Name)
			}
			out[arg.Name] = arg.Default
			continue
		}
		if len(arg.Choices) > 0 {
			ok := false
			for _, c := range arg.Choices {
				if token == c {
					ok = true
					break
				}
			}
			if !ok {
				return nil, fmt.Errorf("argument %s must be one of: %s",
					arg.Name, strings.Join(arg.Choices, ", "))
			}
		}
		v, err := coerceToken(token, arg.Type)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", arg.Name, err)
		}
		out[arg.Name] = v
	}
	if !hasRest(spec) && len(tokens) > len(spec) {
		return nil, fmt.Errorf("unexpected extra arguments: %s",
			strings.Join(tokens[len(spec):], " "))
	}
	return out, nil
}

func hasRest(spec []Arg) bool {
	for _, a := range spec {
		if a.Rest {
			return true
		}
	}
	return false
}

func coerceToken(token, typ string) (any, error) {
	switch typ {
	case "", "string":
		return token, nil
	case "int":
		n, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", token)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", token)
		}
		return f, nil
	case "bool":
		b, err := strconv.ParseBool(token)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", token)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown argument type %q", typ)
	}
}

// usage renders a one-line usage string for a command.
func usage(prefix, plugin, name string, spec []Arg) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('.')
	b.WriteString(plugin)
	b.WriteByte('.')
	b.WriteString(name)
	for _, arg := range spec {
		if arg.Default == nil {
			fmt.Fprintf(&b, " <%s>", arg.Name)
		} else {
			fmt.Fprintf(&b, " [%s]", arg.Name)
		}
	}
	return b.String()
}
