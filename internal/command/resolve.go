// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package command

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// maxSuggestionDistance bounds how far a "did you mean" candidate may
// be from the typed token.
const maxSuggestionDistance = 3

// resolveToken matches a possibly-abbreviated token against candidates.
// Exact match wins outright; then a unique prefix match; then a unique
// substring match. Multiple matches at the winning tier are ambiguous.
// No match returns empty with the closest candidate as a suggestion.
func resolveToken(token string, candidates []string) (match string, suggestion string, ambiguous []string) {
	var prefix, substring []string
	for _, c := range candidates {
		if c == token {
			return c, "", nil
		}
		if strings.HasPrefix(c, token) {
			prefix = append(prefix, c)
		} else if strings.Contains(c, token) {
			substring = append(substring, c)
		}
	}
	for _, tier := range [][]string{prefix, substring} {
		switch len(tier) {
		case 0:
		case 1:
			return tier[0], "", nil
		default:
			sort.Strings(tier)
			return "", "", tier
		}
	}
	best := ""
	bestDist := maxSuggestionDistance + 1
	for _, c := range candidates {
		if d := levenshtein.Distance(token, c, nil); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return "", best, nil
}

// resolvePlugin matches a plugin identifier against the ids that have
// registered commands. Dotted identifiers match against full ids; bare
// identifiers match against the final id segment.
func (e *Engine) resolvePlugin(identifier string) (string, error) {
	e.mu.RLock()
	ids := make([]string, 0, len(e.commands))
	for id := range e.commands {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Strings(ids)

	if strings.Contains(identifier, ".") {
		match, suggestion, ambiguous := resolveToken(identifier, ids)
		if len(ambiguous) > 0 {
			return "", ErrAmbiguous(identifier, ambiguous)
		}
		if match == "" {
			return "", ErrUnknownPlugin(identifier, suggestion)
		}
		return match, nil
	}

	shorts := make([]string, len(ids))
	byShort := make(map[string][]string, len(ids))
	for i, id := range ids {
		short := id[strings.LastIndex(id, ".")+1:]
		shorts[i] = short
		byShort[short] = append(byShort[short], id)
	}
	match, suggestion, ambiguous := resolveToken(identifier, shorts)
	if len(ambiguous) > 0 {
		return "", ErrAmbiguous(identifier, ambiguous)
	}
	if match == "" {
		return "", ErrUnknownPlugin(identifier, suggestion)
	}
	if resolved := byShort[match]; len(resolved) == 1 {
		return resolved[0], nil
	}
	return "", ErrAmbiguous(identifier, byShort[match])
}

// resolveCommand matches a command name within a resolved plugin.
func (e *Engine) resolveCommand(plugin, name string) (*Spec, error) {
	e.mu.RLock()
	table := e.commands[plugin]
	names := make([]string, 0, len(table))
	for n := range table {
		names = append(names, n)
	}
	e.mu.RUnlock()
	sort.Strings(names)

	match, suggestion, ambiguous := resolveToken(name, names)
	if len(ambiguous) > 0 {
		return nil, ErrAmbiguous(name, ambiguous)
	}
	if match == "" {
		return nil, ErrUnknownCommand(plugin, name, suggestion)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.commands[plugin][match], nil
}
