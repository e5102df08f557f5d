// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package command

import (
	"strings"

	"github.com/samber/oops"
)

// Error codes for command engine failures.
const (
	CodeDuplicateCommand = "DUPLICATE_COMMAND"
	CodeUnknownCommand   = "UNKNOWN_COMMAND"
	CodeUnknownPlugin    = "UNKNOWN_PLUGIN"
	CodeAmbiguous        = "AMBIGUOUS_ABBREVIATION"
	CodeInvalidArgs      = "INVALID_ARGS"
	CodeEmptyHistory     = "EMPTY_HISTORY"
)

// ErrDuplicateCommand creates an error for a command registered twice.
func ErrDuplicateCommand(plugin, name string) error {
	return oops.Code(CodeDuplicateCommand).
		With("plugin", plugin).
		With("command", name).
		Errorf("command %s.%s already registered", plugin, name)
}

// ErrUnknownCommand creates an error for a command name resolving to
// nothing, carrying a suggestion when one is close enough.
func ErrUnknownCommand(plugin, name, suggestion string) error {
	b := oops.Code(CodeUnknownCommand).
		With("plugin", plugin).
		With("command", name).
		With("suggestion", suggestion)
	if suggestion != "" {
		return b.Errorf("unknown command %q for %s, did you mean %q?", name, plugin, suggestion)
	}
	return b.Errorf("unknown command %q for %s", name, plugin)
}

// ErrUnknownPlugin creates an error for an unresolvable plugin identifier.
func ErrUnknownPlugin(identifier, suggestion string) error {
	b := oops.Code(CodeUnknownPlugin).
		With("identifier", identifier).
		With("suggestion", suggestion)
	if suggestion != "" {
		return b.Errorf("no plugin matches %q, did you mean %q?", identifier, suggestion)
	}
	return b.Errorf("no plugin matches %q", identifier)
}

// ErrAmbiguous creates an error for an abbreviation matching several
// candidates; the candidates ride along for the disambiguation listing.
func ErrAmbiguous(token string, candidates []string) error {
	return oops.Code(CodeAmbiguous).
		With("token", token).
		With("candidates", strings.Join(candidates, ", ")).
		Errorf("%q is ambiguous: %s", token, strings.Join(candidates, ", "))
}

// ErrInvalidArgs creates an error for tokens rejected by an argument
// spec; the usage line rides along for the client message.
func ErrInvalidArgs(plugin, name, usage string, cause error) error {
	return oops.Code(CodeInvalidArgs).
		With("plugin", plugin).
		With("command", name).
		With("usage", usage).
		Wrapf(cause, "bad arguments for %s.%s", plugin, name)
}

// ErrEmptyHistory creates an error for a rerun with no matching entry.
func ErrEmptyHistory(offset int) error {
	return oops.Code(CodeEmptyHistory).
		With("offset", offset).
		Errorf("no command history entry at offset %d", offset)
}

// ClientMessage extracts a client-facing message from a dispatch error.
// The text travels back to the originating client as internal lines.
func ClientMessage(err error) string {
	if err == nil {
		return "something went wrong"
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "something went wrong: " + err.Error()
	}
	ctx := oopsErr.Context()
	switch oopsErr.Code() {
	case CodeUnknownCommand, CodeUnknownPlugin:
		return err.Error()
	case CodeAmbiguous:
		token, _ := ctx["token"].(string)
		candidates, _ := ctx["candidates"].(string)
		return token + " is ambiguous, matches: " + candidates
	case CodeInvalidArgs:
		if usage, ok := ctx["usage"].(string); ok && usage != "" {
			return "usage: " + usage
		}
		return "invalid arguments"
	case CodeEmptyHistory:
		return "no matching history entry"
	default:
		return "something went wrong: " + err.Error()
	}
}
