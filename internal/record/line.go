// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package record holds the line and container records that carry every
// byte of text between the mud and clients, together with their
// append-only update logs.
package record

import (
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/prismmud/prism/internal/color"
)

// Origin identifies where a line came from. It never changes after
// creation.
type Origin string

const (
	OriginMud      Origin = "mud"
	OriginClient   Origin = "client"
	OriginInternal Origin = "internal"
)

// Kind identifies whether a line is normal text or a telnet option
// negotiation frame passing through the pipeline opaquely.
type Kind string

const (
	KindIO            Kind = "io"
	KindTelnetCommand Kind = "telnet-command"
)

// Line is one line of network data. The payload is mutable until the
// line is locked; the original text is frozen at creation.
type Line struct {
	id       ulid.ULID
	origin   Origin
	kind     Kind
	text     string
	original string

	send           bool
	isPrompt       bool
	preamble       bool
	prelogin       bool
	hadLineEndings bool
	wasSent        bool
	color          string

	locked  bool
	updates UpdateLog
}

// New creates a line. Trailing line endings are stripped and remembered;
// interior line endings indicate a shim bug and are logged.
func New(text string, origin Origin, kind Kind) *Line {
	trimmed := strings.TrimRight(text, "\r\n")
	l := &Line{
		id:             NewULID(),
		origin:         origin,
		kind:           kind,
		text:           trimmed,
		original:       trimmed,
		send:           true,
		preamble:       origin == OriginInternal,
		hadLineEndings: trimmed != text,
	}
	if kind == KindIO && strings.ContainsAny(trimmed, "\r\n") {
		slog.Error("line record created with interior line endings",
			"record_id", l.id.String(),
			"origin", string(origin))
	}
	l.updates.Append(UpdateInfo, "created", string(origin), map[string]any{"text": trimmed})
	return l
}

// ID returns the line's creation id.
func (l *Line) ID() ulid.ULID { return l.id }

// Origin returns where the line came from.
func (l *Line) Origin() Origin { return l.origin }

// Kind returns the line kind.
func (l *Line) Kind() Kind { return l.kind }

// IsIO reports whether the line is normal text.
func (l *Line) IsIO() bool { return l.kind == KindIO }

// IsTelnetCommand reports whether the line is an option negotiation frame.
func (l *Line) IsTelnetCommand() bool { return l.kind == KindTelnetCommand }

// FromMud reports whether the line originated at the mud.
func (l *Line) FromMud() bool { return l.origin == OriginMud }

// FromClient reports whether the line originated at a client.
func (l *Line) FromClient() bool { return l.origin == OriginClient }

// Internal reports whether the line was generated by the proxy.
func (l *Line) Internal() bool { return l.origin == OriginInternal }

// Text returns the current payload.
func (l *Line) Text() string { return l.text }

// Original returns the payload as it was at creation.
func (l *Line) Original() string { return l.original }

// Modified reports whether the payload differs from the original.
func (l *Line) Modified() bool { return l.text != l.original }

// NoANSI returns the payload with ANSI escape sequences stripped.
func (l *Line) NoANSI() string { return color.StripANSI(l.text) }

// ColorCoded returns the payload with ANSI sequences converted to
// @-style color codes.
func (l *Line) ColorCoded() string { return color.ToColorCode(l.text) }

// Send reports whether the line is still due for delivery.
func (l *Line) Send() bool { return l.send }

// IsPrompt reports the prompt flag.
func (l *Line) IsPrompt() bool { return l.isPrompt }

// Preamble reports whether the proxy marker applies at format time.
func (l *Line) Preamble() bool { return l.preamble }

// Prelogin reports whether the line may be delivered before client auth.
func (l *Line) Prelogin() bool { return l.prelogin }

// HadLineEndings reports whether the raw input carried line endings.
func (l *Line) HadLineEndings() bool { return l.hadLineEndings }

// WasSent reports whether the line has been handed to a socket queue.
func (l *Line) WasSent() bool { return l.wasSent }

// Color returns the color-code prefix applied at format time.
func (l *Line) Color() string { return l.color }

// Locked reports whether the line is frozen.
func (l *Line) Locked() bool { return l.locked }

// Updates returns the line's update log.
func (l *Line) Updates() *UpdateLog { return &l.updates }

func (l *Line) reject(field, actor string) error {
	l.updates.Append(UpdateRejected, "mutation of locked record: "+field, actor, nil)
	return ErrRecordLocked(l.id.String(), field)
}

// SetText replaces the payload. On a locked line the attempt is logged
// and rejected without a state change.
func (l *Line) SetText(text, actor string) error {
	if l.locked {
		return l.reject("text", actor)
	}
	if text == l.text {
		return nil
	}
	old := l.text
	l.text = text
	l.updates.Append(UpdateModify, "text", actor, map[string]any{"from": old, "to": text})
	return nil
}

// SetSend sets or clears the delivery flag.
func (l *Line) SetSend(flag bool, actor string) error {
	if l.locked {
		return l.reject("send", actor)
	}
	if flag == l.send {
		return nil
	}
	l.send = flag
	kind := UpdateSetFlag
	if !flag {
		kind = UpdateDrop
	}
	l.updates.Append(kind, "send", actor, map[string]any{"to": flag})
	return nil
}

// SetPrompt sets the prompt flag.
func (l *Line) SetPrompt(flag bool, actor string) error {
	if l.locked {
		return l.reject("is_prompt", actor)
	}
	l.isPrompt = flag
	l.updates.Append(UpdateSetFlag, "is_prompt", actor, map[string]any{"to": flag})
	return nil
}

// SetPreamble sets whether the proxy marker applies at format time.
func (l *Line) SetPreamble(flag bool, actor string) error {
	if l.locked {
		return l.reject("preamble", actor)
	}
	l.preamble = flag
	l.updates.Append(UpdateSetFlag, "preamble", actor, map[string]any{"to": flag})
	return nil
}

// SetPrelogin sets whether the line may be delivered before client auth.
func (l *Line) SetPrelogin(flag bool, actor string) error {
	if l.locked {
		return l.reject("prelogin", actor)
	}
	l.prelogin = flag
	l.updates.Append(UpdateSetFlag, "prelogin", actor, map[string]any{"to": flag})
	return nil
}

// SetColor sets the color-code prefix applied at format time.
func (l *Line) SetColor(code, actor string) error {
	if l.locked {
		return l.reject("color", actor)
	}
	l.color = code
	l.updates.Append(UpdateSetFlag, "color", actor, map[string]any{"to": code})
	return nil
}

// MarkSent records that the line was handed to a socket queue. It is the
// one mutation permitted on a locked line.
func (l *Line) MarkSent(actor string) {
	l.wasSent = true
	l.updates.Append(UpdateSend, "handed to outbound queue", actor, nil)
}

// Lock freezes the line. Locking is idempotent.
func (l *Line) Lock(actor string) {
	if l.locked {
		return
	}
	l.locked = true
	l.updates.Append(UpdateLock, "locked", actor, nil)
}

// FormatOptions control Format.
type FormatOptions struct {
	// Preamble requests the proxy marker on internal lines. It is ANDed
	// with the line's own preamble flag.
	Preamble      bool
	PreambleText  string
	PreambleColor string
	// Color is a color-code prefix applied to the whole line. The line's
	// own color takes precedence when set.
	Color string
	// Separator is the command separator; doubled separators in client
	// lines collapse to one.
	Separator string
}

// Format computes the bytes to put on the wire. It does not mutate the
// payload, so formatting a locked line yields the same bytes as
// formatting it unlocked.
func (l *Line) Format(opts FormatOptions) string {
	if !l.IsIO() {
		return l.text
	}
	out := l.text
	if l.Internal() {
		if opts.Preamble && l.preamble {
			out = opts.PreambleColor + opts.PreambleText + "@w: " + out
		}
	} else if l.FromClient() && opts.Separator != "" {
		doubled := opts.Separator + opts.Separator
		for strings.Contains(out, doubled) {
			out = strings.ReplaceAll(out, doubled, opts.Separator)
		}
	}
	code := l.color
	if code == "" {
		code = opts.Color
	}
	if code != "" && out != "" {
		out = code + out + "@w"
	}
	out = color.ToANSI(out)
	// Prompts terminate with IAC GA on the wire, never a line ending.
	if !l.isPrompt && !strings.HasSuffix(out, "\n") {
		out += "\r\n"
	}
	l.updates.Append(UpdateFormat, "formatted", "", nil)
	return out
}
