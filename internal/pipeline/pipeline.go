// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package pipeline moves line containers between the mud socket, the
// client sockets, and the plugin layer. Process stages raise the modify
// events that let plugins rewrite or suppress lines; Send stages lock,
// format, deliver, and raise the observation events.
package pipeline

import (
	"log/slog"
	"strings"

	"github.com/prismmud/prism/internal/event"
	"github.com/prismmud/prism/internal/record"
)

// Events raised by the pipeline stages.
const (
	EventToMudModify    = "ev_to_mud_data_modify"
	EventToMudRead      = "ev_to_mud_data_read"
	EventToClientModify = "ev_to_client_data_modify"
	EventToClientRead   = "ev_to_client_data_read"
)

// DefaultSeparator splits one client line into several mud commands.
const DefaultSeparator = "|"

// CommandDispatchPriority runs command dispatch ahead of default-priority
// callbacks on the to-mud modify event, so those callbacks observe
// command lines with the send flag already cleared.
const CommandDispatchPriority = 10

// Recipient is one deliverable client endpoint as the pipeline sees it.
type Recipient struct {
	ID       string
	LoggedIn bool
	ViewOnly bool
	Deliver  func(text string)
}

// SendOptions narrow the recipient set of a client-bound send.
type SendOptions struct {
	// Include restricts delivery to these client ids; empty means all.
	Include []string
	Exclude []string
}

// InternalOptions shape proxy-generated messages.
type InternalOptions struct {
	// NoPreamble drops the proxy marker.
	NoPreamble bool
	// Prelogin makes the lines deliverable to unauthenticated clients.
	Prelogin bool
	// Color is a color-code prefix applied at format time.
	Color string
	Send  SendOptions
}

// Pipeline owns the four processing stages. The separator and format
// sources are functions so they track live settings.
type Pipeline struct {
	bus   *event.Bus
	actor string
	log   *slog.Logger

	separator func() string
	format    func() record.FormatOptions
	toMud     func(text string)
	clients   func() []Recipient
	sentHook  func(direction string, lines int)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSeparator supplies the live command separator.
func WithSeparator(fn func() string) Option {
	return func(p *Pipeline) { p.separator = fn }
}

// WithFormat supplies the live line format options.
func WithFormat(fn func() record.FormatOptions) Option {
	return func(p *Pipeline) { p.format = fn }
}

// WithMudSink sets the upstream outbound queue.
func WithMudSink(fn func(text string)) Option {
	return func(p *Pipeline) { p.toMud = fn }
}

// WithClients supplies the current recipient set.
func WithClients(fn func() []Recipient) Option {
	return func(p *Pipeline) { p.clients = fn }
}

// WithSentHook installs a per-stage delivery counter, for metrics.
func WithSentHook(fn func(direction string, lines int)) Option {
	return func(p *Pipeline) { p.sentHook = fn }
}

// WithLogger overrides the pipeline's logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// New creates a pipeline and registers its four boundary events under
// the actor id.
func New(bus *event.Bus, actor string, opts ...Option) *Pipeline {
	p := &Pipeline{
		bus:       bus,
		actor:     actor,
		log:       slog.Default(),
		separator: func() string { return DefaultSeparator },
		format:    func() record.FormatOptions { return record.FormatOptions{} },
		toMud:     func(string) {},
		clients:   func() []Recipient { return nil },
	}
	for _, opt := range opts {
		opt(p)
	}
	events := []struct {
		name, desc string
		args       map[string]string
	}{
		{EventToMudModify, "a client line is about to go to the mud",
			map[string]string{"line": "the line record", "client_id": "the issuing client"}},
		{EventToMudRead, "lines were sent to the mud",
			map[string]string{"line": "the sent container"}},
		{EventToClientModify, "a mud line is about to go to clients",
			map[string]string{"line": "the line record"}},
		{EventToClientRead, "lines were sent to clients",
			map[string]string{"line": "the sent container"}},
	}
	for _, ev := range events {
		if err := bus.Register(ev.name, actor, ev.desc, ev.args); err != nil {
			p.log.Warn("registering pipeline event", "event", ev.name, "error", err)
		}
	}
	return p
}

// ProcessClientToMud splits client lines on the command separator,
// raises the to-mud modify event once per line carrying the issuing
// client's id, and invokes the send stage with the possibly-mutated
// container. Command dispatch happens on that event, not before it.
func (p *Pipeline) ProcessClientToMud(c *record.Container, clientID string) error {
	c = p.splitSeparator(c)
	p.raiseModify(EventToMudModify, map[string]any{"client_id": clientID},
		selectLines(c, func(ln *record.Line) bool {
			return ln.FromClient() && ln.IsIO()
		}))
	return p.SendClientToMud(c)
}

// CommandHandler consumes one command line addressed to the proxy. It
// reports whether the line was a command.
type CommandHandler interface {
	Handle(text, clientID string) bool
}

// RegisterCommandDispatch wires a command handler into the to-mud modify
// event. A line the handler consumes is marked not-to-send so it never
// reaches the mud; later callbacks on the event still observe it.
func (p *Pipeline) RegisterCommandDispatch(h CommandHandler) error {
	_, err := p.bus.RegisterCallback(EventToMudModify, event.Callback{
		Name:  "dispatch_commands",
		Owner: p.actor,
		Fn: func(data *event.DataRecord) error {
			ln := data.Line("line")
			if ln == nil || !ln.Send() {
				return nil
			}
			if !h.Handle(ln.Text(), data.GetString("client_id")) {
				return nil
			}
			return ln.SetSend(false, p.actor)
		},
	}, CommandDispatchPriority)
	return err
}

// SendClientToMud locks the container, formats and delivers each
// still-sendable line to the mud queue, and raises the observation
// event.
func (p *Pipeline) SendClientToMud(c *record.Container) error {
	c.Lock(p.actor)
	fopts := p.formatOptions()
	sent := 0
	for _, ln := range c.Lines() {
		if !ln.Send() {
			continue
		}
		out := ln.Format(fopts)
		ln.Lock(p.actor)
		p.toMud(out)
		ln.MarkSent(p.actor)
		sent++
	}
	if p.sentHook != nil {
		p.sentHook("mud", sent)
	}
	_, err := p.bus.Raise(EventToMudRead, map[string]any{"record": c}, p.actor)
	return err
}

// ProcessMudToClient raises the to-client modify event once per mud io
// line and invokes the send stage.
func (p *Pipeline) ProcessMudToClient(c *record.Container, opts SendOptions) error {
	p.raiseModify(EventToClientModify, nil, selectLines(c, func(ln *record.Line) bool {
		return ln.FromMud() && ln.IsIO()
	}))
	return p.SendMudToClient(c, opts)
}

// SendMudToClient locks the container and delivers each still-sendable
// line to every eligible recipient: not excluded, not view-only for
// internal lines, and logged in unless the line carries prelogin.
func (p *Pipeline) SendMudToClient(c *record.Container, opts SendOptions) error {
	c.Lock(p.actor)
	fopts := p.formatOptions()
	recipients := p.clients()
	sent := 0
	for _, ln := range c.Lines() {
		if !ln.Send() {
			continue
		}
		out := ln.Format(fopts)
		ln.Lock(p.actor)
		delivered := false
		for _, r := range recipients {
			if !eligible(ln, r, opts) {
				continue
			}
			r.Deliver(out)
			delivered = true
		}
		if delivered {
			ln.MarkSent(p.actor)
			sent++
		}
	}
	if p.sentHook != nil {
		p.sentHook("client", sent)
	}
	_, err := p.bus.Raise(EventToClientRead, map[string]any{"record": c}, p.actor)
	return err
}

// SendInternal delivers proxy-generated lines to clients, bypassing the
// modification events.
func (p *Pipeline) SendInternal(messages []string, opts InternalOptions) error {
	c, err := record.NewContainer(record.OriginInternal)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		ln := record.New(msg, record.OriginInternal, record.KindIO)
		if !opts.NoPreamble {
			_ = ln.SetPreamble(true, p.actor)
		}
		if opts.Prelogin {
			_ = ln.SetPrelogin(true, p.actor)
		}
		if opts.Color != "" {
			_ = ln.SetColor(opts.Color, p.actor)
		}
		if err := c.Append(p.actor, ln); err != nil {
			return err
		}
	}
	return p.SendMudToClient(c, opts.Send)
}

func eligible(ln *record.Line, r Recipient, opts SendOptions) bool {
	if len(opts.Include) > 0 && !containsID(opts.Include, r.ID) {
		return false
	}
	if containsID(opts.Exclude, r.ID) {
		return false
	}
	if ln.Internal() && r.ViewOnly {
		return false
	}
	if !r.LoggedIn && !ln.Prelogin() {
		return false
	}
	return true
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// splitSeparator turns one client line holding the separator into
// several lines, one mud command each. Doubled separators are an
// escape and do not split.
func (p *Pipeline) splitSeparator(c *record.Container) *record.Container {
	sep := p.separator()
	if sep == "" {
		return c
	}
	needsSplit := false
	for _, ln := range c.Lines() {
		if ln.FromClient() && ln.IsIO() && countSingle(ln.Text(), sep) > 0 {
			needsSplit = true
			break
		}
	}
	if !needsSplit {
		return c
	}
	out, err := record.NewContainer(c.Origin())
	if err != nil {
		return c
	}
	for _, ln := range c.Lines() {
		if !ln.FromClient() || !ln.IsIO() || countSingle(ln.Text(), sep) == 0 {
			if appendErr := out.Append(p.actor, ln); appendErr != nil {
				p.log.Warn("rebuilding container", "error", appendErr)
			}
			continue
		}
		for _, part := range splitSingle(ln.Text(), sep) {
			if appendErr := out.Append(p.actor, record.New(part, ln.Origin(), ln.Kind())); appendErr != nil {
				p.log.Warn("splitting line", "error", appendErr)
			}
		}
	}
	return out
}

// countSingle counts separator occurrences that are not doubled.
func countSingle(s, sep string) int {
	n := 0
	for _, part := range strings.Split(s, sep+sep) {
		n += strings.Count(part, sep)
	}
	return n
}

// splitSingle splits on single separators, leaving doubled ones intact
// for format-time collapsing.
func splitSingle(s, sep string) []string {
	escaped := strings.Split(s, sep+sep)
	var out []string
	for i, chunk := range escaped {
		parts := strings.Split(chunk, sep)
		if i == 0 || len(out) == 0 {
			out = append(out, parts...)
			continue
		}
		// Rejoin across the escaped separator.
		out[len(out)-1] += sep + sep + parts[0]
		out = append(out, parts[1:]...)
	}
	return out
}

func (p *Pipeline) formatOptions() record.FormatOptions {
	fopts := p.format()
	if fopts.Separator == "" {
		fopts.Separator = p.separator()
	}
	return fopts
}

// raiseModify dispatches a modify event once per line so each callback
// sees exactly one line in its current-event record.
func (p *Pipeline) raiseModify(name string, args map[string]any, lines []*record.Line) {
	if len(lines) == 0 {
		return
	}
	list := make([]any, len(lines))
	for i, ln := range lines {
		list[i] = ln
	}
	if _, err := p.bus.Raise(name, args, p.actor, event.WithDataList(list, "line")); err != nil {
		p.log.Warn("raising modify event", "event", name, "error", err)
	}
}

func selectLines(c *record.Container, keep func(*record.Line) bool) []*record.Line {
	var out []*record.Line
	for _, ln := range c.Lines() {
		if keep(ln) {
			out = append(out, ln)
		}
	}
	return out
}
