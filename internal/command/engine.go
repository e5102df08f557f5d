// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package command implements the proxy command engine: prefix parsing,
// fuzzy plugin and command resolution, declarative argument specs, and
// the bounded command history with rerun-by-offset.
package command

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gammazero/deque"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("prism/command")

// DefaultHistorySize bounds the command history ring.
const DefaultHistorySize = 50

// DefaultPrefix marks a client line as a proxy command.
const DefaultPrefix = "#bp"

// Invocation carries one command execution into its function.
type Invocation struct {
	Plugin   string
	Name     string
	Args     map[string]any
	ClientID string
	Raw      string
}

// Func is a command implementation. It returns success and the message
// lines to deliver to the originating client.
type Func func(inv *Invocation) (bool, []string)

// Spec declares one command.
type Spec struct {
	Plugin string
	Name   string
	Help   string
	Group  string
	Args   []Arg
	// HideFromHistory keeps the command out of the rerun ring.
	HideFromHistory bool
	// NoFormat delivers the output without color conversion.
	NoFormat bool
	// NoPreamble delivers the output without the proxy marker.
	NoPreamble bool
	Fn         Func
}

// Response is the output of one command execution, addressed to the
// originating client.
type Response struct {
	ClientID string
	Messages []string
	Format   bool
	Preamble bool
}

// Engine owns the command table and dispatches prefixed client lines.
type Engine struct {
	mu          sync.RWMutex
	commands    map[string]map[string]*Spec
	history     deque.Deque[string]
	historySize int
	prefix      func() string
	respond     func(Response)
	runHook     func(plugin, name string)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHistorySize overrides the history ring size.
func WithHistorySize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.historySize = n
		}
	}
}

// WithRunHook installs a hook called once per dispatched command, for
// metrics.
func WithRunHook(fn func(plugin, name string)) EngineOption {
	return func(e *Engine) { e.runHook = fn }
}

// NewEngine creates a command engine. prefix supplies the live command
// prefix (it tracks the command_prefix setting); respond delivers
// output back to the originating client.
func NewEngine(prefix func() string, respond func(Response), opts ...EngineOption) *Engine {
	e := &Engine{
		commands:    make(map[string]map[string]*Spec),
		historySize: DefaultHistorySize,
		prefix:      prefix,
		respond:     respond,
	}
	if e.prefix == nil {
		e.prefix = func() string { return DefaultPrefix }
	}
	if e.respond == nil {
		e.respond = func(Response) {}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Add registers a command under its plugin id.
func (e *Engine) Add(spec Spec) error {
	if spec.Fn == nil {
		return ErrInvalidArgs(spec.Plugin, spec.Name, "", nil)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	table, ok := e.commands[spec.Plugin]
	if !ok {
		table = make(map[string]*Spec)
		e.commands[spec.Plugin] = table
	}
	if _, exists := table[spec.Name]; exists {
		return ErrDuplicateCommand(spec.Plugin, spec.Name)
	}
	table[spec.Name] = &spec
	return nil
}

// Remove drops one command.
func (e *Engine) Remove(plugin, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	table, ok := e.commands[plugin]
	if !ok {
		return ErrUnknownCommand(plugin, name, "")
	}
	if _, exists := table[name]; !exists {
		return ErrUnknownCommand(plugin, name, "")
	}
	delete(table, name)
	if len(table) == 0 {
		delete(e.commands, plugin)
	}
	return nil
}

// RemoveOwner drops every command registered by a plugin id, returning
// the number removed. Called at plugin unload.
func (e *Engine) RemoveOwner(plugin string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.commands[plugin])
	delete(e.commands, plugin)
	return n
}

// Plugins returns the ids with registered commands, sorted.
func (e *Engine) Plugins() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.commands))
	for id := range e.commands {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// List returns a plugin's command specs sorted by name.
func (e *Engine) List(plugin string) []Spec {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Spec, 0, len(e.commands[plugin]))
	for _, spec := range e.commands[plugin] {
		out = append(out, *spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Detail returns one command spec.
func (e *Engine) Detail(plugin, name string) (*Spec, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	spec, ok := e.commands[plugin][name]
	if !ok {
		return nil, ErrUnknownCommand(plugin, name, "")
	}
	out := *spec
	return &out, nil
}

// Usage renders the usage line for one command.
func (e *Engine) Usage(spec *Spec) string {
	return usage(e.prefix(), spec.Plugin, spec.Name, spec.Args)
}

// History returns the rerun ring, oldest first.
func (e *Engine) History() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, e.history.Len())
	for i := range out {
		out[i] = e.history.At(i)
	}
	return out
}

// ClearHistory empties the rerun ring.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Clear()
}

func (e *Engine) appendHistory(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.PushBack(text)
	for e.history.Len() > e.historySize {
		e.history.PopFront()
	}
}

// historyAt returns the entry at a negative offset: -1 is the most
// recent, -2 the one before it.
func (e *Engine) historyAt(offset int) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx := e.history.Len() + offset
	if offset >= 0 || idx < 0 {
		return "", ErrEmptyHistory(offset)
	}
	return e.history.At(idx), nil
}

// IsCommand reports whether a client line carries the command prefix.
func (e *Engine) IsCommand(text string) bool {
	return strings.HasPrefix(text, e.prefix())
}

// Handle dispatches one prefixed client line and reports whether the
// line was consumed as a command. Errors surface to the client through
// the respond callback, never to the mud.
func (e *Engine) Handle(text, clientID string) bool {
	prefix := e.prefix()
	if !strings.HasPrefix(text, prefix) {
		return false
	}
	e.run(text, clientID, true)
	return true
}

func (e *Engine) run(text, clientID string, record bool) {
	prefix := e.prefix()
	rest := strings.TrimPrefix(text, prefix)
	if !strings.HasPrefix(rest, ".") {
		e.respond(Response{
			ClientID: clientID,
			Messages: []string{"commands look like " + prefix + ".<plugin>.<command>"},
			Format:   true,
			Preamble: true,
		})
		return
	}
	head, argstr, _ := strings.Cut(rest[1:], " ")

	if head == "!" {
		e.rerun(strings.TrimSpace(argstr), clientID)
		return
	}

	path := strings.Split(head, ".")
	identifier := strings.Join(path[:max(len(path)-1, 0)], ".")
	name := path[len(path)-1]
	if len(path) == 1 {
		// A bare plugin identifier shows that plugin's help.
		identifier = path[0]
		name = "help"
	}

	_, span := tracer.Start(context.Background(), "command.execute",
		trace.WithAttributes(
			attribute.String("command.input", head),
			attribute.String("client.id", clientID),
		),
	)
	defer span.End()

	fail := func(err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Debug("command dispatch failed",
			"input", head,
			"client_id", clientID,
			"error", err)
		e.respond(Response{
			ClientID: clientID,
			Messages: []string{ClientMessage(err)},
			Format:   true,
			Preamble: true,
		})
	}

	plugin, err := e.resolvePlugin(identifier)
	if err != nil {
		fail(err)
		return
	}
	spec, err := e.resolveCommand(plugin, name)
	if err != nil {
		fail(err)
		return
	}
	span.SetAttributes(
		attribute.String("command.plugin", plugin),
		attribute.String("command.name", spec.Name),
	)

	args, err := parseArgs(spec.Args, argstr)
	if err != nil {
		fail(ErrInvalidArgs(plugin, spec.Name, e.Usage(spec), err))
		return
	}

	if e.runHook != nil {
		e.runHook(plugin, spec.Name)
	}
	success, messages := spec.Fn(&Invocation{
		Plugin:   plugin,
		Name:     spec.Name,
		Args:     args,
		ClientID: clientID,
		Raw:      text,
	})
	if !success && len(messages) == 0 {
		messages = []string{spec.Plugin + "." + spec.Name + " failed"}
	}
	if len(messages) > 0 {
		e.respond(Response{
			ClientID: clientID,
			Messages: messages,
			Format:   !spec.NoFormat,
			Preamble: !spec.NoPreamble,
		})
	}
	if record && !spec.HideFromHistory {
		e.appendHistory(text)
	}
}

// rerun executes a history entry: bare "!" is the most recent command,
// "! -2" the one before it.
func (e *Engine) rerun(argstr, clientID string) {
	offset := -1
	if argstr != "" {
		n, err := strconv.Atoi(argstr)
		if err != nil || n >= 0 {
			e.respond(Response{
				ClientID: clientID,
				Messages: []string{"rerun offset must be a negative number, like -2"},
				Format:   true,
				Preamble: true,
			})
			return
		}
		offset = n
	}
	entry, err := e.historyAt(offset)
	if err != nil {
		e.respond(Response{
			ClientID: clientID,
			Messages: []string{ClientMessage(err)},
			Format:   true,
			Preamble: true,
		})
		return
	}
	e.run(entry, clientID, false)
}
