// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package proxy owns the network shims and the dispatcher goroutine the
// whole extension fabric runs on. The read loops only parse bytes; every
// touch of the bus, registries, or pipeline is a task submitted here.
package proxy

import (
	"context"
	"log/slog"
	"time"
)

// DefaultQueueSize bounds the dispatcher's task backlog.
const DefaultQueueSize = 1024

// drainTimeout bounds how long shutdown waits for queued tasks.
const drainTimeout = time.Second

// Dispatcher serializes fabric work onto one goroutine.
type Dispatcher struct {
	tasks chan func()
	log   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQueueSize overrides the task backlog bound.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.tasks = make(chan func(), n)
		}
	}
}

// WithDispatcherLogger overrides the dispatcher's logger.
func WithDispatcherLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher creates a stopped dispatcher; Run starts it.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		tasks: make(chan func(), DefaultQueueSize),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes tasks until the context ends, then drains the backlog for
// at most one second.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case task := <-d.tasks:
			task()
		}
	}
}

func (d *Dispatcher) drain() {
	deadline := time.After(drainTimeout)
	for {
		select {
		case task := <-d.tasks:
			task()
		case <-deadline:
			if n := len(d.tasks); n > 0 {
				d.log.Warn("dispatcher drain timed out", "dropped", n)
			}
			return
		default:
			return
		}
	}
}

// Submit enqueues a task. It blocks when the backlog is full, which
// back-pressures the read loops.
func (d *Dispatcher) Submit(task func()) {
	d.tasks <- task
}

// Call runs a task on the dispatcher and waits for it.
func (d *Dispatcher) Call(task func()) {
	done := make(chan struct{})
	d.tasks <- func() {
		defer close(done)
		task()
	}
	<-done
}
