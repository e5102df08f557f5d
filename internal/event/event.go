// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package event implements the priority-ordered, synchronously dispatched
// publish/subscribe bus at the center of the proxy. Raises are strictly
// synchronous: the raiser does not progress until every callback at every
// priority has run.
package event

import (
	"sort"
	"time"

	"github.com/gammazero/deque"
)

// Callback is one subscriber. Go functions are not comparable, so a
// callback is identified by Owner plus Name; registration is idempotent
// per (event, owner, name).
type Callback struct {
	// Name labels the callback within its owner, usually the handler
	// function's name.
	Name string
	// Owner is the plugin id the callback belongs to. All of an owner's
	// callbacks are removed together at unload.
	Owner string
	Fn    func(*DataRecord) error
}

func (c Callback) key() string { return c.Owner + "|" + c.Name }

// registration is a callback plus its per-bus accounting.
type registration struct {
	cb        Callback
	priority  int
	callCount int
}

// Definition is one registered event: its metadata, its priority buckets,
// and a bounded ring of past invocations.
type Definition struct {
	name        string
	creator     string
	description string
	argSchema   map[string]string

	buckets    map[int][]*registration
	raiseCount int
	history    deque.Deque[*Invocation]
}

func newDefinition(name, creator, description string, argSchema map[string]string) *Definition {
	return &Definition{
		name:        name,
		creator:     creator,
		description: description,
		argSchema:   argSchema,
		buckets:     make(map[int][]*registration),
	}
}

// priorities returns the bucket keys in ascending order.
func (d *Definition) priorities() []int {
	out := make([]int, 0, len(d.buckets))
	for p := range d.buckets {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func (d *Definition) find(key string) *registration {
	for _, bucket := range d.buckets {
		for _, reg := range bucket {
			if reg.cb.key() == key {
				return reg
			}
		}
	}
	return nil
}

func (d *Definition) add(cb Callback, priority int) bool {
	if d.find(cb.key()) != nil {
		return false
	}
	d.buckets[priority] = append(d.buckets[priority], &registration{cb: cb, priority: priority})
	return true
}

func (d *Definition) remove(key string) bool {
	for p, bucket := range d.buckets {
		for i, reg := range bucket {
			if reg.cb.key() == key {
				d.buckets[p] = append(bucket[:i], bucket[i+1:]...)
				if len(d.buckets[p]) == 0 {
					delete(d.buckets, p)
				}
				return true
			}
		}
	}
	return false
}

func (d *Definition) removeOwner(owner string) int {
	removed := 0
	for p, bucket := range d.buckets {
		kept := bucket[:0]
		for _, reg := range bucket {
			if reg.cb.Owner == owner {
				removed++
				continue
			}
			kept = append(kept, reg)
		}
		if len(kept) == 0 {
			delete(d.buckets, p)
		} else {
			d.buckets[p] = kept
		}
	}
	return removed
}

func (d *Definition) callbackCount() int {
	n := 0
	for _, bucket := range d.buckets {
		n += len(bucket)
	}
	return n
}

// Invocation is one raise in progress (or completed, once in history).
type Invocation struct {
	EventName string
	Data      *DataRecord
	Actor     string
	Start     time.Time
	// Passes counts scan iterations over the priority buckets; more than
	// two means callbacks were registered during dispatch.
	Passes int
	// Current names the callback executing right now, empty between
	// callbacks and after completion.
	Current string

	executed map[string]bool
}

// Registration describes one callback for introspection.
type Registration struct {
	Priority int
	Owner    string
	Name     string
	Calls    int
}

// Detail is an event snapshot for introspection surfaces.
type Detail struct {
	Name          string
	Creator       string
	Description   string
	ArgSchema     map[string]string
	RaiseCount    int
	Registrations []Registration
	HistoryLen    int
}
