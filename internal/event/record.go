// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package event

import (
	"github.com/oklog/ulid/v2"

	"github.com/prismmud/prism/internal/record"
)

// DataRecord is the keyed container handed to callbacks during a raise.
// Callbacks read and write keys whose meaning is declared by the event's
// arg schema.
type DataRecord struct {
	id   ulid.ULID
	data map[string]any
}

// NewDataRecord builds a data record from args. A nil args map yields an
// empty record.
func NewDataRecord(args map[string]any) *DataRecord {
	data := make(map[string]any, len(args))
	for k, v := range args {
		data[k] = v
	}
	return &DataRecord{id: record.NewULID(), data: data}
}

// ID returns the record's creation id.
func (r *DataRecord) ID() ulid.ULID { return r.id }

// Get returns the value at key and whether it was present.
func (r *DataRecord) Get(key string) (any, bool) {
	v, ok := r.data[key]
	return v, ok
}

// GetString returns the string at key, or "" when absent or not a string.
func (r *DataRecord) GetString(key string) string {
	s, _ := r.data[key].(string)
	return s
}

// Line returns the *record.Line at key, or nil.
func (r *DataRecord) Line(key string) *record.Line {
	l, _ := r.data[key].(*record.Line)
	return l
}

// Set stores a value at key.
func (r *DataRecord) Set(key string, value any) {
	r.data[key] = value
}

// Has reports whether key is present.
func (r *DataRecord) Has(key string) bool {
	_, ok := r.data[key]
	return ok
}

// Keys returns the record's keys in no particular order.
func (r *DataRecord) Keys() []string {
	out := make([]string, 0, len(r.data))
	for k := range r.data {
		out = append(out, k)
	}
	return out
}
