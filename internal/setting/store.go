// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package setting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Store is the persistence interface the settings registry requires.
// One store exists per plugin; the on-disk format belongs to the store.
type Store interface {
	Get(key string) (any, bool)
	Put(key string, value any)
	Delete(key string)
	Iterate(fn func(key string, value any) bool)
	Flush() error
}

// FileStore persists a keyed container as one yaml file. Writes go to a
// temp file and rename into place.
type FileStore struct {
	path string
	data map[string]any
}

// NewFileStore opens or creates a file-backed store at path. A missing
// file yields an empty store; a malformed file is an error.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, data: make(map[string]any)}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	if s.data == nil {
		s.data = make(map[string]any)
	}
	return s, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Get returns the value at key and whether it was present.
func (s *FileStore) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Put stores a value at key. The change reaches disk at the next Flush.
func (s *FileStore) Put(key string, value any) {
	s.data[key] = value
}

// Delete removes a key.
func (s *FileStore) Delete(key string) {
	delete(s.data, key)
}

// Iterate visits keys in sorted order until fn returns false.
func (s *FileStore) Iterate(fn func(key string, value any) bool) {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn(k, s.data[k]) {
			return
		}
	}
}

// Flush writes the container to disk.
func (s *FileStore) Flush() error {
	raw, err := yaml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("marshal settings for %s: %w", s.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir for %s: %w", s.path, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write settings file %s: %w", s.path, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings file %s: %w", s.path, err)
	}
	return nil
}

// MemStore is an in-memory Store for tests and ephemeral plugins.
type MemStore struct {
	data    map[string]any
	flushes int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]any)}
}

// Get returns the value at key and whether it was present.
func (s *MemStore) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Put stores a value at key.
func (s *MemStore) Put(key string, value any) { s.data[key] = value }

// Delete removes a key.
func (s *MemStore) Delete(key string) { delete(s.data, key) }

// Iterate visits every key until fn returns false.
func (s *MemStore) Iterate(fn func(key string, value any) bool) {
	for k, v := range s.data {
		if !fn(k, v) {
			return
		}
	}
}

// Flush counts flushes and succeeds.
func (s *MemStore) Flush() error {
	s.flushes++
	return nil
}

// Flushes returns how many times Flush ran.
func (s *MemStore) Flushes() int { return s.flushes }
