// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package record

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// Container groups an ordered list of lines sharing one origin, used by
// event payloads that carry multi-line data. The container has its own
// update log and lock, independent of its lines.
type Container struct {
	id      ulid.ULID
	origin  Origin
	lines   []*Line
	locked  bool
	updates UpdateLog
}

// NewContainer creates a container. Items may be *Line, string, or
// []byte; strings and byte slices are coerced to io lines with the
// container's origin.
func NewContainer(origin Origin, items ...any) (*Container, error) {
	c := &Container{
		id:     NewULID(),
		origin: origin,
	}
	c.updates.Append(UpdateInfo, "created", string(origin), nil)
	for _, item := range items {
		line, err := c.coerce(item)
		if err != nil {
			return nil, err
		}
		c.lines = append(c.lines, line)
	}
	return c, nil
}

func (c *Container) coerce(item any) (*Line, error) {
	switch v := item.(type) {
	case *Line:
		return v, nil
	case string:
		return New(v, c.origin, KindIO), nil
	case []byte:
		return New(string(v), c.origin, KindIO), nil
	default:
		return nil, ErrBadItem(fmt.Sprintf("%T", item))
	}
}

// ID returns the container's creation id.
func (c *Container) ID() ulid.ULID { return c.id }

// Origin returns the container's origin.
func (c *Container) Origin() Origin { return c.origin }

// Len returns the number of lines.
func (c *Container) Len() int { return len(c.lines) }

// Line returns the line at index i, or nil when out of range.
func (c *Container) Line(i int) *Line {
	if i < 0 || i >= len(c.lines) {
		return nil
	}
	return c.lines[i]
}

// Lines returns a copy of the line list.
func (c *Container) Lines() []*Line {
	out := make([]*Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Locked reports whether the container's membership is frozen.
func (c *Container) Locked() bool { return c.locked }

// Updates returns the container's update log.
func (c *Container) Updates() *UpdateLog { return &c.updates }

func (c *Container) reject(action, actor string) error {
	c.updates.Append(UpdateRejected, "mutation of locked container: "+action, actor, nil)
	return ErrRecordLocked(c.id.String(), action)
}

// Append adds items to the end of the container.
func (c *Container) Append(actor string, items ...any) error {
	if c.locked {
		return c.reject("append", actor)
	}
	for _, item := range items {
		line, err := c.coerce(item)
		if err != nil {
			return err
		}
		c.lines = append(c.lines, line)
		c.updates.Append(UpdateModify, "append", actor, map[string]any{"line_id": line.ID().String()})
	}
	return nil
}

// Insert adds an item at index i, shifting later lines right. An index
// at or past the end appends.
func (c *Container) Insert(i int, item any, actor string) error {
	if c.locked {
		return c.reject("insert", actor)
	}
	line, err := c.coerce(item)
	if err != nil {
		return err
	}
	if i < 0 {
		i = 0
	}
	if i >= len(c.lines) {
		c.lines = append(c.lines, line)
	} else {
		c.lines = append(c.lines[:i], append([]*Line{line}, c.lines[i:]...)...)
	}
	c.updates.Append(UpdateModify, "insert", actor, map[string]any{"index": i, "line_id": line.ID().String()})
	return nil
}

// Replace swaps the line at index i for a new item.
func (c *Container) Replace(i int, item any, actor string) error {
	if c.locked {
		return c.reject("replace", actor)
	}
	if i < 0 || i >= len(c.lines) {
		return ErrBadItem(fmt.Sprintf("index %d out of range", i))
	}
	line, err := c.coerce(item)
	if err != nil {
		return err
	}
	old := c.lines[i]
	c.lines[i] = line
	c.updates.Append(UpdateModify, "replace", actor, map[string]any{
		"index":   i,
		"old_id":  old.ID().String(),
		"line_id": line.ID().String(),
	})
	return nil
}

// Lock freezes the container's membership. The lines themselves are not
// locked; callers lock them individually when needed.
func (c *Container) Lock(actor string) {
	if c.locked {
		return
	}
	c.locked = true
	c.updates.Append(UpdateLock, "locked", actor, nil)
}
