// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContainerCoercesItems(t *testing.T) {
	line := New("three", OriginMud, KindIO)
	c, err := NewContainer(OriginMud, "one", []byte("two"), line)
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())
	assert.Equal(t, "one", c.Line(0).Text())
	assert.Equal(t, OriginMud, c.Line(0).Origin())
	assert.Equal(t, "two", c.Line(1).Text())
	assert.Same(t, line, c.Line(2))
}

func TestNewContainerRejectsBadItem(t *testing.T) {
	_, err := NewContainer(OriginMud, 42)
	require.Error(t, err)
}

func TestContainerAppendInsertReplace(t *testing.T) {
	c, err := NewContainer(OriginClient, "a", "c")
	require.NoError(t, err)

	require.NoError(t, c.Insert(1, "b", "test"))
	require.NoError(t, c.Append("test", "d"))
	require.NoError(t, c.Replace(0, "A", "test"))

	var texts []string
	for _, l := range c.Lines() {
		texts = append(texts, l.Text())
	}
	assert.Equal(t, []string{"A", "b", "c", "d"}, texts)
}

func TestContainerReplaceOutOfRange(t *testing.T) {
	c, err := NewContainer(OriginClient, "a")
	require.NoError(t, err)
	assert.Error(t, c.Replace(5, "x", "test"))
}

func TestLockedContainerRejectsMutation(t *testing.T) {
	c, err := NewContainer(OriginMud, "a")
	require.NoError(t, err)
	c.Lock("pipeline")

	require.Error(t, c.Append("rogue", "b"))
	require.Error(t, c.Insert(0, "b", "rogue"))
	require.Error(t, c.Replace(0, "b", "rogue"))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "a", c.Line(0).Text())

	// Lines stay individually mutable after the container locks.
	assert.NoError(t, c.Line(0).SetText("still editable", "plugin"))
}

func TestContainerLinesReturnsCopy(t *testing.T) {
	c, err := NewContainer(OriginMud, "a", "b")
	require.NoError(t, err)
	lines := c.Lines()
	lines[0] = nil
	assert.NotNil(t, c.Line(0))
}

func TestContainerLineOutOfRange(t *testing.T) {
	c, err := NewContainer(OriginMud)
	require.NoError(t, err)
	assert.Nil(t, c.Line(0))
	assert.Nil(t, c.Line(-1))
}
