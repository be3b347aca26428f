// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-transcript/internal/model"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func msg(id, parent string, minute int) model.Message {
	return model.Message{
		ID:    id,
		Role:  model.RoleUser,
		Parts: []model.Part{model.TextPart(id)},
		Metadata: model.Metadata{
			CreatedAt:       epoch.Add(time.Duration(minute) * time.Minute),
			ParentMessageID: parent,
		},
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// history builds:
//
//	root
//	├── A
//	├── B ── b1 ── b2
//	│         └─── b3 (retry, newest)
//	└── C
func history() []model.Message {
	return []model.Message{
		msg("root", "", 0),
		msg("C", "root", 3),
		msg("A", "root", 1),
		msg("B", "root", 2),
		msg("b1", "B", 4),
		msg("b2", "b1", 5),
		msg("b3", "b1", 6),
	}
}

func TestBuild_OrdersByCreation(t *testing.T) {
	tr := Build(history())

	assert.Equal(t, 7, tr.Len())
	assert.Equal(t, []string{"root"}, tr.Roots())
	assert.Equal(t, []string{"A", "B", "C"}, tr.Children("root"))
	assert.Equal(t, []string{"b2", "b3"}, tr.Children("b1"))
}

func TestBuild_TiesKeepInputOrder(t *testing.T) {
	tr := Build([]model.Message{
		msg("p", "", 0),
		msg("y", "p", 1),
		msg("x", "p", 1),
	})
	assert.Equal(t, []string{"y", "x"}, tr.Children("p"))
}

func TestSiblingInfo(t *testing.T) {
	tr := Build(history())

	info, ok := tr.SiblingInfo("B")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "C"}, info.Siblings)
	assert.Equal(t, 1, info.Index)

	info, ok = tr.SiblingInfo("root")
	require.True(t, ok, "roots are siblings under the empty parent")
	assert.Equal(t, 0, info.Index)

	_, ok = tr.SiblingInfo("missing")
	assert.False(t, ok)

	dangling := Build([]model.Message{msg("orphan", "gone", 0)})
	_, ok = dangling.SiblingInfo("orphan")
	assert.False(t, ok, "a parent that is not in the history cannot be resolved")
}

func TestNavigate_Wraparound(t *testing.T) {
	tr := Build(history())

	thread, leaf, ok := tr.Navigate("C", Next)
	require.True(t, ok)
	assert.Equal(t, "A", leaf)
	assert.Equal(t, []string{"root", "A"}, ids(thread))

	_, leaf, ok = tr.Navigate("A", Prev)
	require.True(t, ok)
	assert.Equal(t, "C", leaf)
}

func TestNavigate_RightmostLeaf(t *testing.T) {
	tr := Build(history())

	thread, leaf, ok := tr.Navigate("A", Next)
	require.True(t, ok)
	assert.Equal(t, "b3", leaf, "lands on the newest descendant, not on B itself")
	assert.Equal(t, []string{"root", "B", "b1", "b3"}, ids(thread))
}

func TestNavigate_Unknown(t *testing.T) {
	tr := Build(history())
	_, _, ok := tr.Navigate("missing", Next)
	assert.False(t, ok)
}

func TestNavigate_SingleSibling(t *testing.T) {
	tr := Build(history())
	_, leaf, ok := tr.Navigate("b1", Next)
	require.True(t, ok)
	assert.Equal(t, "b3", leaf, "an only child wraps to itself")
}

func TestParent(t *testing.T) {
	tr := Build(history())

	p, ok := tr.Parent("b2")
	require.True(t, ok)
	assert.Equal(t, "b1", p.ID)

	_, ok = tr.Parent("root")
	assert.False(t, ok)
}

func TestPathTo_CycleSafe(t *testing.T) {
	tr := Build([]model.Message{
		msg("x", "y", 0),
		msg("y", "x", 1),
	})

	path := tr.PathTo("x")
	assert.Equal(t, []string{"y", "x"}, ids(path))
	assert.Equal(t, "y", tr.RightmostLeaf("x"), "descent stops before revisiting a message")
	assert.Nil(t, tr.LatestThread(), "no roots in a pure cycle")
}

func TestLatestThread(t *testing.T) {
	tr := Build(history())
	assert.Equal(t, []string{"root", "C"}, ids(tr.LatestThread()))

	assert.Nil(t, Build(nil).LatestThread())
}

func TestParseDirection(t *testing.T) {
	d, ok := ParseDirection("previous")
	require.True(t, ok)
	assert.Equal(t, Prev, d)
	assert.Equal(t, "prev", d.String())

	_, ok = ParseDirection("up")
	assert.False(t, ok)
}
