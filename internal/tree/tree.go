// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tree indexes the full message history of a chat as a tree.
//
// Editing a user message or retrying an answer adds a sibling under the
// same parent instead of overwriting anything, so the history holds every
// branch. The active transcript is one root-to-leaf path through the tree.
package tree

import (
	"slices"

	"github.com/jeranaias/rigrun-transcript/internal/model"
)

// Direction selects the neighbouring sibling.
type Direction int

const (
	Prev Direction = -1
	Next Direction = 1
)

// String returns "prev" or "next".
func (d Direction) String() string {
	if d == Prev {
		return "prev"
	}
	return "next"
}

// ParseDirection maps "prev"/"previous"/"left" and "next"/"right".
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "prev", "previous", "left":
		return Prev, true
	case "next", "right":
		return Next, true
	}
	return 0, false
}

// Info describes a message's position among its siblings.
type Info struct {
	Siblings []string
	Index    int
}

// Tree is an immutable parent → children index over a message history.
// Rebuild it whenever the history changes.
type Tree struct {
	byID     map[string]model.Message
	order    map[string]int
	children map[string][]string
}

// Build indexes history. Siblings are ordered by creation time; ties keep
// input order. A parent id naming a message that is not in history leaves
// the message unreachable from the roots.
func Build(history []model.Message) *Tree {
	t := &Tree{
		byID:     make(map[string]model.Message, len(history)),
		order:    make(map[string]int, len(history)),
		children: make(map[string][]string),
	}

	for i, m := range history {
		if _, dup := t.byID[m.ID]; dup {
			continue
		}
		t.byID[m.ID] = m
		t.order[m.ID] = i
		parent := m.Metadata.ParentMessageID
		t.children[parent] = append(t.children[parent], m.ID)
	}

	for parent, kids := range t.children {
		slices.SortStableFunc(kids, func(a, b string) int {
			if c := t.byID[a].Metadata.CreatedAt.Compare(t.byID[b].Metadata.CreatedAt); c != 0 {
				return c
			}
			return t.order[a] - t.order[b]
		})
		t.children[parent] = kids
	}
	return t
}

// Len returns the number of indexed messages.
func (t *Tree) Len() int {
	return len(t.byID)
}

// Message returns the message with the given id.
func (t *Tree) Message(id string) (model.Message, bool) {
	m, ok := t.byID[id]
	return m, ok
}

// Roots returns the ids of messages without a parent, oldest first.
func (t *Tree) Roots() []string {
	return t.children[""]
}

// Children returns the ids of id's direct children, oldest first.
func (t *Tree) Children(id string) []string {
	return t.children[id]
}

// Parent returns the parent of id. ok is false for roots, unknown ids and
// dangling parent ids.
func (t *Tree) Parent(id string) (model.Message, bool) {
	m, ok := t.byID[id]
	if !ok || m.IsRoot() {
		return model.Message{}, false
	}
	p, ok := t.byID[m.Metadata.ParentMessageID]
	return p, ok
}

// SiblingInfo returns id's sibling list (itself included) and its position
// in it. Roots are siblings of each other.
func (t *Tree) SiblingInfo(id string) (Info, bool) {
	m, ok := t.byID[id]
	if !ok {
		return Info{}, false
	}
	parent := m.Metadata.ParentMessageID
	if parent != "" {
		if _, ok := t.byID[parent]; !ok {
			return Info{}, false
		}
	}

	siblings := t.children[parent]
	idx := slices.Index(siblings, id)
	if idx < 0 {
		return Info{}, false
	}
	return Info{Siblings: siblings, Index: idx}, true
}

// RightmostLeaf follows the most recent child at every level starting at
// id and returns the leaf it reaches.
func (t *Tree) RightmostLeaf(id string) string {
	seen := map[string]bool{id: true}
	for {
		kids := t.children[id]
		if len(kids) == 0 {
			return id
		}
		next := kids[len(kids)-1]
		if seen[next] {
			return id
		}
		seen[next] = true
		id = next
	}
}

// PathTo returns the chain of messages from the root down to id. A parent
// cycle or dangling parent ends the walk at the last reachable ancestor.
func (t *Tree) PathTo(id string) []model.Message {
	var path []model.Message
	seen := make(map[string]bool)
	for id != "" && !seen[id] {
		m, ok := t.byID[id]
		if !ok {
			break
		}
		seen[id] = true
		path = append(path, m)
		id = m.Metadata.ParentMessageID
	}
	slices.Reverse(path)
	return path
}

// Navigate moves from id to its previous or next sibling, wrapping around
// at either end, then descends to that branch's most recent leaf. It
// returns the root-to-leaf thread and the leaf id.
func (t *Tree) Navigate(id string, dir Direction) ([]model.Message, string, bool) {
	info, ok := t.SiblingInfo(id)
	if !ok {
		return nil, "", false
	}

	n := len(info.Siblings)
	target := info.Siblings[((info.Index+int(dir))%n+n)%n]
	leaf := t.RightmostLeaf(target)
	return t.PathTo(leaf), leaf, true
}

// LatestThread returns the thread ending at the most recent leaf of the
// most recent root. It is the default active transcript for a loaded chat.
func (t *Tree) LatestThread() []model.Message {
	roots := t.Roots()
	if len(roots) == 0 {
		return nil
	}
	return t.PathTo(t.RightmostLeaf(roots[len(roots)-1]))
}
