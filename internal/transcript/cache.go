// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"slices"
	"strings"

	"github.com/jeranaias/rigrun-transcript/internal/markdown"
	"github.com/jeranaias/rigrun-transcript/internal/model"
)

// =============================================================================
// DERIVED-VIEW CACHE
// =============================================================================

// viewCache memoizes per-message derivations. An entry stays valid while
// the message keeps the exact parts slice it was computed from; a new slice
// bumps the entry version and every sub-key recomputes on its next read.
// A recomputed value that is element-wise equal to the previous one keeps
// the previous reference.
type viewCache struct {
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	parts   []model.Part
	version uint64

	types  cached[[]model.PartType]
	ranges map[rangeKey]*cached[[]model.Part]
	single map[int]*cached[*model.Part]
	blocks map[int]*blockSlot
}

type rangeKey struct {
	start, end int
	filter     string
}

// cached is one memoized value. Version 0 means never computed. A stale
// value is recomputed even when the version matches, but still takes part
// in the equality check.
type cached[T any] struct {
	version uint64
	stale   bool
	value   T
}

// blockSlot remembers whether its blocks were segmented from repaired text,
// so the end of streaming recomputes them in place.
type blockSlot struct {
	cached[[]markdown.Block]
	repaired bool
}

func newViewCache() *viewCache {
	return &viewCache{entries: make(map[string]*cacheEntry)}
}

// entry returns the entry for id, bumping its version when parts is not the
// slice the entry last saw.
func (c *viewCache) entry(id string, parts []model.Part) *cacheEntry {
	e, ok := c.entries[id]
	if !ok {
		e = &cacheEntry{
			parts:   parts,
			version: 1,
			ranges:  make(map[rangeKey]*cached[[]model.Part]),
			single:  make(map[int]*cached[*model.Part]),
			blocks:  make(map[int]*blockSlot),
		}
		c.entries[id] = e
		return e
	}
	if !model.SameParts(e.parts, parts) {
		e.parts = parts
		e.version++
	}
	return e
}

// retain drops entries whose id is not live and returns how many it dropped.
func (c *viewCache) retain(live map[string]struct{}) int {
	n := 0
	for id := range c.entries {
		if _, ok := live[id]; !ok {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

func (c *viewCache) reset() {
	clear(c.entries)
}

func (c *viewCache) len() int {
	return len(c.entries)
}

// resolve returns the memoized value for version, computing it on a miss.
func resolve[T any](c *cached[T], version uint64, compute func() T, equal func(a, b T) bool) (T, bool) {
	if c.version == version && !c.stale {
		return c.value, true
	}
	fresh := compute()
	if c.version != 0 && equal(c.value, fresh) {
		fresh = c.value
	}
	c.version = version
	c.stale = false
	c.value = fresh
	return fresh, false
}

func subKey[K comparable, T any](m map[K]*cached[T], k K) *cached[T] {
	c, ok := m[k]
	if !ok {
		c = &cached[T]{}
		m[k] = c
	}
	return c
}

// =============================================================================
// DERIVED VIEWS
// =============================================================================

// entryFor must be called with mu held. It panics for unknown ids.
func (s *Store) entryFor(op, id string) (model.Message, *cacheEntry) {
	i, ok := s.lookup(id)
	if !ok {
		panic(violation(op, id, ErrUnknownMessage, ""))
	}
	msg := s.messages[i]
	return msg, s.cache.entry(id, msg.Parts)
}

func checkPartIndex(op string, msg model.Message, index int) {
	if index < 0 || index >= len(msg.Parts) {
		panic(violation(op, msg.ID, ErrPartIndex, "index %d, %d parts", index, len(msg.Parts)))
	}
}

// PartTypes returns the type of every part of the message.
func (s *Store) PartTypes(id string) []model.PartType {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, e := s.entryFor("PartTypes", id)
	v, hit := resolve(&e.types, e.version, msg.PartTypes, func(a, b []model.PartType) bool {
		return slices.Equal(a, b)
	})
	s.metrics.ObserveCache("types", hit)
	return v
}

// PartRange returns parts [start, end) of the message, keeping only the
// given types when any are passed.
func (s *Store) PartRange(id string, start, end int, types ...model.PartType) []model.Part {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, e := s.entryFor("PartRange", id)
	if start < 0 || end < start || end > len(msg.Parts) {
		panic(violation("PartRange", id, ErrPartIndex, "range [%d, %d), %d parts", start, end, len(msg.Parts)))
	}

	key := rangeKey{start: start, end: end, filter: filterKey(types)}
	compute := func() []model.Part {
		window := msg.Parts[start:end:end]
		if len(types) == 0 {
			return window
		}
		out := make([]model.Part, 0, len(window))
		for _, p := range window {
			if slices.Contains(types, p.Type) {
				out = append(out, p)
			}
		}
		return out
	}

	v, hit := resolve(subKey(e.ranges, key), e.version, compute, model.PartsEqual)
	s.metrics.ObserveCache("range", hit)
	return v
}

func filterKey(types []model.PartType) string {
	if len(types) == 0 {
		return ""
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, "\x00")
}

// Part returns the part at index. When expect is not empty the part must
// have that type. The returned pointer is shared and must not be modified.
func (s *Store) Part(id string, index int, expect model.PartType) *model.Part {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, e := s.entryFor("Part", id)
	checkPartIndex("Part", msg, index)
	if expect != "" && msg.Parts[index].Type != expect {
		panic(violation("Part", id, ErrPartType, "part %d is %s, want %s", index, msg.Parts[index].Type, expect))
	}

	compute := func() *model.Part {
		return &msg.Parts[index]
	}
	equal := func(a, b *model.Part) bool {
		return a != nil && b != nil && a.Equal(*b)
	}

	v, hit := resolve(subKey(e.single, index), e.version, compute, equal)
	s.metrics.ObserveCache("part", hit)
	return v
}

// PartBlocks splits a text or reasoning part into markdown blocks. The last
// part of the last message is repaired first while the store is streaming.
func (s *Store) PartBlocks(id string, index int) []markdown.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partBlocks("PartBlocks", id, index)
}

// PartBlock returns one block of a part. ok is false for an index past the
// populated blocks, which is an empty slot rather than an error.
func (s *Store) PartBlock(id string, index, block int) (markdown.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks := s.partBlocks("PartBlock", id, index)
	if block < 0 || block >= len(blocks) {
		return markdown.Block{}, false
	}
	return blocks[block], true
}

// PartBlockSlots returns how many block slots a renderer should keep for
// the part: the block count, but never fewer than the configured minimum.
func (s *Store) PartBlockSlots(id string, index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markdown.Slots(len(s.partBlocks("PartBlockSlots", id, index)), s.minSlots)
}

// partBlocks must be called with mu held.
func (s *Store) partBlocks(op, id string, index int) []markdown.Block {
	msg, e := s.entryFor(op, id)
	checkPartIndex(op, msg, index)

	part := msg.Parts[index]
	if part.Type != model.PartText && part.Type != model.PartReasoning {
		panic(violation(op, id, ErrPartType, "part %d is %s, want text or reasoning", index, part.Type))
	}

	repaired := s.status == StatusStreaming &&
		index == len(msg.Parts)-1 &&
		len(s.messages) > 0 && s.messages[len(s.messages)-1].ID == id

	compute := func() []markdown.Block {
		if repaired {
			return markdown.SegmentStreaming(part.Text)
		}
		return markdown.Segment(part.Text)
	}
	equal := func(a, b []markdown.Block) bool {
		return slices.Equal(a, b)
	}

	slot, ok := e.blocks[index]
	if !ok {
		slot = &blockSlot{repaired: repaired}
		e.blocks[index] = slot
	}
	if slot.repaired != repaired {
		slot.repaired = repaired
		slot.stale = true
	}

	v, hit := resolve(&slot.cached, e.version, compute, equal)
	s.metrics.ObserveCache("blocks", hit)
	return v
}

// cachedEntries reports how many messages currently have cache entries.
func (s *Store) cachedEntries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.len()
}
