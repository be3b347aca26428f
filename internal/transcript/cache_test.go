// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-transcript/internal/markdown"
	"github.com/jeranaias/rigrun-transcript/internal/model"
)

func researchMessage() model.Message {
	msg := textMsg("a1", model.RoleAssistant, "")
	msg.Parts = []model.Part{
		{Type: model.PartReasoning, Text: "planning"},
		{Type: model.ToolPartType(model.ToolWebSearch), ToolCallID: "call_1", Input: json.RawMessage(`{"q":"go"}`)},
		{Type: model.DataPartType("researchUpdate"), Data: json.RawMessage(`{"step":1}`)},
		model.TextPart("# Findings\n\nGo is fine."),
	}
	return msg
}

// =============================================================================
// IDENTITY TESTS
// =============================================================================

func TestCache_SamePartsSameResult(t *testing.T) {
	s := New(WithThrottle(0))
	s.PushMessage(researchMessage())

	types := s.PartTypes("a1")
	assert.True(t, sameSlice(types, s.PartTypes("a1")))

	rng := s.PartRange("a1", 1, 3)
	assert.True(t, sameSlice(rng, s.PartRange("a1", 1, 3)))

	filtered := s.PartRange("a1", 0, 4, model.PartText, model.PartReasoning)
	require.Len(t, filtered, 2)
	assert.True(t, sameSlice(filtered, s.PartRange("a1", 0, 4, model.PartText, model.PartReasoning)))

	part := s.Part("a1", 3, model.PartText)
	assert.Same(t, part, s.Part("a1", 3, ""))

	blocks := s.PartBlocks("a1", 3)
	require.Len(t, blocks, 2)
	assert.True(t, sameSlice(blocks, s.PartBlocks("a1", 3)))
}

func TestCache_EqualResultKeepsOldReference(t *testing.T) {
	s := New(WithThrottle(0))
	s.PushMessage(textMsg("a1", model.RoleAssistant, "H"))

	types := s.PartTypes("a1")
	part := s.Part("a1", 0, model.PartText)

	// A new parts slice whose type list is unchanged.
	s.UpdateParts("a1", []model.Part{model.TextPart("He")})

	assert.True(t, sameSlice(types, s.PartTypes("a1")), "['text'] vs ['text'] keeps the first array")
	assert.NotSame(t, part, s.Part("a1", 0, model.PartText), "the part content changed")
}

func TestCache_UnrelatedPartChangeKeepsRange(t *testing.T) {
	s := New(WithThrottle(0))
	msg := researchMessage()
	s.PushMessage(msg)

	head := s.PartRange("a1", 0, 2)
	blocks := s.PartBlocks("a1", 3)

	// Replace only the last part's text. Parts 0 and 1 are byte-identical.
	parts := model.CloneParts(msg.Parts)
	parts[3].Text = "# Findings\n\nGo is great."
	s.UpdateParts("a1", parts)

	assert.True(t, sameSlice(head, s.PartRange("a1", 0, 2)))
	assert.False(t, sameSlice(blocks, s.PartBlocks("a1", 3)))
}

func TestCache_ChangedTypesRecompute(t *testing.T) {
	s := New(WithThrottle(0))
	s.PushMessage(textMsg("a1", model.RoleAssistant, "x"))

	before := s.PartTypes("a1")
	s.UpdateParts("a1", []model.Part{model.TextPart("x"), {Type: model.PartStepStart}})

	after := s.PartTypes("a1")
	assert.Equal(t, []model.PartType{model.PartText, model.PartStepStart}, after)
	assert.False(t, sameSlice(before, after))
}

// =============================================================================
// MARKDOWN TESTS
// =============================================================================

func TestCache_StreamingPartIsRepaired(t *testing.T) {
	s := New(WithThrottle(0))
	s.PushMessage(textMsg("u1", model.RoleUser, "Say **hi"))
	s.PushMessage(textMsg("a1", model.RoleAssistant, "Hello **world"))

	s.SetStatus(StatusStreaming)
	blocks := s.PartBlocks("a1", 0)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Hello **world**", blocks[0].Raw)

	user := s.PartBlocks("u1", 0)
	assert.Equal(t, "Say **hi", user[0].Raw, "only the streaming tail is repaired")

	s.SetStatus(StatusReady)
	blocks = s.PartBlocks("a1", 0)
	assert.Equal(t, "Hello **world", blocks[0].Raw, "finalized text renders as-is")
}

func TestCache_FinalizeKeepsEqualBlocks(t *testing.T) {
	s := New(WithThrottle(0))
	s.PushMessage(textMsg("u1", model.RoleUser, "Explain slices"))
	s.PushMessage(textMsg("a1", model.RoleAssistant, "A slice is a view.\n\nIt shares the array."))

	s.SetStatus(StatusStreaming)
	streaming := s.PartBlocks("a1", 0)
	require.Len(t, streaming, 2)

	s.SetStatus(StatusReady)
	s.UpdateParts("a1", []model.Part{model.TextPart("A slice is a view.\n\nIt shares the array.")})

	final := s.PartBlocks("a1", 0)
	assert.Equal(t, streaming, final)
	assert.True(t, sameSlice(streaming, final), "finalizing unchanged text keeps the streaming array")
}

func TestCache_BlockSlots(t *testing.T) {
	s := New(WithThrottle(0), WithMinBlockSlots(4))
	s.PushMessage(textMsg("a1", model.RoleAssistant, "one\n\ntwo\n"))

	assert.Equal(t, 4, s.PartBlockSlots("a1", 0))

	b, ok := s.PartBlock("a1", 0, 1)
	require.True(t, ok)
	assert.Equal(t, markdown.KindParagraph, b.Kind)
	assert.Equal(t, "two\n", b.Raw)

	_, ok = s.PartBlock("a1", 0, 3)
	assert.False(t, ok, "slot past the populated blocks is empty")
}

// =============================================================================
// CONTRACT TESTS
// =============================================================================

func TestCache_ContractViolations(t *testing.T) {
	s := New(WithThrottle(0))
	s.PushMessage(researchMessage())

	requireViolation(t, ErrUnknownMessage, func() { s.PartTypes("missing") })
	requireViolation(t, ErrUnknownMessage, func() { s.PartBlocks("missing", 0) })
	requireViolation(t, ErrPartIndex, func() { s.Part("a1", 9, "") })
	requireViolation(t, ErrPartIndex, func() { s.PartRange("a1", 3, 1) })
	requireViolation(t, ErrPartIndex, func() { s.PartRange("a1", 0, 5) })
	requireViolation(t, ErrPartType, func() { s.Part("a1", 0, model.PartText) })
	requireViolation(t, ErrPartType, func() { s.PartBlocks("a1", 1) })

	// The store stays usable after a violation.
	assert.Len(t, s.PartTypes("a1"), 4)
}

func TestContractError_Message(t *testing.T) {
	err := violation("Part", "a1", ErrPartIndex, "index %d", 9)
	assert.Equal(t, `transcript: Part message "a1": part index out of range (index 9)`, err.Error())
	assert.ErrorIs(t, err, ErrPartIndex)
}
