// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ROLE TESTS
// =============================================================================

func TestRole_DisplayName(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUser, "You"},
		{RoleAssistant, "Assistant"},
		{RoleSystem, "System"},
		{RoleTool, "Tool"},
		{Role("custom"), "custom"},
	}

	for _, tc := range tests {
		if got := tc.role.DisplayName(); got != tc.want {
			t.Errorf("%s.DisplayName() = %q, want %q", tc.role, got, tc.want)
		}
	}
}

// =============================================================================
// PART TESTS
// =============================================================================

func TestPartType_Families(t *testing.T) {
	search := ToolPartType(ToolWebSearch)
	if search != "tool-webSearch" {
		t.Errorf("ToolPartType = %q, want tool-webSearch", search)
	}
	if !search.IsTool() || search.IsData() {
		t.Error("tool-webSearch should be a tool part only")
	}

	research := DataPartType("researchUpdate")
	if !research.IsData() || research.IsTool() {
		t.Error("data-researchUpdate should be a data part only")
	}

	if PartText.IsTool() || PartText.IsData() {
		t.Error("text should be neither tool nor data")
	}
}

func TestPart_Names(t *testing.T) {
	tool := Part{Type: ToolPartType(ToolCodeInterpreter), ToolCallID: "call_1"}
	assert.Equal(t, "codeInterpreter", tool.ToolName())
	assert.Empty(t, tool.DataName())

	data := Part{Type: DataPartType("researchUpdate")}
	assert.Equal(t, "researchUpdate", data.DataName())
	assert.Empty(t, data.ToolName())
}

func TestPart_CloneIsDeep(t *testing.T) {
	orig := Part{
		Type:   ToolPartType(ToolWebSearch),
		Input:  json.RawMessage(`{"q":"go"}`),
		Output: json.RawMessage(`{"hits":1}`),
	}
	clone := orig.Clone()
	require.True(t, orig.Equal(clone))

	clone.Input[2] = 'Q'
	assert.Equal(t, `{"q":"go"}`, string(orig.Input), "mutating the clone must not touch the original")
	assert.False(t, orig.Equal(clone))
}

func TestPartsEqual(t *testing.T) {
	a := []Part{TextPart("a"), TextPart("b")}
	b := []Part{TextPart("a"), TextPart("b")}
	c := []Part{TextPart("a")}

	assert.True(t, PartsEqual(a, b))
	assert.False(t, PartsEqual(a, c))
	assert.True(t, PartsEqual(nil, []Part{}))
}

func TestSameParts(t *testing.T) {
	a := []Part{TextPart("x")}
	b := []Part{TextPart("x")}

	assert.True(t, SameParts(a, a))
	assert.False(t, SameParts(a, b), "equal content in different arrays is not the same slice")
	assert.False(t, SameParts(a, a[:0]))
	assert.True(t, SameParts(nil, []Part{}))
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("hello")

	if !strings.HasPrefix(msg.ID, "msg_") {
		t.Errorf("ID should start with msg_, got %q", msg.ID)
	}
	if msg.Role != RoleUser {
		t.Errorf("Role = %s, want user", msg.Role)
	}
	if msg.Text() != "hello" {
		t.Errorf("Text() = %q, want hello", msg.Text())
	}
	if msg.Metadata.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if !msg.IsRoot() {
		t.Error("a fresh message has no parent")
	}
}

func TestNewSystemMessage(t *testing.T) {
	msg := NewSystemMessage("be brief")
	assert.Equal(t, RoleSystem, msg.Role)
	assert.Equal(t, "be brief", msg.Text())
	assert.False(t, msg.Metadata.Partial)
}

func TestNewAssistantMessage(t *testing.T) {
	msg := NewAssistantMessage("llama3")

	assert.Equal(t, RoleAssistant, msg.Role)
	assert.NotNil(t, msg.Parts)
	assert.Empty(t, msg.Parts)
	assert.True(t, msg.Metadata.Partial)
	assert.Equal(t, "llama3", msg.Metadata.Model)
}

func TestMessage_IDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewUserMessage("x").ID
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestMessage_Clone(t *testing.T) {
	orig := Message{
		ID:    "m1",
		Role:  RoleAssistant,
		Parts: []Part{TextPart("one"), {Type: DataPartType("x"), Data: json.RawMessage(`[1]`)}},
	}
	clone := orig.Clone()

	require.Equal(t, orig, clone)
	assert.False(t, SameParts(orig.Parts, clone.Parts))

	clone.Parts[0].Text = "changed"
	assert.Equal(t, "one", orig.Parts[0].Text)
}

func TestMessage_TextAndTypes(t *testing.T) {
	msg := Message{
		ID:   "m1",
		Role: RoleAssistant,
		Parts: []Part{
			{Type: PartReasoning, Text: "thinking"},
			TextPart("Hello, "),
			{Type: ToolPartType(ToolWebSearch)},
			TextPart("world"),
		},
	}

	assert.Equal(t, "Hello, world", msg.Text())
	assert.Equal(t, []PartType{PartReasoning, PartText, "tool-webSearch", PartText}, msg.PartTypes())
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage("line one\nline two is longer")

	assert.Equal(t, "line one line two is longer", msg.Preview(100))
	assert.Equal(t, "line on...", msg.Preview(10))
	assert.Equal(t, "li", msg.Preview(2))
}

func TestMessage_Validate(t *testing.T) {
	valid := NewUserMessage("ok")
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(m *Message)
	}{
		{"missing id", func(m *Message) { m.ID = "" }},
		{"unknown role", func(m *Message) { m.Role = "robot" }},
		{"missing created at", func(m *Message) { m.Metadata.CreatedAt = time.Time{} }},
		{"untyped part", func(m *Message) { m.Parts = []Part{{Text: "x"}} }},
		{"self parent", func(m *Message) { m.Metadata.ParentMessageID = m.ID }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := valid.Clone()
			tc.mutate(&m)
			assert.Error(t, m.Validate())
		})
	}
}
