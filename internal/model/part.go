// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// =============================================================================
// PART TYPE
// =============================================================================

// PartType identifies the kind of a message part.
//
// Tool parts are named "tool-<toolName>" and data annotations "data-<name>",
// so the set of part types is open-ended.
type PartType string

const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
	PartFile      PartType = "file"
	PartSourceURL PartType = "source-url"
	PartStepStart PartType = "step-start"

	// Prefixes for the open-ended part families.
	ToolPartPrefix = "tool-"
	DataPartPrefix = "data-"
)

// Well-known tools exposed by the chat application.
const (
	ToolWebSearch       = "webSearch"
	ToolCodeInterpreter = "codeInterpreter"
	ToolCreateDocument  = "createDocument"
	ToolUpdateDocument  = "updateDocument"
	ToolDeepResearch    = "deepResearch"
)

// Tool part states, in the order a tool call moves through them.
const (
	StateInputStreaming  = "input-streaming"
	StateInputAvailable  = "input-available"
	StateOutputAvailable = "output-available"
	StateOutputError     = "output-error"
)

// Text and reasoning part states.
const (
	StateStreaming = "streaming"
	StateDone      = "done"
)

// ToolPartType returns the part type used for calls to the named tool.
func ToolPartType(toolName string) PartType {
	return PartType(ToolPartPrefix + toolName)
}

// DataPartType returns the part type used for the named data annotation.
func DataPartType(name string) PartType {
	return PartType(DataPartPrefix + name)
}

// IsTool reports whether the type is a tool-call part.
func (t PartType) IsTool() bool {
	return strings.HasPrefix(string(t), ToolPartPrefix)
}

// IsData reports whether the type is an out-of-band data annotation.
func (t PartType) IsData() bool {
	return strings.HasPrefix(string(t), DataPartPrefix)
}

// =============================================================================
// PART
// =============================================================================

// Part is one ordered content segment of a message.
//
// Only the fields relevant to the part's Type are populated.
type Part struct {
	Type PartType `json:"type" validate:"required"`

	// text / reasoning
	Text  string `json:"text,omitempty"`
	State string `json:"state,omitempty"`

	// file / source-url
	MediaType string `json:"mediaType,omitempty"`
	Filename  string `json:"filename,omitempty"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`

	// tool-*
	ToolCallID string          `json:"toolCallId,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`

	// data-*
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// TextPart builds a finished text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text, State: StateDone}
}

// IsTool reports whether the part is a tool call.
func (p Part) IsTool() bool {
	return p.Type.IsTool()
}

// IsData reports whether the part is a data annotation.
func (p Part) IsData() bool {
	return p.Type.IsData()
}

// ToolName returns the tool name for tool parts, or "" otherwise.
func (p Part) ToolName() string {
	if !p.IsTool() {
		return ""
	}
	return strings.TrimPrefix(string(p.Type), ToolPartPrefix)
}

// DataName returns the annotation name for data parts, or "" otherwise.
func (p Part) DataName() string {
	if !p.IsData() {
		return ""
	}
	return strings.TrimPrefix(string(p.Type), DataPartPrefix)
}

// Equal reports whether two parts carry the same content.
// Raw JSON payloads are compared byte-wise.
func (p Part) Equal(o Part) bool {
	return p.Type == o.Type &&
		p.Text == o.Text &&
		p.State == o.State &&
		p.MediaType == o.MediaType &&
		p.Filename == o.Filename &&
		p.URL == o.URL &&
		p.Title == o.Title &&
		p.ToolCallID == o.ToolCallID &&
		bytes.Equal(p.Input, o.Input) &&
		bytes.Equal(p.Output, o.Output) &&
		p.ErrorText == o.ErrorText &&
		p.ID == o.ID &&
		bytes.Equal(p.Data, o.Data)
}

// Clone returns a deep copy of the part.
func (p Part) Clone() Part {
	c := p
	c.Input = cloneRaw(p.Input)
	c.Output = cloneRaw(p.Output)
	c.Data = cloneRaw(p.Data)
	return c
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	out := make(json.RawMessage, len(r))
	copy(out, r)
	return out
}

// CloneParts deep-copies a parts slice. A nil slice stays nil.
func CloneParts(parts []Part) []Part {
	if parts == nil {
		return nil
	}
	out := make([]Part, len(parts))
	for i, p := range parts {
		out[i] = p.Clone()
	}
	return out
}

// PartsEqual reports whether two parts slices are element-wise equal.
func PartsEqual(a, b []Part) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// SameParts reports whether a and b are the same slice: same length and,
// when non-empty, the same backing array start. This is the identity check
// the derived-view caches rely on; it never looks at part contents.
func SameParts(a, b []Part) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}
