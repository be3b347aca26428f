// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// Event type names.
const (
	TypeStart      = "start"
	TypeStartStep  = "start-step"
	TypeFinishStep = "finish-step"
	TypeFinish     = "finish"
	TypeError      = "error"
	TypeAbort      = "abort"

	TypeTextStart = "text-start"
	TypeTextDelta = "text-delta"
	TypeTextEnd   = "text-end"

	TypeReasoningStart = "reasoning-start"
	TypeReasoningDelta = "reasoning-delta"
	TypeReasoningEnd   = "reasoning-end"

	TypeToolInputStart      = "tool-input-start"
	TypeToolInputDelta      = "tool-input-delta"
	TypeToolInputAvailable  = "tool-input-available"
	TypeToolOutputAvailable = "tool-output-available"
	TypeToolOutputError     = "tool-output-error"

	TypeFile      = "file"
	TypeSourceURL = "source-url"

	dataPrefix = "data-"
)

// Event is one decoded stream event. Only the fields relevant to Type are
// set.
type Event struct {
	Type string `json:"type"`

	// start
	MessageID string `json:"messageId,omitempty"`

	// text-* / reasoning-* block id, data-* reconciliation id
	ID    string `json:"id,omitempty"`
	Delta string `json:"delta,omitempty"`

	// tool-*
	ToolCallID     string          `json:"toolCallId,omitempty"`
	ToolName       string          `json:"toolName,omitempty"`
	InputTextDelta string          `json:"inputTextDelta,omitempty"`
	Input          json.RawMessage `json:"input,omitempty"`
	Output         json.RawMessage `json:"output,omitempty"`

	// error / tool-output-error
	ErrorText string `json:"errorText,omitempty"`

	// data-*
	Data      json.RawMessage `json:"data,omitempty"`
	Transient bool            `json:"transient,omitempty"`

	// file / source-url
	URL       string `json:"url,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	SourceID  string `json:"sourceId,omitempty"`
	Title     string `json:"title,omitempty"`
}

// IsData reports whether the event carries a data-* annotation.
func (e Event) IsData() bool {
	return strings.HasPrefix(e.Type, dataPrefix)
}

// DataName returns the annotation name of a data-* event.
func (e Event) DataName() string {
	return strings.TrimPrefix(e.Type, dataPrefix)
}

// EventError is the failure reported by an error event.
type EventError struct {
	Text string
}

func (e *EventError) Error() string {
	if e.Text == "" {
		return "stream reported an error"
	}
	return "stream error: " + e.Text
}
