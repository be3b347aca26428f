// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - Machine-readable output for --json.

package cli

import (
	"encoding/json"
	"io"
	"time"

	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/storage"
)

// JSONResponse is the envelope every command writes in JSON mode.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data any `json:"data"`

	// Timestamp is the RFC 3339 time the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write outputs the response as indented JSON.
func (r *JSONResponse) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// ThreadData is returned by show and replay.
type ThreadData struct {
	Chat     storage.Chat    `json:"chat"`
	Messages []model.Message `json:"messages"`
}

// SiblingsData is returned by siblings.
type SiblingsData struct {
	MessageID string        `json:"messageId"`
	ParentID  string        `json:"parentId,omitempty"`
	Index     int           `json:"index"`
	Siblings  []SiblingData `json:"siblings"`
}

// SiblingData describes one version of a message.
type SiblingData struct {
	ID      string    `json:"id"`
	Created time.Time `json:"createdAt"`
	Preview string    `json:"preview"`
}

// ChatListData is returned by chats list and chats search.
type ChatListData struct {
	Chats []storage.Chat `json:"chats"`
}

// ExportData is returned by export when writing to a file.
type ExportData struct {
	Path   string `json:"path"`
	Format string `json:"format"`
}
