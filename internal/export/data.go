// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigrun-transcript/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports the complete document as JSON. The output uses the
// same message encoding as storage and can be re-imported.
type JSONExporter struct{}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Export converts a document to indented JSON.
func (e *JSONExporter) Export(doc *Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}

// =============================================================================
// YAML EXPORTER
// =============================================================================

// YAMLExporter exports the complete document as YAML. Tool inputs, tool
// outputs and data payloads are decoded so they read as YAML structures.
type YAMLExporter struct{}

// NewYAMLExporter creates a new YAML exporter.
func NewYAMLExporter() *YAMLExporter {
	return &YAMLExporter{}
}

type yamlDocument struct {
	Chat     yamlChat      `yaml:"chat"`
	Messages []yamlMessage `yaml:"messages"`
	Exported time.Time     `yaml:"exported"`
}

type yamlChat struct {
	ID         string    `yaml:"id"`
	Title      string    `yaml:"title"`
	Visibility string    `yaml:"visibility,omitempty"`
	UserID     string    `yaml:"userId,omitempty"`
	CreatedAt  time.Time `yaml:"createdAt,omitempty"`
}

type yamlMessage struct {
	ID        string     `yaml:"id"`
	Role      string     `yaml:"role"`
	CreatedAt time.Time  `yaml:"createdAt"`
	Model     string     `yaml:"model,omitempty"`
	Parent    string     `yaml:"parentMessageId,omitempty"`
	Partial   bool       `yaml:"partial,omitempty"`
	Parts     []yamlPart `yaml:"parts"`
}

type yamlPart struct {
	Type       string `yaml:"type"`
	Text       string `yaml:"text,omitempty"`
	State      string `yaml:"state,omitempty"`
	MediaType  string `yaml:"mediaType,omitempty"`
	Filename   string `yaml:"filename,omitempty"`
	URL        string `yaml:"url,omitempty"`
	Title      string `yaml:"title,omitempty"`
	ToolCallID string `yaml:"toolCallId,omitempty"`
	Input      any    `yaml:"input,omitempty"`
	Output     any    `yaml:"output,omitempty"`
	ErrorText  string `yaml:"errorText,omitempty"`
	ID         string `yaml:"id,omitempty"`
	Data       any    `yaml:"data,omitempty"`
}

// decodeRaw turns a JSON payload into plain values; invalid JSON is kept
// as a string.
func decodeRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func toYAMLMessage(m model.Message) yamlMessage {
	out := yamlMessage{
		ID:        m.ID,
		Role:      string(m.Role),
		CreatedAt: m.Metadata.CreatedAt,
		Model:     m.Metadata.Model,
		Parent:    m.Metadata.ParentMessageID,
		Partial:   m.Metadata.Partial,
		Parts:     make([]yamlPart, len(m.Parts)),
	}
	for i, p := range m.Parts {
		out.Parts[i] = yamlPart{
			Type:       string(p.Type),
			Text:       p.Text,
			State:      p.State,
			MediaType:  p.MediaType,
			Filename:   p.Filename,
			URL:        p.URL,
			Title:      p.Title,
			ToolCallID: p.ToolCallID,
			Input:      decodeRaw(p.Input),
			Output:     decodeRaw(p.Output),
			ErrorText:  p.ErrorText,
			ID:         p.ID,
			Data:       decodeRaw(p.Data),
		}
	}
	return out
}

// Export converts a document to YAML.
func (e *YAMLExporter) Export(doc *Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}

	view := yamlDocument{
		Chat: yamlChat{
			ID:         doc.Chat.ID,
			Title:      doc.title(),
			Visibility: string(doc.Chat.Visibility),
			UserID:     doc.Chat.UserID,
			CreatedAt:  doc.Chat.CreatedAt,
		},
		Messages: make([]yamlMessage, len(doc.Messages)),
		Exported: doc.Exported,
	}
	for i, m := range doc.Messages {
		view.Messages[i] = toYAMLMessage(m)
	}

	out, err := yaml.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return out, nil
}

// FileExtension returns the file extension for YAML.
func (e *YAMLExporter) FileExtension() string {
	return ".yaml"
}

// MimeType returns the MIME type for YAML.
func (e *YAMLExporter) MimeType() string {
	return "application/yaml"
}
