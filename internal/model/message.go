// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat messages and their parts.
package model

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Metadata carries per-message bookkeeping that is not content.
type Metadata struct {
	CreatedAt time.Time `json:"createdAt" validate:"required"`
	Model     string    `json:"model,omitempty"`

	// ParentMessageID links the message into the conversation tree.
	// Empty for roots.
	ParentMessageID string `json:"parentMessageId,omitempty"`

	// Partial marks an assistant response that was cut short.
	Partial bool `json:"partial,omitempty"`
}

// Message represents a single message in a chat.
type Message struct {
	ID       string   `json:"id" validate:"required"`
	Role     Role     `json:"role" validate:"required,oneof=user assistant system tool"`
	Parts    []Part   `json:"parts" validate:"dive"`
	Metadata Metadata `json:"metadata"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, parts ...Part) Message {
	return Message{
		ID:    generateID(),
		Role:  role,
		Parts: parts,
		Metadata: Metadata{
			CreatedAt: time.Now(),
		},
	}
}

// NewUserMessage creates a new user message with a single text part.
func NewUserMessage(text string) Message {
	return NewMessage(RoleUser, TextPart(text))
}

// NewAssistantMessage creates a new, empty assistant message that is about
// to stream. It is marked partial until finalized.
func NewAssistantMessage(modelID string) Message {
	msg := NewMessage(RoleAssistant)
	msg.Parts = []Part{}
	msg.Metadata.Model = modelID
	msg.Metadata.Partial = true
	return msg
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(text string) Message {
	return NewMessage(RoleSystem, TextPart(text))
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Clone returns a deep copy of the message. The copy shares no mutable
// state with the original.
func (m Message) Clone() Message {
	c := m
	c.Parts = CloneParts(m.Parts)
	return c
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// PartTypes returns the type of every part, in order.
func (m Message) PartTypes() []PartType {
	types := make([]PartType, len(m.Parts))
	for i, p := range m.Parts {
		types[i] = p.Type
	}
	return types
}

// IsRoot reports whether the message has no parent.
func (m Message) IsRoot() bool {
	return m.Metadata.ParentMessageID == ""
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	content := strings.ReplaceAll(m.Text(), "\n", " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// VALIDATION
// =============================================================================

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks that the message is well formed: it has an id, a known
// role, a creation time, and every part has a type.
func (m Message) Validate() error {
	if err := validatorInstance().Struct(m); err != nil {
		return fmt.Errorf("invalid message %q: %w", m.ID, err)
	}
	if m.Metadata.ParentMessageID == m.ID {
		return fmt.Errorf("invalid message %q: message is its own parent", m.ID)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}
