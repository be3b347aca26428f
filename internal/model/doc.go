// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat messages and their parts.
//
// This package defines the core domain types shared by the transcript store,
// the message tree, persistence, and the stream decoder.
//
// # Key Types
//
//   - Message: Single message with id, role, ordered parts and metadata
//   - Part: One typed content segment (text, reasoning, file, tool, data)
//   - Metadata: Creation time, model id, parent message id, partial flag
//   - Role: Message role enumeration (user, assistant, system, tool)
//
// # Usage
//
// Create a user message that replies to the current leaf:
//
//	msg := model.NewUserMessage("Hello!")
//	msg.Metadata.ParentMessageID = store.LastMessageID()
//
// Parts are treated as immutable once handed to the store. To change a
// message, build a new Parts slice (or Clone the message) and hand that over.
package model
