// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chats and their message history in SQLite.
//
// Every message of every branch is stored; the active thread is derived
// from the parent links when a chat is loaded. Message rows carry an
// xxhash fingerprint so re-saving an unchanged message is a no-op.
//
// # Key Types
//
//   - DB: SQLite-backed store, implements session.Persister
//   - Chat: chat row with title, visibility and owner
//
// # Usage
//
//	db, err := storage.Open(path)
//	defer db.Close()
//
//	err = db.SaveMessages(ctx, chatID, msgs)
//	history, err := db.LoadMessages(ctx, chatID)
//
// # Storage Location
//
// The database lives at ~/.rigrun-transcript/transcript.db unless
// configured otherwise.
package storage
