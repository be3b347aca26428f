// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives one chat on top of a transcript.Store.
//
// A Session owns the full branching history of a chat and keeps the store's
// active transcript in step with it while the user sends messages, the
// assistant streams a reply, and the user edits, retries or switches
// between branches.
//
// # Key Types
//
//   - Session: turn flow, branch navigation and persistence hand-off
//   - Persister: where finalized messages go (storage.DB implements it)
//   - AutoSaveMsg, TickMsg: Bubble Tea messages for periodic saving
//
// # Usage
//
//	store := transcript.New(transcript.WithThrottle(100 * time.Millisecond))
//	sess := session.New(store, db, session.DefaultConfig(), logger)
//	sess.Load(chatID, history)
//
//	sess.SendUserMessage("hello")
//	sess.BeginAssistant("")
//	sess.UpdateAssistant(parts)
//	sess.FinishAssistant(ctx)
package session
