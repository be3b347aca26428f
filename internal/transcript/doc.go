// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcript holds the active message list of a chat session and
// serves cheap derived views of it to the presentation layer.
//
// The Store keeps a canonical list that is current the moment a mutation
// returns, and publishes a throttled snapshot to subscribers at most once
// per window while tokens stream in. Derived views (part types, part
// ranges, single parts, markdown blocks) are memoized per message and stay
// reference-stable until the message's parts slice is replaced.
//
// # Key Types
//
//   - Store: mutation API, canonical and throttled reads, subscriptions
//   - Snapshot: what a notification pass hands to subscribers
//   - ContractError: panic value for lookups of unknown ids or indices
//
// # Usage
//
//	store := transcript.New(transcript.WithThrottle(100 * time.Millisecond))
//	cancel := store.Subscribe(func(snap transcript.Snapshot) {
//	    redraw(snap.MessageIDs)
//	})
//	defer cancel()
//
//	store.PushMessage(model.NewUserMessage("hi"))
//	parent, _ := store.LastMessageID()
package transcript
