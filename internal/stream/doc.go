// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream ingests UI message stream events for an assistant reply.
//
// The wire format is one JSON event per line, optionally framed as
// server-sent events ("data: {...}") and terminated by "data: [DONE]".
//
// # Key Types
//
//   - Event: one decoded stream event
//   - Reader: line-by-line decoder, mirrors a chat-API stream reader
//   - Applier: folds events into message parts and pushes each new parts
//     slice to the session
//
// # Usage
//
//	msg, err := stream.Consume(ctx, body, sess, "")
//	if err != nil {
//	    // the session is already in the error state
//	}
package stream
