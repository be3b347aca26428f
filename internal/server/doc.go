// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides a read-only HTTP API over shared chats.
//
// Only chats with public visibility are served. A private chat answers
// exactly like a missing one so that chat IDs cannot be probed.
//
// # Endpoints
//
//   - GET /health                                          - Health check
//   - GET /v1/chats                                        - List public chats
//   - GET /v1/chats/{chatID}                               - Chat and its latest thread (?leaf= selects a branch)
//   - GET /v1/chats/{chatID}/messages/{messageID}/siblings - Sibling position of a message
//   - GET /metrics                                         - Prometheus metrics (when a collector is set)
//
// # Middleware
//
// Requests pass through panic recovery, security headers, structured request
// logging and an optional per-IP token bucket rate limiter.
//
// # Usage
//
//	db, _ := storage.Open(storage.DefaultPath())
//	srv := server.New(db, server.Config{Addr: ":8787", RateLimit: 120},
//		server.WithLogger(logging.L()),
//		server.WithMetrics(telemetry.New()),
//	)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
package server
