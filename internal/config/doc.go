// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// rigrun-transcript.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides and validation that reports every problem at once.
//
// # Configuration Precedence
//
//   - Environment variables (TRANSCRIPT_*)
//   - ~/.rigrun-transcript/config.toml (or $TRANSCRIPT_CONFIG)
//   - Built-in defaults
//
// # Example
//
//	[store]
//	throttle_ms = 100
//	min_block_slots = 8
//
//	[storage]
//	path = "/var/lib/transcript/transcript.db"
//
//	[render]
//	markdown = true
//	word_wrap = 100
//	style = "auto"
//
//	[server]
//	listen = "127.0.0.1:8787"
//	rate_limit = 120
//
//	[log]
//	level = "info"
//	sink = "stderr"
//
// # Hot Reload
//
// Watch reloads the file whenever it changes, which lets a running viewer
// pick up a new throttle window:
//
//	w, err := config.Watch(path, func(cfg *config.Config) {
//	    store.SetThrottle(cfg.Throttle())
//	})
//	defer w.Close()
package config
