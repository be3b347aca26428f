// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry exports Prometheus metrics for the transcript store,
// the storage layer and the HTTP server.
//
// # Key Types
//
//   - Collector: owns a private registry and every metric family
//
// # Usage
//
//	metrics := telemetry.New()
//	store := transcript.New(transcript.WithMetrics(metrics))
//	router.Handle("/metrics", metrics.Handler())
//
// # Privacy
//
// Metrics carry counts and latencies only. Message content is never
// recorded.
package telemetry
