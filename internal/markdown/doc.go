// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package markdown prepares streamed markdown for display.
//
// It provides three pieces:
//
//   - Repair closes delimiters left open by a streaming prefix
//   - Blocks and Segment split a document into top-level blocks
//   - Renderer draws markdown for a terminal with glamour
//
// # Key Types
//
//   - Block: one top-level block with its exact source bytes
//   - BlockKind: paragraph, heading, code, list, and so on
//   - Renderer: glamour-backed terminal renderer
//
// # Usage
//
//	for b := range markdown.Blocks(markdown.Repair(partial)) {
//	    fmt.Print(renderer.Render(b.Raw))
//	}
package markdown
