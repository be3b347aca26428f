// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a chat's active thread to shareable files.
//
// # Formats
//
//   - Markdown: YAML frontmatter plus one section per message, with tool
//     calls, reasoning and sources rendered inline
//   - HTML: the Markdown body converted with goldmark, raw HTML dropped
//   - JSON: the complete document, re-importable
//   - YAML: the complete document with structured tool payloads
//
// # Usage
//
//	doc := export.NewDocument(chat, thread)
//	exp, err := export.ForFormat("md", nil)
//	path, err := export.ToFile(doc, exp, nil)
//
// Files are written atomically.
package export
