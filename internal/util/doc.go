// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the CLI, TUI and export
// code.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, PadRight: terminal-cell aware truncation and padding
//   - OneLine: whitespace collapsing for previews
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	row := util.PadRight(msg.ID, 12) + util.TruncateWidth(preview, 60)
//	err := util.AtomicWriteFile(path, data, 0o644)
package util
