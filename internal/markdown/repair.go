// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// =============================================================================
// INCOMPLETE MARKUP REPAIR
// =============================================================================

const fence = "```"

// Repair makes a streaming markdown prefix safe to tokenize.
//
// The steps run in a fixed order and only ever truncate or append at the end
// of the string:
//  1. a trailing unterminated link or image opener is cut off
//  2. odd counts of **, __, *, _, ` and ~~ get one closing delimiter appended
//
// Inline code is left alone while the text sits inside an unterminated
// ``` fence. This is a heuristic: delimiters inside code spans or nested
// emphasis can fool it. Once the message finalizes the raw text is rendered
// unrepaired.
func Repair(s string) string {
	if s == "" {
		return s
	}

	out := truncateOpenLink(s)
	out = closePaired(out, "**")
	out = closePaired(out, "__")
	out = closeSingle(out, '*')
	out = closeSingle(out, '_')
	out = closeInlineCode(out)
	out = closePaired(out, "~~")
	return out
}

// InsideOpenFence reports whether s ends inside an unterminated ``` block.
func InsideOpenFence(s string) bool {
	return strings.Count(s, fence)%2 == 1
}

// truncateOpenLink hides a partially typed [text or ![alt so that the
// renderer never shows broken link syntax. Only the last line after the
// last closed fence is considered.
func truncateOpenLink(s string) string {
	if InsideOpenFence(s) {
		return s
	}
	start := 0
	if i := strings.LastIndex(s, fence); i >= 0 {
		start = i + len(fence)
	}
	if i := strings.LastIndexByte(s[start:], '\n'); i >= 0 {
		start += i + 1
	}
	open := strings.LastIndexByte(s[start:], '[')
	if open < 0 {
		return s
	}
	open += start
	if strings.IndexByte(s[open:], ']') >= 0 {
		return s
	}
	if open > start && s[open-1] == '!' {
		open--
	}
	return s[:open]
}

// closePaired appends delim when it occurs an odd number of times.
func closePaired(s, delim string) string {
	if !strings.Contains(s, delim) {
		return s
	}
	if strings.Count(s, delim)%2 == 1 {
		return s + delim
	}
	return s
}

// closeSingle handles lone * and _ emphasis. Characters that are part of a
// doubled delimiter are skipped, as are markers with whitespace on both
// sides ("* item", "2 * 3") and, for underscores, intraword use (snake_case).
func closeSingle(s string, delim byte) string {
	if strings.IndexByte(s, delim) < 0 {
		return s
	}

	count := 0
	for i := 0; i < len(s); i++ {
		if s[i] != delim {
			continue
		}
		prev, next := byteAt(s, i-1), byteAt(s, i+1)
		if prev == delim || next == delim {
			continue
		}
		if isSpaceOrEdge(prev) && isSpaceOrEdge(next) {
			continue
		}
		if delim == '_' && isWordRune(s, i-1, true) && isWordRune(s, i+1, false) {
			continue
		}
		count++
	}

	if count%2 == 1 {
		return s + string(delim)
	}
	return s
}

// closeInlineCode balances single backticks, ignoring any backtick that is
// part of a ``` run. It does nothing inside an unterminated fence.
func closeInlineCode(s string) string {
	if strings.IndexByte(s, '`') < 0 {
		return s
	}
	if InsideOpenFence(s) {
		return s
	}

	count := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '`' {
			continue
		}
		if partOfFence(s, i) {
			continue
		}
		count++
	}

	if count%2 == 1 {
		return s + "`"
	}
	return s
}

func partOfFence(s string, i int) bool {
	if strings.HasPrefix(s[i:], fence) {
		return true
	}
	if i >= 1 && strings.HasPrefix(s[i-1:], fence) {
		return true
	}
	return i >= 2 && strings.HasPrefix(s[i-2:], fence)
}

// byteAt returns s[i], or 0 when i is out of range.
func byteAt(s string, i int) byte {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

func isSpaceOrEdge(b byte) bool {
	return b == 0 || b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// isWordRune reports whether the rune ending (before=true) or starting at
// byte offset i is a letter or digit.
func isWordRune(s string, i int, before bool) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	var r rune
	if before {
		r, _ = utf8.DecodeLastRuneInString(s[:i+1])
	} else {
		r, _ = utf8.DecodeRuneInString(s[i:])
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
