// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// REPAIR TESTS
// =============================================================================

func TestRepair_ClosesUnterminated(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bold", "Hello **world", "Hello **world**"},
		{"inline code", "See `code", "See `code`"},
		{"underscore bold", "__strong", "__strong__"},
		{"single star", "*it", "*it*"},
		{"single underscore", "_ital", "_ital_"},
		{"strikethrough", "~~gone", "~~gone~~"},
		{"open link", "Read [the docs", "Read "},
		{"open image", "See ![alt text", "See "},
		{"bold after closed italic", "*a* and **b", "*a* and **b**"},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Repair(tc.input); got != tc.want {
				t.Errorf("Repair(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestRepair_CompleteInputUnchanged(t *testing.T) {
	inputs := []string{
		"Hello **world**",
		"A *b* and _c_.",
		"Use `x` here",
		"~~gone~~",
		"[link](http://example.com)",
		"![logo](img.png)",
		"```go\nfmt.Println(\"hi\")\n```\n",
		"- item one\n- item two",
		"* star item\n* another",
		"2 * 3 = 6",
		"snake_case_name",
		"# Title\n\nParagraph.",
	}

	for _, in := range inputs {
		if got := Repair(in); got != in {
			t.Errorf("Repair(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestRepair_LinkOpenerBeforeTail(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bracket in closed fence", "```python\nxs = arr[1:\n```\n\nThat slice drops the first item."},
		{"bracket on earlier line", "Index with xs[0\nthen keep going"},
		{"bracket before closed fence", "see [x\n```\ncode\n```\ndone"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.input, Repair(tc.input))
		})
	}

	assert.Equal(t, "```\na[0]\n```\nRead ", Repair("```\na[0]\n```\nRead [the docs"))
}

func TestRepair_OddFenceSkipsInlineCode(t *testing.T) {
	in := "```go\nfmt.Println(`hi"
	assert.Equal(t, in, Repair(in), "backticks inside an open fence must not be closed")
	assert.True(t, InsideOpenFence(in))

	linkInCode := "```python\nxs[0"
	assert.Equal(t, linkInCode, Repair(linkInCode), "brackets inside an open fence are code")
}

func TestRepair_Idempotent(t *testing.T) {
	partials := []string{
		"Hello **world",
		"See `code",
		"*it",
		"_ital",
		"~~gone",
		"Read [the docs",
		"**bold** then *it",
	}

	for _, in := range partials {
		once := Repair(in)
		if twice := Repair(once); twice != once {
			t.Errorf("Repair not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestRepair_OnlyAppendsOrTruncates(t *testing.T) {
	in := "Some **bold and `code"
	out := Repair(in)
	assert.Equal(t, "Some **bold and `code**`", out)
	assert.Equal(t, in, out[:len(in)], "the original prefix is never rewritten")
}
