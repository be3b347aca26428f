// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"iter"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// =============================================================================
// BLOCK TYPES
// =============================================================================

// BlockKind names a top-level markdown construct.
type BlockKind string

const (
	KindParagraph  BlockKind = "paragraph"
	KindHeading    BlockKind = "heading"
	KindCode       BlockKind = "code"
	KindList       BlockKind = "list"
	KindBlockquote BlockKind = "blockquote"
	KindHR         BlockKind = "hr"
	KindTable      BlockKind = "table"
	KindHTML       BlockKind = "html"
	KindOther      BlockKind = "other"
)

// Block is one top-level block of a markdown document.
//
// Raw holds the exact source bytes [Start, End), trailing blank lines
// included, so concatenating every block's Raw reproduces the document.
type Block struct {
	Kind  BlockKind
	Raw   string
	Start int
	End   int
}

// DefaultMinSlots is the number of block slots a renderer preallocates for
// a streaming part.
const DefaultMinSlots = 8

// Slots returns how many stable block slots to allocate for n blocks.
// Keeping at least min slots lets a renderer key blocks by position and only
// reveal populated slots while the block count grows.
func Slots(n, min int) int {
	if n > min {
		return n
	}
	return min
}

// =============================================================================
// SEGMENTATION
// =============================================================================

var parser = goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser()

// Blocks lazily yields the top-level blocks of src.
func Blocks(src string) iter.Seq[Block] {
	return func(yield func(Block) bool) {
		if strings.TrimSpace(src) == "" {
			return
		}
		bounds := boundaries(src)
		for i, b := range bounds {
			end := len(src)
			if i+1 < len(bounds) {
				end = bounds[i+1].start
			}
			block := Block{Kind: b.kind, Raw: src[b.start:end], Start: b.start, End: end}
			if !yield(block) {
				return
			}
		}
	}
}

// Segment returns every top-level block of src.
func Segment(src string) []Block {
	return slices.Collect(Blocks(src))
}

// SegmentStreaming repairs a streaming prefix before segmenting it.
func SegmentStreaming(src string) []Block {
	return Segment(Repair(src))
}

type boundary struct {
	start int
	kind  BlockKind
}

// boundaries parses src and returns the start offset and kind of each
// top-level block. The first block always starts at offset 0.
func boundaries(src string) []boundary {
	source := []byte(src)
	doc := parser.Parse(text.NewReader(source))

	var out []boundary
	prevEnd := 0
	var prev ast.Node
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		start, ok := blockStart(src, n)
		if !ok {
			start, ok = nextContentLine(src, prevEnd, prev)
		}
		if !ok {
			continue
		}
		if len(out) == 0 {
			start = 0
		} else if start <= out[len(out)-1].start {
			continue
		}
		out = append(out, boundary{start: start, kind: kindOf(n)})

		if end, found := lastStop(n); found {
			prevEnd = end
		} else {
			prevEnd = lineEnd(src, start)
		}
		prev = n
	}
	return out
}

// blockStart finds the offset of the line a block begins on.
func blockStart(src string, n ast.Node) (int, bool) {
	if fcb, ok := n.(*ast.FencedCodeBlock); ok {
		if fcb.Info != nil {
			return lineStart(src, fcb.Info.Segment.Start), true
		}
		if fcb.Lines().Len() > 0 {
			first := lineStart(src, fcb.Lines().At(0).Start)
			if first == 0 {
				return 0, true
			}
			// The opening fence sits on the line above the first code line.
			return lineStart(src, first-1), true
		}
		return 0, false
	}

	off, ok := firstStart(n)
	if !ok {
		return 0, false
	}
	return lineStart(src, off), true
}

// firstStart returns the smallest source offset recorded in n's subtree.
func firstStart(n ast.Node) (int, bool) {
	if n.Type() == ast.TypeBlock {
		if lines := n.Lines(); lines != nil && lines.Len() > 0 {
			return lines.At(0).Start, true
		}
	}
	if t, ok := n.(*ast.Text); ok {
		return t.Segment.Start, true
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if off, ok := firstStart(c); ok {
			return off, true
		}
	}
	return 0, false
}

// lastStop returns the largest source offset recorded in n's subtree.
func lastStop(n ast.Node) (int, bool) {
	best, found := 0, false
	if n.Type() == ast.TypeBlock {
		if lines := n.Lines(); lines != nil && lines.Len() > 0 {
			best, found = lines.At(lines.Len()-1).Stop, true
		}
	}
	if fcb, ok := n.(*ast.FencedCodeBlock); ok && fcb.Info != nil && fcb.Info.Segment.Stop > best {
		best, found = fcb.Info.Segment.Stop, true
	}
	if t, ok := n.(*ast.Text); ok && t.Segment.Stop > best {
		best, found = t.Segment.Stop, true
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if stop, ok := lastStop(c); ok && stop > best {
			best, found = stop, true
		}
	}
	return best, found
}

// nextContentLine locates blocks that carry no source positions (thematic
// breaks, empty fences): the first non-blank line after the previous block.
// A closing fence that belongs to a preceding code block is skipped.
func nextContentLine(src string, prevEnd int, prev ast.Node) (int, bool) {
	pos := 0
	if prev != nil && prevEnd > 0 {
		// Resume on the line after the one holding the previous block's last byte.
		pos = lineEnd(src, prevEnd-1)
	}
	_, skipFence := prev.(*ast.FencedCodeBlock)

	for pos < len(src) {
		end := lineEnd(src, pos)
		line := strings.TrimSpace(src[pos:end])
		switch {
		case line == "":
		case skipFence && (strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~")):
			skipFence = false
		default:
			return pos, true
		}
		pos = end
	}
	return 0, false
}

// lineStart returns the offset of the first byte of the line containing off.
func lineStart(src string, off int) int {
	if off > len(src) {
		off = len(src)
	}
	return strings.LastIndexByte(src[:off], '\n') + 1
}

// lineEnd returns the offset just past the newline ending the line that
// contains off, or len(src).
func lineEnd(src string, off int) int {
	if off >= len(src) {
		return len(src)
	}
	i := strings.IndexByte(src[off:], '\n')
	if i < 0 {
		return len(src)
	}
	return off + i + 1
}

func kindOf(n ast.Node) BlockKind {
	switch n.Kind() {
	case ast.KindParagraph, ast.KindTextBlock:
		return KindParagraph
	case ast.KindHeading:
		return KindHeading
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		return KindCode
	case ast.KindList:
		return KindList
	case ast.KindBlockquote:
		return KindBlockquote
	case ast.KindThematicBreak:
		return KindHR
	case ast.KindHTMLBlock:
		return KindHTML
	case extast.KindTable:
		return KindTable
	default:
		return KindOther
	}
}
