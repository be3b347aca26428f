// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// =============================================================================
// TERMINAL RENDERING
// =============================================================================

// Style names accepted by NewRenderer.
const (
	StyleAuto  = "auto"
	StyleDark  = "dark"
	StyleLight = "light"
	StyleNoTTY = "notty"
	StyleASCII = "ascii"
)

// RenderOptions configures a Renderer.
type RenderOptions struct {
	// Style is one of the Style* constants. Empty means auto.
	Style string

	// WordWrap is the column to wrap at. Zero disables wrapping.
	WordWrap int
}

// Renderer turns markdown into styled terminal output.
// A nil or failed renderer falls back to the raw markdown.
type Renderer struct {
	tr *glamour.TermRenderer
}

// NewRenderer creates a glamour-backed renderer.
func NewRenderer(opts RenderOptions) (*Renderer, error) {
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(resolveStyle(opts.Style)),
		glamour.WithWordWrap(opts.WordWrap),
	)
	if err != nil {
		return nil, err
	}
	return &Renderer{tr: tr}, nil
}

// resolveStyle picks dark or light for auto using the terminal background.
func resolveStyle(style string) string {
	switch style {
	case "", StyleAuto:
		if termenv.HasDarkBackground() {
			return StyleDark
		}
		return StyleLight
	default:
		return style
	}
}

// Render renders one markdown document.
// Returns the original content if rendering fails or the renderer is nil.
func (r *Renderer) Render(content string) string {
	if r == nil || r.tr == nil {
		return content
	}
	out, err := r.tr.Render(content)
	if err != nil {
		return content
	}
	return out
}

// RenderBlocks renders each block on its own and joins the results.
// Rendering per block keeps finished blocks byte-stable while the last one
// is still streaming.
func (r *Renderer) RenderBlocks(blocks []Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		sb.WriteString(r.Render(b.Raw))
	}
	return sb.String()
}
