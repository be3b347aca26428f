// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/rigrun-transcript/internal/markdown"
	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/transcript"
	"github.com/jeranaias/rigrun-transcript/internal/tree"
	"github.com/jeranaias/rigrun-transcript/internal/ui/styles"
	"github.com/jeranaias/rigrun-transcript/internal/util"
)

// =============================================================================
// TRANSCRIPT RENDERING
// =============================================================================

// SiblingFunc reports a message's position among its siblings.
// session.Session.SiblingInfo satisfies it.
type SiblingFunc func(id string) (tree.Info, bool)

// View renders messages of a transcript as terminal text. It is shared by
// the TUI and the CLI.
type View struct {
	// Store supplies cached markdown blocks for text parts. Optional.
	Store *transcript.Store

	// Siblings adds "< i/n >" indicators to headers. Optional.
	Siblings SiblingFunc

	// Markdown renders text blocks. Nil prints the raw markdown.
	Markdown *markdown.Renderer

	// Theme styles the output. Nil means plain.
	Theme *styles.Theme

	// Width bounds one-line summaries such as tool inputs. Zero means 80.
	Width int
}

func (v *View) theme() *styles.Theme {
	if v.Theme == nil {
		return styles.PlainTheme()
	}
	return v.Theme
}

func (v *View) width() int {
	if v.Width <= 0 {
		return 80
	}
	return v.Width
}

// Thread renders msgs top to bottom. offsets holds the line at which each
// message starts.
func (v *View) Thread(msgs []model.Message, selected string) (content string, offsets map[string]int) {
	t := v.theme()
	offsets = make(map[string]int, len(msgs))

	var sb strings.Builder
	line := 0
	for i, msg := range msgs {
		if i > 0 {
			sep := t.Separator.Render(strings.Repeat("-", min(v.width(), 40)))
			sb.WriteString(sep + "\n\n")
			line += 2
		}
		offsets[msg.ID] = line

		block := v.Message(msg, msg.ID == selected)
		sb.WriteString(block)
		sb.WriteString("\n")
		line += strings.Count(block, "\n") + 1
	}
	return sb.String(), offsets
}

// Message renders one message: a header line followed by its parts.
func (v *View) Message(msg model.Message, selected bool) string {
	var sb strings.Builder
	sb.WriteString(v.header(msg, selected))
	sb.WriteString("\n")

	if body := v.parts(msg); body != "" {
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (v *View) header(msg model.Message, selected bool) string {
	t := v.theme()

	marker := "  "
	if selected {
		marker = "> "
	}
	h := marker + t.Role(msg.Role).Render(msg.Role.DisplayName())

	if msg.Metadata.Partial {
		h += " " + t.Interrupted.Render("(interrupted)")
	}
	if v.Siblings != nil {
		if info, ok := v.Siblings(msg.ID); ok && len(info.Siblings) > 1 {
			h += "  " + t.Siblings.Render(fmt.Sprintf("< %d/%d >", info.Index+1, len(info.Siblings)))
		}
	}
	if msg.Metadata.Model != "" {
		h += "  " + t.Help.Render(msg.Metadata.Model)
	}

	if selected {
		return t.Selected.Render(h)
	}
	return h
}

func (v *View) parts(msg model.Message) string {
	t := v.theme()
	var out []string
	var sources []model.Part

	for i, p := range msg.Parts {
		switch {
		case p.Type == model.PartText:
			if text := strings.TrimRight(v.text(msg, i), "\n"); strings.TrimSpace(text) != "" {
				out = append(out, text)
			}

		case p.Type == model.PartReasoning:
			if strings.TrimSpace(p.Text) != "" {
				out = append(out, t.Reasoning.Render("Reasoning: "+strings.TrimSpace(p.Text)))
			}

		case p.IsTool():
			out = append(out, v.tool(p))

		case p.Type == model.PartFile:
			name := p.Filename
			if name == "" {
				name = p.URL
			}
			line := "[file] " + name
			if p.MediaType != "" {
				line += " (" + p.MediaType + ")"
			}
			out = append(out, t.Help.Render(line))

		case p.Type == model.PartSourceURL:
			sources = append(sources, p)
		}
	}

	if len(sources) > 0 {
		lines := []string{"Sources:"}
		for _, s := range sources {
			title := s.Title
			if title == "" {
				title = s.URL
			}
			lines = append(lines, "  - "+util.TruncateWidth(title, v.width()-6)+" "+t.Source.Render("<"+s.URL+">"))
		}
		out = append(out, strings.Join(lines, "\n"))
	}
	return strings.Join(out, "\n")
}

// text renders part i. The store's cached blocks are used when the message
// is still in the store with the same text; otherwise the part is segmented
// here.
func (v *View) text(msg model.Message, i int) string {
	part := msg.Parts[i]
	blocks := v.cachedBlocks(msg.ID, i, part.Text)
	if blocks == nil {
		blocks = markdown.Segment(part.Text)
	}

	if v.Markdown == nil {
		var sb strings.Builder
		for _, b := range blocks {
			sb.WriteString(b.Raw)
		}
		return sb.String()
	}
	return v.Markdown.RenderBlocks(blocks)
}

// cachedBlocks asks the store for the blocks of part i. A message that has
// left the store or changed since the snapshot yields nil.
func (v *View) cachedBlocks(id string, i int, text string) (blocks []markdown.Block) {
	if v.Store == nil {
		return nil
	}
	current, ok := v.Store.Message(id)
	if !ok || i >= len(current.Parts) || current.Parts[i].Type != model.PartText || current.Parts[i].Text != text {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err, _ := r.(error)
			var ce *transcript.ContractError
			if !errors.As(err, &ce) {
				panic(r)
			}
			blocks = nil
		}
	}()
	return v.Store.PartBlocks(id, i)
}

func (v *View) tool(p model.Part) string {
	t := v.theme()

	style, indicator := t.ToolPending, styles.StatusIndicators.Pending
	switch p.State {
	case model.StateOutputAvailable:
		style, indicator = t.ToolOK, styles.StatusIndicators.Success
	case model.StateOutputError:
		style, indicator = t.ToolFailed, styles.StatusIndicators.Error
	}

	line := fmt.Sprintf("%s tool %s", indicator, p.ToolName())
	if len(p.Input) > 0 {
		input := util.OneLine(string(p.Input))
		line += " " + util.TruncateWidth(input, max(v.width()-util.StringWidth(line)-1, 10))
	}
	if p.ErrorText != "" {
		line += "\n    error: " + util.OneLine(p.ErrorText)
	}
	return style.Render(line)
}
