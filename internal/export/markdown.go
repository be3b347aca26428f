// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigrun-transcript/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports chats to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

type frontmatter struct {
	Title      string   `yaml:"title"`
	Chat       string   `yaml:"chat"`
	Visibility string   `yaml:"visibility,omitempty"`
	Models     []string `yaml:"models,omitempty"`
	Date       string   `yaml:"date,omitempty"`
	Messages   int      `yaml:"messages"`
	Exported   string   `yaml:"exported"`
	Generator  string   `yaml:"generator"`
}

// Export converts a document to Markdown.
func (e *MarkdownExporter) Export(doc *Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		fm, err := e.frontmatter(doc)
		if err != nil {
			return nil, err
		}
		sb.WriteString("---\n")
		sb.Write(fm)
		sb.WriteString("---\n\n")
	}

	sb.WriteString(fmt.Sprintf("# %s\n\n", escapeMarkdown(doc.title())))
	sb.WriteString(e.body(doc))
	return []byte(sb.String()), nil
}

// body renders the messages without frontmatter or title.
func (e *MarkdownExporter) body(doc *Document) string {
	var sb strings.Builder
	for i, msg := range doc.Messages {
		label := msg.Role.DisplayName()
		if msg.Metadata.Partial {
			label += " (interrupted)"
		}
		if e.options.IncludeTimestamps && !msg.Metadata.CreatedAt.IsZero() {
			sb.WriteString(fmt.Sprintf("### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Metadata.CreatedAt)))
		} else {
			sb.WriteString(fmt.Sprintf("### %s\n\n", label))
		}

		sb.WriteString(e.renderParts(msg.Parts))

		if i < len(doc.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}
	return sb.String()
}

func (e *MarkdownExporter) frontmatter(doc *Document) ([]byte, error) {
	fm := frontmatter{
		Title:      doc.title(),
		Chat:       doc.Chat.ID,
		Visibility: string(doc.Chat.Visibility),
		Models:     models(doc.Messages),
		Messages:   len(doc.Messages),
		Exported:   doc.Exported.Format(time.RFC3339),
		Generator:  "rigrun-transcript",
	}
	if !doc.Chat.CreatedAt.IsZero() {
		fm.Date = doc.Chat.CreatedAt.Format(time.RFC3339)
	}
	out, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	return out, nil
}

// models lists the distinct assistant models in order of first use.
func models(msgs []model.Message) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range msgs {
		if id := m.Metadata.Model; id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// =============================================================================
// PART RENDERING
// =============================================================================

func (e *MarkdownExporter) renderParts(parts []model.Part) string {
	var sb strings.Builder
	var sources []model.Part

	for _, p := range parts {
		switch {
		case p.Type == model.PartText:
			if text := strings.TrimSpace(p.Text); text != "" {
				sb.WriteString(text)
				sb.WriteString("\n\n")
			}

		case p.Type == model.PartReasoning:
			if !e.options.IncludeReasoning || strings.TrimSpace(p.Text) == "" {
				continue
			}
			sb.WriteString("> **Reasoning**\n>\n")
			for _, line := range strings.Split(strings.TrimSpace(p.Text), "\n") {
				sb.WriteString("> " + line + "\n")
			}
			sb.WriteString("\n")

		case p.IsTool():
			sb.WriteString(formatToolPart(p))

		case p.Type == model.PartFile:
			name := p.Filename
			if name == "" {
				name = p.URL
			}
			if strings.HasPrefix(p.MediaType, "image/") {
				sb.WriteString(fmt.Sprintf("![%s](%s)\n\n", name, p.URL))
			} else {
				sb.WriteString(fmt.Sprintf("[%s](%s)\n\n", name, p.URL))
			}

		case p.Type == model.PartSourceURL:
			sources = append(sources, p)
		}
		// step-start and data-* parts carry no readable content.
	}

	if len(sources) > 0 {
		sb.WriteString("**Sources**\n\n")
		for _, s := range sources {
			title := s.Title
			if title == "" {
				title = s.URL
			}
			sb.WriteString(fmt.Sprintf("- [%s](%s)\n", escapeMarkdown(title), s.URL))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatToolPart formats a tool call with its input and output.
func formatToolPart(p model.Part) string {
	var sb strings.Builder

	status := ""
	switch p.State {
	case model.StateOutputAvailable:
		status = " [OK]"
	case model.StateOutputError:
		status = " [FAIL]"
	case model.StateInputStreaming, model.StateInputAvailable:
		status = " [PENDING]"
	}
	sb.WriteString(fmt.Sprintf("**Tool**: `%s`%s\n\n", p.ToolName(), status))

	if len(p.Input) > 0 {
		sb.WriteString("**Input**:\n```json\n")
		sb.WriteString(prettyJSON(p.Input))
		sb.WriteString("\n```\n\n")
	}
	if len(p.Output) > 0 {
		sb.WriteString("**Result**:\n```json\n")
		sb.WriteString(prettyJSON(p.Output))
		sb.WriteString("\n```\n\n")
	}
	if p.ErrorText != "" {
		sb.WriteString(fmt.Sprintf("**Error**: %s\n\n", p.ErrorText))
	}
	return sb.String()
}

func prettyJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	// Only escape characters that would break formatting in titles/headings
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}
