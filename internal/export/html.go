// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports chats to a standalone HTML page. The body is the
// Markdown export converted by goldmark; raw HTML in messages is dropped.
type HTMLExporter struct {
	options  *Options
	markdown *MarkdownExporter
	md       goldmark.Markdown
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{
		options:  opts,
		markdown: NewMarkdownExporter(opts),
		md:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

const htmlStyle = `    <style>
        body { font-family: system-ui, sans-serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
        header { border-bottom: 1px solid #ccc; margin-bottom: 1.5rem; }
        pre { background: #f4f4f4; padding: 0.75rem; overflow-x: auto; }
        blockquote { color: #555; border-left: 3px solid #ccc; margin-left: 0; padding-left: 1rem; }
    </style>
`

// Export converts a document to HTML.
func (e *HTMLExporter) Export(doc *Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	if err := e.md.Convert([]byte(e.markdown.body(doc)), &body); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	title := html.EscapeString(doc.title())
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", title))
	sb.WriteString("    <meta name=\"generator\" content=\"rigrun-transcript\">\n")
	sb.WriteString(htmlStyle)
	sb.WriteString("</head>\n<body>\n")

	sb.WriteString("<header>\n")
	sb.WriteString(fmt.Sprintf("<h1>%s</h1>\n", title))
	if e.options.IncludeMetadata {
		sb.WriteString(fmt.Sprintf("<p>%d messages", len(doc.Messages)))
		if !doc.Chat.CreatedAt.IsZero() {
			sb.WriteString(" &middot; created " + html.EscapeString(formatTimestamp(doc.Chat.CreatedAt)))
		}
		sb.WriteString("</p>\n")
	}
	sb.WriteString("</header>\n<main>\n")
	sb.Write(body.Bytes())
	sb.WriteString("</main>\n</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}
