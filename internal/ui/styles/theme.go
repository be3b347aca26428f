// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/transcript"
)

// Theme holds the styles used to draw a transcript.
type Theme struct {
	// Plain disables all styling, for non-terminal output.
	Plain bool

	Header    lipgloss.Style
	StatusBar lipgloss.Style
	Help      lipgloss.Style

	RoleUser      lipgloss.Style
	RoleAssistant lipgloss.Style
	RoleSystem    lipgloss.Style
	RoleTool      lipgloss.Style

	Selected    lipgloss.Style
	Siblings    lipgloss.Style
	Interrupted lipgloss.Style
	Reasoning   lipgloss.Style
	ToolOK      lipgloss.Style
	ToolFailed  lipgloss.Style
	ToolPending lipgloss.Style
	Source      lipgloss.Style
	Separator   lipgloss.Style
	Error       lipgloss.Style

	StatusReady     lipgloss.Style
	StatusStreaming lipgloss.Style
	StatusError     lipgloss.Style
}

// NewTheme builds the colored theme.
func NewTheme() *Theme {
	return &Theme{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(TextPrimary).
			Background(SurfaceDim).
			Padding(0, 1),
		StatusBar: lipgloss.NewStyle().
			Foreground(TextSecondary).
			Background(SurfaceDim).
			Padding(0, 1),
		Help: lipgloss.NewStyle().Foreground(TextMuted),

		RoleUser:      lipgloss.NewStyle().Bold(true).Foreground(Cyan),
		RoleAssistant: lipgloss.NewStyle().Bold(true).Foreground(Purple),
		RoleSystem:    lipgloss.NewStyle().Bold(true).Foreground(Amber),
		RoleTool:      lipgloss.NewStyle().Bold(true).Foreground(TextSecondary),

		Selected:    lipgloss.NewStyle().Background(SelectionBg),
		Siblings:    lipgloss.NewStyle().Foreground(Cyan),
		Interrupted: lipgloss.NewStyle().Italic(true).Foreground(Amber),
		Reasoning:   lipgloss.NewStyle().Italic(true).Foreground(TextMuted),
		ToolOK:      lipgloss.NewStyle().Foreground(Emerald),
		ToolFailed:  lipgloss.NewStyle().Foreground(Rose),
		ToolPending: lipgloss.NewStyle().Foreground(Amber),
		Source:      lipgloss.NewStyle().Underline(true).Foreground(TextSecondary),
		Separator:   lipgloss.NewStyle().Foreground(Overlay),
		Error:       lipgloss.NewStyle().Bold(true).Foreground(Rose),

		StatusReady:     lipgloss.NewStyle().Foreground(Emerald),
		StatusStreaming: lipgloss.NewStyle().Foreground(Amber),
		StatusError:     lipgloss.NewStyle().Foreground(Rose),
	}
}

// PlainTheme returns a theme whose styles render text unchanged.
func PlainTheme() *Theme {
	s := lipgloss.NewStyle()
	return &Theme{
		Plain:  true,
		Header: s, StatusBar: s, Help: s,
		RoleUser: s, RoleAssistant: s, RoleSystem: s, RoleTool: s,
		Selected: s, Siblings: s, Interrupted: s, Reasoning: s,
		ToolOK: s, ToolFailed: s, ToolPending: s, Source: s, Separator: s, Error: s,
		StatusReady: s, StatusStreaming: s, StatusError: s,
	}
}

// Role returns the heading style for a role.
func (t *Theme) Role(r model.Role) lipgloss.Style {
	switch r {
	case model.RoleUser:
		return t.RoleUser
	case model.RoleAssistant:
		return t.RoleAssistant
	case model.RoleSystem:
		return t.RoleSystem
	default:
		return t.RoleTool
	}
}

// Status returns the style and ASCII indicator for a store status.
func (t *Theme) Status(s transcript.Status) (lipgloss.Style, string) {
	switch s {
	case transcript.StatusStreaming, transcript.StatusSubmitted:
		return t.StatusStreaming, StatusIndicators.Active
	case transcript.StatusError:
		return t.StatusError, StatusIndicators.Error
	default:
		return t.StatusReady, StatusIndicators.Success
	}
}
