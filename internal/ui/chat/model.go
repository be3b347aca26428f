// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigrun-transcript/internal/markdown"
	"github.com/jeranaias/rigrun-transcript/internal/model"
	"github.com/jeranaias/rigrun-transcript/internal/session"
	"github.com/jeranaias/rigrun-transcript/internal/transcript"
	"github.com/jeranaias/rigrun-transcript/internal/tree"
	"github.com/jeranaias/rigrun-transcript/internal/ui/styles"
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the transcript viewer.
//
// It draws the store's throttled snapshot, never the live message list, so
// a fast stream repaints at most once per notification window.
type Model struct {
	sess   *session.Session
	bridge *Bridge
	view   View
	theme  *styles.Theme
	keys   KeyMap
	help   help.Model

	viewport viewport.Model
	title    string

	messages []model.Message
	status   transcript.Status
	err      error
	selected int
	offsets  map[string]int
	notice   string

	width  int
	height int
	ready  bool
}

// New creates a viewer for sess. renderer may be nil for raw markdown.
func New(sess *session.Session, title string, renderer *markdown.Renderer, theme *styles.Theme) Model {
	if theme == nil {
		theme = styles.NewTheme()
	}
	store := sess.Store()

	m := Model{
		sess:   sess,
		bridge: NewBridge(store),
		view: View{
			Store:    store,
			Siblings: sess.SiblingInfo,
			Markdown: renderer,
			Theme:    theme,
		},
		theme:    theme,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		viewport: viewport.New(80, 20),
		title:    title,
		messages: store.ThrottledMessages(),
		status:   store.Status(),
		err:      store.Err(),
	}
	m.selected = max(len(m.messages)-1, 0)
	return m
}

// Close releases the store subscription.
func (m Model) Close() {
	m.bridge.Close()
}

// Selected returns the id of the selected message.
func (m Model) Selected() (string, bool) {
	if m.selected < 0 || m.selected >= len(m.messages) {
		return "", false
	}
	return m.messages[m.selected].ID, true
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// savedMsg reports the result of an auto-save.
type savedMsg struct {
	err error
}

// Init starts listening for store snapshots and the auto-save ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.bridge.Wait(), session.TickCmd())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-m.chromeHeight(), 1)
		m.view.Width = msg.Width
		m.help.Width = msg.Width
		m.ready = true
		m.refresh()
		m.scrollToSelected()
		return m, nil

	case SnapshotMsg:
		m.applySnapshot(msg.Snapshot)
		return m, m.bridge.Wait()

	case session.TickMsg:
		return m, m.sess.HandleTick()

	case session.AutoSaveMsg:
		sess := m.sess
		return m, func() tea.Msg {
			return savedMsg{err: sess.Save(context.Background())}
		}

	case savedMsg:
		if msg.err != nil {
			m.notice = "auto-save failed: " + msg.err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) applySnapshot(snap transcript.Snapshot) {
	prev, hadSelection := m.Selected()
	m.messages = snap.Messages
	m.status = snap.Status
	m.err = snap.Err

	// Sibling navigation swaps the selected message for its sibling at the
	// same depth, so a vanished selection keeps its index.
	m.selected = min(m.selected, max(len(m.messages)-1, 0))
	if hadSelection {
		for i, msg := range m.messages {
			if msg.ID == prev {
				m.selected = i
				break
			}
		}
	}
	m.refresh()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.bridge.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		m.moveSelection(-1)

	case key.Matches(msg, m.keys.Down):
		m.moveSelection(1)

	case key.Matches(msg, m.keys.Home):
		m.moveSelection(-len(m.messages))

	case key.Matches(msg, m.keys.End):
		m.moveSelection(len(m.messages))

	case key.Matches(msg, m.keys.Prev):
		m.navigate(tree.Prev)

	case key.Matches(msg, m.keys.Next):
		m.navigate(tree.Next)

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.viewport.Height = max(m.height-m.chromeHeight(), 1)
	}
	return m, nil
}

func (m *Model) moveSelection(delta int) {
	if len(m.messages) == 0 {
		return
	}
	m.selected = min(max(m.selected+delta, 0), len(m.messages)-1)
	m.notice = ""
	m.refresh()
	m.scrollToSelected()
}

// navigate switches the selected message to its previous or next sibling.
// The new thread arrives through the store subscription.
func (m *Model) navigate(dir tree.Direction) {
	id, ok := m.Selected()
	if !ok {
		return
	}
	if info, ok := m.sess.SiblingInfo(id); !ok || len(info.Siblings) < 2 {
		m.notice = "no other versions of this message"
		return
	}
	if _, err := m.sess.NavigateToSibling(id, dir); err != nil {
		m.notice = fmt.Sprintf("cannot switch branch: %v", err)
		return
	}
	m.notice = ""
}

// refresh re-renders the thread into the viewport.
func (m *Model) refresh() {
	id, _ := m.Selected()
	content, offsets := m.view.Thread(m.messages, id)
	m.offsets = offsets
	m.viewport.SetContent(content)
}

func (m *Model) scrollToSelected() {
	id, ok := m.Selected()
	if !ok {
		return
	}
	off := m.offsets[id]
	if off < m.viewport.YOffset || off >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(off)
	}
}

// =============================================================================
// VIEW
// =============================================================================

// chromeHeight is the number of lines outside the viewport.
func (m Model) chromeHeight() int {
	return 2 + lipgloss.Height(m.help.View(m.keys))
}

// View renders the viewer.
func (m Model) View() string {
	if !m.ready {
		return "Loading transcript..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.viewport.View(),
		m.statusView(),
		m.help.View(m.keys),
	)
}

func (m Model) headerView() string {
	style, indicator := m.theme.Status(m.status)
	status := style.Render(fmt.Sprintf("%s %s", indicator, m.status))
	title := m.title
	if title == "" {
		title = "Conversation"
	}
	return m.theme.Header.Width(m.width).Render(title + "  " + status)
}

func (m Model) statusView() string {
	var text string
	switch {
	case m.err != nil:
		text = m.theme.Error.Render("error: " + m.err.Error())
	case m.notice != "":
		text = m.notice
	case len(m.messages) == 0:
		text = "empty transcript"
	default:
		text = fmt.Sprintf("message %d/%d", m.selected+1, len(m.messages))
	}
	return m.theme.StatusBar.Width(m.width).Render(text)
}

// =============================================================================
// PROGRAM
// =============================================================================

// Run runs the viewer until the user quits or ctx is done.
func Run(ctx context.Context, m Model) error {
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
