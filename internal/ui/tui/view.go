// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MoriitoDev/Ollector/internal/model"
	"github.com/MoriitoDev/Ollector/internal/playback"
	"github.com/MoriitoDev/Ollector/internal/ui/styles"
	"github.com/MoriitoDev/Ollector/internal/util"
)

const (
	headerHeight = 1
	statusHeight = 1
	inputHeight  = 3
	minViewport  = 3
)

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	m.width, m.height = width, height
	m.theme.SetSize(width, height)
	m.md.SetWidth(m.theme.ContentWidth())
	m.help.Width = width
	m.input.Width = max(width-8, 10)

	helpHeight := lipgloss.Height(m.help.View(m.keys))
	m.viewport.Width = width
	m.viewport.Height = max(height-headerHeight-statusHeight-inputHeight-helpHeight, minViewport)

	m.rendered = make(map[int]renderedTurn)
	m.ready = true
	m.refreshViewport()
}

// refreshViewport re-renders the transcript, following the bottom when the
// user has not scrolled up.
func (m *Model) refreshViewport() {
	follow := m.viewport.AtBottom() || m.transcript.InProgress()
	m.viewport.SetContent(m.renderTranscript())
	if follow {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m *Model) renderTranscript() string {
	turns := m.transcript.Turns()
	if len(turns) == 0 {
		return m.theme.Muted.Render(
			"Ask a question to start. Press Ctrl+F to study from a PDF or text file.")
	}

	width := m.theme.ContentWidth()
	inProgress := m.transcript.InProgress()
	selected, _, hasSelection := m.selectedTurn()
	state := m.playbackState()

	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}

		marker := "  "
		if hasSelection && i == selected {
			marker = m.theme.Prompt.Render("> ")
		}
		b.WriteString(marker)
		b.WriteString(m.theme.RoleLabel(t.Role))
		if state.IsPlaying(i) {
			if state.Pending {
				b.WriteString(" " + m.theme.Pending.Render(styles.MarkPending))
			} else {
				b.WriteString(" " + m.theme.Speaking.Render(styles.MarkSpeaking))
			}
		}
		b.WriteString("\n")

		last := i == len(turns)-1
		switch {
		case inProgress && last:
			b.WriteString(m.renderStreaming(t.Content, width))
		case t.Role == model.RoleAssistant:
			b.WriteString(m.renderAnswer(i, t.Content, width))
		default:
			b.WriteString(m.theme.Body.Width(width).Render(t.Content))
		}
	}
	return b.String()
}

// renderStreaming shows the in-progress answer as plain text.
func (m *Model) renderStreaming(content string, width int) string {
	if content == "" {
		return m.spinner.View() + m.theme.Muted.Render(" thinking...")
	}
	return m.theme.Streaming.Width(width).Render(content + " " + m.spinner.View())
}

// renderAnswer renders a finalized answer, caching the markdown.
func (m *Model) renderAnswer(i int, content string, width int) string {
	if !m.md.Enabled() {
		return m.theme.Body.Width(width).Render(content)
	}
	if r, ok := m.rendered[i]; ok && r.content == content {
		return r.out
	}
	out := m.md.Render(content)
	m.rendered[i] = renderedTurn{content: content, out: out}
	return out
}

func (m Model) playbackState() playback.State {
	if m.arbiter == nil {
		return playback.Idle
	}
	return m.arbiter.State()
}

// =============================================================================
// SESSION PICKER
// =============================================================================

func (m Model) renderPicker() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Your chats"))
	b.WriteString("\n\n")

	switch {
	case m.loading && len(m.sessions) == 0:
		b.WriteString(m.theme.Muted.Render("Loading..."))
		return b.String()
	case len(m.sessions) == 0:
		b.WriteString(m.theme.Muted.Render("No chats yet. Press Esc and ask a question."))
		return b.String()
	}

	current := m.registry.Current()
	titleWidth := max(m.theme.ContentWidth()-24, 10)
	for i, s := range m.sessions {
		title := util.PadRight(util.TruncateWidth(s.DisplayTitle(), titleWidth), titleWidth)
		line := fmt.Sprintf("%2d. %s  %s", i+1, title, s.UpdatedAt.Local().Format("Jan 02 15:04"))
		if s.HasAttachment {
			line += " [doc]"
		}
		if s.ID == current {
			line += " *"
		}
		if i == m.cursor {
			line = m.theme.Selected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if at := m.registry.LastRefresh(); !at.IsZero() {
		b.WriteString("\n" + m.theme.Muted.Render("as of "+at.Local().Format("15:04:05")))
	}
	return b.String()
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	body := m.viewport.View()
	if m.mode == modeSessions {
		body = m.theme.Renderer().NewStyle().Height(m.viewport.Height).Render(m.renderPicker())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderStatus(),
		m.theme.Input.Width(max(m.width-2, 10)).Render(m.input.View()),
		m.help.View(m.keys),
	)
}

func (m Model) renderHeader() string {
	title := "New chat"
	if id := m.registry.Current(); id != "" {
		title = model.DefaultSessionTitle
		if s, ok := m.registry.Lookup(id); ok {
			title = s.DisplayTitle()
		}
	}
	text := m.theme.HeaderTitle.Render("ollector") + "  " + m.theme.HeaderSubtitle.Render(title)
	return m.theme.Header.Width(m.width).Render(text)
}

func (m Model) renderStatus() string {
	var parts []string
	if m.isSending() {
		parts = append(parts, m.spinner.View()+" answering")
	} else if m.coord.Sending() {
		parts = append(parts, m.theme.Muted.Render("answering in another chat"))
	}
	if state := m.playbackState(); state.Pending {
		parts = append(parts, m.theme.Pending.Render(styles.MarkPending+" preparing audio"))
	} else if state.Playing {
		parts = append(parts, m.theme.Speaking.Render(styles.MarkSpeaking+" reading aloud (Esc stops)"))
	}
	if att := m.coord.Staged(); att != nil {
		parts = append(parts, m.theme.Warning.Render("attached: "+att.Name))
	}
	if m.status != "" {
		parts = append(parts, m.statusStyle().Render(util.TruncateWidth(m.status, max(m.width-4, 10))))
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  "))
}

func (m Model) statusStyle() lipgloss.Style {
	switch m.statusKind {
	case statusSuccess:
		return m.theme.Success
	case statusWarning:
		return m.theme.Warning
	case statusError:
		return m.theme.Error
	default:
		return m.theme.Notice
	}
}
