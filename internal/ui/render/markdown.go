// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/MoriitoDev/Ollector/internal/ui/styles"
)

// Glamour standard style names.
const (
	StyleDark  = "dark"
	StyleLight = "light"
	StyleASCII = "ascii"
)

// DefaultWidth is the wrap width used before the terminal size is known.
const DefaultWidth = 80

// StyleFor picks the glamour style matching a theme.
func StyleFor(theme *styles.Theme) string {
	switch {
	case theme == nil || theme.ColorProfile == termenv.Ascii:
		return StyleASCII
	case theme.IsDark:
		return StyleDark
	default:
		return StyleLight
	}
}

// Markdown renders markdown with glamour, rebuilding its term renderer when
// the wrap width changes. A disabled or failing renderer returns the input
// unchanged.
//
// Markdown is safe for concurrent use.
type Markdown struct {
	mu      sync.Mutex
	style   string
	width   int
	enabled bool
	tr      *glamour.TermRenderer
}

// NewMarkdown creates a renderer. width <= 0 uses DefaultWidth.
func NewMarkdown(style string, width int, enabled bool) *Markdown {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Markdown{style: style, width: width, enabled: enabled}
}

func (m *Markdown) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetEnabled turns rendering on or off.
func (m *Markdown) SetEnabled(on bool) {
	m.mu.Lock()
	m.enabled = on
	m.mu.Unlock()
}

// SetWidth changes the wrap width; the glamour renderer is rebuilt lazily.
func (m *Markdown) SetWidth(width int) {
	if width <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if width != m.width {
		m.width = width
		m.tr = nil
	}
}

// Render renders content. Leading and trailing blank lines added by glamour
// are trimmed so callers control spacing.
func (m *Markdown) Render(content string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return content
	}
	if m.tr == nil {
		tr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.style),
			glamour.WithWordWrap(m.width),
		)
		if err != nil {
			return content
		}
		m.tr = tr
	}

	out, err := m.tr.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}
