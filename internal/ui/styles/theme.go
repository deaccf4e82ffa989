// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/MoriitoDev/Ollector/internal/model"
)

// =============================================================================
// THEME MODES
// =============================================================================

const (
	ModeAuto  = "auto"
	ModeDark  = "dark"
	ModeLight = "light"
)

// ValidMode reports whether mode is a known theme mode. Empty means auto.
func ValidMode(mode string) bool {
	switch strings.ToLower(mode) {
	case "", ModeAuto, ModeDark, ModeLight:
		return true
	}
	return false
}

// =============================================================================
// THEME
// =============================================================================

// Theme holds the styles for one terminal. Styles are built on a dedicated
// lipgloss renderer so a forced dark or light mode does not leak into the
// default renderer.
type Theme struct {
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	renderer *lipgloss.Renderer

	// Header
	Header         lipgloss.Style
	HeaderTitle    lipgloss.Style
	HeaderSubtitle lipgloss.Style

	// Transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Body           lipgloss.Style
	Streaming      lipgloss.Style
	Muted          lipgloss.Style

	// Notices
	Notice  lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style

	// Playback
	Speaking lipgloss.Style
	Pending  lipgloss.Style

	// Chrome
	StatusBar lipgloss.Style
	Input     lipgloss.Style
	Prompt    lipgloss.Style
	Selected  lipgloss.Style
	Separator lipgloss.Style
}

// NewTheme detects the terminal and builds a theme. mode is "auto", "dark"
// or "light"; anything else is treated as auto.
func NewTheme(mode string) *Theme {
	return NewThemeWithProfile(mode, termenv.ColorProfile())
}

// NewThemeWithProfile builds a theme for a known color profile. Auto mode
// still queries the terminal for its background.
func NewThemeWithProfile(mode string, profile termenv.Profile) *Theme {
	var isDark bool
	switch strings.ToLower(mode) {
	case ModeDark:
		isDark = true
	case ModeLight:
		isDark = false
	default:
		isDark = termenv.HasDarkBackground()
	}

	r := lipgloss.NewRenderer(os.Stdout)
	r.SetColorProfile(profile)
	r.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
		renderer:     r,
	}
	t.initStyles()
	return t
}

// Plain returns a theme that never emits escape sequences.
func Plain() *Theme {
	return NewThemeWithProfile(ModeDark, termenv.Ascii)
}

// Renderer returns the lipgloss renderer backing the theme.
func (t *Theme) Renderer() *lipgloss.Renderer {
	return t.renderer
}

func (t *Theme) initStyles() {
	s := t.renderer.NewStyle

	t.Header = s().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = s().Bold(true).Foreground(Purple)
	t.HeaderSubtitle = s().Foreground(TextSecondary).Italic(true)

	t.UserLabel = s().Bold(true).Foreground(Cyan)
	t.AssistantLabel = s().Bold(true).Foreground(Purple)
	t.Body = s().Foreground(TextPrimary)
	t.Streaming = s().Foreground(TextPrimary)
	t.Muted = s().Foreground(TextMuted)

	t.Notice = s().Foreground(TextSecondary).Italic(true)
	t.Error = s().Foreground(Rose).Bold(true)
	t.Success = s().Foreground(Emerald)
	t.Warning = s().Foreground(Amber)

	t.Speaking = s().Foreground(Emerald).Bold(true)
	t.Pending = s().Foreground(Amber)

	t.StatusBar = s().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)
	t.Input = s().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.Prompt = s().Bold(true).Foreground(Cyan)
	t.Selected = s().Foreground(TextPrimary).Background(SelectionBg).Bold(true)
	t.Separator = s().Foreground(Overlay)
}

// =============================================================================
// ROLE HELPERS
// =============================================================================

// RoleStyle returns the label style for a transcript role.
func (t *Theme) RoleStyle(r model.Role) lipgloss.Style {
	if r == model.RoleUser {
		return t.UserLabel
	}
	return t.AssistantLabel
}

// RoleLabel renders the display name of a role.
func (t *Theme) RoleLabel(r model.Role) string {
	return t.RoleStyle(r).Render(r.DisplayName())
}

// SetSize records the terminal size.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// ContentWidth is the width transcript text wraps at. Wide terminals cap it
// at maxContentWidth so lines stay readable.
func (t *Theme) ContentWidth() int {
	switch {
	case t.Width < 60:
		return max(t.Width-2, 20)
	case t.Width < 100:
		return t.Width - 4
	}
	return maxContentWidth
}

const maxContentWidth = 100
