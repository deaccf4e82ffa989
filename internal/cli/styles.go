// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Styles of one-shot command output.

package cli

import (
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/MoriitoDev/Ollector/internal/ui/styles"
)

const labelWidth = 18

// palette shares the renderer of the output theme, so NO_COLOR and
// redirection apply to it as well.
type palette struct {
	title, section, label, value lipgloss.Style
	ok, fail, dim, rule          lipgloss.Style
}

var printed = sync.OnceValue(func() palette {
	r := outputTheme(styles.ModeDark).Renderer()
	return palette{
		title:   r.NewStyle().Bold(true).Foreground(styles.Cyan).MarginBottom(1),
		section: r.NewStyle().Bold(true).Foreground(styles.TextPrimary),
		label:   r.NewStyle().Foreground(styles.TextSecondary).Width(labelWidth),
		value:   r.NewStyle().Foreground(styles.TextPrimary),
		ok:      r.NewStyle().Bold(true).Foreground(styles.Emerald),
		fail:    r.NewStyle().Bold(true).Foreground(styles.Rose),
		dim:     r.NewStyle().Foreground(styles.TextMuted),
		rule:    r.NewStyle().Foreground(styles.Overlay),
	}
})

func titleText(s string) string   { return printed().title.Render(s) }
func sectionText(s string) string { return printed().section.Render(s) }
func labelText(s string) string   { return printed().label.Render(s) }
func valueText(s string) string   { return printed().value.Render(s) }
func okText(s string) string      { return printed().ok.Render(s) }
func failText(s string) string    { return printed().fail.Render(s) }
func dim(s string) string         { return printed().dim.Render(s) }

// rule draws a horizontal line width columns wide.
func rule(width int) string {
	return printed().rule.Render(strings.Repeat("-", width))
}
