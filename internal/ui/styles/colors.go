// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// Palette. Every color has a light and a dark variant.
var (
	Cyan    = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"} // brand, "You"
	Purple  = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"} // "Teacher"
	Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"} // speaking, done
	Amber   = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"} // pending audio, attachments
	Rose    = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"} // failed sends

	SurfaceDim  = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}
	Overlay     = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}
	SelectionBg = lipgloss.AdaptiveColor{Light: "#BFDBFE", Dark: "#1E3A5F"}

	TextPrimary   = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}
)

// Marks sit next to colored text so no state is shown by color alone.
const (
	MarkOK       = "[OK]"
	MarkFailed   = "[X]"
	MarkPending  = "[..]"
	MarkSpeaking = "[>]"
)
