// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"

	"github.com/muesli/termenv"

	"github.com/MoriitoDev/Ollector/internal/model"
)

// =============================================================================
// THEME CREATION TESTS
// =============================================================================

func TestNewThemeWithProfile_ForcedModes(t *testing.T) {
	dark := NewThemeWithProfile(ModeDark, termenv.TrueColor)
	if !dark.IsDark || !dark.HasTrueColor {
		t.Errorf("dark theme = IsDark %v, HasTrueColor %v", dark.IsDark, dark.HasTrueColor)
	}

	light := NewThemeWithProfile("LIGHT", termenv.ANSI256)
	if light.IsDark || light.HasTrueColor {
		t.Errorf("light theme = IsDark %v, HasTrueColor %v", light.IsDark, light.HasTrueColor)
	}
	if light.Renderer().HasDarkBackground() {
		t.Error("light theme renderer reports a dark background")
	}
}

func TestPlain_NoEscapes(t *testing.T) {
	theme := Plain()

	for name, out := range map[string]string{
		"Error":     theme.Error.Render("boom"),
		"UserLabel": theme.UserLabel.Render("You"),
		"Speaking":  theme.Speaking.Render("[>]"),
	} {
		if strings.Contains(out, "\x1b[") {
			t.Errorf("%s rendered escape sequences: %q", name, out)
		}
	}
}

func TestTrueColor_EmitsEscapes(t *testing.T) {
	theme := NewThemeWithProfile(ModeDark, termenv.TrueColor)
	if out := theme.Error.Render("boom"); !strings.Contains(out, "\x1b[") {
		t.Errorf("Error.Render() = %q, want styled output", out)
	}
}

func TestRoleLabel(t *testing.T) {
	theme := Plain()

	tests := []struct {
		role model.Role
		want string
	}{
		{model.RoleUser, "You"},
		{model.RoleAssistant, "Teacher"},
	}
	for _, tt := range tests {
		if got := theme.RoleLabel(tt.role); got != tt.want {
			t.Errorf("RoleLabel(%q) = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestValidMode(t *testing.T) {
	for _, mode := range []string{"", "auto", "dark", "Light"} {
		if !ValidMode(mode) {
			t.Errorf("ValidMode(%q) = false", mode)
		}
	}
	if ValidMode("neon") {
		t.Error("ValidMode(\"neon\") = true")
	}
}

func TestContentWidth(t *testing.T) {
	tests := []struct {
		width int
		want  int
	}{
		{0, 20},
		{21, 20},
		{40, 38},
		{80, 76},
		{99, 95},
		{160, maxContentWidth},
	}

	theme := Plain()
	for _, tt := range tests {
		theme.SetSize(tt.width, 24)
		if got := theme.ContentWidth(); got != tt.want {
			t.Errorf("ContentWidth() at %d = %d, want %d", tt.width, got, tt.want)
		}
	}
}
