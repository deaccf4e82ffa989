// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles holds the palette and lipgloss styles of the REPL and the
// TUI.
//
// A Theme owns its own lipgloss renderer, so forcing "dark" or "light" does
// not change the default renderer used elsewhere:
//
//	theme := styles.NewTheme(cfg.UI.Theme)
//	fmt.Println(theme.RoleLabel(model.RoleAssistant))
//
// Plain never emits escape sequences; it is used when output is redirected
// or NO_COLOR is set.
package styles
