// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - What the process is attached to.
//
// A terminal gets colors and rendered markdown. Piped output stays plain so
// answers can be redirected to a file unchanged.

package cli

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/MoriitoDev/Ollector/internal/ui/styles"
)

const (
	// defaultWidth is used when stdout is not a terminal.
	defaultWidth = 80

	// minWidth is the narrowest width answers are wrapped to.
	minWidth = 40
)

func stdinIsTerminal() bool  { return term.IsTerminal(int(os.Stdin.Fd())) }
func stdoutIsTerminal() bool { return term.IsTerminal(int(os.Stdout.Fd())) }

// terminalWidth returns the width of stdout, never less than minWidth.
func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	switch {
	case err != nil || w <= 0:
		return defaultWidth
	case w < minWidth:
		return minWidth
	}
	return w
}

// colorProfile is the profile of printed output, detected once.
var colorProfile = sync.OnceValue(func() termenv.Profile {
	return pickProfile(os.Getenv, stdoutIsTerminal(), termenv.ColorProfile)
})

// pickProfile applies NO_COLOR (https://no-color.org/), then FORCE_COLOR,
// then whether stdout is a terminal. detect reports what the terminal
// supports.
func pickProfile(getenv func(string) string, tty bool, detect func() termenv.Profile) termenv.Profile {
	switch {
	case getenv("NO_COLOR") != "":
		return termenv.Ascii
	case getenv("FORCE_COLOR") != "":
		if p := detect(); p != termenv.Ascii {
			return p
		}
		return termenv.ANSI
	case tty:
		return detect()
	}
	return termenv.Ascii
}

// outputTheme returns the theme for printed output.
func outputTheme(mode string) *styles.Theme {
	return styles.NewThemeWithProfile(mode, colorProfile())
}

// NotATerminalError is returned by the interactive commands when stdin is
// redirected.
type NotATerminalError struct {
	Command string
}

func (e *NotATerminalError) Error() string {
	return "ollector " + e.Command + " needs an interactive terminal; use 'ollector ask' in scripts"
}

func requireTerminal(command string) error {
	if !stdinIsTerminal() {
		return &NotATerminalError{Command: command}
	}
	return nil
}
