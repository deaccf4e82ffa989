// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// commandHelp lists the slash commands understood by the input line.
const commandHelp = "/new  /open [n|id]  /attach <file>  /detach  /speak  /stop  /help  /quit"

// runCommand executes a slash command typed into the input line.
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	arg := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	m.input.Reset()

	switch name {
	case "new", "n":
		m.newSession()
		return m, nil

	case "open", "o", "sessions":
		if arg == "" {
			return m.openPicker()
		}
		id := arg
		if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(m.sessions) {
			id = m.sessions[n-1].ID
		}
		return m, m.openSession(id)

	case "attach", "a":
		if arg == "" {
			m.setStatus(statusWarning, "Usage: /attach <file>")
			return m, nil
		}
		m.attach(arg)
		return m, nil

	case "detach":
		if m.coord.Staged() == nil {
			m.setStatus(statusInfo, "Nothing is attached.")
			return m, nil
		}
		m.coord.Stage(nil)
		m.setStatus(statusInfo, "Attachment removed.")
		return m, nil

	case "speak", "s":
		if n, err := strconv.Atoi(arg); err == nil {
			m.selectNth(n)
		}
		return m.speak()

	case "stop":
		if m.arbiter != nil {
			m.arbiter.Stop()
		}
		return m, nil

	case "help", "h", "?":
		m.setStatus(statusInfo, commandHelp)
		return m, nil

	case "quit", "q", "exit":
		if m.arbiter != nil {
			m.arbiter.Stop()
		}
		return m, tea.Quit
	}

	m.setStatus(statusWarning, "Unknown command /"+name+". "+commandHelp)
	return m, nil
}

// selectNth targets the nth answer (1-based) for read-aloud.
func (m *Model) selectNth(n int) {
	idx := m.assistantTurns()
	if n < 1 || n > len(idx) {
		return
	}
	m.selected = idx[n-1]
}
