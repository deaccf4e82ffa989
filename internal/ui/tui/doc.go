// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package tui provides the full-screen Bubble Tea interface of ollector.

The model renders the transcript of the current session, streams answers as
they arrive, lets the user switch sessions, stage a document for the next
question and read an answer aloud.

# Key Types

  - Model: The Bubble Tea model (textinput, viewport, spinner and help from bubbles)
  - Bridge: Turns chat core callbacks into Bubble Tea messages; also the chat.Input
  - KeyMap: Keyboard bindings

# Keys

	Enter    send the question (or run a /command)
	Ctrl+O   pick a chat          Ctrl+N   start a new chat
	Ctrl+F   attach a file        Ctrl+S   read the selected answer aloud
	Alt+Up   previous answer      Alt+Down next answer
	Esc      stop reading / back  Ctrl+C   quit

# Usage

	bridge := tui.NewBridge()
	coord := chat.NewCoordinator(client, registry, chat.Options{
		Input:      bridge,
		OnComplete: bridge.Complete,
	})
	err := tui.Run(ctx, tui.Options{
		Registry:    registry,
		Coordinator: coord,
		Arbiter:     arbiter,
		Bridge:      bridge,
		Theme:       styles.NewTheme(cfg.UI.Theme),
	})
*/
package tui
