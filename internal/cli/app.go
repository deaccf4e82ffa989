// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Builds the client side components from the loaded config.

package cli

import (
	"github.com/MoriitoDev/Ollector/internal/backend"
	"github.com/MoriitoDev/Ollector/internal/chat"
	"github.com/MoriitoDev/Ollector/internal/logging"
	"github.com/MoriitoDev/Ollector/internal/playback"
	"github.com/MoriitoDev/Ollector/internal/session"
	"github.com/MoriitoDev/Ollector/internal/ui/render"
	"github.com/MoriitoDev/Ollector/internal/ui/styles"
)

// newClient builds the backend client for the [client] section.
func (a *app) newClient() *backend.Client {
	cc := a.cfg.Client
	return backend.NewClient(&backend.ClientConfig{
		BaseURL:           cc.ServerURL,
		SpeechURL:         cc.SpeechURL,
		Timeout:           cc.Timeout(),
		ConnectTimeout:    cc.ConnectTimeout(),
		MaxRetries:        cc.MaxRetries,
		RequestsPerSecond: cc.RequestsPerSecond,
		UserAgent:         "ollector/" + a.info.Version,
		Logger:            logging.With("backend"),
	})
}

// core is the chat core shared by the REPL and the TUI.
type core struct {
	client   *backend.Client
	registry *session.Registry
	coord    *chat.Coordinator
	// arbiter is nil when read-aloud is disabled.
	arbiter *playback.Arbiter
}

// newCore wires the registry, the coordinator and the arbiter around one
// client.
func (a *app) newCore(input chat.Input, onComplete func(chat.Result)) *core {
	client := a.newClient()
	registry := session.NewRegistry(client, logging.With("session"))
	coord := chat.NewCoordinator(client, registry, chat.Options{
		Input:      input,
		OnComplete: onComplete,
		Logger:     logging.With("chat"),
	})
	return &core{
		client:   client,
		registry: registry,
		coord:    coord,
		arbiter:  a.newArbiter(client),
	}
}

// newArbiter returns nil when playback is disabled. A missing player is
// reported when the user first asks for audio.
func (a *app) newArbiter(synth playback.Synthesizer) *playback.Arbiter {
	if !a.cfg.Playback.Enabled {
		return nil
	}
	player := playback.NewExecPlayer(a.cfg.Playback.Command)
	logging.Debug("audio player", "name", player.Name(), "available", player.Available())
	return playback.NewArbiter(synth, player, logging.With("playback"))
}

// theme returns the theme for printed output.
func (a *app) theme() *styles.Theme {
	return outputTheme(a.cfg.UI.Theme)
}

// markdown returns the answer renderer for printed output. Rendering is off
// when stdout is not a terminal so redirected answers stay raw.
func (a *app) markdown(theme *styles.Theme) *render.Markdown {
	return render.NewMarkdown(render.StyleFor(theme), terminalWidth()-2, a.cfg.UI.Markdown && stdoutIsTerminal())
}
