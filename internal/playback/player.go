// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package playback

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/MoriitoDev/Ollector/internal/backend"
)

// ErrNoPlayer is returned when no audio player command is available.
var ErrNoPlayer = errors.New("no audio player found (install ffmpeg, mpv or alsa-utils, or set playback.command)")

// =============================================================================
// PLAYER DETECTION
// =============================================================================

// invocation describes how to feed audio into a known player.
type invocation struct {
	name     string
	args     []string
	needFile bool // player cannot read stdin
}

// knownPlayers in preference order.
var knownPlayers = []invocation{
	{name: "ffplay", args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-i", "pipe:0"}},
	{name: "mpv", args: []string{"--no-video", "--really-quiet", "-"}},
	{name: "aplay", args: []string{"-q", "-"}},
	{name: "afplay", needFile: true},
}

// DetectPlayer returns the first known player found on PATH.
func DetectPlayer() (string, bool) {
	for _, p := range knownPlayers {
		if _, err := exec.LookPath(p.name); err == nil {
			return p.name, true
		}
	}
	return "", false
}

// =============================================================================
// EXEC PLAYER
// =============================================================================

// ExecPlayer plays audio by piping it into an external player process.
type ExecPlayer struct {
	inv   invocation
	found bool
}

// NewExecPlayer creates a player. An empty command auto-detects a known
// player; otherwise command is split on whitespace and the audio is written
// to its stdin. A command containing "{file}" receives a temp file path there
// instead.
func NewExecPlayer(command string) *ExecPlayer {
	command = strings.TrimSpace(command)
	if command == "" {
		name, ok := DetectPlayer()
		if !ok {
			return &ExecPlayer{}
		}
		for _, p := range knownPlayers {
			if p.name == name {
				return &ExecPlayer{inv: p, found: true}
			}
		}
	}

	fields := strings.Fields(command)
	inv := invocation{name: fields[0], args: fields[1:]}
	for _, a := range inv.args {
		if strings.Contains(a, "{file}") {
			inv.needFile = true
		}
	}
	// A bare known name gets its usual arguments.
	if len(inv.args) == 0 {
		for _, p := range knownPlayers {
			if p.name == inv.name {
				inv = p
			}
		}
	}
	return &ExecPlayer{inv: inv, found: true}
}

// Available reports whether a player command is configured.
func (p *ExecPlayer) Available() bool {
	return p.found
}

// Name returns the player command name.
func (p *ExecPlayer) Name() string {
	return p.inv.name
}

// Play starts the player process and returns immediately.
func (p *ExecPlayer) Play(audio *backend.Audio) (Handle, error) {
	if !p.found {
		return nil, ErrNoPlayer
	}
	if audio == nil || len(audio.Data) == 0 {
		return nil, errors.New("no audio data")
	}

	args := append([]string(nil), p.inv.args...)
	var stdin io.Reader = bytes.NewReader(audio.Data)
	var tmpPath string

	if p.inv.needFile {
		f, err := os.CreateTemp("", "ollector-*"+audioExtension(audio.ContentType))
		if err != nil {
			return nil, err
		}
		tmpPath = f.Name()
		if _, err := f.Write(audio.Data); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return nil, err
		}
		f.Close()

		replaced := false
		for i, a := range args {
			if strings.Contains(a, "{file}") {
				args[i] = strings.ReplaceAll(a, "{file}", tmpPath)
				replaced = true
			}
		}
		if !replaced {
			args = append(args, tmpPath)
		}
		stdin = nil
	}

	cmd := exec.Command(p.inv.name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
		return nil, err
	}

	h := &processHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		h.err = cmd.Wait()
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
		close(h.done)
	}()
	return h, nil
}

// audioExtension maps a content type to a file extension players recognise.
func audioExtension(contentType string) string {
	mt, _, _ := mime.ParseMediaType(contentType)
	switch mt {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/aac":
		return ".aac"
	}
	return ".wav"
}

// processHandle is a running player process.
type processHandle struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	once sync.Once
}

// Stop kills the process and waits for it to exit.
func (h *processHandle) Stop() error {
	var err error
	h.once.Do(func() {
		select {
		case <-h.done:
			return
		default:
		}
		if h.cmd.Process != nil {
			if kerr := h.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				err = kerr
			}
		}
	})
	<-h.done
	return err
}

// Done is closed when the process exits.
func (h *processHandle) Done() <-chan struct{} {
	return h.done
}
