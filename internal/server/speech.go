// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrSpeechUnavailable is returned when no synthesizer is configured or its
// program is missing.
var ErrSpeechUnavailable = errors.New("speech synthesis unavailable")

// MaxSpeechChars bounds the text accepted by one synthesis request.
const MaxSpeechChars = 20000

// Speaker turns text into audio.
type Speaker interface {
	// Speak returns the audio bytes and their MIME type.
	Speak(ctx context.Context, text string) ([]byte, string, error)
}

// CommandSpeaker runs an external program that reads text on stdin and writes
// WAV audio to stdout, e.g. "espeak-ng --stdout" or "piper --output_file -".
type CommandSpeaker struct {
	argv        []string
	contentType string
}

// NewCommandSpeaker parses a command line. An empty command yields a speaker
// that always reports ErrSpeechUnavailable.
func NewCommandSpeaker(command string) *CommandSpeaker {
	return &CommandSpeaker{argv: strings.Fields(command), contentType: "audio/wav"}
}

// Speak implements Speaker.
func (s *CommandSpeaker) Speak(ctx context.Context, text string) ([]byte, string, error) {
	if len(s.argv) == 0 {
		return nil, "", ErrSpeechUnavailable
	}
	path, err := exec.LookPath(s.argv[0])
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s not found", ErrSpeechUnavailable, s.argv[0])
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, s.argv[1:]...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, "", fmt.Errorf("%s: %s", s.argv[0], msg)
	}
	if stdout.Len() == 0 {
		return nil, "", fmt.Errorf("%s produced no audio", s.argv[0])
	}
	return stdout.Bytes(), s.contentType, nil
}
