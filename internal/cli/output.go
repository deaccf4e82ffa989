// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// output.go - Machine readable output.
//
// A command run with --json prints exactly one response document on
// stdout, whether it succeeds or fails.

package cli

import (
	"encoding/json"
	"io"
	"time"
)

// response is the document a --json command prints.
type response struct {
	OK      bool           `json:"ok"`
	Command string         `json:"command"`
	Data    any            `json:"data,omitempty"`
	Error   *errorDocument `json:"error,omitempty"`
	Time    time.Time      `json:"time"`
}

// errorDocument describes a failure for scripts.
type errorDocument struct {
	Message  string         `json:"message"`
	Kind     string         `json:"kind"`
	ExitCode int            `json:"exitCode"`
	Fields   map[string]any `json:"fields,omitempty"`
}

func success(command string, data any) response {
	return response{OK: true, Command: command, Data: data, Time: time.Now().UTC()}
}

func failure(command string, err error) response {
	kind, fields := classifyError(err)
	return response{
		Command: command,
		Error: &errorDocument{
			Message:  describeError(err),
			Kind:     kind,
			ExitCode: GetExitCode(err),
			Fields:   fields,
		},
		Time: time.Now().UTC(),
	}
}

func (r response) write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// respond runs produce and, in JSON mode, prints its outcome as a response.
// In text mode produce prints for itself. The error is returned either way.
func respond(w io.Writer, jsonMode bool, command string, produce func() (any, error)) error {
	data, err := produce()
	if !jsonMode {
		return err
	}
	if err != nil {
		_ = failure(command, err).write(w)
		return &reportedError{err}
	}
	return success(command, data).write(w)
}

// reportedError marks an error already printed as JSON; Execute only turns
// it into an exit code.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }
