// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - How commands fail.
//
// Commands return errors and never print them. Execute prints the error
// once and exits with the code GetExitCode picks for it.

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MoriitoDev/Ollector/internal/backend"
	"github.com/MoriitoDev/Ollector/internal/config"
	"github.com/MoriitoDev/Ollector/internal/playback"
	"github.com/MoriitoDev/Ollector/internal/session"
)

// Exit codes. 4 and 6 are unused so scripts written against earlier
// releases keep working.
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
	ExitInterrupted   = 130
)

// InputError reports an argument, flag or key the command cannot use.
type InputError struct {
	Name    string
	Value   string
	Problem string
	// Try is a command line that works.
	Try string
}

func (e *InputError) Error() string {
	var sb strings.Builder
	if e.Value != "" {
		fmt.Fprintf(&sb, "%s %q: %s", e.Name, e.Value, e.Problem)
	} else {
		fmt.Fprintf(&sb, "%s: %s", e.Name, e.Problem)
	}
	if e.Try != "" {
		sb.WriteString("\n  try: " + e.Try)
	}
	return sb.String()
}

func missingArg(name, try string) error {
	return &InputError{Name: name, Problem: "missing", Try: try}
}

// NotFoundError reports an id that names nothing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s with id %s", e.Kind, e.ID)
}

// stepError names the step of a command that failed.
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string {
	if e.err == nil {
		return e.step
	}
	return e.step + ": " + e.err.Error()
}

func (e *stepError) Unwrap() error { return e.err }

func failedTo(step string, err error) error {
	return &stepError{step: step, err: err}
}

// DisplayError prints err for a person reading w.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", failText("error:"), describeError(err))
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(w, dim(hint))
	}
}

// describeError turns backend failures into a short sentence.
func describeError(err error) string {
	if ce, ok := answered(err); ok {
		return "the server answered " + ce.Message
	}
	switch {
	case backend.IsUnavailable(err):
		return "the server is not reachable"
	case backend.IsTimeout(err):
		return "the server took too long to answer"
	}
	return err.Error()
}

// answered reports whether err carries an HTTP status from the backend.
func answered(err error) (*backend.ClientError, bool) {
	var ce *backend.ClientError
	if errors.As(err, &ce) && ce.StatusCode != 0 {
		return ce, true
	}
	return nil, false
}

// errorHint suggests a fix for common failures.
func errorHint(err error) string {
	if _, ok := answered(err); !ok && backend.IsUnavailable(err) {
		return "Start one with 'ollector serve' or point --server at a running backend."
	}
	if errors.Is(err, playback.ErrNoPlayer) {
		return "Install ffplay, mpv, aplay or afplay, or set playback.command."
	}
	if GetExitCode(err) == ExitConfigError {
		return "Check the file shown by 'ollector config path'."
	}
	return ""
}

// classifyError names the kind of err for JSON output, with the fields a
// script may want to branch on.
func classifyError(err error) (string, map[string]any) {
	var (
		in   *InputError
		nf   *NotFoundError
		ce   *backend.ClientError
		step *stepError
	)
	switch {
	case errors.As(err, &in):
		return "input", map[string]any{"name": in.Name}
	case errors.As(err, &nf):
		return "not_found", map[string]any{"kind": nf.Kind, "id": nf.ID}
	case errors.As(err, &ce):
		fields := map[string]any{"type": ce.Type.String()}
		if ce.StatusCode != 0 {
			fields["status"] = ce.StatusCode
		}
		return "backend", fields
	case errors.As(err, &step):
		return "step", map[string]any{"step": step.step}
	}
	return "error", nil
}

// GetExitCode picks the process exit code for err.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		in      *InputError
		nf      *NotFoundError
		invalid config.ValidateErrors
		termErr *NotATerminalError
	)
	switch {
	case errors.As(err, &in), errors.As(err, &termErr):
		return ExitUsageError
	case errors.As(err, &nf),
		errors.Is(err, session.ErrSessionNotFound),
		backend.IsNotFound(err):
		return ExitNotFoundError
	case errors.As(err, &invalid):
		return ExitConfigError
	case backend.IsCanceled(err):
		return ExitInterrupted
	case backend.IsTimeout(err):
		return ExitTimeoutError
	case backend.IsUnavailable(err):
		return ExitNetworkError
	}
	if cobraUsage(err) {
		return ExitUsageError
	}
	if strings.Contains(strings.ToLower(err.Error()), "config") {
		return ExitConfigError
	}
	return ExitGeneralError
}

// cobraUsage matches the plain errors cobra returns for bad flags and
// arguments.
func cobraUsage(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return strings.Contains(msg, "accepts ") || strings.Contains(msg, "requires at least")
}
