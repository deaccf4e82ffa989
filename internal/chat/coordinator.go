// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/MoriitoDev/Ollector/internal/backend"
	"github.com/MoriitoDev/Ollector/internal/logging"
	"github.com/MoriitoDev/Ollector/internal/model"
	"github.com/MoriitoDev/Ollector/internal/stream"
)

// DefaultErrorNotice replaces the answer of a failed submission.
const DefaultErrorNotice = "Sorry, something went wrong while getting the answer. Please try again."

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyInput is returned when the submitted text is blank.
	ErrEmptyInput = errors.New("chat: empty input")

	// ErrBusy is returned when a submission is already in flight for the
	// same transcript.
	ErrBusy = errors.New("chat: submission already in flight")
)

// =============================================================================
// STATE
// =============================================================================

// State is the submission state of one transcript.
type State int

const (
	StateIdle State = iota
	StateSending
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Input is the text entry the user types into.
type Input interface {
	Clear()
	SetEnabled(enabled bool)
}

// Sender posts a message and returns the streamed answer body.
type Sender interface {
	SendMessage(ctx context.Context, id, text string, att *backend.Attachment) (io.ReadCloser, error)
}

// Sessions is the part of the session registry the coordinator uses.
type Sessions interface {
	Active() (string, *model.Transcript)
	Create(ctx context.Context) (string, error)
	Adopt(id string, tr *model.Transcript) bool
	Refresh(ctx context.Context)
}

// Result describes a finished submission.
type Result struct {
	SessionID  string
	Transcript *model.Transcript
	Stats      stream.Stats
	Duration   time.Duration
	Err        error
}

// Options configures a Coordinator.
type Options struct {
	// Input is cleared and disabled while a submission is in flight.
	Input Input

	// ErrorNotice replaces the answer on failure (default: DefaultErrorNotice).
	ErrorNotice string

	// OnStateChange is called after every state transition.
	OnStateChange func(tr *model.Transcript, state State)

	// OnComplete is called once per submission after it settles.
	OnComplete func(Result)

	Logger *log.Logger
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator runs submissions: single-flight per transcript, lazy session
// creation, and stream folding with a fixed notice on failure.
//
// The Coordinator is safe for concurrent use.
type Coordinator struct {
	sender   Sender
	sessions Sessions
	input    Input
	notice   string
	logger   *log.Logger

	onState    func(*model.Transcript, State)
	onComplete func(Result)

	mu     sync.Mutex
	states map[*model.Transcript]State
	staged *backend.Attachment

	wg sync.WaitGroup
}

// submission is one captured send.
type submission struct {
	id    string
	tr    *model.Transcript
	text  string
	att   *backend.Attachment
	start time.Time
}

// NewCoordinator creates a coordinator.
func NewCoordinator(sender Sender, sessions Sessions, opts Options) *Coordinator {
	notice := opts.ErrorNotice
	if notice == "" {
		notice = DefaultErrorNotice
	}
	return &Coordinator{
		sender:     sender,
		sessions:   sessions,
		input:      opts.Input,
		notice:     notice,
		logger:     logging.OrDefault(opts.Logger, "chat"),
		onState:    opts.OnStateChange,
		onComplete: opts.OnComplete,
		states:     make(map[*model.Transcript]State),
	}
}

// Stage attaches a document to the next submission only. Passing nil clears
// a staged document.
func (c *Coordinator) Stage(att *backend.Attachment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = att
}

// Staged returns the document waiting for the next submission.
func (c *Coordinator) Staged() *backend.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.staged
}

// State returns the submission state of tr.
func (c *Coordinator) State(tr *model.Transcript) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[tr]
}

// Sending reports whether any submission is in flight.
func (c *Coordinator) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.states {
		if s == StateSending {
			return true
		}
	}
	return false
}

// Submit sends text for the current session and blocks until the answer
// has been streamed. It returns ErrEmptyInput or ErrBusy without changing
// anything, nil on success, or the failure whose notice replaced the answer.
func (c *Coordinator) Submit(ctx context.Context, text string) error {
	sub, err := c.begin(text)
	if err != nil {
		return err
	}
	return c.run(ctx, sub)
}

// SubmitAsync validates and starts a submission, then streams in the
// background. Only ErrEmptyInput and ErrBusy are returned; the outcome is
// reported through OnComplete and the transcript.
func (c *Coordinator) SubmitAsync(ctx context.Context, text string) error {
	sub, err := c.begin(text)
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.run(ctx, sub)
	}()
	return nil
}

// Wait blocks until every background submission has settled.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// =============================================================================
// SUBMISSION STEPS
// =============================================================================

// begin applies the guards and the synchronous entry steps: capture the
// text, clear and gate the input, append the user turn and an empty
// in-progress answer.
func (c *Coordinator) begin(text string) (*submission, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	id, tr := c.sessions.Active()

	c.mu.Lock()
	if c.states[tr] == StateSending || tr.InProgress() {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.states[tr] = StateSending
	att := c.staged
	c.staged = nil
	c.mu.Unlock()
	c.emitState(tr, StateSending)

	if c.input != nil {
		c.input.Clear()
		c.input.SetEnabled(false)
	}

	if err := tr.AppendUser(text); err != nil {
		c.release(tr, StateIdle)
		return nil, fmt.Errorf("append user turn: %w", err)
	}
	if err := tr.BeginAssistant(); err != nil {
		c.release(tr, StateIdle)
		return nil, fmt.Errorf("begin answer: %w", err)
	}

	return &submission{id: id, tr: tr, text: text, att: att, start: time.Now()}, nil
}

// run creates the session if needed, streams the answer and settles.
func (c *Coordinator) run(ctx context.Context, sub *submission) error {
	if sub.id == "" {
		id, err := c.sessions.Create(ctx)
		if err != nil {
			return c.fail(sub, stream.Stats{}, err)
		}
		sub.id = id
		c.sessions.Adopt(id, sub.tr)
	}

	c.logger.Info("sending message", "session", sub.id, "chars", len(sub.text), "attachment", sub.att != nil)

	body, err := c.sender.SendMessage(ctx, sub.id, sub.text, sub.att)
	if err != nil {
		return c.fail(sub, stream.Stats{}, err)
	}
	defer body.Close()

	consumer := stream.NewConsumer(body)
	err = consumer.Process(ctx, sub.tr.AppendDelta)
	if err != nil {
		return c.fail(sub, consumer.Stats(), err)
	}

	sub.tr.Finalize()
	stats := consumer.Stats()
	c.logger.Debug("answer complete",
		"session", sub.id,
		"bytes", stats.Bytes,
		"deltas", stats.Deltas,
		"ttfd", stats.TimeToFirstDelta(),
		"took", time.Since(sub.start).Round(time.Millisecond))

	c.release(sub.tr, StateIdle)
	// The backend bumps updatedAt and may retitle the session.
	c.sessions.Refresh(context.WithoutCancel(ctx))
	c.complete(Result{SessionID: sub.id, Transcript: sub.tr, Stats: stats, Duration: time.Since(sub.start)})
	return nil
}

// fail replaces the partial answer with the notice, finalizes it and goes
// Failed -> Idle.
func (c *Coordinator) fail(sub *submission, stats stream.Stats, err error) error {
	c.logger.Warn("submission failed", "session", sub.id, "err", err)

	if setErr := sub.tr.SetInProgressContent(c.notice); setErr != nil {
		c.logger.Debug("could not write notice", "err", setErr)
	}
	sub.tr.Finalize()

	c.mu.Lock()
	c.states[sub.tr] = StateFailed
	c.mu.Unlock()
	c.emitState(sub.tr, StateFailed)

	c.release(sub.tr, StateIdle)
	c.complete(Result{SessionID: sub.id, Transcript: sub.tr, Stats: stats, Duration: time.Since(sub.start), Err: err})
	return err
}

// release moves tr to state and re-enables the input.
func (c *Coordinator) release(tr *model.Transcript, state State) {
	c.mu.Lock()
	if state == StateIdle {
		delete(c.states, tr)
	} else {
		c.states[tr] = state
	}
	c.mu.Unlock()
	c.emitState(tr, state)

	if c.input != nil {
		c.input.SetEnabled(true)
	}
}

func (c *Coordinator) emitState(tr *model.Transcript, state State) {
	if c.onState != nil {
		c.onState(tr, state)
	}
}

func (c *Coordinator) complete(r Result) {
	if c.onComplete != nil {
		c.onComplete(r)
	}
}
