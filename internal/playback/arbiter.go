// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/MoriitoDev/Ollector/internal/backend"
	"github.com/MoriitoDev/Ollector/internal/logging"
)

// ErrSynthesisFailed is returned when text could not be turned into audio or
// the audio could not be started.
var ErrSynthesisFailed = errors.New("playback: synthesis failed")

// =============================================================================
// INTERFACES
// =============================================================================

// Synthesizer converts text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*backend.Audio, error)
}

// Handle is a live audio playback.
type Handle interface {
	// Stop halts playback and releases the audio. Safe to call more than once.
	Stop() error
	// Done is closed when playback ends, naturally or through Stop.
	Done() <-chan struct{}
}

// Player starts audio.
type Player interface {
	Play(audio *backend.Audio) (Handle, error)
}

// =============================================================================
// STATE
// =============================================================================

// State is the playback state. TurnIndex is -1 when idle.
type State struct {
	Playing   bool
	TurnIndex int
	// Pending is set while audio for TurnIndex is being synthesized.
	Pending bool
}

// Idle is the state with no audio.
var Idle = State{TurnIndex: -1}

// IsPlaying reports whether turn i is playing or about to.
func (s State) IsPlaying(i int) bool {
	return (s.Playing || s.Pending) && s.TurnIndex == i
}

// =============================================================================
// ARBITER
// =============================================================================

// Arbiter enforces that at most one turn is read aloud at a time.
//
// The lock is held around state transitions, including stopping the old
// audio and starting the new one, but never across synthesis. A generation
// counter identifies the latest toggle; results of older toggles are
// discarded.
type Arbiter struct {
	synth  Synthesizer
	player Player
	logger *log.Logger

	mu      sync.Mutex
	gen     uint64
	state   State
	handle  Handle
	cancel  context.CancelFunc // cancels in-flight synthesis
	onState func(State)
}

// NewArbiter creates an idle arbiter.
func NewArbiter(synth Synthesizer, player Player, logger *log.Logger) *Arbiter {
	return &Arbiter{
		synth:  synth,
		player: player,
		logger: logging.OrDefault(logger, "playback"),
		state:  Idle,
	}
}

// OnStateChange registers a callback fired after each transition. It runs
// outside the lock.
func (a *Arbiter) OnStateChange(fn func(State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onState = fn
}

// State returns the current playback state.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Toggle stops turn i if it is playing (or being synthesized). Otherwise it
// stops whatever is playing, synthesizes text and plays it as turn i.
// Synthesis or start failures leave the arbiter idle and return
// ErrSynthesisFailed.
func (a *Arbiter) Toggle(ctx context.Context, i int, text string) error {
	a.mu.Lock()
	if a.state.IsPlaying(i) {
		a.resetLocked()
		a.mu.Unlock()
		a.emit()
		a.logger.Debug("playback stopped", "turn", i)
		return nil
	}

	// The previous audio is gone before the new one is requested.
	a.resetLocked()
	synthCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.state = State{Pending: true, TurnIndex: i}
	my := a.gen
	a.mu.Unlock()
	a.emit()

	audio, err := a.synth.Synthesize(synthCtx, text)
	cancel()

	a.mu.Lock()
	if my != a.gen {
		// Superseded by a later toggle or Stop.
		a.mu.Unlock()
		return nil
	}
	if err != nil {
		a.resetLocked()
		a.mu.Unlock()
		a.emit()
		a.logger.Warn("synthesis failed", "turn", i, "err", err)
		return fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	h, err := a.player.Play(audio)
	if err != nil {
		a.resetLocked()
		a.mu.Unlock()
		a.emit()
		a.logger.Warn("playback start failed", "turn", i, "err", err)
		return fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	a.handle = h
	a.state = State{Playing: true, TurnIndex: i}
	a.cancel = nil
	a.mu.Unlock()

	a.emit()
	a.logger.Debug("playback started", "turn", i, "bytes", len(audio.Data), "type", audio.ContentType)

	go a.watch(h, my)
	return nil
}

// Stop halts any playback or pending synthesis.
func (a *Arbiter) Stop() {
	a.mu.Lock()
	if a.state == Idle && a.handle == nil {
		a.mu.Unlock()
		return
	}
	a.resetLocked()
	a.mu.Unlock()
	a.emit()
}

// watch returns the arbiter to idle when playback ends on its own.
func (a *Arbiter) watch(h Handle, gen uint64) {
	<-h.Done()

	a.mu.Lock()
	if a.gen != gen || a.handle != h {
		a.mu.Unlock()
		return
	}
	a.handle = nil
	a.state = Idle
	a.gen++
	a.mu.Unlock()

	a.emit()
	a.logger.Debug("playback finished")
}

// resetLocked invalidates the current generation, cancels pending synthesis
// and stops the live audio.
func (a *Arbiter) resetLocked() {
	a.gen++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.handle != nil {
		if err := a.handle.Stop(); err != nil {
			a.logger.Debug("stop audio", "err", err)
		}
		a.handle = nil
	}
	a.state = Idle
}

func (a *Arbiter) emit() {
	a.mu.Lock()
	fn := a.onState
	s := a.state
	a.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
