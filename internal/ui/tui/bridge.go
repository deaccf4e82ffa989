// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MoriitoDev/Ollector/internal/chat"
	"github.com/MoriitoDev/Ollector/internal/model"
)

// =============================================================================
// MESSAGES
// =============================================================================

// refreshMsg asks the model to re-render the viewed transcript.
type refreshMsg struct{}

// inputMsg asks the model to resync the text input with the bridge.
type inputMsg struct{}

// registryMsg reports a change of the session list or the current session.
type registryMsg struct{}

// playbackMsg reports a playback state change.
type playbackMsg struct{}

// completeMsg reports a settled submission.
type completeMsg struct {
	result chat.Result
}

// =============================================================================
// BRIDGE
// =============================================================================

// Bridge turns callbacks from the chat core into Bubble Tea messages.
//
// Callbacks fire from streaming goroutines and from inside Update itself, so
// posting never blocks. Messages carry no state: the model re-reads the
// bridge, the transcript or the arbiter when one arrives, which makes their
// delivery order irrelevant. Transcript events are coalesced into a single
// pending refresh.
//
// Bridge implements chat.Input.
type Bridge struct {
	mu           sync.Mutex
	post         func(tea.Msg)
	inputEnabled bool
	clearPending bool
	unsubscribe  func()
	watched      *model.Transcript

	dirty atomic.Bool
}

// NewBridge creates a bridge with the input enabled. Messages are dropped
// until Attach is called.
func NewBridge() *Bridge {
	return &Bridge{inputEnabled: true}
}

// Attach routes messages to a running program.
func (b *Bridge) Attach(p *tea.Program) {
	b.setPost(func(msg tea.Msg) { go p.Send(msg) })
}

func (b *Bridge) setPost(fn func(tea.Msg)) {
	b.mu.Lock()
	b.post = fn
	b.mu.Unlock()
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	post := b.post
	b.mu.Unlock()
	if post != nil {
		post(msg)
	}
}

// Clear implements chat.Input.
func (b *Bridge) Clear() {
	b.mu.Lock()
	b.clearPending = true
	b.mu.Unlock()
	b.send(inputMsg{})
}

// SetEnabled implements chat.Input.
func (b *Bridge) SetEnabled(enabled bool) {
	b.mu.Lock()
	b.inputEnabled = enabled
	b.mu.Unlock()
	b.send(inputMsg{})
}

// takeInput returns the input state and consumes a pending clear.
func (b *Bridge) takeInput() (enabled, clear bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear = b.clearPending
	b.clearPending = false
	return b.inputEnabled, clear
}

// Complete is a chat.Options.OnComplete callback.
func (b *Bridge) Complete(r chat.Result) {
	b.send(completeMsg{result: r})
}

// RegistryChanged is a session.Registry.OnChange callback.
func (b *Bridge) RegistryChanged() {
	b.send(registryMsg{})
}

// PlaybackChanged is a playback.Arbiter.OnStateChange callback.
func (b *Bridge) PlaybackChanged() {
	b.send(playbackMsg{})
}

// Watch subscribes to tr, replacing any previous subscription. It reports
// whether the watched transcript changed.
func (b *Bridge) Watch(tr *model.Transcript) bool {
	b.mu.Lock()
	if b.watched == tr {
		b.mu.Unlock()
		return false
	}
	old := b.unsubscribe
	b.watched = tr
	b.unsubscribe = nil
	b.mu.Unlock()

	if old != nil {
		old()
	}
	if tr == nil {
		return true
	}

	unsub := tr.Subscribe(func(model.Event) { b.markDirty() })
	b.mu.Lock()
	if b.watched == tr {
		b.unsubscribe = unsub
		unsub = nil
	}
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	b.markDirty()
	return true
}

// Close drops the transcript subscription and stops posting.
func (b *Bridge) Close() {
	b.Watch(nil)
	b.setPost(nil)
}

func (b *Bridge) markDirty() {
	if b.dirty.CompareAndSwap(false, true) {
		b.send(refreshMsg{})
	}
}

// ack re-arms refresh posting. The model calls it before reading the
// transcript so no event is lost between the read and the next post.
func (b *Bridge) ack() {
	b.dirty.Store(false)
}
