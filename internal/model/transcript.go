// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"slices"
	"strings"
	"sync"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidInput is returned when appending an empty user turn.
	ErrInvalidInput = errors.New("transcript: empty user text")

	// ErrAlreadyInProgress is returned when a turn is already being streamed.
	ErrAlreadyInProgress = errors.New("transcript: a turn is already in progress")

	// ErrNoActiveTurn is returned when there is no in-progress turn to write to.
	ErrNoActiveTurn = errors.New("transcript: no turn in progress")
)

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies the mutation that produced an Event.
type EventKind int

const (
	// EventAppend is emitted when a turn is appended.
	EventAppend EventKind = iota
	// EventDelta is emitted when text is appended to the in-progress turn.
	EventDelta
	// EventOverwrite is emitted when the in-progress content is replaced.
	EventOverwrite
	// EventFinalize is emitted when the in-progress turn is finalized.
	EventFinalize
	// EventReplace is emitted when the whole transcript is replaced.
	EventReplace
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventAppend:
		return "append"
	case EventDelta:
		return "delta"
	case EventOverwrite:
		return "overwrite"
	case EventFinalize:
		return "finalize"
	case EventReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Event describes a transcript mutation.
type Event struct {
	Kind  EventKind
	Index int    // Index of the affected turn, -1 for EventReplace
	Delta string // Appended text for EventDelta
}

// Listener receives transcript events. Listeners run synchronously after the
// mutation is applied and may read the transcript, but must not mutate it.
type Listener func(Event)

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is the ordered list of turns for one session.
//
// At most one turn is in progress, and if present it is the last turn and
// has the assistant role. Mutations are serialized and listeners observe
// them in the order they were applied.
//
// The Transcript is safe for concurrent use.
type Transcript struct {
	// emitMu serializes mutation plus notification so listeners see events
	// in mutation order.
	emitMu sync.Mutex

	mu    sync.RWMutex
	turns []Turn

	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	stream     strings.Builder
	inProgress bool

	// version counts applied mutations.
	version uint64

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{
		turns:     make([]Turn, 0),
		listeners: make(map[int]Listener),
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AppendUser appends a finalized user turn.
func (t *Transcript) AppendUser(text string) error {
	if text == "" {
		return ErrInvalidInput
	}

	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if t.inProgress {
		t.mu.Unlock()
		return ErrAlreadyInProgress
	}
	t.turns = append(t.turns, UserTurn(text))
	t.version++
	idx := len(t.turns) - 1
	t.mu.Unlock()

	t.emit(Event{Kind: EventAppend, Index: idx})
	return nil
}

// BeginAssistant appends an empty assistant turn marked in progress.
func (t *Transcript) BeginAssistant() error {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if t.inProgress {
		t.mu.Unlock()
		return ErrAlreadyInProgress
	}
	t.turns = append(t.turns, AssistantTurn(""))
	t.stream.Reset()
	t.inProgress = true
	t.version++
	idx := len(t.turns) - 1
	t.mu.Unlock()

	t.emit(Event{Kind: EventAppend, Index: idx})
	return nil
}

// AppendDelta appends text to the in-progress turn.
func (t *Transcript) AppendDelta(text string) error {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if !t.inProgress {
		t.mu.Unlock()
		return ErrNoActiveTurn
	}
	if text == "" {
		t.mu.Unlock()
		return nil
	}
	t.stream.WriteString(text)
	t.version++
	idx := len(t.turns) - 1
	t.mu.Unlock()

	t.emit(Event{Kind: EventDelta, Index: idx, Delta: text})
	return nil
}

// SetInProgressContent replaces the content of the in-progress turn.
func (t *Transcript) SetInProgressContent(text string) error {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if !t.inProgress {
		t.mu.Unlock()
		return ErrNoActiveTurn
	}
	t.stream.Reset()
	t.stream.WriteString(text)
	t.version++
	idx := len(t.turns) - 1
	t.mu.Unlock()

	t.emit(Event{Kind: EventOverwrite, Index: idx})
	return nil
}

// Finalize marks the in-progress turn as complete. Calling Finalize when no
// turn is in progress is a no-op.
func (t *Transcript) Finalize() {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if !t.inProgress {
		t.mu.Unlock()
		return
	}
	idx := len(t.turns) - 1
	t.turns[idx].Content = t.stream.String()
	t.stream.Reset()
	t.inProgress = false
	t.version++
	t.mu.Unlock()

	t.emit(Event{Kind: EventFinalize, Index: idx})
}

// ReplaceAll replaces every turn and clears any in-progress marker.
func (t *Transcript) ReplaceAll(turns []Turn) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	t.replaceLocked(turns)
	t.mu.Unlock()

	t.emit(Event{Kind: EventReplace, Index: -1})
}

// ReplaceAllIf replaces every turn only if the transcript is still at
// version and nothing is in progress. It reports whether it replaced.
func (t *Transcript) ReplaceAllIf(turns []Turn, version uint64) bool {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if t.inProgress || t.version != version {
		t.mu.Unlock()
		return false
	}
	t.replaceLocked(turns)
	t.mu.Unlock()

	t.emit(Event{Kind: EventReplace, Index: -1})
	return true
}

func (t *Transcript) replaceLocked(turns []Turn) {
	t.turns = make([]Turn, len(turns))
	copy(t.turns, turns)
	t.stream.Reset()
	t.inProgress = false
	t.version++
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Turns returns a copy of all turns. The in-progress turn carries the content
// streamed so far.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	if t.inProgress {
		out[len(out)-1].Content = t.stream.String()
	}
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Turn returns the turn at index i.
func (t *Transcript) Turn(i int) (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if i < 0 || i >= len(t.turns) {
		return Turn{}, false
	}
	turn := t.turns[i]
	if t.inProgress && i == len(t.turns)-1 {
		turn.Content = t.stream.String()
	}
	return turn, true
}

// Last returns the most recent turn.
func (t *Transcript) Last() (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := len(t.turns)
	if n == 0 {
		return Turn{}, false
	}
	turn := t.turns[n-1]
	if t.inProgress {
		turn.Content = t.stream.String()
	}
	return turn, true
}

// InProgress reports whether the last turn is still being streamed.
func (t *Transcript) InProgress() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.inProgress
}

// Version returns the number of mutations applied so far. Pass it to
// ReplaceAllIf to replace only a transcript nobody touched in between.
func (t *Transcript) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// IsEmpty returns true if there are no turns.
func (t *Transcript) IsEmpty() bool {
	return t.Len() == 0
}

// =============================================================================
// LISTENERS
// =============================================================================

// Subscribe registers a listener and returns a function that removes it.
func (t *Transcript) Subscribe(l Listener) func() {
	t.listenersMu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = l
	t.listenersMu.Unlock()

	return func() {
		t.listenersMu.Lock()
		delete(t.listeners, id)
		t.listenersMu.Unlock()
	}
}

// emit delivers ev to every listener. Callers hold emitMu.
func (t *Transcript) emit(ev Event) {
	t.listenersMu.Lock()
	if len(t.listeners) == 0 {
		t.listenersMu.Unlock()
		return
	}
	ids := make([]int, 0, len(t.listeners))
	for id := range t.listeners {
		ids = append(ids, id)
	}
	// Registration order.
	slices.Sort(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, t.listeners[id])
	}
	t.listenersMu.Unlock()

	for _, l := range ls {
		l(ev)
	}
}
