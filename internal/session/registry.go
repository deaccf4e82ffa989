// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/MoriitoDev/Ollector/internal/backend"
	"github.com/MoriitoDev/Ollector/internal/logging"
	"github.com/MoriitoDev/Ollector/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSessionCreateFailed is returned when the backend cannot create a session.
	ErrSessionCreateFailed = errors.New("session: create failed")

	// ErrSessionNotFound is returned when the backend does not know the id.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrSessionBusy is returned when opening a session whose answer is
	// still streaming, or that received turns while it was loading.
	ErrSessionBusy = errors.New("session: answer still streaming")
)

// Backend is the part of the backend client the registry uses.
type Backend interface {
	CreateChat(ctx context.Context) (backend.ChatSummary, error)
	ListChats(ctx context.Context) ([]backend.ChatSummary, error)
	GetChat(ctx context.Context, id string) (*backend.ChatDetail, error)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds the ordered session list, the current session and one
// transcript per session.
//
// The Registry is safe for concurrent use. Change callbacks run outside the
// lock.
type Registry struct {
	mu sync.Mutex

	backend Backend
	logger  *log.Logger

	sessions    []model.Session
	transcripts map[string]*model.Transcript

	// current is "" until a session exists or after NewDraft.
	current string
	view    *model.Transcript
	draft   *model.Transcript

	lastRefresh time.Time

	onChange []func()
}

// NewRegistry creates a registry showing an empty draft transcript.
func NewRegistry(b Backend, logger *log.Logger) *Registry {
	draft := model.NewTranscript()
	return &Registry{
		backend:     b,
		logger:      logging.OrDefault(logger, "session"),
		transcripts: make(map[string]*model.Transcript),
		view:        draft,
		draft:       draft,
	}
}

// OnChange registers a callback fired after the session list, the current
// session or the viewed transcript changes.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

func (r *Registry) notify() {
	r.mu.Lock()
	fns := make([]func(), len(r.onChange))
	copy(fns, r.onChange)
	r.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// =============================================================================
// LISTING
// =============================================================================

// List fetches the sessions from the backend and returns them ordered by
// UpdatedAt, most recent first.
func (r *Registry) List(ctx context.Context) ([]model.Session, error) {
	chats, err := r.backend.ListChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]model.Session, 0, len(chats))
	for _, c := range chats {
		sessions = append(sessions, c.Session())
	}
	model.SortByRecent(sessions)

	r.mu.Lock()
	r.sessions = sessions
	r.lastRefresh = time.Now()
	out := make([]model.Session, len(sessions))
	copy(out, sessions)
	r.mu.Unlock()

	r.notify()
	return out, nil
}

// Sessions returns the last fetched session list without I/O.
func (r *Registry) Sessions() []model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Lookup returns the cached metadata for id.
func (r *Registry) Lookup(id string) (model.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return model.Session{}, false
}

// LastRefresh returns when the list was last fetched.
func (r *Registry) LastRefresh() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRefresh
}

// Refresh re-fetches the list. Failures are logged, not returned, so callers
// on the send path never fail because of it.
func (r *Registry) Refresh(ctx context.Context) {
	if _, err := r.List(ctx); err != nil {
		r.logger.Warn("session refresh failed", "err", err)
	}
}

// =============================================================================
// CREATION
// =============================================================================

// Create asks the backend for a new session and returns its id. The new
// session is added to the front of the list, which is then refreshed best
// effort. It does not become current.
func (r *Registry) Create(ctx context.Context) (string, error) {
	chat, err := r.backend.CreateChat(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSessionCreateFailed, err)
	}

	s := chat.Session()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}

	r.mu.Lock()
	r.upsertLocked(s)
	if _, ok := r.transcripts[s.ID]; !ok {
		r.transcripts[s.ID] = model.NewTranscript()
	}
	r.mu.Unlock()

	r.logger.Info("session created", "id", s.ID)
	r.notify()
	r.Refresh(ctx)
	return s.ID, nil
}

// Adopt binds tr to the session id, typically a draft transcript whose first
// submission just created the session. If the view still shows tr, id also
// becomes current. It reports whether the current session changed.
func (r *Registry) Adopt(id string, tr *model.Transcript) bool {
	r.mu.Lock()
	r.transcripts[id] = tr
	if r.draft == tr {
		r.draft = nil
	}
	switched := r.view == tr
	if switched {
		r.current = id
	}
	r.mu.Unlock()

	r.notify()
	return switched
}

// NewDraft shows a fresh draft transcript and clears the current session.
// The next submission creates a new session.
func (r *Registry) NewDraft() *model.Transcript {
	r.mu.Lock()
	if r.draft == nil || !r.draft.IsEmpty() {
		r.draft = model.NewTranscript()
	}
	r.view = r.draft
	r.current = ""
	tr := r.view
	r.mu.Unlock()

	r.notify()
	return tr
}

// =============================================================================
// SELECTION
// =============================================================================

// Open loads the stored turns of session id into its transcript and makes
// it current. ErrSessionNotFound is returned when the backend does not know
// id; ErrSessionBusy when that session's answer is still streaming or its
// transcript changed while the stored turns were loading.
func (r *Registry) Open(ctx context.Context, id string) error {
	r.mu.Lock()
	tr, existed := r.transcripts[id]
	if !existed {
		tr = model.NewTranscript()
		r.transcripts[id] = tr
	}
	r.mu.Unlock()

	version := tr.Version()
	if tr.InProgress() {
		return ErrSessionBusy
	}

	detail, err := r.backend.GetChat(ctx, id)
	if err != nil {
		if !existed {
			r.forget(id, tr)
		}
		if backend.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return fmt.Errorf("open session %s: %w", id, err)
	}

	// Listeners may call back into the registry, so replace outside the lock.
	if !tr.ReplaceAllIf(detail.Turns(), version) {
		r.logger.Debug("session changed while loading", "id", id)
		return ErrSessionBusy
	}

	r.mu.Lock()
	r.current = id
	r.view = tr
	r.upsertLocked(detail.Session())
	r.mu.Unlock()

	r.logger.Debug("session opened", "id", id, "turns", len(detail.Messages))
	r.notify()
	return nil
}

// SetCurrent switches the view to session id without contacting the
// backend. An unknown id gets an empty transcript.
func (r *Registry) SetCurrent(id string) {
	if id == "" {
		r.NewDraft()
		return
	}

	r.mu.Lock()
	tr, ok := r.transcripts[id]
	if !ok {
		tr = model.NewTranscript()
		r.transcripts[id] = tr
	}
	r.current = id
	r.view = tr
	r.mu.Unlock()

	r.notify()
}

// Current returns the current session id, or "" if there is none.
func (r *Registry) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// View returns the transcript the user is looking at.
func (r *Registry) View() *model.Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

// Active returns the current session id together with the viewed
// transcript, read atomically.
func (r *Registry) Active() (string, *model.Transcript) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.view
}

// Transcript returns the transcript of session id.
func (r *Registry) Transcript(id string) (*model.Transcript, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.transcripts[id]
	return tr, ok
}

// =============================================================================
// HELPERS
// =============================================================================

// forget drops the transcript Open made for id if nothing has used it.
func (r *Registry) forget(id string, tr *model.Transcript) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transcripts[id] == tr && r.view != tr && tr.IsEmpty() {
		delete(r.transcripts, id)
	}
}

// upsertLocked inserts or updates s and keeps the list ordered.
func (r *Registry) upsertLocked(s model.Session) {
	for i := range r.sessions {
		if r.sessions[i].ID == s.ID {
			if s.Title == "" {
				s.Title = r.sessions[i].Title
			}
			if s.CreatedAt.IsZero() {
				s.CreatedAt = r.sessions[i].CreatedAt
			}
			if s.UpdatedAt.IsZero() {
				s.UpdatedAt = r.sessions[i].UpdatedAt
			}
			r.sessions[i] = s
			model.SortByRecent(r.sessions)
			return
		}
	}
	r.sessions = append([]model.Session{s}, r.sessions...)
	model.SortByRecent(r.sessions)
}
