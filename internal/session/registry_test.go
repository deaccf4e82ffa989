// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MoriitoDev/Ollector/internal/backend"
	"github.com/MoriitoDev/Ollector/internal/logging"
	"github.com/MoriitoDev/Ollector/internal/model"
)

// =============================================================================
// FAKE BACKEND
// =============================================================================

type fakeBackend struct {
	mu        sync.Mutex
	chats     map[string]backend.ChatDetail
	nextID    int
	createErr error
	listErr   error
	creates   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{chats: make(map[string]backend.ChatDetail)}
}

func (f *fakeBackend) add(id, title string, updated time.Time, msgs ...backend.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats[id] = backend.ChatDetail{ChatSummary: backend.ChatSummary{
		ID:        id,
		Title:     title,
		CreatedAt: backend.NewTimestamp(updated.Add(-time.Hour)),
		UpdatedAt: backend.NewTimestamp(updated),
		Messages:  msgs,
	}}
}

func (f *fakeBackend) CreateChat(ctx context.Context) (backend.ChatSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return backend.ChatSummary{}, f.createErr
	}
	f.nextID++
	id := "S" + string(rune('0'+f.nextID))
	now := backend.NewTimestamp(time.Now())
	c := backend.ChatSummary{ID: id, CreatedAt: now, UpdatedAt: now}
	f.chats[id] = backend.ChatDetail{ChatSummary: c}
	return c, nil
}

func (f *fakeBackend) ListChats(ctx context.Context) ([]backend.ChatSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]backend.ChatSummary, 0, len(f.chats))
	for _, c := range f.chats {
		out = append(out, c.ChatSummary)
	}
	return out, nil
}

func (f *fakeBackend) GetChat(ctx context.Context, id string) (*backend.ChatDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[id]
	if !ok {
		return nil, &backend.ClientError{Type: backend.ErrTypeNotFound, Message: "GET /chats/" + id + ": 404 Not Found", StatusCode: 404}
	}
	return &c, nil
}

// gatedBackend holds GetChat after it has read the stored detail until the
// test releases it.
type gatedBackend struct {
	*fakeBackend

	gateMu  sync.Mutex
	fetched chan struct{}
	release chan struct{}
}

// arm gates the next GetChat call.
func (g *gatedBackend) arm() (fetched, release chan struct{}) {
	g.gateMu.Lock()
	defer g.gateMu.Unlock()
	g.fetched = make(chan struct{})
	g.release = make(chan struct{})
	return g.fetched, g.release
}

func (g *gatedBackend) GetChat(ctx context.Context, id string) (*backend.ChatDetail, error) {
	detail, err := g.fakeBackend.GetChat(ctx, id)

	g.gateMu.Lock()
	fetched, release := g.fetched, g.release
	g.fetched, g.release = nil, nil
	g.gateMu.Unlock()

	if fetched != nil {
		close(fetched)
		<-release
	}
	return detail, err
}

func newTestRegistry(b Backend) *Registry {
	return NewRegistry(b, logging.Discard())
}

// =============================================================================
// LIST TESTS
// =============================================================================

func TestRegistry_ListOrdersByRecent(t *testing.T) {
	fb := newFakeBackend()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fb.add("old", "Old", base)
	fb.add("new", "New", base.Add(2*time.Hour))
	fb.add("mid", "Mid", base.Add(time.Hour))

	reg := newTestRegistry(fb)
	sessions, err := reg.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{"new", "mid", "old"}
	if len(sessions) != len(want) {
		t.Fatalf("len(List()) = %d, want %d", len(sessions), len(want))
	}
	for i, id := range want {
		if sessions[i].ID != id {
			t.Errorf("List()[%d].ID = %q, want %q", i, sessions[i].ID, id)
		}
	}
	if got := reg.Sessions(); len(got) != 3 || got[0].ID != "new" {
		t.Errorf("Sessions() = %+v, want cached list", got)
	}
	if reg.LastRefresh().IsZero() {
		t.Error("LastRefresh() is zero after List")
	}
}

func TestRegistry_RefreshSwallowsErrors(t *testing.T) {
	fb := newFakeBackend()
	fb.listErr = errors.New("offline")
	reg := newTestRegistry(fb)

	reg.Refresh(context.Background())

	if _, err := reg.List(context.Background()); err == nil {
		t.Error("List() error = nil, want error")
	}
}

// =============================================================================
// CREATE TESTS
// =============================================================================

func TestRegistry_Create(t *testing.T) {
	fb := newFakeBackend()
	fb.add("elsewhere", "Made on another device", time.Now().Add(-time.Hour))
	reg := newTestRegistry(fb)

	id, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id != "S1" {
		t.Errorf("Create() = %q, want %q", id, "S1")
	}
	if reg.Current() != "" {
		t.Errorf("Current() = %q after Create, want unchanged", reg.Current())
	}
	if _, ok := reg.Lookup("S1"); !ok {
		t.Error("Lookup(S1) ok = false after Create")
	}
	if _, ok := reg.Lookup("elsewhere"); !ok {
		t.Error("Lookup(elsewhere) ok = false, want the list refreshed after Create")
	}
}

func TestRegistry_CreateSurvivesFailedRefresh(t *testing.T) {
	fb := newFakeBackend()
	fb.listErr = &backend.ClientError{Type: backend.ErrTypeUnavailable, Message: "GET /chats"}
	reg := newTestRegistry(fb)

	id, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, ok := reg.Lookup(id); !ok {
		t.Errorf("Lookup(%s) ok = false, want the created session kept", id)
	}
	if !reg.LastRefresh().IsZero() {
		t.Error("LastRefresh() set although the refresh failed")
	}
}

func TestRegistry_CreateFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.createErr = &backend.ClientError{Type: backend.ErrTypeUnavailable, Message: "POST /chats"}
	reg := newTestRegistry(fb)

	_, err := reg.Create(context.Background())
	if !errors.Is(err, ErrSessionCreateFailed) {
		t.Errorf("Create() error = %v, want ErrSessionCreateFailed", err)
	}
	if !backend.IsUnavailable(err) {
		t.Errorf("Create() error = %v, want cause preserved", err)
	}
	if len(reg.Sessions()) != 0 {
		t.Errorf("Sessions() = %v, want empty", reg.Sessions())
	}
}

func TestRegistry_AdoptDraft(t *testing.T) {
	reg := newTestRegistry(newFakeBackend())
	draft := reg.View()
	_ = draft.AppendUser("Hello")

	id, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !reg.Adopt(id, draft) {
		t.Error("Adopt() = false, want view to switch")
	}

	if reg.Current() != id {
		t.Errorf("Current() = %q, want %q", reg.Current(), id)
	}
	if tr, _ := reg.Transcript(id); tr != draft {
		t.Error("Transcript(id) is not the adopted draft")
	}

	// A new draft is a different instance.
	if next := reg.NewDraft(); next == draft {
		t.Error("NewDraft() reused the adopted transcript")
	}
	if reg.Current() != "" {
		t.Errorf("Current() = %q after NewDraft, want empty", reg.Current())
	}
}

func TestRegistry_AdoptAfterViewMoved(t *testing.T) {
	fb := newFakeBackend()
	fb.add("S9", "Other", time.Now())
	reg := newTestRegistry(fb)
	draft := reg.View()

	if err := reg.Open(context.Background(), "S9"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if reg.Adopt("S1", draft) {
		t.Error("Adopt() = true, want false when the view moved on")
	}
	if reg.Current() != "S9" {
		t.Errorf("Current() = %q, want S9", reg.Current())
	}
}

// =============================================================================
// OPEN TESTS
// =============================================================================

func TestRegistry_OpenReplacesTranscript(t *testing.T) {
	fb := newFakeBackend()
	fb.add("S1", "First", time.Now())
	fb.add("S2", "Second", time.Now(),
		backend.Message{Role: "user", Content: "q1"},
		backend.Message{Role: "assistant", Content: "a1"},
		backend.Message{Role: "user", Content: "q2"},
		backend.Message{Role: "assistant", Content: "a2"},
	)
	reg := newTestRegistry(fb)

	ctx := context.Background()
	if err := reg.Open(ctx, "S1"); err != nil {
		t.Fatalf("Open(S1) error = %v", err)
	}

	var changes int
	reg.OnChange(func() {
		changes++
		_ = reg.View() // callbacks may re-enter
	})

	if err := reg.Open(ctx, "S2"); err != nil {
		t.Fatalf("Open(S2) error = %v", err)
	}

	view := reg.View()
	turns := view.Turns()
	if len(turns) != 4 {
		t.Fatalf("len(Turns()) = %d, want 4", len(turns))
	}
	if turns[3] != model.AssistantTurn("a2") {
		t.Errorf("Turns()[3] = %+v, want assistant a2", turns[3])
	}
	if view.InProgress() {
		t.Error("InProgress() = true after Open, want false")
	}
	if reg.Current() != "S2" {
		t.Errorf("Current() = %q, want S2", reg.Current())
	}
	if changes == 0 {
		t.Error("OnChange callback not fired")
	}
}

func TestRegistry_OpenReloadsIdleSession(t *testing.T) {
	fb := newFakeBackend()
	fb.add("S1", "First", time.Now(), backend.Message{Role: "user", Content: "stored"})
	reg := newTestRegistry(fb)
	reg.SetCurrent("S1")

	tr := reg.View()
	_ = tr.AppendUser("local only")

	if err := reg.Open(context.Background(), "S1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if reg.View() != tr {
		t.Error("Open() replaced the transcript instance, want the same one reloaded")
	}
	if turns := tr.Turns(); len(turns) != 1 || turns[0].Content != "stored" {
		t.Errorf("Turns() = %+v, want stored turns only", turns)
	}
}

func TestRegistry_OpenNotFound(t *testing.T) {
	reg := newTestRegistry(newFakeBackend())

	err := reg.Open(context.Background(), "nope")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Open() error = %v, want ErrSessionNotFound", err)
	}
	if reg.Current() != "" {
		t.Errorf("Current() = %q, want unchanged", reg.Current())
	}
}

func TestRegistry_OpenBusySession(t *testing.T) {
	fb := newFakeBackend()
	fb.add("S1", "First", time.Now())
	fb.add("S2", "Second", time.Now())
	reg := newTestRegistry(fb)
	ctx := context.Background()

	if err := reg.Open(ctx, "S1"); err != nil {
		t.Fatalf("Open(S1) error = %v", err)
	}
	s1 := reg.View()
	_ = s1.AppendUser("q")
	_ = s1.BeginAssistant()
	_ = s1.AppendDelta("par")

	// Switching away is allowed and leaves the stream untouched.
	if err := reg.Open(ctx, "S2"); err != nil {
		t.Fatalf("Open(S2) error = %v", err)
	}
	_ = s1.AppendDelta("tial")
	if last, _ := s1.Last(); last.Content != "partial" {
		t.Errorf("S1 content = %q, want %q", last.Content, "partial")
	}
	if reg.View().Len() != 0 {
		t.Errorf("S2 Len() = %d, want 0", reg.View().Len())
	}

	// Coming back while it still streams is rejected.
	if err := reg.Open(ctx, "S1"); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Open(S1) error = %v, want ErrSessionBusy", err)
	}

	s1.Finalize()
	if err := reg.Open(ctx, "S1"); err != nil {
		t.Errorf("Open(S1) after finalize error = %v", err)
	}
}

func TestRegistry_OpenKeepsTurnsAddedWhileLoading(t *testing.T) {
	tests := []struct {
		name  string
		send  func(tr *model.Transcript)
		turns []model.Turn
	}{
		{
			name: "exchange finished",
			send: func(tr *model.Transcript) {
				_ = tr.AppendUser("Hello")
				_ = tr.BeginAssistant()
				_ = tr.AppendDelta("Hi")
				tr.Finalize()
			},
			turns: []model.Turn{
				model.UserTurn("a"), model.AssistantTurn("b"),
				model.UserTurn("Hello"), model.AssistantTurn("Hi"),
			},
		},
		{
			name: "answer streaming",
			send: func(tr *model.Transcript) {
				_ = tr.AppendUser("Hello")
				_ = tr.BeginAssistant()
				_ = tr.AppendDelta("H")
			},
			turns: []model.Turn{
				model.UserTurn("a"), model.AssistantTurn("b"),
				model.UserTurn("Hello"), model.AssistantTurn("H"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend()
			fb.add("S1", "First", time.Now(),
				backend.Message{Role: "user", Content: "a"},
				backend.Message{Role: "assistant", Content: "b"},
			)
			gb := &gatedBackend{fakeBackend: fb}
			reg := newTestRegistry(gb)
			ctx := context.Background()

			if err := reg.Open(ctx, "S1"); err != nil {
				t.Fatalf("Open(S1) error = %v", err)
			}
			tr := reg.View()

			fetched, release := gb.arm()
			done := make(chan error, 1)
			go func() { done <- reg.Open(ctx, "S1") }()

			// The stored detail is read; a submission lands before it is applied.
			<-fetched
			tt.send(tr)
			close(release)

			if err := <-done; !errors.Is(err, ErrSessionBusy) {
				t.Fatalf("Open(S1) error = %v, want ErrSessionBusy", err)
			}
			got := tr.Turns()
			if len(got) != len(tt.turns) {
				t.Fatalf("Turns() = %+v, want %+v", got, tt.turns)
			}
			for i := range got {
				if got[i] != tt.turns[i] {
					t.Errorf("Turns()[%d] = %+v, want %+v", i, got[i], tt.turns[i])
				}
			}
			if reg.View() != tr {
				t.Error("View() changed after rejected Open")
			}
		})
	}
}

func TestRegistry_OpenNotFoundForgetsTranscript(t *testing.T) {
	reg := newTestRegistry(newFakeBackend())

	_ = reg.Open(context.Background(), "gone")
	if _, ok := reg.Transcript("gone"); ok {
		t.Error("Transcript(gone) ok = true after failed Open, want false")
	}
}

func TestRegistry_SetCurrent(t *testing.T) {
	reg := newTestRegistry(newFakeBackend())

	reg.SetCurrent("S5")
	id, tr := reg.Active()
	if id != "S5" || tr == nil {
		t.Errorf("Active() = (%q, %v), want S5 with transcript", id, tr)
	}

	reg.SetCurrent("")
	if reg.Current() != "" {
		t.Errorf("Current() = %q, want empty", reg.Current())
	}
}
