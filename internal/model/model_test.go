// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// TURN TESTS
// =============================================================================

func TestRoleDisplayName(t *testing.T) {
	if got := RoleUser.DisplayName(); got != "You" {
		t.Errorf("RoleUser.DisplayName() = %q", got)
	}
	if got := RoleAssistant.DisplayName(); got != "Teacher" {
		t.Errorf("RoleAssistant.DisplayName() = %q", got)
	}
	if !AssistantTurn("").IsEmpty() || UserTurn("x").IsEmpty() {
		t.Error("IsEmpty() mismatch")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"user", RoleUser},
		{"assistant", RoleAssistant},
		{"bot", RoleAssistant},
		{"", RoleAssistant},
	}

	for _, tc := range tests {
		if got := ParseRole(tc.in); got != tc.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// =============================================================================
// TRANSCRIPT TESTS
// =============================================================================

func TestTranscript_StreamedAnswer(t *testing.T) {
	tr := NewTranscript()

	if err := tr.AppendUser("Hello"); err != nil {
		t.Fatalf("AppendUser() error = %v", err)
	}
	if err := tr.BeginAssistant(); err != nil {
		t.Fatalf("BeginAssistant() error = %v", err)
	}
	for _, d := range []string{"Hi", " ", "there"} {
		if err := tr.AppendDelta(d); err != nil {
			t.Fatalf("AppendDelta(%q) error = %v", d, err)
		}
	}

	if !tr.InProgress() {
		t.Error("InProgress() = false while streaming, want true")
	}
	last, _ := tr.Last()
	if last.Content != "Hi there" {
		t.Errorf("in-progress content = %q, want %q", last.Content, "Hi there")
	}

	tr.Finalize()

	if tr.InProgress() {
		t.Error("InProgress() = true after Finalize, want false")
	}
	want := []Turn{UserTurn("Hello"), AssistantTurn("Hi there")}
	got := tr.Turns()
	if len(got) != len(want) {
		t.Fatalf("Turns() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Turns()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTranscript_Errors(t *testing.T) {
	t.Run("empty user text", func(t *testing.T) {
		tr := NewTranscript()
		if err := tr.AppendUser(""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("AppendUser(\"\") error = %v, want ErrInvalidInput", err)
		}
		if tr.Len() != 0 {
			t.Errorf("Len() = %d, want 0", tr.Len())
		}
	})

	t.Run("delta before begin", func(t *testing.T) {
		tr := NewTranscript()
		if err := tr.AppendDelta("x"); !errors.Is(err, ErrNoActiveTurn) {
			t.Errorf("AppendDelta() error = %v, want ErrNoActiveTurn", err)
		}
		if tr.Len() != 0 {
			t.Errorf("Len() = %d, want 0", tr.Len())
		}
	})

	t.Run("begin twice", func(t *testing.T) {
		tr := NewTranscript()
		_ = tr.BeginAssistant()
		if err := tr.BeginAssistant(); !errors.Is(err, ErrAlreadyInProgress) {
			t.Errorf("BeginAssistant() error = %v, want ErrAlreadyInProgress", err)
		}
		if tr.Len() != 1 {
			t.Errorf("Len() = %d, want 1", tr.Len())
		}
	})

	t.Run("user while streaming", func(t *testing.T) {
		tr := NewTranscript()
		_ = tr.BeginAssistant()
		if err := tr.AppendUser("hi"); !errors.Is(err, ErrAlreadyInProgress) {
			t.Errorf("AppendUser() error = %v, want ErrAlreadyInProgress", err)
		}
	})

	t.Run("delta after finalize", func(t *testing.T) {
		tr := NewTranscript()
		_ = tr.BeginAssistant()
		tr.Finalize()
		if err := tr.AppendDelta("late"); !errors.Is(err, ErrNoActiveTurn) {
			t.Errorf("AppendDelta() error = %v, want ErrNoActiveTurn", err)
		}
	})
}

func TestTranscript_FinalizeIdempotent(t *testing.T) {
	tr := NewTranscript()
	_ = tr.AppendUser("q")
	_ = tr.BeginAssistant()
	_ = tr.AppendDelta("a")

	var finals int
	tr.Subscribe(func(ev Event) {
		if ev.Kind == EventFinalize {
			finals++
		}
	})

	tr.Finalize()
	tr.Finalize()
	tr.Finalize()

	if finals != 1 {
		t.Errorf("finalize events = %d, want 1", finals)
	}
	if last, _ := tr.Last(); last.Content != "a" {
		t.Errorf("last content = %q, want %q", last.Content, "a")
	}
}

func TestTranscript_ReplaceAllClearsInProgress(t *testing.T) {
	tr := NewTranscript()
	_ = tr.AppendUser("stale")
	_ = tr.BeginAssistant()
	_ = tr.AppendDelta("partial")

	stored := []Turn{UserTurn("a"), AssistantTurn("b")}
	tr.ReplaceAll(stored)

	if tr.InProgress() {
		t.Error("InProgress() = true after ReplaceAll, want false")
	}
	got := tr.Turns()
	if len(got) != 2 || got[0] != stored[0] || got[1] != stored[1] {
		t.Errorf("Turns() = %+v, want %+v", got, stored)
	}

	// The caller's slice must not alias the transcript.
	stored[0].Content = "mutated"
	if got := tr.Turns(); got[0].Content != "a" {
		t.Errorf("Turns()[0] = %q after caller mutation, want %q", got[0].Content, "a")
	}

	if err := tr.AppendDelta("x"); !errors.Is(err, ErrNoActiveTurn) {
		t.Errorf("AppendDelta() after ReplaceAll error = %v, want ErrNoActiveTurn", err)
	}
}

func TestTranscript_SetInProgressContent(t *testing.T) {
	tr := NewTranscript()
	if err := tr.SetInProgressContent("x"); !errors.Is(err, ErrNoActiveTurn) {
		t.Errorf("SetInProgressContent() error = %v, want ErrNoActiveTurn", err)
	}

	_ = tr.BeginAssistant()
	_ = tr.AppendDelta("half an ans")
	if err := tr.SetInProgressContent("notice"); err != nil {
		t.Fatalf("SetInProgressContent() error = %v", err)
	}
	tr.Finalize()

	if last, _ := tr.Last(); last.Content != "notice" {
		t.Errorf("last content = %q, want %q", last.Content, "notice")
	}
}

func TestTranscript_ReplaceAllIf(t *testing.T) {
	stored := []Turn{UserTurn("a"), AssistantTurn("b")}

	tests := []struct {
		name   string
		change func(tr *Transcript)
		want   bool
	}{
		{"untouched", func(*Transcript) {}, true},
		{"exchange finished", func(tr *Transcript) {
			_ = tr.AppendUser("Hello")
			_ = tr.BeginAssistant()
			_ = tr.AppendDelta("Hi")
			tr.Finalize()
		}, false},
		{"still streaming", func(tr *Transcript) {
			_ = tr.BeginAssistant()
		}, false},
		{"replaced meanwhile", func(tr *Transcript) {
			tr.ReplaceAll([]Turn{UserTurn("x")})
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTranscript()
			version := tr.Version()
			tt.change(tr)
			before := tr.Len()

			if got := tr.ReplaceAllIf(stored, version); got != tt.want {
				t.Fatalf("ReplaceAllIf() = %v, want %v", got, tt.want)
			}
			want := before
			if tt.want {
				want = len(stored)
			}
			if tr.Len() != want {
				t.Errorf("Len() = %d, want %d", tr.Len(), want)
			}
		})
	}
}

func TestTranscript_VersionCountsMutations(t *testing.T) {
	tr := NewTranscript()
	v0 := tr.Version()

	_ = tr.AppendDelta("x") // rejected
	tr.Finalize()           // no-op
	if tr.Version() != v0 {
		t.Errorf("Version() = %d after rejected mutations, want %d", tr.Version(), v0)
	}

	_ = tr.AppendUser("q")
	_ = tr.BeginAssistant()
	_ = tr.AppendDelta("a")
	_ = tr.SetInProgressContent("b")
	tr.Finalize()
	tr.ReplaceAll(nil)
	if got := tr.Version() - v0; got != 6 {
		t.Errorf("Version() advanced by %d, want 6", got)
	}
}

func TestTranscript_SnapshotIsCopy(t *testing.T) {
	tr := NewTranscript()
	tr.ReplaceAll([]Turn{UserTurn("a")})
	snap := tr.Turns()
	snap[0].Content = "changed"

	if got, _ := tr.Turn(0); got.Content != "a" {
		t.Errorf("Turn(0) = %q, want %q", got.Content, "a")
	}
	if _, ok := tr.Turn(5); ok {
		t.Error("Turn(5) ok = true, want false")
	}
}

// =============================================================================
// LISTENER TESTS
// =============================================================================

func TestTranscript_EventsInOrder(t *testing.T) {
	tr := NewTranscript()

	var kinds []EventKind
	var deltas strings.Builder
	unsubscribe := tr.Subscribe(func(ev Event) {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventDelta {
			deltas.WriteString(ev.Delta)
			// Listeners may read the transcript.
			if last, _ := tr.Last(); !strings.HasSuffix(last.Content, ev.Delta) {
				t.Errorf("listener saw %q without delta %q applied", last.Content, ev.Delta)
			}
		}
	})

	_ = tr.AppendUser("q")
	_ = tr.BeginAssistant()
	_ = tr.AppendDelta("a")
	_ = tr.AppendDelta("b")
	tr.Finalize()
	tr.ReplaceAll(nil)

	want := []EventKind{EventAppend, EventAppend, EventDelta, EventDelta, EventFinalize, EventReplace}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
	if deltas.String() != "ab" {
		t.Errorf("delta events = %q, want %q", deltas.String(), "ab")
	}

	unsubscribe()
	_ = tr.AppendUser("after")
	if len(kinds) != len(want) {
		t.Errorf("received %d events after unsubscribe", len(kinds)-len(want))
	}
}

func TestTranscript_ConcurrentReaders(t *testing.T) {
	tr := NewTranscript()
	_ = tr.AppendUser("q")
	_ = tr.BeginAssistant()

	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = tr.Turns()
					_ = tr.InProgress()
				}
			}
		}()
	}

	var want strings.Builder
	for i := 0; i < 500; i++ {
		d := string(rune('a' + i%26))
		want.WriteString(d)
		if err := tr.AppendDelta(d); err != nil {
			t.Fatalf("AppendDelta() error = %v", err)
		}
	}
	tr.Finalize()
	close(done)
	wg.Wait()

	if last, _ := tr.Last(); last.Content != want.String() {
		t.Errorf("content len = %d, want %d", len(last.Content), want.Len())
	}
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestSortByRecent(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sessions := []Session{
		{ID: "old", UpdatedAt: base},
		{ID: "new", UpdatedAt: base.Add(2 * time.Hour)},
		{ID: "mid", UpdatedAt: base.Add(time.Hour)},
	}

	SortByRecent(sessions)

	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if sessions[i].ID != id {
			t.Errorf("sessions[%d].ID = %q, want %q", i, sessions[i].ID, id)
		}
	}
}

func TestSession_DisplayTitle(t *testing.T) {
	if got := (Session{}).DisplayTitle(); got != DefaultSessionTitle {
		t.Errorf("DisplayTitle() = %q, want %q", got, DefaultSessionTitle)
	}
	if got := (Session{Title: "Cells"}).DisplayTitle(); got != "Cells" {
		t.Errorf("DisplayTitle() = %q, want %q", got, "Cells")
	}
}
