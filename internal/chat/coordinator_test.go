// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoriitoDev/Ollector/internal/backend"
	"github.com/MoriitoDev/Ollector/internal/logging"
	"github.com/MoriitoDev/Ollector/internal/model"
	"github.com/MoriitoDev/Ollector/internal/session"
)

// =============================================================================
// FAKES
// =============================================================================

type sentMessage struct {
	id   string
	text string
	att  *backend.Attachment
}

// fakeService implements session.Backend and Sender.
type fakeService struct {
	mu        sync.Mutex
	nextID    int
	createErr error
	sendErr   error
	reply     func() io.ReadCloser
	sent      []sentMessage
	chats     map[string]backend.ChatDetail
	// afterGet runs once GetChat has read the stored detail.
	afterGet func()
}

func newFakeService(reply ...string) *fakeService {
	return &fakeService{
		chats: make(map[string]backend.ChatDetail),
		reply: func() io.ReadCloser {
			return io.NopCloser(&chunkedReader{chunks: reply})
		},
	}
}

func (f *fakeService) CreateChat(ctx context.Context) (backend.ChatSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return backend.ChatSummary{}, f.createErr
	}
	f.nextID++
	id := "S" + string(rune('0'+f.nextID))
	c := backend.ChatSummary{ID: id, UpdatedAt: backend.NewTimestamp(time.Now())}
	f.chats[id] = backend.ChatDetail{ChatSummary: c}
	return c, nil
}

func (f *fakeService) ListChats(ctx context.Context) ([]backend.ChatSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.ChatSummary, 0, len(f.chats))
	for _, c := range f.chats {
		out = append(out, c.ChatSummary)
	}
	return out, nil
}

func (f *fakeService) GetChat(ctx context.Context, id string) (*backend.ChatDetail, error) {
	f.mu.Lock()
	c, ok := f.chats[id]
	hook := f.afterGet
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if !ok {
		return nil, &backend.ClientError{Type: backend.ErrTypeNotFound, Message: "not found"}
	}
	return &c, nil
}

func (f *fakeService) SendMessage(ctx context.Context, id, text string, att *backend.Attachment) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{id: id, text: text, att: att})
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.reply(), nil
}

func (f *fakeService) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// chunkedReader returns one chunk per Read, then err (or io.EOF).
type chunkedReader struct {
	chunks []string
	err    error
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

type fakeInput struct {
	mu      sync.Mutex
	clears  int
	enabled []bool
}

func (i *fakeInput) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.clears++
}

func (i *fakeInput) SetEnabled(enabled bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.enabled = append(i.enabled, enabled)
}

func (i *fakeInput) snapshot() (int, []bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.clears, append([]bool(nil), i.enabled...)
}

func setup(svc *fakeService) (*Coordinator, *session.Registry, *fakeInput) {
	reg := session.NewRegistry(svc, logging.Discard())
	in := &fakeInput{}
	coord := NewCoordinator(svc, reg, Options{Input: in, Logger: logging.Discard()})
	return coord, reg, in
}

// =============================================================================
// SUCCESS PATH
// =============================================================================

func TestSubmit_FirstMessageCreatesSession(t *testing.T) {
	svc := newFakeService("Hi", " there")
	coord, reg, in := setup(svc)

	var states []State
	coord.onState = func(_ *model.Transcript, s State) { states = append(states, s) }

	err := coord.Submit(context.Background(), "Hello")
	require.NoError(t, err)

	assert.Equal(t, "S1", reg.Current())
	tr := reg.View()
	assert.Equal(t, []model.Turn{model.UserTurn("Hello"), model.AssistantTurn("Hi there")}, tr.Turns())
	assert.False(t, tr.InProgress())
	assert.Equal(t, StateIdle, coord.State(tr))
	assert.Equal(t, []State{StateSending, StateIdle}, states)

	sent := svc.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "S1", sent[0].id)
	assert.Equal(t, "Hello", sent[0].text)

	clears, enabled := in.snapshot()
	assert.Equal(t, 1, clears)
	assert.Equal(t, []bool{false, true}, enabled)
}

func TestSubmit_ReusesCurrentSession(t *testing.T) {
	svc := newFakeService("ok")
	coord, reg, _ := setup(svc)
	ctx := context.Background()

	require.NoError(t, coord.Submit(ctx, "one"))
	require.NoError(t, coord.Submit(ctx, "two"))

	sent := svc.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0].id, sent[1].id)
	assert.Equal(t, 4, reg.View().Len())
}

func TestSubmit_OnComplete(t *testing.T) {
	svc := newFakeService("a", "b")
	reg := session.NewRegistry(svc, logging.Discard())

	var results []Result
	coord := NewCoordinator(svc, reg, Options{
		Logger:     logging.Discard(),
		OnComplete: func(r Result) { results = append(results, r) },
	})

	require.NoError(t, coord.Submit(context.Background(), "q"))
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "S1", results[0].SessionID)
	assert.Equal(t, int64(2), results[0].Stats.Bytes)
}

// =============================================================================
// GUARDS
// =============================================================================

func TestSubmit_EmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		svc := newFakeService("x")
		coord, reg, in := setup(svc)

		err := coord.Submit(context.Background(), text)

		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.Equal(t, 0, reg.View().Len())
		assert.Empty(t, svc.sentMessages())
		clears, enabled := in.snapshot()
		assert.Zero(t, clears)
		assert.Empty(t, enabled)
	}
}

func TestSubmit_BusyRejectsSecondSubmission(t *testing.T) {
	pr, pw := io.Pipe()
	svc := newFakeService()
	svc.reply = func() io.ReadCloser { return pr }
	coord, reg, _ := setup(svc)
	ctx := context.Background()

	require.NoError(t, coord.SubmitAsync(ctx, "first"))

	// Wait until the stream is attached.
	require.Eventually(t, func() bool { return len(svc.sentMessages()) == 1 }, time.Second, time.Millisecond)

	err := coord.Submit(ctx, "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, StateSending, coord.State(reg.View()))
	assert.True(t, coord.Sending())

	_, _ = io.WriteString(pw, "done")
	pw.Close()
	coord.Wait()

	turns := reg.View().Turns()
	assert.Equal(t, []model.Turn{model.UserTurn("first"), model.AssistantTurn("done")}, turns)
	assert.Len(t, svc.sentMessages(), 1)
	assert.False(t, coord.Sending())
}

// =============================================================================
// FAILURE PATHS
// =============================================================================

func TestSubmit_CreateFailure(t *testing.T) {
	svc := newFakeService("unused")
	svc.createErr = errors.New("backend down")
	coord, reg, in := setup(svc)

	err := coord.Submit(context.Background(), "Hello")

	assert.ErrorIs(t, err, session.ErrSessionCreateFailed)
	assert.Equal(t, "", reg.Current())
	assert.Equal(t, []model.Turn{model.UserTurn("Hello"), model.AssistantTurn(DefaultErrorNotice)}, reg.View().Turns())
	assert.Equal(t, StateIdle, coord.State(reg.View()))
	assert.Empty(t, svc.sentMessages())

	_, enabled := in.snapshot()
	assert.Equal(t, []bool{false, true}, enabled)
}

func TestSubmit_SendFailure(t *testing.T) {
	svc := newFakeService()
	svc.sendErr = &backend.ClientError{Type: backend.ErrTypeStatus, Message: "500", StatusCode: 500}
	coord, reg, _ := setup(svc)

	var states []State
	coord.onState = func(_ *model.Transcript, s State) { states = append(states, s) }

	err := coord.Submit(context.Background(), "Hello")

	require.Error(t, err)
	last, _ := reg.View().Last()
	assert.Equal(t, DefaultErrorNotice, last.Content)
	assert.Equal(t, []State{StateSending, StateFailed, StateIdle}, states)
}

func TestSubmit_StreamInterruptedReplacesPartialAnswer(t *testing.T) {
	svc := newFakeService()
	svc.reply = func() io.ReadCloser {
		return io.NopCloser(&chunkedReader{chunks: []string{"Half an ", "answ"}, err: errors.New("reset")})
	}
	reg := session.NewRegistry(svc, logging.Discard())
	coord := NewCoordinator(svc, reg, Options{ErrorNotice: "custom notice", Logger: logging.Discard()})

	err := coord.Submit(context.Background(), "Hello")

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "reset"))
	turns := reg.View().Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "custom notice", turns[1].Content)
	assert.False(t, reg.View().InProgress())

	// The transcript accepts a new submission afterwards.
	svc.reply = func() io.ReadCloser { return io.NopCloser(strings.NewReader("fine")) }
	require.NoError(t, coord.Submit(context.Background(), "again"))
	last, _ := reg.View().Last()
	assert.Equal(t, "fine", last.Content)
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

func TestStage_IsOneShot(t *testing.T) {
	svc := newFakeService("ok")
	coord, _, _ := setup(svc)
	ctx := context.Background()

	doc := &backend.Attachment{Name: "notes.pdf", Data: []byte("%PDF")}
	coord.Stage(doc)
	assert.Same(t, doc, coord.Staged())

	require.NoError(t, coord.Submit(ctx, "with doc"))
	require.NoError(t, coord.Submit(ctx, "without doc"))

	sent := svc.sentMessages()
	require.Len(t, sent, 2)
	assert.Same(t, doc, sent[0].att)
	assert.Nil(t, sent[1].att)
	assert.Nil(t, coord.Staged())
}

func TestStage_ConsumedEvenOnFailure(t *testing.T) {
	svc := newFakeService("ok")
	svc.createErr = errors.New("down")
	coord, _, _ := setup(svc)

	coord.Stage(&backend.Attachment{Name: "a.pdf"})
	require.Error(t, coord.Submit(context.Background(), "q"))
	assert.Nil(t, coord.Staged())
}

func TestStage_KeptOnGuardRejection(t *testing.T) {
	coord, _, _ := setup(newFakeService("ok"))
	doc := &backend.Attachment{Name: "a.pdf"}
	coord.Stage(doc)

	assert.ErrorIs(t, coord.Submit(context.Background(), " "), ErrEmptyInput)
	assert.Same(t, doc, coord.Staged())
}

// =============================================================================
// SESSION SWITCHING
// =============================================================================

func TestSubmit_SwitchSessionMidStream(t *testing.T) {
	pr, pw := io.Pipe()
	svc := newFakeService()
	svc.reply = func() io.ReadCloser { return pr }
	svc.chats["S9"] = backend.ChatDetail{ChatSummary: backend.ChatSummary{
		ID:       "S9",
		Messages: []backend.Message{{Role: "user", Content: "old q"}, {Role: "assistant", Content: "old a"}},
	}}
	coord, reg, _ := setup(svc)
	ctx := context.Background()

	require.NoError(t, coord.SubmitAsync(ctx, "Hello"))
	require.Eventually(t, func() bool { return len(svc.sentMessages()) == 1 }, time.Second, time.Millisecond)
	streaming, ok := reg.Transcript("S1")
	require.True(t, ok)

	_, _ = io.WriteString(pw, "Hi")
	require.NoError(t, reg.Open(ctx, "S9"))
	_, _ = io.WriteString(pw, " there")
	pw.Close()
	coord.Wait()

	assert.Equal(t, "S9", reg.Current())
	assert.Equal(t, 2, reg.View().Len())
	last, _ := streaming.Last()
	assert.Equal(t, "Hi there", last.Content)
	assert.False(t, streaming.InProgress())
}

func TestSubmit_DuringOpenKeepsExchange(t *testing.T) {
	svc := newFakeService("Hi")
	svc.chats["S1"] = backend.ChatDetail{ChatSummary: backend.ChatSummary{
		ID:       "S1",
		Messages: []backend.Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}},
	}}
	coord, reg, _ := setup(svc)
	ctx := context.Background()
	require.NoError(t, reg.Open(ctx, "S1"))

	fetched := make(chan struct{})
	release := make(chan struct{})
	svc.mu.Lock()
	svc.afterGet = func() {
		close(fetched)
		<-release
	}
	svc.mu.Unlock()

	opened := make(chan error, 1)
	go func() { opened <- reg.Open(ctx, "S1") }()
	<-fetched

	svc.mu.Lock()
	svc.afterGet = nil
	svc.mu.Unlock()
	require.NoError(t, coord.Submit(ctx, "Hello"))
	close(release)

	assert.ErrorIs(t, <-opened, session.ErrSessionBusy)
	assert.Equal(t, []model.Turn{
		model.UserTurn("a"), model.AssistantTurn("b"),
		model.UserTurn("Hello"), model.AssistantTurn("Hi"),
	}, reg.View().Turns())
}
