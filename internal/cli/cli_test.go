// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoriitoDev/Ollector/internal/config"
	"github.com/MoriitoDev/Ollector/internal/logging"
	"github.com/MoriitoDev/Ollector/internal/model"
	"github.com/MoriitoDev/Ollector/internal/server"
)

// =============================================================================
// TEST BACKEND
// =============================================================================

// tutorEngine answers every question with the same deltas.
type tutorEngine struct {
	mu     sync.Mutex
	deltas []string
	err    error
	calls  [][]server.EngineMessage
}

func (e *tutorEngine) Name() string                   { return "tutor/test" }
func (e *tutorEngine) Ping(ctx context.Context) error { return nil }

func (e *tutorEngine) Stream(ctx context.Context, messages []server.EngineMessage, fn server.DeltaFunc) error {
	e.mu.Lock()
	e.calls = append(e.calls, append([]server.EngineMessage(nil), messages...))
	e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	for _, d := range e.deltas {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func (e *tutorEngine) lastCall(t *testing.T) []server.EngineMessage {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(t, e.calls, "engine was not called")
	return e.calls[len(e.calls)-1]
}

type silentSpeaker struct{}

func (silentSpeaker) Speak(ctx context.Context, text string) ([]byte, string, error) {
	return []byte("RIFF" + text), "audio/wav", nil
}

// newTestBackend runs the conversation backend on an httptest server.
func newTestBackend(t *testing.T, engine server.Engine) string {
	t.Helper()

	store, err := server.OpenStore(filepath.Join(t.TempDir(), "chats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default().Server
	cfg.RateLimit = 0

	srv, err := server.New(server.Options{
		Config:  cfg,
		Store:   store,
		Engine:  engine,
		Speaker: silentSpeaker{},
		Logger:  logging.Discard(),
		Version: "test",
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func photosynthesisEngine() *tutorEngine {
	return &tutorEngine{deltas: []string{"Plants ", "turn light ", "into sugar."}}
}

// =============================================================================
// HELPERS
// =============================================================================

// isolate points HOME at a temp dir so no real config is read or written.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OLLECTOR_SERVER_URL", "")
	logging.SetOutput(io.Discard)
	return home
}

func testApp(t *testing.T, serverURL string) *app {
	t.Helper()
	isolate(t)
	cfg := config.Default()
	cfg.Client.ServerURL = serverURL
	cfg.Client.MaxRetries = -1
	cfg.Playback.Enabled = false
	cfg.UI.ShowStats = false
	return &app{info: BuildInfo{Version: "test"}, cfg: cfg}
}

// scriptedInput replays lines, then reports EOF.
type scriptedInput struct {
	lines   []string
	prompts []string
}

func (s *scriptedInput) ReadInput(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func runREPL(t *testing.T, a *app, lines ...string) (out, errOut string, in *scriptedInput) {
	t.Helper()
	var o, e bytes.Buffer
	r := a.newREPL(&o, &e)
	defer r.close()

	in = &scriptedInput{lines: lines}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, r.run(ctx, in))
	return o.String(), e.String(), in
}

// runCLI executes the command tree with args.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := NewRootCmd(BuildInfo{Version: "1.2.3", Commit: "abc1234", Date: "2025-01-02"})
	var o, e bytes.Buffer
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	root.SetOut(&o)
	root.SetErr(&e)
	root.SetIn(strings.NewReader(""))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = root.ExecuteContext(ctx)
	logging.SetOutput(io.Discard)
	return o.String(), e.String(), err
}

// =============================================================================
// REPL
// =============================================================================

func TestREPL_AskStreamsAnswerAndTitlesChat(t *testing.T) {
	a := testApp(t, newTestBackend(t, photosynthesisEngine()))

	out, errOut, in := runREPL(t, a, "What is photosynthesis?", "/list", "/quit")

	assert.Contains(t, out, "Plants turn light into sugar.\n")
	assert.Contains(t, out, "1. What is photosynthesis?")
	assert.Empty(t, errOut)

	require.Len(t, in.prompts, 3)
	assert.Equal(t, "[new chat] > ", in.prompts[0])
	assert.Equal(t, "[What is photosynthesis?] > ", in.prompts[1])
}

func TestREPL_OpenShowsStoredHistory(t *testing.T) {
	url := newTestBackend(t, photosynthesisEngine())
	runREPL(t, testApp(t, url), "What is photosynthesis?")

	out, errOut, in := runREPL(t, testApp(t, url), "/list", "/open 1")

	assert.Empty(t, errOut)
	assert.Contains(t, out, "Opened What is photosynthesis?")
	assert.Contains(t, out, "Teacher")
	assert.Contains(t, out, "Plants turn light into sugar.")
	assert.Equal(t, "[What is photosynthesis?] > ", in.prompts[len(in.prompts)-1])
}

func TestREPL_AttachmentGoesWithNextQuestionOnly(t *testing.T) {
	engine := photosynthesisEngine()
	a := testApp(t, newTestBackend(t, engine))

	notes := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("Chlorophyll absorbs red and blue light."), 0600))

	out, errOut, in := runREPL(t, a, "/attach "+notes, "Why are leaves green?", "/detach")

	assert.Empty(t, errOut)
	assert.Contains(t, out, "Attached notes.txt")
	assert.Contains(t, out, "Nothing is attached.")

	require.Len(t, in.prompts, 4)
	assert.Contains(t, in.prompts[1], "+notes.txt")
	assert.NotContains(t, in.prompts[2], "+notes.txt")

	msgs := engine.lastCall(t)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Chlorophyll absorbs red and blue light.")
	assert.Equal(t, "Why are leaves green?", msgs[len(msgs)-1].Content)
}

func TestREPL_Commands(t *testing.T) {
	a := testApp(t, newTestBackend(t, photosynthesisEngine()))

	out, errOut, _ := runREPL(t, a,
		"/help",
		"/detach",
		"/speak",
		"/bogus",
		"/open missing-chat",
		"/attach",
		"/new",
		"exit",
		"never read",
	)

	assert.Contains(t, out, "/attach <file>")
	assert.Contains(t, out, "Nothing is attached.")
	assert.Contains(t, out, "New chat. Your next question starts it.")

	assert.Contains(t, errOut, "Read-aloud is disabled.")
	assert.Contains(t, errOut, "Unknown command /bogus. Type /help for the list.")
	assert.Contains(t, errOut, "That chat no longer exists.")
	assert.Contains(t, errOut, "Usage: /attach <file>")
	assert.NotContains(t, out, "never read")
}

func TestREPL_SpeakWithoutAnswer(t *testing.T) {
	a := testApp(t, newTestBackend(t, photosynthesisEngine()))
	a.cfg.Playback.Enabled = true
	a.cfg.Playback.Command = "true"

	_, errOut, _ := runREPL(t, a, "/speak", "/speak 3", "/stop")
	assert.Contains(t, errOut, "There is no answer to read yet.")
}

func TestREPL_FailedAnswerIsReported(t *testing.T) {
	engine := &tutorEngine{err: errors.New("model offline")}
	a := testApp(t, newTestBackend(t, engine))

	_, errOut, in := runREPL(t, a, "Hello?")

	assert.Contains(t, errOut, "the server answered")
	assert.Contains(t, errOut, "model offline")
	// The input is open again after a failure.
	assert.Len(t, in.prompts, 2)
}

func TestAnswerIndices(t *testing.T) {
	tr := model.NewTranscript()
	require.NoError(t, tr.AppendUser("q1"))
	require.NoError(t, tr.BeginAssistant())
	require.NoError(t, tr.AppendDelta("a1"))
	tr.Finalize()
	require.NoError(t, tr.AppendUser("q2"))
	require.NoError(t, tr.BeginAssistant())
	require.NoError(t, tr.AppendDelta("still writing"))

	assert.Equal(t, []int{1}, answerIndices(tr))
	tr.Finalize()
	assert.Equal(t, []int{1, 3}, answerIndices(tr))
}

func TestFormatSessionList(t *testing.T) {
	when := time.Date(2025, 3, 4, 10, 30, 0, 0, time.Local)
	got := formatSessionList([]model.Session{
		{ID: "a", Title: "Cells", UpdatedAt: when},
		{ID: "b", UpdatedAt: when, HasAttachment: true},
	}, "b")

	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "  1. Cells"))
	assert.Contains(t, lines[0], "Mar 04 10:30")
	assert.NotContains(t, lines[0], "*")
	assert.Contains(t, lines[1], model.DefaultSessionTitle)
	assert.True(t, strings.HasSuffix(lines[1], "[doc] *"))
}

// =============================================================================
// HELPERS
// =============================================================================

func TestReadQuestion(t *testing.T) {
	q, err := readQuestion([]string{"What", "is", "DNA?"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "What is DNA?", q)

	q, err = readQuestion([]string{"-"}, strings.NewReader("  from stdin \n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", q)

	_, err = readQuestion([]string{"-"}, strings.NewReader("   "))
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestApplyServeFlags(t *testing.T) {
	cfg := config.Default().Server
	listen := cfg.Listen
	applyServeFlags(&cfg, serveOptions{model: "llama3.2", engine: "openai"})

	assert.Equal(t, listen, cfg.Listen)
	assert.Equal(t, "llama3.2", cfg.Model)
	assert.Equal(t, "openai", cfg.Engine)
}

func TestMaskIfSecret(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8000", maskIfSecret("client.server_url", "http://127.0.0.1:8000"))
	assert.Equal(t, "(not set)", maskIfSecret("server.openai_api_key", ""))
	assert.Equal(t, "[invalid key]", maskIfSecret("server.openai_api_key", "short"))

	masked := maskIfSecret("server.openai_api_key", "sk-1234567890abcdef")
	assert.True(t, strings.HasPrefix(masked, "sha256:"))
	assert.NotContains(t, masked, "1234567890")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "a,b", formatValue([]string{"a", "b"}))
	assert.Equal(t, "text", formatValue("text"))
	assert.Equal(t, "true", formatValue(true))
	assert.Equal(t, "0.7", formatValue(0.7))
}

func TestSetConfigValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, setConfigValue(path, "ui.show_stats", "true"))
	require.NoError(t, setConfigValue(path, "client.server_url", "http://tutor.local:9000"))

	cfg := config.Default()
	require.NoError(t, config.LoadTOML(cfg, path))
	assert.True(t, cfg.UI.ShowStats)
	assert.Equal(t, "http://tutor.local:9000", cfg.Client.ServerURL)

	err := setConfigValue(path, "client.nope", "1")
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	err = setConfigValue(path, "client.server_url", "ftp://nowhere")
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	err = setConfigValue(filepath.Join(dir, "config.json"), "ui.show_stats", "true")
	var step *stepError
	assert.True(t, errors.As(err, &step))
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestVersionCommand(t *testing.T) {
	isolate(t)

	out, _, err := runCLI(t, "version", "--json")
	require.NoError(t, err)

	var resp struct {
		OK   bool              `json:"ok"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "1.2.3", resp.Data["version"])
	assert.Equal(t, "abc1234", resp.Data["commit"])
}

func TestConfigCommands(t *testing.T) {
	home := isolate(t)
	want := filepath.Join(home, ".ollector", "config.toml")

	out, stderr, err := runCLI(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, want+"\n", out)
	assert.Contains(t, stderr, "does not exist yet")

	_, _, err = runCLI(t, "config", "init")
	require.NoError(t, err)
	assert.FileExists(t, want)

	_, _, err = runCLI(t, "config", "init")
	assert.Error(t, err)

	_, _, err = runCLI(t, "config", "set", "client.server_url", "http://tutor.local:9000")
	require.NoError(t, err)

	out, _, err = runCLI(t, "config", "get", "client.server_url")
	require.NoError(t, err)
	assert.Equal(t, "http://tutor.local:9000\n", out)

	_, _, err = runCLI(t, "config", "get", "client.nope")
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	out, _, err = runCLI(t, "config", "keys")
	require.NoError(t, err)
	assert.Contains(t, out, "client.server_url\n")
	assert.Contains(t, out, "playback.command\n")

	out, _, err = runCLI(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[client]")
	assert.Contains(t, out, "http://tutor.local:9000")
}

func TestBrokenConfigStillInspectable(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".ollector", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte("[client\nserver_url = "), 0600))

	out, _, err := runCLI(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)

	_, _, err = runCLI(t, "sessions", "list")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

func TestAskAndSessionsCommands(t *testing.T) {
	isolate(t)
	url := newTestBackend(t, photosynthesisEngine())

	out, stderr, err := runCLI(t, "--server", url, "ask", "--raw", "What is photosynthesis?")
	require.NoError(t, err)
	assert.Equal(t, "Plants turn light into sugar.\n", out)
	assert.Contains(t, stderr, "chat: ")
	chatID := strings.TrimSpace(stderr[strings.Index(stderr, "chat: ")+len("chat: "):])
	require.NotEmpty(t, chatID)

	out, _, err = runCLI(t, "--server", url, "sessions", "list", "--json")
	require.NoError(t, err)
	var list struct {
		OK   bool          `json:"ok"`
		Data []sessionJSON `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.True(t, list.OK)
	require.Len(t, list.Data, 1)
	assert.Equal(t, chatID, list.Data[0].ID)
	assert.Equal(t, "What is photosynthesis?", list.Data[0].Title)

	out, _, err = runCLI(t, "--server", url, "sessions", "show", "1", "--json")
	require.NoError(t, err)
	var show struct {
		Data sessionJSON `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &show))
	require.Len(t, show.Data.Messages, 2)
	assert.Equal(t, "user", show.Data.Messages[0].Role)
	assert.Equal(t, "Plants turn light into sugar.", show.Data.Messages[1].Content)

	out, _, err = runCLI(t, "--server", url, "ask", "--raw", "--chat", chatID, "And at night?")
	require.NoError(t, err)
	assert.Equal(t, "Plants turn light into sugar.\n", out)

	_, _, err = runCLI(t, "--server", url, "ask", "--chat", "missing-chat", "hello")
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))

	_, _, err = runCLI(t, "--server", url, "sessions", "show", "5")
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}
