// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/MoriitoDev/Ollector/internal/backend"
	"github.com/MoriitoDev/Ollector/internal/config"
	"github.com/MoriitoDev/Ollector/internal/document"
	"github.com/MoriitoDev/Ollector/internal/logging"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxQuestionLength is the largest accepted question, in bytes.
	MaxQuestionLength = 32 * 1024

	// multipartMemory is the part of an upload kept in memory before
	// spilling to a temp file.
	multipartMemory = 8 << 20

	// persistTimeout bounds the write of a finished answer after the client
	// went away.
	persistTimeout = 5 * time.Second
)

// ============================================================================
// SERVER STATS
// ============================================================================

// Stats tracks server usage.
type Stats struct {
	ChatsCreated   atomic.Int64
	Answers        atomic.Int64
	AnswerFailures atomic.Int64
	SpeechRequests atomic.Int64
	BytesStreamed  atomic.Int64
	StartTime      time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	ChatsCreated   int64 `json:"chats_created"`
	Answers        int64 `json:"answers"`
	AnswerFailures int64 `json:"answer_failures"`
	SpeechRequests int64 `json:"speech_requests"`
	BytesStreamed  int64 `json:"bytes_streamed"`
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		ChatsCreated:   s.ChatsCreated.Load(),
		Answers:        s.Answers.Load(),
		AnswerFailures: s.AnswerFailures.Load(),
		SpeechRequests: s.SpeechRequests.Load(),
		BytesStreamed:  s.BytesStreamed.Load(),
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Options configures a Server.
type Options struct {
	Config config.ServerConfig

	// Store is required.
	Store *Store

	// Engine overrides the engine built from Config.
	Engine Engine

	// Speaker overrides the synthesizer built from Config.TTSCommand.
	Speaker Speaker

	Logger  *log.Logger
	Version string
}

// Server is the conversation backend.
type Server struct {
	store   *Store
	logger  *log.Logger
	version string
	stats   Stats

	mu      sync.RWMutex
	cfg     config.ServerConfig
	engine  Engine
	speaker Speaker

	// pinned engines and speakers are kept across Reconfigure.
	pinnedEngine  bool
	pinnedSpeaker bool

	origins *originPolicy
	limiter *limiter
	handler http.Handler

	busyMu sync.Mutex
	busy   map[string]struct{}

	httpServer *http.Server
}

// New creates a server.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("server: store is required")
	}

	s := &Server{
		store:         opts.Store,
		logger:        logging.OrDefault(opts.Logger, "server"),
		version:       opts.Version,
		cfg:           opts.Config,
		engine:        opts.Engine,
		speaker:       opts.Speaker,
		pinnedEngine:  opts.Engine != nil,
		pinnedSpeaker: opts.Speaker != nil,
		origins:       newOriginPolicy(opts.Config.CORSOrigins),
		limiter:       newLimiter(opts.Config.RateLimit),
		busy:          make(map[string]struct{}),
	}
	s.stats.StartTime = time.Now()

	if s.engine == nil {
		engine, err := NewEngine(opts.Config)
		if err != nil {
			return nil, err
		}
		s.engine = engine
	}
	if s.speaker == nil {
		s.speaker = NewCommandSpeaker(opts.Config.TTSCommand)
	}

	s.setupRoutes()
	return s, nil
}

// setupRoutes builds the handler chain.
func (s *Server) setupRoutes() {
	limited := throttle(s.limiter)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /chats", s.handleCreateChat)
	mux.HandleFunc("GET /chats", s.handleListChats)
	mux.HandleFunc("GET /chats/{id}", s.handleGetChat)
	mux.HandleFunc("DELETE /chats/{id}", s.handleDeleteChat)
	mux.Handle("POST /chats/{id}/message", limited(http.HandlerFunc(s.handleMessage)))
	mux.Handle("POST /tts", limited(http.HandlerFunc(s.handleSpeech)))

	s.handler = chain(
		recoverPanics(s.logger),
		tagRequests,
		accessLog(s.logger),
		hardenHeaders,
		allowOrigins(s.origins),
	)(mux)
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Stats returns the usage counters.
func (s *Server) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}

// Config returns the active configuration.
func (s *Server) Config() config.ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reconfigure applies settings that can change without a restart: engine,
// model, temperature, speech command, CORS origins, upload size and rate
// limit. The listen address and database need a restart.
func (s *Server) Reconfigure(cfg config.ServerConfig) error {
	s.mu.RLock()
	old := s.cfg
	s.mu.RUnlock()

	var engine Engine
	if !s.pinnedEngine {
		var err error
		if engine, err = NewEngine(cfg); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.cfg = cfg
	if engine != nil {
		s.engine = engine
	}
	if !s.pinnedSpeaker {
		s.speaker = NewCommandSpeaker(cfg.TTSCommand)
	}
	s.mu.Unlock()

	s.origins.set(cfg.CORSOrigins)
	s.limiter.setRate(cfg.RateLimit)

	if cfg.Listen != old.Listen || cfg.Database != old.Database {
		s.logger.Warn("listen address and database changes take effect after restart")
	}
	s.logger.Info("configuration reloaded", "engine", s.currentEngine().Name())
	return nil
}

func (s *Server) currentEngine() Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

func (s *Server) currentSpeaker() Speaker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speaker
}

// tryAcquire marks a chat as generating. Only one answer per chat is produced
// at a time.
func (s *Server) tryAcquire(id string) bool {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	if _, ok := s.busy[id]; ok {
		return false
	}
	s.busy[id] = struct{}{}
	return true
}

func (s *Server) release(id string) {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	delete(s.busy, id)
}

// ============================================================================
// CHAT HANDLERS
// ============================================================================

func chatSummary(c *Chat, msgs []StoredMessage) backend.ChatSummary {
	sum := backend.ChatSummary{
		ID:            c.ID,
		Title:         c.Title,
		CreatedAt:     backend.NewTimestamp(c.CreatedAt),
		UpdatedAt:     backend.NewTimestamp(c.UpdatedAt),
		HasAttachment: c.HasAttachment,
	}
	if msgs != nil {
		sum.Messages = make([]backend.Message, 0, len(msgs))
		for _, m := range msgs {
			sum.Messages = append(sum.Messages, backend.Message{Role: m.Role, Content: m.Content})
		}
	}
	return sum
}

// handleCreateChat handles POST /chats.
func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.store.CreateChat(r.Context())
	if err != nil {
		s.logger.Error("create chat failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create chat")
		return
	}
	s.stats.ChatsCreated.Add(1)
	writeJSON(w, http.StatusCreated, chatSummary(chat, nil))
}

// handleListChats handles GET /chats.
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ListChats(r.Context())
	if err != nil {
		s.logger.Error("list chats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list chats")
		return
	}

	resp := backend.ListChatsResponse{Chats: make([]backend.ChatSummary, 0, len(chats))}
	for i := range chats {
		resp.Chats = append(resp.Chats, chatSummary(&chats[i], nil))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetChat handles GET /chats/{id}.
func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chat, err := s.store.GetChat(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	msgs, err := s.store.Messages(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatSummary(chat, msgs))
}

// handleDeleteChat handles DELETE /chats/{id}.
func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.tryAcquire(id) {
		writeError(w, http.StatusConflict, "an answer is being generated for this chat")
		return
	}
	defer s.release(id)

	if err := s.store.DeleteChat(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// MESSAGE HANDLER
// ============================================================================

// question is a parsed POST /chats/{id}/message request.
type question struct {
	text     string
	docName  string
	document string
}

// handleMessage handles POST /chats/{id}/message. The answer is streamed as
// plain text. Failures before the first fragment are reported as JSON
// errors; failures after it abort the connection so the client sees a
// truncated stream. The exchange is stored once the answer is complete, or
// with the partial answer if the client disconnects.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cfg := s.Config()

	q, status, err := parseQuestion(w, r, cfg.MaxUploadBytes())
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	chat, err := s.store.GetChat(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !s.tryAcquire(id) {
		writeError(w, http.StatusConflict, "an answer is already being generated for this chat")
		return
	}
	defer s.release(id)

	history, err := s.store.Messages(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	prompt := chat.SystemPrompt
	if prompt == "" || q.document != "" {
		prompt = SystemPrompt(q.document)
	}

	msgs := make([]EngineMessage, 0, len(history)+2)
	msgs = append(msgs, EngineMessage{Role: "system", Content: prompt})
	for _, m := range history {
		msgs = append(msgs, EngineMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, EngineMessage{Role: "user", Content: q.text})

	engine := s.currentEngine()
	logger := s.logger.With("chat", id, "engine", engine.Name(), "request", requestID(r.Context()))
	logger.Debug("answering", "history", len(history), "document", q.docName)

	var answer strings.Builder
	started := false
	flusher, _ := w.(http.Flusher)

	err = engine.Stream(r.Context(), msgs, func(delta string) error {
		if !started {
			started = true
			h := w.Header()
			h.Set("Content-Type", "text/plain; charset=utf-8")
			h.Set("X-Chat-Id", id)
			h.Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
		}
		answer.WriteString(delta)
		n, werr := io.WriteString(w, delta)
		s.stats.BytesStreamed.Add(int64(n))
		if werr != nil {
			return werr
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})

	clientGone := r.Context().Err() != nil
	if err != nil && !(clientGone && answer.Len() > 0) {
		s.stats.AnswerFailures.Add(1)
		if clientGone {
			logger.Info("client disconnected before the answer started")
			return
		}
		logger.Error("generation failed", "error", err, "streamed", answer.Len())
		if !started {
			writeError(w, http.StatusBadGateway, "the language model failed to answer: "+err.Error())
			return
		}
		panic(http.ErrAbortHandler)
	}

	if !started {
		// Empty answer.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Chat-Id", id)
		w.WriteHeader(http.StatusOK)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), persistTimeout)
	defer cancel()
	s.persistExchange(ctx, logger, chat, prompt, q, answer.String(), cfg.AutoTitle)
	s.stats.Answers.Add(1)
}

// persistExchange stores a finished exchange. The response is already sent,
// so failures are only logged.
func (s *Server) persistExchange(ctx context.Context, logger *log.Logger, chat *Chat, prompt string, q question, answer string, autoTitle bool) {
	var err error
	switch {
	case chat.SystemPrompt == "":
		_, err = s.store.SetSystemPrompt(ctx, chat.ID, prompt, q.document != "")
	case q.document != "":
		err = s.store.ReplaceSystemPrompt(ctx, chat.ID, prompt)
	}
	if err != nil {
		logger.Error("storing prompt failed", "error", err)
	}

	if err := s.store.AppendExchange(ctx, chat.ID, q.text, answer); err != nil {
		logger.Error("storing exchange failed", "error", err)
		return
	}

	if autoTitle && chat.Title == "" {
		if title := TitleFromMessage(q.text, q.document != ""); title != "" {
			if err := s.store.SetTitle(ctx, chat.ID, title); err != nil {
				logger.Warn("setting title failed", "error", err)
			}
		}
	}
}

// parseQuestion reads the text and optional document of a message request.
// It returns the HTTP status to answer with when the request is rejected.
func parseQuestion(w http.ResponseWriter, r *http.Request, maxUpload int64) (question, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+multipartMemory)
	if status, err := parseForm(r); err != nil {
		return question{}, status, err
	}

	q := question{text: strings.TrimSpace(r.FormValue("text"))}
	if len(q.text) > MaxQuestionLength {
		return q, http.StatusRequestEntityTooLarge, fmt.Errorf("question exceeds %d bytes", MaxQuestionLength)
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		return q, http.StatusBadRequest, fmt.Errorf("reading upload: %w", err)
	default:
		defer file.Close()
		if header.Size > maxUpload {
			return q, http.StatusRequestEntityTooLarge, fmt.Errorf("document exceeds %d MB", maxUpload>>20)
		}
		data, err := io.ReadAll(file)
		if err != nil {
			return q, http.StatusBadRequest, fmt.Errorf("reading upload: %w", err)
		}
		text, err := document.Extract(header.Filename, header.Header.Get("Content-Type"), data)
		switch {
		case errors.Is(err, document.ErrUnsupported):
			return q, http.StatusUnsupportedMediaType, err
		case errors.Is(err, document.ErrNoText):
			return q, http.StatusUnprocessableEntity, err
		case err != nil:
			return q, http.StatusUnprocessableEntity, fmt.Errorf("reading document: %w", err)
		}
		q.docName = header.Filename
		q.document = text
	}

	if q.text == "" {
		return q, http.StatusBadRequest, errors.New("text is required")
	}
	return q, 0, nil
}

// parseForm accepts both multipart and urlencoded bodies.
func parseForm(r *http.Request) (int, error) {
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err == nil {
		return 0, nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge, fmt.Errorf("request exceeds %d bytes", maxErr.Limit)
	}
	return http.StatusBadRequest, fmt.Errorf("invalid form: %w", err)
}

// ============================================================================
// SPEECH HANDLER
// ============================================================================

// handleSpeech handles POST /tts.
func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4*MaxSpeechChars+multipartMemory)
	if status, err := parseForm(r); err != nil {
		writeError(w, status, err.Error())
		return
	}

	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if len([]rune(text)) > MaxSpeechChars {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("text exceeds %d characters", MaxSpeechChars))
		return
	}

	s.stats.SpeechRequests.Add(1)
	audio, contentType, err := s.currentSpeaker().Speak(r.Context(), text)
	if err != nil {
		if errors.Is(err, ErrSpeechUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if r.Context().Err() != nil {
			return
		}
		s.logger.Error("speech synthesis failed", "error", err)
		writeError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// ============================================================================
// HEALTH
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string        `json:"status"`
	Version     string        `json:"version,omitempty"`
	Engine      string        `json:"engine"`
	EngineReady bool          `json:"engine_ready"`
	EngineError string        `json:"engine_error,omitempty"`
	Uptime      string        `json:"uptime"`
	Stats       StatsSnapshot `json:"stats"`
}

// handleHealth handles GET /health. The status is "degraded" when the
// engine cannot be reached; the backend still answers chat listings then.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	engine := s.currentEngine()
	resp := HealthResponse{
		Status:      "ok",
		Version:     s.version,
		Engine:      engine.Name(),
		EngineReady: true,
		Uptime:      time.Since(s.stats.StartTime).Round(time.Second).String(),
		Stats:       s.stats.Snapshot(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		resp.Status = "error"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if err := engine.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.EngineReady = false
		resp.EngineError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Config().Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		// Answers stream for as long as the model talks.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.WarnLevel}),
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("serving", "addr", ln.Addr().String(), "engine", s.currentEngine().Name())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for streams in flight until
// ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"detail": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrChatNotFound):
		writeError(w, http.StatusNotFound, "chat not found")
	case errors.Is(err, context.Canceled):
	default:
		s.logger.Error("store error", "error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
	}
}
