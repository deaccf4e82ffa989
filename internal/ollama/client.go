// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is where a local Ollama listens.
	DefaultBaseURL = "http://127.0.0.1:11434"

	// DefaultModel answers when no model is configured.
	DefaultModel = "llama3.2"

	defaultPingTimeout = 5 * time.Second
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnreachable wraps transport failures: Ollama is not running or the
	// URL is wrong.
	ErrUnreachable = errors.New("ollama: server not reachable")

	// ErrModelMissing matches an APIError for a model that is not pulled.
	ErrModelMissing = errors.New("ollama: model not installed")
)

// APIError is an error answer from Ollama, either a non-2xx response or an
// error line inside a stream (Status 0).
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return "ollama: " + e.Message
	}
	return fmt.Sprintf("ollama: %d %s", e.Status, e.Message)
}

// Is reports ErrModelMissing for 404 answers.
func (e *APIError) Is(target error) bool {
	return target == ErrModelMissing && e.Status == http.StatusNotFound
}

// =============================================================================
// CLIENT
// =============================================================================

// ClientConfig configures a Client. Zero values select the defaults.
type ClientConfig struct {
	BaseURL     string
	Model       string
	PingTimeout time.Duration
}

// Client streams chat answers from Ollama. It is safe for concurrent use.
type Client struct {
	baseURL string
	model   string
	ping    *http.Client
	// Answers can take minutes; only the caller's context bounds them.
	chat *http.Client
}

// New creates a client.
func New(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		ping:    &http.Client{Timeout: cfg.PingTimeout},
		chat:    &http.Client{},
	}
}

// Model returns the model used when a request names none.
func (c *Client) Model() string {
	return c.model
}

// Version returns the Ollama version. It doubles as the liveness check.
func (c *Client) Version(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.ping.Do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}
	var v struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", fmt.Errorf("ollama: decode version: %w", err)
	}
	return v.Version, nil
}

// Chat streams the answer to req, calling fn for each chunk in order. An
// empty req.Model selects the client's model. Chat returns when the model
// is done, ctx ends, fn fails or the connection breaks.
func (c *Client) Chat(ctx context.Context, req ChatRequest, fn func(Chunk) error) error {
	if req.Model == "" {
		req.Model = c.model
	}
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("ollama: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.chat.Do(httpReq)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return newChunkReader(resp.Body).each(ctx, fn)
}

// =============================================================================
// HELPERS
// =============================================================================

func transportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnreachable, err)
}

// apiError reads Ollama's {"error": "..."} body, falling back to the status.
func apiError(resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := http.StatusText(resp.StatusCode)
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(r, 64<<10))
	r.Close()
}
