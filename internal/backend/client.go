// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/MoriitoDev/Ollector/internal/logging"
)

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the conversation service base URL (default: http://127.0.0.1:8000)
	BaseURL string

	// SpeechURL is the speech service base URL (default: BaseURL)
	SpeechURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// ConnectTimeout for establishing streaming connections (default: 10s)
	ConnectTimeout time.Duration

	// MaxRetries for idempotent GET requests (default: 2, negative disables)
	MaxRetries int

	// RetryDelay between retries (default: 500ms)
	RetryDelay time.Duration

	// RequestsPerSecond paces outgoing requests (default: 10, burst 20)
	RequestsPerSecond float64
	Burst             int

	// UserAgent sent with every request
	UserAgent string

	// Logger for request diagnostics (default: logging.With("backend"))
	Logger *log.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           "http://127.0.0.1:8000",
		Timeout:           30 * time.Second,
		ConnectTimeout:    10 * time.Second,
		MaxRetries:        2,
		RetryDelay:        500 * time.Millisecond,
		RequestsPerSecond: 10,
		Burst:             20,
		UserAgent:         "ollector",
	}
}

// Client talks to the conversation and speech services.
//
// The Client is thread-safe for concurrent use.
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
	logger       *log.Logger
}

// NewClient builds a client; zero fields of config take their defaults.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.SpeechURL == "" {
		config.SpeechURL = config.BaseURL
	}
	config.SpeechURL = strings.TrimRight(config.SpeechURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = defaults.ConnectTimeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	// Streams may run for minutes; only the connection phase is bounded.
	streamTransport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: 2 * time.Minute,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{Transport: streamTransport},
		limiter:      rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		logger:       logging.OrDefault(config.Logger, "backend"),
	}
}

// Config returns the settings the client was built with, defaults filled in.
func (c *Client) Config() *ClientConfig {
	return c.config
}

// BaseURL returns the conversation service base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Ping verifies that the conversation service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListChats(ctx)
	return err
}

// CreateChat creates a new chat session. POST /chats
func (c *Client) CreateChat(ctx context.Context) (ChatSummary, error) {
	var chat ChatSummary
	req, err := c.newRequest(ctx, http.MethodPost, c.config.BaseURL+"/chats", nil)
	if err != nil {
		return chat, err
	}

	resp, err := c.do(req, c.httpClient)
	if err != nil {
		return chat, err
	}
	defer drainAndClose(resp.Body)

	if err := decodeJSON(resp, &chat); err != nil {
		return chat, err
	}
	if chat.ID == "" {
		return chat, &ClientError{Type: ErrTypeInvalidResponse, Message: "created chat has no id"}
	}

	c.logger.Debug("chat created", "id", chat.ID)
	return chat, nil
}

// ListChats lists every chat session. GET /chats
func (c *Client) ListChats(ctx context.Context) ([]ChatSummary, error) {
	resp, err := c.get(ctx, c.config.BaseURL+"/chats")
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	var result ListChatsResponse
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}
	return result.Chats, nil
}

// GetChat fetches one chat with its stored messages. GET /chats/{id}
func (c *Client) GetChat(ctx context.Context, id string) (*ChatDetail, error) {
	if id == "" {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "chat id is required"}
	}

	resp, err := c.get(ctx, c.config.BaseURL+"/chats/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	var detail ChatDetail
	if err := decodeJSON(resp, &detail); err != nil {
		return nil, err
	}
	if detail.ID == "" {
		detail.ID = id
	}
	return &detail, nil
}

// SendMessage posts a message and returns the streamed answer body.
// POST /chats/{id}/message with multipart fields "text" and optional "file".
//
// The caller must close the returned body. Cancelling ctx aborts the stream.
func (c *Client) SendMessage(ctx context.Context, id, text string, att *Attachment) (io.ReadCloser, error) {
	if id == "" {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "chat id is required"}
	}

	body, contentType, err := encodeMessageForm(text, att)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to encode message", Cause: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.config.BaseURL+"/chats/"+url.PathEscape(id)+"/message", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/plain")

	resp, err := c.do(req, c.streamClient)
	if err != nil {
		return nil, err
	}
	if resp.ContentLength == 0 {
		resp.Body.Close()
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "empty response body", StatusCode: resp.StatusCode}
	}

	c.logger.Debug("message sent", "id", id, "chars", len(text), "attachment", att.Size())
	return resp.Body, nil
}

// Synthesize converts text to audio. POST /tts with form field "text".
func (c *Client) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "nothing to synthesize"}
	}

	form := url.Values{}
	form.Set("text", text)

	req, err := c.newRequest(ctx, http.MethodPost, c.config.SpeechURL+"/tts", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req, c.streamClient)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, "failed to read audio", err)
	}
	if len(data) == 0 {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "empty audio response", StatusCode: resp.StatusCode}
	}

	return &Audio{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	return req, nil
}

// get performs a GET request, retrying transient failures.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request", "url", rawURL, "attempt", attempt, "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, classifyTransportError(ctx, "request cancelled", ctx.Err())
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.do(req, c.httpClient)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// do waits on the rate limiter, performs the request and maps failures to
// ClientError. Non-2xx responses are closed and returned as errors.
func (c *Client) do(req *http.Request, hc *http.Client) (*http.Response, error) {
	ctx := req.Context()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyTransportError(ctx, "rate limiter", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, req.Method+" "+req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer drainAndClose(resp.Body)
		return nil, statusError(req, resp)
	}
	return resp, nil
}

// statusError builds a ClientError from a non-2xx response, including the
// backend's "detail" or "error" message when it sends one.
func statusError(req *http.Request, resp *http.Response) error {
	msg := req.Method + " " + req.URL.Path + ": " + resp.Status

	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Detail != "" {
			msg += " (" + payload.Detail + ")"
		} else if payload.Error != "" {
			msg += " (" + payload.Error + ")"
		}
	}

	errType := ErrTypeStatus
	switch {
	case resp.StatusCode == http.StatusNotFound:
		errType = ErrTypeNotFound
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway:
		errType = ErrTypeUnavailable
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		errType = ErrTypeTimeout
	}
	return &ClientError{Type: errType, Message: msg, StatusCode: resp.StatusCode}
}

func classifyTransportError(ctx context.Context, msg string, err error) error {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return &ClientError{Type: ErrTypeCanceled, Message: msg, Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &ClientError{Type: ErrTypeTimeout, Message: msg, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: msg, Cause: err}
	}
	return &ClientError{Type: ErrTypeUnavailable, Message: msg, Cause: err}
}

func isRetryable(err error) bool {
	var ce *ClientError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Type {
	case ErrTypeUnavailable, ErrTypeTimeout:
		return true
	case ErrTypeStatus:
		return ce.StatusCode >= 500
	}
	return false
}

func decodeJSON(resp *http.Response, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", StatusCode: resp.StatusCode, Cause: err}
	}
	return nil
}

// encodeMessageForm builds the multipart body for SendMessage.
func encodeMessageForm(text string, att *Attachment) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("text", text); err != nil {
		return nil, "", err
	}

	if att != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+escapeQuotes(att.Name)+`"`)
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(att.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// drainAndClose reads what is left of r so the connection can be reused.
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(r, 1<<16))
	r.Close()
}
