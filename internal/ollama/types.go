// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import "time"

// Message is one entry of a chat history.
type Message struct {
	Role    string `json:"role"` // system, user or assistant
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *Options  `json:"options,omitempty"`
	// KeepAlive is how long the model stays loaded, e.g. "10m".
	KeepAlive string `json:"keep_alive,omitempty"`
}

// Options are the sampling parameters Ollama accepts.
type Options struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// Chunk is one piece of a streamed answer. The usage fields are set on the
// final chunk only.
type Chunk struct {
	Content string
	Model   string
	Done    bool

	DoneReason       string
	TotalDuration    time.Duration
	PromptTokens     int
	CompletionTokens int
}

// chatLine is one line of a /api/chat stream.
type chatLine struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	TotalDuration   int64  `json:"total_duration"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

type errorBody struct {
	Error string `json:"error"`
}
