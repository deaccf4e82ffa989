// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MoriitoDev/Ollector/internal/config"
	"github.com/MoriitoDev/Ollector/internal/ollama"
)

// MaxAnswerTokens caps the length of one generated answer.
const MaxAnswerTokens = 512

// =============================================================================
// ENGINE INTERFACE
// =============================================================================

// EngineMessage is one message of the prompt sent to an engine.
type EngineMessage struct {
	Role    string
	Content string
}

// DeltaFunc receives each generated text fragment. Returning an error stops
// generation.
type DeltaFunc func(delta string) error

// Engine generates answers.
type Engine interface {
	// Name identifies the engine and model, e.g. "ollama/llama3.2".
	Name() string

	// Ping reports whether the engine can serve requests.
	Ping(ctx context.Context) error

	// Stream generates an answer for messages, passing fragments to fn as
	// they arrive.
	Stream(ctx context.Context, messages []EngineMessage, fn DeltaFunc) error
}

// NewEngine builds the engine selected by cfg.
func NewEngine(cfg config.ServerConfig) (Engine, error) {
	switch strings.ToLower(cfg.Engine) {
	case "", "ollama":
		client := ollama.New(ollama.ClientConfig{BaseURL: cfg.OllamaURL, Model: cfg.Model})
		return NewOllamaEngine(client, cfg.Temperature), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, errors.New("openai engine requires an API key")
		}
		return NewOpenAIEngine(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

// =============================================================================
// OLLAMA ENGINE
// =============================================================================

// OllamaEngine generates answers with a local Ollama server.
type OllamaEngine struct {
	client      *ollama.Client
	temperature float64
}

// NewOllamaEngine creates an engine answering with the client's model.
func NewOllamaEngine(client *ollama.Client, temperature float64) *OllamaEngine {
	return &OllamaEngine{client: client, temperature: temperature}
}

// Name implements Engine.
func (e *OllamaEngine) Name() string {
	return "ollama/" + e.client.Model()
}

// Ping implements Engine.
func (e *OllamaEngine) Ping(ctx context.Context) error {
	_, err := e.client.Version(ctx)
	return err
}

// Stream implements Engine.
func (e *OllamaEngine) Stream(ctx context.Context, messages []EngineMessage, fn DeltaFunc) error {
	req := ollama.ChatRequest{
		Messages: make([]ollama.Message, 0, len(messages)),
		Options:  &ollama.Options{Temperature: e.temperature, NumPredict: MaxAnswerTokens},
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, ollama.Message{Role: m.Role, Content: m.Content})
	}
	return e.client.Chat(ctx, req, func(c ollama.Chunk) error {
		if c.Content == "" {
			return nil
		}
		return fn(c.Content)
	})
}

// =============================================================================
// OPENAI ENGINE
// =============================================================================

// OpenAIEngine generates answers with an OpenAI-compatible API.
type OpenAIEngine struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewOpenAIEngine creates an engine. An empty baseURL uses the OpenAI API.
func NewOpenAIEngine(apiKey, baseURL, model string, temperature float64) *OpenAIEngine {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIEngine{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
	}
}

// Name implements Engine.
func (e *OpenAIEngine) Name() string {
	return "openai/" + e.model
}

// Ping implements Engine.
func (e *OpenAIEngine) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := e.client.Models.Get(ctx, e.model); err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	return nil
}

// Stream implements Engine.
func (e *OpenAIEngine) Stream(ctx context.Context, messages []EngineMessage, fn DeltaFunc) error {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(e.model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(e.temperature),
		MaxTokens:   openai.Int(MaxAnswerTokens),
	}

	stream := e.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := fn(delta); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("openai stream: %w", err)
	}
	return nil
}

func toOpenAIMessages(messages []EngineMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
