// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the conversation and speech
// services.
//
// The conversation service persists chat sessions and answers a message with
// a raw streamed text body. The speech service turns text into audio bytes.
//
// # Key Types
//
//   - Client: HTTP client for both services, safe for concurrent use
//   - ChatSummary / ChatDetail: Wire shapes of /chats responses
//   - Attachment: Optional document sent with a message
//   - Audio: Synthesized speech with its content type
//   - ClientError: Categorized transport and status failures
//
// # Usage
//
//	client := backend.NewClient(&backend.ClientConfig{BaseURL: url})
//	chat, err := client.CreateChat(ctx)
//	body, err := client.SendMessage(ctx, chat.ID, "Explain photosynthesis", nil)
//	defer body.Close()
//	// Feed body into a stream.Consumer
//
// Only idempotent GET requests are retried. Every request waits on a token
// bucket so a runaway caller cannot hammer the backend.
package backend
