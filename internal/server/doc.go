// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the reference conversation backend served by
// `ollector serve`.
//
// It stores chats in SQLite, answers questions with a local Ollama model or an
// OpenAI-compatible API, and reads answers aloud through an external speech
// program. A chat that starts with a PDF or text document is restricted to
// that document.
//
// # Endpoints
//
//   - POST   /chats              - Create a chat
//   - GET    /chats              - List chats, most recent first
//   - GET    /chats/{id}         - Chat with its messages
//   - DELETE /chats/{id}         - Delete a chat
//   - POST   /chats/{id}/message - Multipart "text" and optional "file"; streams plain text
//   - POST   /tts                - Form "text"; returns WAV audio
//   - GET    /health             - Health check
//
// Errors are JSON objects of the form {"detail": "..."}.
//
// # Key Types
//
//   - Server: HTTP handlers, middleware and lifecycle
//   - Store: SQLite persistence of chats and messages
//   - Engine: Answer generation (OllamaEngine, OpenAIEngine)
//   - Speaker: Speech synthesis (CommandSpeaker)
//
// # Usage
//
//	store, err := server.OpenStore(cfg.Server.Database)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	srv, err := server.New(server.Options{Config: cfg.Server, Store: store})
//	if err != nil {
//		return err
//	}
//	go srv.Start()
//	defer srv.Shutdown(context.Background())
package server
