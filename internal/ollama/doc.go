// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama is a small client for the Ollama chat API, used by the
// reference backend to stream answers from a local model.
//
//	client := ollama.New(ollama.ClientConfig{BaseURL: url, Model: "llama3.2"})
//	err := client.Chat(ctx, ollama.ChatRequest{Messages: msgs}, func(c ollama.Chunk) error {
//	    _, err := io.WriteString(w, c.Content)
//	    return err
//	})
//
// Transport failures wrap ErrUnreachable. Answers Ollama rejects come back
// as *APIError; a missing model also matches ErrModelMissing.
package ollama
