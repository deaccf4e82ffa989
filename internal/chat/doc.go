// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat coordinates sending a message and folding the streamed
// answer into the transcript.
//
// Each transcript moves through Idle -> Sending -> (Idle | Failed -> Idle).
// At most one submission is in flight per transcript; a second one is
// rejected with ErrBusy without touching anything. A session is created
// lazily by the first submission. Any failure replaces the partial answer
// with a fixed notice so the user never sees a half-written reply.
//
// # Key Types
//
//   - Coordinator: Single-flight submission and stream folding
//   - Input: The input surface the coordinator clears and gates
//   - State: Per-transcript submission state
//
// # Usage
//
//	coord := chat.NewCoordinator(client, registry, chat.Options{Input: editor})
//	coord.Stage(attachment) // optional, consumed by the next submission
//	if err := coord.Submit(ctx, "Explain photosynthesis"); err != nil {
//	    // ErrEmptyInput / ErrBusy, or the failure behind the notice
//	}
package chat
