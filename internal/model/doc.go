// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions and transcripts.
//
// A Transcript is the ordered list of turns shown for one chat session. The
// last turn may be an assistant turn that is still being streamed into; such
// a turn is "in progress" until it is finalized.
//
// # Key Types
//
//   - Role: Sender of a turn (user or assistant)
//   - Turn: A single immutable (once finalized) transcript entry
//   - Transcript: Mutex-guarded ordered turns with streaming support
//   - Event: Notification emitted after every transcript mutation
//   - Session: Metadata for a backend chat session
//
// # Usage
//
// Fold a streamed answer into a transcript:
//
//	tr := model.NewTranscript()
//	tr.AppendUser("Hello")
//	tr.BeginAssistant()
//	tr.AppendDelta("Hi ")
//	tr.AppendDelta("there")
//	tr.Finalize()
//
// Observe mutations from the presentation layer:
//
//	unsubscribe := tr.Subscribe(func(ev model.Event) {
//	    redraw(ev.Index)
//	})
//	defer unsubscribe()
package model
