// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks the chat sessions known to the backend and which
// one the user is looking at.
//
// Every session id comes from the backend; the registry never invents one.
// Before the first session exists the view shows a draft transcript, which
// is bound to the real session once the first submission creates it.
//
// Each session owns its own Transcript instance. A stream writing into one
// session's transcript is therefore unaffected by the user switching to
// another session. Re-opening a session while its answer is still
// streaming, or after a submission touched it during the load, is rejected
// with ErrSessionBusy instead of overwriting the newer turns.
//
// # Key Types
//
//   - Registry: Ordered session list, current selection and transcripts
//   - Backend: The subset of the backend client the registry needs
//
// # Usage
//
//	reg := session.NewRegistry(client, nil)
//	sessions, err := reg.List(ctx)
//	if err := reg.Open(ctx, sessions[0].ID); err != nil {
//	    // ErrSessionNotFound, ErrSessionBusy, or a transport error
//	}
//	render(reg.View().Turns())
package session
