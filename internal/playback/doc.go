// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package playback reads assistant turns aloud, one at a time.
//
// The Arbiter owns the only audio handle. Toggling the turn that is playing
// stops it; toggling any other turn stops the current audio before the new
// one is synthesized and started. A toggle that is superseded while its
// audio is still being synthesized discards that audio.
//
// # Key Types
//
//   - Arbiter: Mutually exclusive playback state machine
//   - Player: Starts audio and returns a Handle
//   - ExecPlayer: Player that pipes audio into ffplay, mpv, aplay or afplay
//   - State: Idle, or Playing(turn index)
//
// # Usage
//
//	arb := playback.NewArbiter(client, playback.NewExecPlayer(""), nil)
//	if err := arb.Toggle(ctx, 3, turn.Content); err != nil {
//	    // ErrSynthesisFailed
//	}
//	defer arb.Stop()
package playback
