// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes a raw streamed text response into ordered deltas.
//
// The conversation backend answers with a plain byte stream. Chunk
// boundaries are arbitrary and may split a multi-byte UTF-8 sequence, so the
// Consumer carries incomplete trailing bytes over to the next read and only
// hands out complete characters.
//
// # Key Types
//
//   - Consumer: Pull-based decoder over an io.Reader
//   - InterruptedError: Mid-stream read failure, matches ErrStreamInterrupted
//   - Stats: Byte and delta counters with time-to-first-delta
//
// # Usage
//
// Fold every delta into a transcript in arrival order:
//
//	c := stream.NewConsumer(body)
//	err := c.Process(ctx, func(delta string) error {
//	    return tr.AppendDelta(delta)
//	})
//	if errors.Is(err, stream.ErrStreamInterrupted) {
//	    // Show a notice
//	}
//
// A clean end of stream returns nil. The Consumer never finalizes anything;
// that is the caller's decision.
package stream
