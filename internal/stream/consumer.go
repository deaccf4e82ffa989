// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultChunkSize is the read buffer size used by NewConsumer.
const DefaultChunkSize = 4096

// =============================================================================
// ERRORS
// =============================================================================

// ErrStreamInterrupted matches any InterruptedError.
var ErrStreamInterrupted = errors.New("stream interrupted")

// InterruptedError reports a read failure after the stream started.
type InterruptedError struct {
	Bytes int64 // Bytes read before the failure
	Cause error
}

func (e *InterruptedError) Error() string {
	msg := "stream interrupted after " + strconv.FormatInt(e.Bytes, 10) + " bytes"
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *InterruptedError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrStreamInterrupted) true for every InterruptedError.
func (e *InterruptedError) Is(target error) bool {
	return target == ErrStreamInterrupted
}

// =============================================================================
// CONSUMER
// =============================================================================

// Consumer turns a byte stream into decoded text deltas.
//
// A Consumer is bound to one response and cannot be restarted. It is not safe
// for concurrent use; one goroutine pulls deltas and applies them.
type Consumer struct {
	r       io.Reader
	decoder transform.Transformer

	buf     []byte // read buffer
	pending []byte // undecoded bytes carried between reads
	dst     []byte // decode output, reused

	done bool
	err  error // terminal result once done: io.EOF or *InterruptedError

	stats Stats
}

// NewConsumer creates a consumer that reads DefaultChunkSize bytes at a time.
func NewConsumer(r io.Reader) *Consumer {
	return NewConsumerSize(r, DefaultChunkSize)
}

// NewConsumerSize creates a consumer with a custom read size.
func NewConsumerSize(r io.Reader, size int) *Consumer {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Consumer{
		r:       r,
		decoder: unicode.UTF8.NewDecoder(),
		buf:     make([]byte, size),
	}
}

// Next returns the next decoded delta. It returns io.EOF after a clean end
// of stream and an *InterruptedError if reading failed. Deltas decoded before
// a failure are returned first.
func (c *Consumer) Next() (string, error) {
	for {
		if c.done {
			return "", c.err
		}

		if c.stats.StartTime.IsZero() {
			c.stats.StartTime = time.Now()
		}

		n, rerr := c.r.Read(c.buf)
		if n > 0 {
			c.stats.Bytes += int64(n)
			c.pending = append(c.pending, c.buf[:n]...)
		}

		atEOF := errors.Is(rerr, io.EOF)
		switch {
		case rerr == nil:
		case atEOF:
			c.finish(io.EOF)
		default:
			c.finish(&InterruptedError{Bytes: c.stats.Bytes, Cause: rerr})
		}

		// Trailing incomplete bytes become U+FFFD only at a clean end.
		delta := c.decode(atEOF)
		if delta != "" {
			c.stats.Deltas++
			if c.stats.FirstDelta.IsZero() {
				c.stats.FirstDelta = time.Now()
			}
			return delta, nil
		}
	}
}

// Process pulls deltas until the stream ends and passes each one to fn before
// reading more. It returns nil on a clean end, the error from fn if fn fails,
// or an *InterruptedError if reading fails or ctx is cancelled.
func (c *Consumer) Process(ctx context.Context, fn func(delta string) error) error {
	for {
		if err := ctx.Err(); err != nil {
			ierr := &InterruptedError{Bytes: c.stats.Bytes, Cause: err}
			c.finish(ierr)
			return ierr
		}

		delta, err := c.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			// A cancelled request surfaces as a read error; report the context cause.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return &InterruptedError{Bytes: c.stats.Bytes, Cause: ctxErr}
			}
			return err
		}

		if err := fn(delta); err != nil {
			return err
		}
	}
}

// Stats returns a copy of the stream statistics.
func (c *Consumer) Stats() Stats {
	return c.stats
}

// finish records the terminal result once.
func (c *Consumer) finish(err error) {
	if c.done {
		return
	}
	c.done = true
	c.err = err
	c.stats.EndTime = time.Now()
}

// decode converts as many pending bytes as form complete characters.
func (c *Consumer) decode(atEOF bool) string {
	if len(c.pending) == 0 {
		return ""
	}

	// Each invalid byte may expand to a 3-byte replacement character.
	need := len(c.pending)*3 + utf8.UTFMax
	if cap(c.dst) < need {
		c.dst = make([]byte, need)
	}
	dst := c.dst[:need]

	nDst, nSrc, _ := c.decoder.Transform(dst, c.pending, atEOF)

	out := string(dst[:nDst])
	rest := copy(c.pending, c.pending[nSrc:])
	c.pending = c.pending[:rest]
	if atEOF {
		c.pending = c.pending[:0]
	}
	return out
}

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// Stats holds statistics collected while consuming a stream.
type Stats struct {
	StartTime  time.Time
	FirstDelta time.Time
	EndTime    time.Time

	Bytes  int64
	Deltas int
}

// TimeToFirstDelta returns the delay before the first decoded delta.
func (s Stats) TimeToFirstDelta() time.Duration {
	if s.FirstDelta.IsZero() || s.StartTime.IsZero() {
		return 0
	}
	return s.FirstDelta.Sub(s.StartTime)
}

// Duration returns the total time spent consuming the stream.
func (s Stats) Duration() time.Duration {
	if s.EndTime.IsZero() || s.StartTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}
