// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns the configured chunks one Read at a time, then err.
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

// splitEvery cuts b into pieces of size n.
func splitEvery(b []byte, n int) [][]byte {
	var out [][]byte
	for len(b) > n {
		out = append(out, b[:n])
		b = b[n:]
	}
	if len(b) > 0 {
		out = append(out, b)
	}
	return out
}

func collect(t *testing.T, c *Consumer) (string, error) {
	t.Helper()
	var sb strings.Builder
	err := c.Process(context.Background(), func(delta string) error {
		sb.WriteString(delta)
		return nil
	})
	return sb.String(), err
}

// =============================================================================
// CONCATENATION TESTS
// =============================================================================

func TestConsumer_ConcatenationAnyChunking(t *testing.T) {
	texts := []string{
		"Hi there",
		"Photosynthesis converts light into chemical energy.",
		"Fotosíntesis: la luz se convierte en energía química. ¿Entendido?",
		"数学は楽しい。🙂 emoji and 日本語 mixed",
		"",
	}

	for _, text := range texts {
		for size := 1; size <= 7; size++ {
			c := NewConsumer(&chunkReader{chunks: splitEvery([]byte(text), size)})
			got, err := collect(t, c)
			require.NoError(t, err)
			assert.Equal(t, text, got, "chunk size %d", size)
			assert.Equal(t, int64(len(text)), c.Stats().Bytes)
		}
	}
}

func TestConsumer_OneByteReader(t *testing.T) {
	text := "ñandú 🙂 ok"
	c := NewConsumerSize(iotest.OneByteReader(strings.NewReader(text)), 1)

	var deltas []string
	for {
		d, err := c.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		deltas = append(deltas, d)
	}

	assert.Equal(t, text, strings.Join(deltas, ""))
	for _, d := range deltas {
		assert.NotContains(t, d, "�", "split rune must not be replaced")
	}
}

func TestConsumer_SplitRuneIsCarried(t *testing.T) {
	// "é" is 0xC3 0xA9; split it across two reads.
	c := NewConsumer(&chunkReader{chunks: [][]byte{{'a', 0xC3}, {0xA9, 'b'}}})

	first, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", first)

	second, err := c.Next()
	require.NoError(t, err)
	assert.Equal(t, "éb", second)

	_, err = c.Next()
	assert.Equal(t, io.EOF, err)
}

func TestConsumer_InvalidBytesReplaced(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"invalid middle", []byte{'a', 0xFF, 'b'}, "a�b"},
		{"truncated at end", []byte{'a', 0xE2, 0x82}, "a�"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := collect(t, NewConsumer(&chunkReader{chunks: [][]byte{tc.in}}))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

// =============================================================================
// TERMINATION TESTS
// =============================================================================

func TestConsumer_InterruptedKeepsEarlierDeltas(t *testing.T) {
	cause := errors.New("connection reset")
	c := NewConsumer(&chunkReader{chunks: [][]byte{[]byte("Hi "), []byte("the")}, err: cause})

	got, err := collect(t, c)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStreamInterrupted))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "Hi the", got)

	var ierr *InterruptedError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, int64(6), ierr.Bytes)
}

func TestConsumer_ErrorAlongsideData(t *testing.T) {
	c := NewConsumer(iotest.DataErrReader(strings.NewReader("done")))
	got, err := collect(t, c)
	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

func TestConsumer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewConsumer(&chunkReader{chunks: [][]byte{[]byte("a"), []byte("b"), []byte("c")}})

	var got strings.Builder
	err := c.Process(ctx, func(delta string) error {
		got.WriteString(delta)
		cancel()
		return nil
	})

	assert.True(t, errors.Is(err, ErrStreamInterrupted))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, "a", got.String())
}

func TestConsumer_CallbackErrorStops(t *testing.T) {
	stop := errors.New("stop")
	c := NewConsumer(&chunkReader{chunks: [][]byte{[]byte("a"), []byte("b")}})

	calls := 0
	err := c.Process(context.Background(), func(string) error {
		calls++
		return stop
	})

	assert.Equal(t, stop, err)
	assert.Equal(t, 1, calls)
}

func TestConsumer_NotRestartable(t *testing.T) {
	c := NewConsumer(strings.NewReader("once"))
	got, err := collect(t, c)
	require.NoError(t, err)
	assert.Equal(t, "once", got)

	again, err := collect(t, c)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStats(t *testing.T) {
	c := NewConsumer(&chunkReader{chunks: [][]byte{[]byte("ab"), []byte("cd")}})
	_, err := collect(t, c)
	require.NoError(t, err)

	s := c.Stats()
	assert.Equal(t, int64(4), s.Bytes)
	assert.Equal(t, 2, s.Deltas)
	assert.False(t, s.FirstDelta.IsZero())
	assert.GreaterOrEqual(t, s.Duration(), s.TimeToFirstDelta())
}
