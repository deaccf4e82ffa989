// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// maxLine bounds one NDJSON line of a chat stream.
const maxLine = 1 << 20

// chunkReader decodes the newline-delimited JSON of a chat stream.
type chunkReader struct {
	sc    *bufio.Scanner
	model string
}

func newChunkReader(r io.Reader) *chunkReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	return &chunkReader{sc: sc}
}

// each calls fn for every chunk with content and for the done chunk.
// Blank and undecodable lines are skipped. A stream that ends without a
// done chunk is not an error.
func (r *chunkReader) each(ctx context.Context, fn func(Chunk) error) error {
	for r.sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var line chatLine
		if json.Unmarshal(r.sc.Bytes(), &line) != nil {
			continue
		}
		if line.Error != "" {
			return &APIError{Message: line.Error}
		}
		if line.Model != "" {
			r.model = line.Model
		}

		c := Chunk{Content: line.Message.Content, Model: r.model, Done: line.Done}
		if line.Done {
			c.DoneReason = line.DoneReason
			c.TotalDuration = time.Duration(line.TotalDuration)
			c.PromptTokens = line.PromptEvalCount
			c.CompletionTokens = line.EvalCount
		}
		if c.Content != "" || c.Done {
			if err := fn(c); err != nil {
				return err
			}
		}
		if c.Done {
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.sc.Err(); err != nil {
		return fmt.Errorf("ollama: read stream: %w", err)
	}
	return nil
}
