// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// printer.go - Prints a transcript's streamed answer to the terminal.

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/muesli/termenv"

	"github.com/MoriitoDev/Ollector/internal/model"
	"github.com/MoriitoDev/Ollector/internal/ui/render"
	"github.com/MoriitoDev/Ollector/internal/util"
)

// answerPrinter follows one transcript at a time and writes the answer as it
// streams. When markdown is enabled the raw text is erased and replaced by
// the rendered answer once it is finalized.
type answerPrinter struct {
	w     io.Writer
	term  *termenv.Output
	md    *render.Markdown
	width int

	mu     sync.Mutex
	raw    strings.Builder
	active bool
}

func newAnswerPrinter(w io.Writer, md *render.Markdown, width int) *answerPrinter {
	if width <= 0 {
		width = defaultWidth
	}
	return &answerPrinter{
		w:     w,
		term:  termenv.NewOutput(w),
		md:    md,
		width: width,
	}
}

// Follow prints the answers of tr until the returned func is called.
func (p *answerPrinter) Follow(tr *model.Transcript) func() {
	return tr.Subscribe(func(ev model.Event) {
		p.handle(tr, ev)
	})
}

func (p *answerPrinter) handle(tr *model.Transcript, ev model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case model.EventAppend:
		turn, ok := tr.Turn(ev.Index)
		if ok && turn.Role == model.RoleAssistant && tr.InProgress() {
			p.active = true
			p.raw.Reset()
		}

	case model.EventDelta:
		if !p.active {
			return
		}
		io.WriteString(p.w, ev.Delta)
		p.raw.WriteString(ev.Delta)

	case model.EventOverwrite:
		if !p.active {
			return
		}
		turn, _ := tr.Turn(ev.Index)
		if p.canErase() {
			p.erase()
		} else if p.raw.Len() > 0 {
			io.WriteString(p.w, "\n")
		}
		io.WriteString(p.w, turn.Content)
		p.raw.Reset()
		p.raw.WriteString(turn.Content)

	case model.EventFinalize:
		if !p.active {
			return
		}
		p.active = false
		turn, _ := tr.Turn(ev.Index)
		if p.canErase() && strings.TrimSpace(turn.Content) != "" {
			p.erase()
			fmt.Fprintln(p.w, p.md.Render(turn.Content))
		} else {
			io.WriteString(p.w, "\n")
		}
		p.raw.Reset()
	}
}

// canErase reports whether printed text may be rewritten in place, which
// is only done when rendering markdown to a terminal.
func (p *answerPrinter) canErase() bool {
	return p.md != nil && p.md.Enabled()
}

// erase clears the raw text printed for the current answer and leaves the
// cursor at the start of its first line.
func (p *answerPrinter) erase() {
	rows := wrappedRows(p.raw.String(), p.width)
	p.term.ClearLines(rows - 1)
	io.WriteString(p.w, "\r")
}

// wrappedRows counts the terminal rows text occupies at width columns.
func wrappedRows(text string, width int) int {
	if width <= 0 {
		width = defaultWidth
	}
	rows := 0
	for _, line := range strings.Split(text, "\n") {
		w := util.StringWidth(line)
		if w == 0 {
			rows++
			continue
		}
		rows += (w + width - 1) / width
	}
	return rows
}
