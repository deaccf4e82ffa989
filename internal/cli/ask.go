// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question, answer streamed to stdout.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MoriitoDev/Ollector/internal/backend"
	"github.com/MoriitoDev/Ollector/internal/chat"
	"github.com/MoriitoDev/Ollector/internal/session"
	"github.com/MoriitoDev/Ollector/internal/util"
)

// maxStdinQuestion bounds a question read from stdin.
const maxStdinQuestion = 1 << 20

type askOptions struct {
	file       string
	chatID     string
	noMarkdown bool
	stats      bool
}

func newAskCmd(a *app) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and print the answer",
		Long: `Ask one question and stream the answer to stdout.

The question is read from stdin when it is "-" or omitted and stdin is not
a terminal. A new chat is created unless --chat names an existing one.`,
		Example: `  ollector ask "What is photosynthesis?"
  ollector ask --file notes.pdf "Summarize chapter 2"
  echo "Explain recursion" | ollector ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := readQuestion(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.runAsk(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), question, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "PDF or text file to study from")
	cmd.Flags().StringVar(&opts.chatID, "chat", "", "continue an existing chat")
	cmd.Flags().BoolVar(&opts.noMarkdown, "raw", false, "print the answer without markdown rendering")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "print timing after the answer")
	return cmd
}

// readQuestion joins the arguments, or reads stdin for "-" or when there are
// no arguments and stdin is piped.
func readQuestion(args []string, stdin io.Reader) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "-" || (question == "" && !stdinIsTerminal()) {
		data, err := io.ReadAll(io.LimitReader(stdin, maxStdinQuestion))
		if err != nil {
			return "", fmt.Errorf("failed to read question from stdin: %w", err)
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		return "", missingArg("question", `ollector ask "What is a prime number?"`)
	}
	return question, nil
}

func (a *app) runAsk(ctx context.Context, out, errOut io.Writer, question string, opts askOptions) error {
	var result chat.Result
	c := a.newCore(nil, func(r chat.Result) { result = r })

	if opts.chatID != "" {
		if err := c.registry.Open(ctx, opts.chatID); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				return &NotFoundError{Kind: "chat", ID: opts.chatID}
			}
			return err
		}
	}
	if opts.file != "" {
		att, err := backend.LoadAttachment(util.HomePath(opts.file))
		if err != nil {
			return failedTo("attach "+opts.file, err)
		}
		c.coord.Stage(att)
	}

	md := a.markdown(a.theme())
	if opts.noMarkdown {
		md.SetEnabled(false)
	}
	printer := newAnswerPrinter(out, md, terminalWidth())
	_, tr := c.registry.Active()
	stop := printer.Follow(tr)
	defer stop()

	if err := c.coord.Submit(ctx, question); err != nil {
		return err
	}
	if opts.stats {
		fmt.Fprintln(errOut, dim(formatStats(result)))
	}
	if opts.chatID == "" {
		fmt.Fprintln(errOut, dim("chat: "+result.SessionID))
	}
	return nil
}
