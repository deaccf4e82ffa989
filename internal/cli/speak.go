// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// speak.go - Synthesize text with the speech endpoint.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/MoriitoDev/Ollector/internal/playback"
	"github.com/MoriitoDev/Ollector/internal/util"
)

type speakOptions struct {
	output string
	player string
}

func newSpeakCmd(a *app) *cobra.Command {
	var opts speakOptions
	cmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Read text aloud using the speech endpoint",
		Example: `  ollector speak "Hello, class"
  ollector speak --output hello.wav "Hello, class"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readQuestion(args, cmd.InOrStdin())
			if err != nil {
				return missingArg("text", `ollector speak "Hello, class"`)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.runSpeak(ctx, cmd.ErrOrStderr(), text, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the audio to this file instead of playing it")
	cmd.Flags().StringVar(&opts.player, "player", "", "player command (overrides playback.command)")
	return cmd
}

func (a *app) runSpeak(ctx context.Context, errOut io.Writer, text string, opts speakOptions) error {
	audio, err := a.newClient().Synthesize(ctx, text)
	if err != nil {
		return err
	}

	if opts.output != "" {
		if err := util.AtomicWriteFile(util.HomePath(opts.output), audio.Data, 0644); err != nil {
			return failedTo("save audio", err)
		}
		fmt.Fprintln(errOut, okText(fmt.Sprintf("Saved %s to %s", util.FormatBytes(int64(len(audio.Data))), opts.output)))
		return nil
	}

	command := a.cfg.Playback.Command
	if opts.player != "" {
		command = opts.player
	}
	h, err := playback.NewExecPlayer(command).Play(audio)
	if err != nil {
		return err
	}
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		_ = h.Stop()
		return nil
	}
}
