// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// tui.go - Full screen interface.

package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MoriitoDev/Ollector/internal/config"
	"github.com/MoriitoDev/Ollector/internal/logging"
	"github.com/MoriitoDev/Ollector/internal/ui/render"
	"github.com/MoriitoDev/Ollector/internal/ui/styles"
	"github.com/MoriitoDev/Ollector/internal/ui/tui"
)

// tuiLogName is the log file used by the TUI when none is configured, since
// stderr is covered by the alternate screen.
const tuiLogName = "ollector.log"

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "tui",
		Short:       "Start the full screen interface",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationInteractive: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTerminal("tui"); err != nil {
				return err
			}
			if err := a.redirectTUILogs(); err != nil {
				return err
			}

			theme := styles.NewTheme(a.cfg.UI.Theme)
			bridge := tui.NewBridge()
			c := a.newCore(bridge, bridge.Complete)

			return tui.Run(cmd.Context(), tui.Options{
				Registry:    c.registry,
				Coordinator: c.coord,
				Arbiter:     c.arbiter,
				Bridge:      bridge,
				Theme:       theme,
				Markdown:    render.NewMarkdown(render.StyleFor(theme), 0, a.cfg.UI.Markdown),
				ShowStats:   a.cfg.UI.ShowStats,
				Logger:      logging.With("tui"),
			})
		},
	}
}

// redirectTUILogs sends logs to the config directory unless a log file is
// already configured.
func (a *app) redirectTUILogs() error {
	if a.cfg.Log.File != "" {
		return nil
	}
	if err := config.EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	if err := logging.Configure(a.cfg.Log.Level, filepath.Join(dir, tuiLogName)); err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	return nil
}
