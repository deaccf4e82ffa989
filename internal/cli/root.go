// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// root.go - Root command, global flags and process entry point.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MoriitoDev/Ollector/internal/config"
	"github.com/MoriitoDev/Ollector/internal/logging"
	"github.com/MoriitoDev/Ollector/internal/util"
)

// Command annotations read by the root command before a subcommand runs.
const (
	// annotationInteractive marks commands that own the terminal; info logs
	// are hidden there unless a log file is configured.
	annotationInteractive = "ollector/interactive"

	// annotationConfigOptional marks commands that still run when the
	// config file is invalid, so it can be inspected or replaced.
	annotationConfigOptional = "ollector/config-optional"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// globalOptions are the persistent flags.
type globalOptions struct {
	configPath string
	serverURL  string
	logLevel   string
	logFile    string
}

// app is the state shared by every command.
type app struct {
	info BuildInfo
	opts globalOptions

	cfg *config.Config
	// cfgPath is the file cfg was loaded from, "" for built-in defaults.
	cfgPath string
	// cfgErr is set when a config-optional command fell back to defaults.
	cfgErr error
}

// =============================================================================
// ENTRY POINT
// =============================================================================

// Execute runs the command line and exits the process on failure.
func Execute(version, commit, date string) {
	// SIGINT is left to the commands: the REPL uses it to cancel one answer.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	root := NewRootCmd(BuildInfo{Version: version, Commit: commit, Date: date})
	err := root.ExecuteContext(ctx)
	stop()
	logging.Close()

	if err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			DisplayError(os.Stderr, err)
		}
		os.Exit(GetExitCode(err))
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd(info BuildInfo) *cobra.Command {
	a := &app{info: info}

	root := &cobra.Command{
		Use:   "ollector",
		Short: "Study with a streaming AI teacher from your terminal",
		Long: `ollector is a terminal client for a conversation backend that answers
questions like a patient teacher. Answers stream in as they are written,
chats are kept on the server, and any answer can be read aloud.

Run without a subcommand to start the interactive chat.`,
		Version:       info.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations:   map[string]string{annotationInteractive: "true"},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("ollector %s (commit %s, built %s)\n", info.Version, info.Commit, info.Date))

	pf := root.PersistentFlags()
	pf.StringVarP(&a.opts.configPath, "config", "c", "", "config file (default ~/.ollector/config.toml)")
	pf.StringVar(&a.opts.serverURL, "server", "", "conversation backend URL (overrides client.server_url)")
	pf.StringVar(&a.opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&a.opts.logFile, "log-file", "", "write logs to this file instead of stderr")

	root.AddCommand(
		newChatCmd(a),
		newTUICmd(a),
		newAskCmd(a),
		newSessionsCmd(a),
		newSpeakCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

// =============================================================================
// SETUP
// =============================================================================

// setup loads .env and the config file, applies the global flags and
// configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	path := a.opts.configPath
	if path == "" {
		path = config.ExistingPath()
	}

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromPath(util.HomePath(path))
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		if cmd.Annotations[annotationConfigOptional] == "" {
			return err
		}
		a.cfgErr = err
		cfg = config.Default()
	}
	a.cfgPath = path

	if a.opts.serverURL != "" {
		cfg.Client.ServerURL = a.opts.serverURL
	}
	if a.opts.logLevel != "" {
		cfg.Log.Level = a.opts.logLevel
	}
	if a.opts.logFile != "" {
		cfg.Log.File = a.opts.logFile
	}
	a.cfg = cfg

	return a.configureLogging(cmd)
}

func (a *app) configureLogging(cmd *cobra.Command) error {
	level, file := a.cfg.Log.Level, util.HomePath(a.cfg.Log.File)
	if file == "" && cmd.Annotations[annotationInteractive] != "" &&
		logging.ParseLevel(level) == logging.ParseLevel("info") {
		level = "warn"
	}
	if err := logging.Configure(level, file); err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	return nil
}
