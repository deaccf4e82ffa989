// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - Runs the reference conversation backend.

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MoriitoDev/Ollector/internal/config"
	"github.com/MoriitoDev/Ollector/internal/logging"
	"github.com/MoriitoDev/Ollector/internal/server"
	"github.com/MoriitoDev/Ollector/internal/util"
)

// shutdownGrace bounds how long answers in flight may finish on shutdown.
const shutdownGrace = 10 * time.Second

type serveOptions struct {
	listen   string
	database string
	engine   string
	model    string
	noWatch  bool
}

func newServeCmd(a *app) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversation backend",
		Long: `Run the conversation backend the client talks to.

Chats are stored in sqlite and answers are generated by Ollama or an
OpenAI compatible API. Edits to the config file are applied without a
restart, except for the listen address and the database path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runServe(ctx, cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.listen, "listen", "l", "", "listen address (overrides server.listen)")
	f.StringVar(&opts.database, "db", "", "sqlite database path (overrides server.database)")
	f.StringVar(&opts.engine, "engine", "", "answer engine: ollama or openai")
	f.StringVarP(&opts.model, "model", "m", "", "model name (overrides server.model)")
	f.BoolVar(&opts.noWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}

// applyServeFlags overrides cfg with the flags that were set.
func applyServeFlags(cfg *config.ServerConfig, opts serveOptions) {
	if opts.listen != "" {
		cfg.Listen = opts.listen
	}
	if opts.database != "" {
		cfg.Database = opts.database
	}
	if opts.engine != "" {
		cfg.Engine = opts.engine
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
}

func (a *app) runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	logger := logging.With("serve")
	cfg := a.cfg.Server
	applyServeFlags(&cfg, opts)

	store, err := server.OpenStore(util.HomePath(cfg.Database))
	if err != nil {
		return failedTo("open database", err)
	}
	defer store.Close()

	srv, err := server.New(server.Options{
		Config:  cfg,
		Store:   store,
		Logger:  logging.With("server"),
		Version: a.info.Version,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return failedTo("listen on "+cfg.Listen, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s listening on http://%s\n", okText("[OK]"), ln.Addr())

	if a.cfgPath != "" && !opts.noWatch {
		go a.watchServerConfig(ctx, srv, opts)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("shutdown", "err", err)
	}
	return <-errCh
}

// watchServerConfig applies config file edits to the running server. The
// command line flags keep precedence over the file.
func (a *app) watchServerConfig(ctx context.Context, srv *server.Server, opts serveOptions) {
	logger := logging.With("serve")
	path := util.HomePath(a.cfgPath)
	err := config.Watch(ctx, path, config.DefaultWatchDebounce, func(cfg *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload rejected", "path", path, "err", err)
			return
		}
		sc := cfg.Server
		applyServeFlags(&sc, opts)
		if err := srv.Reconfigure(sc); err != nil {
			logger.Warn("config reload failed", "err", err)
		}
	})
	if err != nil && ctx.Err() == nil {
		logger.Warn("config watch stopped", "err", err)
	}
}
