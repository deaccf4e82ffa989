// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads ollector's settings.
//
// The first file found among ~/.ollector/config.toml, config.json and
// config.yaml is read over the built-in defaults, then OLLECTOR_*
// variables (from the environment or a .env file) override it. The
// [client] and [playback] sections drive the chat front-ends; [server]
// configures `ollector serve`.
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//
// Watch re-reads a file when it changes, which lets a running server pick
// up new settings:
//
//	go config.Watch(ctx, path, 0, func(cfg *config.Config, err error) {
//		if err == nil {
//			srv.Reconfigure(cfg.Server)
//		}
//	})
package config
