// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging provides the structured logger shared by every component.
//
// Logs go to stderr (or a file) so they never interleave with answer text
// streamed to stdout. Components take an optional *log.Logger and fall back
// to a prefixed child of the global Logger.
//
// # Usage
//
//	if err := logging.Configure("debug", ""); err != nil {
//	    return err
//	}
//	logger := logging.With("registry")
//	logger.Info("session opened", "id", id, "turns", n)
package logging
