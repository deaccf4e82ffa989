// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the ollector command line.
//
// The command tree is built with cobra. Every command shares the config
// loaded by the root command, so the global flags (--config, --server,
// --log-level, --log-file) apply everywhere.
//
// # Commands
//
//   - chat: interactive REPL with line editing and history (the default)
//   - tui: full screen interface
//   - ask: one question, answer streamed to stdout
//   - sessions list|show: stored chats, with --json
//   - speak: read text aloud through the speech endpoint
//   - serve: run the reference conversation backend
//   - config show|path|init|get|set|keys
//   - version
//
// # Errors
//
// Commands return errors and never print them. Execute prints the error
// once and exits with a code from GetExitCode, e.g. ExitNetworkError when
// the backend cannot be reached.
//
// # Usage
//
//	func main() {
//	    cli.Execute(version, commit, date)
//	}
package cli
