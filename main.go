// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// ollector is a terminal client for a streaming teacher chat backend.
package main

import (
	"runtime/debug"

	"github.com/MoriitoDev/Ollector/internal/cli"
)

// Set with -ldflags "-X main.version=...". A plain `go install` leaves
// commit and date empty and they are read from the embedded VCS stamp.
var (
	version = "0.1.0"
	commit  string
	date    string
)

func main() {
	if commit == "" {
		commit, date = vcsStamp(date)
	}
	cli.Execute(version, commit, date)
}

// vcsStamp returns the short revision and commit time recorded by the Go
// toolchain, "unknown" when the binary carries none.
func vcsStamp(date string) (string, string) {
	rev := "unknown"
	if date == "" {
		date = "unknown"
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return rev, date
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision":
			rev = s.Value[:min(len(s.Value), 12)]
		case s.Key == "vcs.time" && date == "unknown":
			date = s.Value
		}
	}
	return rev, date
}
