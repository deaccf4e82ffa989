// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// version.go - Build information.

package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	var jsonMode bool
	cmd := &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version": a.info.Version,
				"commit":  a.info.Commit,
				"date":    a.info.Date,
				"go":      runtime.Version(),
				"os":      runtime.GOOS + "/" + runtime.GOARCH,
			}
			if jsonMode {
				return success("version", info).write(cmd.OutOrStdout())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ollector %s\n", a.info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  %s%s\n", labelText("commit"), a.info.Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  %s%s\n", labelText("built"), a.info.Date)
			fmt.Fprintf(cmd.OutOrStdout(), "  %s%s %s\n", labelText("go"), info["go"], info["os"])
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonMode, "json", false, "print JSON")
	return cmd
}
