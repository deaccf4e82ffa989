// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config inspection and editing commands.

package cli

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MoriitoDev/Ollector/internal/config"
	"github.com/MoriitoDev/Ollector/internal/util"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Show and edit the configuration",
		Annotations: map[string]string{annotationConfigOptional: "true"},
	}

	var jsonMode bool
	show := &cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonMode {
				return respond(cmd.OutOrStdout(), true, "config show", func() (any, error) {
					return a.cfg.Redacted(), a.cfgErr
				})
			}
			a.printConfig(cmd.OutOrStdout())
			if a.cfgErr != nil {
				return a.cfgErr
			}
			return nil
		},
	}
	show.Flags().BoolVar(&jsonMode, "json", false, "print JSON")

	path := &cobra.Command{
		Use:         "path",
		Short:       "Print the config file path",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.editablePath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(cmd.ErrOrStderr(), dim("(does not exist yet, run 'ollector config init')"))
			}
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a config file with the defaults",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.editablePath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(p); err == nil && !force {
				return &InputError{Name: "config file", Value: p, Problem: "already exists", Try: "ollector config init --force"}
			}
			if err := config.SaveTOML(config.Default(), p); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okText("[OK]")+" wrote "+p)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one effective value, e.g. client.server_url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.cfg.Get(args[0])
			if err != nil {
				return unknownKeyError(args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), maskIfSecret(args[0], formatValue(v)))
			return nil
		},
	}

	set := &cobra.Command{
		Use:         "set <key> <value>",
		Short:       "Change one value in the config file",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.editablePath()
			if err != nil {
				return err
			}
			if err := setConfigValue(p, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", okText("[OK]"),
				args[0], maskIfSecret(args[0], args[1]))
			return nil
		},
	}

	keys := &cobra.Command{
		Use:         "keys",
		Short:       "List the settable keys",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationConfigOptional: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range config.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}

	cmd.AddCommand(show, path, initCmd, get, set, keys)
	return cmd
}

// editablePath is the file config edits go to: the file in use, or the
// default TOML file.
func (a *app) editablePath() (string, error) {
	if a.cfgPath != "" {
		return util.HomePath(a.cfgPath), nil
	}
	return config.ConfigPathTOML()
}

// setConfigValue edits one key of the TOML file at path. Environment
// overrides are not written back.
func setConfigValue(path, key, value string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return failedTo("edit "+path, errors.New("only TOML config files can be edited; change it by hand"))
	}

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return err
		}
	}
	if err := cfg.Set(key, value); err != nil {
		return unknownKeyError(key, err)
	}
	if err := cfg.Validate(); err != nil {
		return &InputError{Name: key, Value: value, Problem: err.Error()}
	}
	return config.SaveTOML(cfg, path)
}

func unknownKeyError(key string, err error) error {
	return &InputError{Name: "key", Value: key, Problem: err.Error(), Try: "ollector config keys"}
}

// printConfig prints every key grouped by section.
func (a *app) printConfig(w io.Writer) {
	fmt.Fprintln(w, titleText("ollector configuration"))

	section := ""
	for _, key := range config.Keys() {
		sec, name, found := strings.Cut(key, ".")
		if !found {
			sec, name = "", key
		}
		if sec != section {
			section = sec
			fmt.Fprintln(w)
			if sec != "" {
				fmt.Fprintln(w, sectionText("["+sec+"]"))
			}
		}
		v, err := a.cfg.Get(key)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "  %s%s\n", labelText(name), valueText(maskIfSecret(key, formatValue(v))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule(41))
	src := a.cfgPath
	if src == "" {
		src = "(defaults)"
	}
	fmt.Fprintf(w, "Config file: %s\n", dim(src))
}

func formatValue(v any) string {
	switch x := v.(type) {
	case []string:
		return strings.Join(x, ",")
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// maskAPIKey replaces a key with a short SHA-256 fingerprint.
func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) < 8 {
		return "[invalid key]"
	}
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("sha256:%x...", hash[:4])
}

// maskIfSecret masks the value if the key names a secret field.
func maskIfSecret(key, value string) string {
	keyLower := strings.ToLower(key)
	for _, s := range []string{"key", "secret", "token", "password"} {
		if strings.Contains(keyLower, s) {
			return maskAPIKey(value)
		}
	}
	return value
}
