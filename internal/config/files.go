// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MoriitoDev/Ollector/internal/util"
)

// fileNames are looked up in the config directory, first match wins.
var fileNames = []string{"config.toml", "config.json", "config.yaml"}

// ConfigDir is ~/.ollector.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("no home directory: %w", err)
	}
	return filepath.Join(home, ".ollector"), nil
}

func inConfigDir(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ConfigPathTOML is where `ollector config init` writes.
func ConfigPathTOML() (string, error) { return inConfigDir(fileNames[0]) }

// HistoryPath is the REPL input history file.
func HistoryPath() (string, error) { return inConfigDir("history") }

// EnsureConfigDir creates the config directory, private to the user.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExistingPath returns the config file Load would read, "" if none exists.
func ExistingPath() string {
	for _, name := range fileNames {
		p, err := inConfigDir(name)
		if err != nil {
			return ""
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads the first existing config file over the defaults, or the
// defaults alone. Environment overrides apply either way.
func Load() (*Config, error) {
	if path := ExistingPath(); path != "" {
		return LoadFromPath(path)
	}
	return finish(Default())
}

// LoadFromPath reads one file; .json and .yaml/.yml pick their decoders and
// anything else is TOML. Lists in the file replace the default lists.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = decodeWith(cfg, path, json.Unmarshal)
	case ".yaml", ".yml":
		err = decodeWith(cfg, path, yaml.Unmarshal)
	default:
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	origins := cfg.Server.CORSOrigins
	cfg.Server.CORSOrigins = nil
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if !md.IsDefined("server", "cors_origins") {
		cfg.Server.CORSOrigins = origins
	}
	return nil
}

// decodeWith decodes path over cfg with a JSON or YAML unmarshaler. Origins
// listed in the file replace the current ones.
func decodeWith(cfg *Config, path string, unmarshal func([]byte, any) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	origins := cfg.Server.CORSOrigins
	cfg.Server.CORSOrigins = nil
	if err := unmarshal(data, cfg); err != nil {
		return err
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = origins
	}
	return nil
}

// LoadDotEnv sets variables from a .env file unless they are already set.
// A missing file is fine.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// SaveTOML writes cfg to path, readable only by the user.
func SaveTOML(cfg *Config, path string) error {
	err := util.AtomicWrite(path, 0600, func(w io.Writer) error {
		io.WriteString(w, "# ollector configuration file\n")
		io.WriteString(w, "# Environment variables (OLLECTOR_*) override these values.\n\n")
		return toml.NewEncoder(w).Encode(cfg)
	})
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}
