// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"slices"
	"time"
)

// CurrentVersion is written into new config files.
const CurrentVersion = "1"

// Config represents the complete ollector configuration.
type Config struct {
	Version string `toml:"version" json:"version" yaml:"version"`

	// Client configures the connection to the conversation backend.
	Client ClientConfig `toml:"client" json:"client" yaml:"client"`

	// Playback configures reading answers aloud.
	Playback PlaybackConfig `toml:"playback" json:"playback" yaml:"playback"`

	// Server configures the reference backend started by `ollector serve`.
	Server ServerConfig `toml:"server" json:"server" yaml:"server"`

	UI  UIConfig  `toml:"ui" json:"ui" yaml:"ui"`
	Log LogConfig `toml:"log" json:"log" yaml:"log"`
}

// ClientConfig contains backend connection settings.
type ClientConfig struct {
	// ServerURL is the base URL of the conversation backend.
	ServerURL string `toml:"server_url" json:"server_url" yaml:"server_url"`
	// SpeechURL is the base URL of the speech endpoint (empty = ServerURL).
	SpeechURL string `toml:"speech_url" json:"speech_url" yaml:"speech_url"`
	// TimeoutSecs bounds non-streaming requests.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs" yaml:"timeout_secs"`
	// ConnectTimeoutSecs bounds dialing the backend.
	ConnectTimeoutSecs int `toml:"connect_timeout_secs" json:"connect_timeout_secs" yaml:"connect_timeout_secs"`
	// MaxRetries for idempotent reads. Negative disables retries.
	MaxRetries int `toml:"max_retries" json:"max_retries" yaml:"max_retries"`
	// RequestsPerSecond paces outgoing requests.
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second"`
}

// PlaybackConfig contains text-to-speech playback settings.
type PlaybackConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
	// Command is the audio player. Empty auto-detects ffplay, mpv, aplay or afplay.
	// "{file}" in the command is replaced with a temp file path.
	Command string `toml:"command" json:"command" yaml:"command"`
}

// ServerConfig contains reference backend settings.
type ServerConfig struct {
	Listen   string `toml:"listen" json:"listen" yaml:"listen"`
	Database string `toml:"database" json:"database" yaml:"database"`

	// Engine selects the model runtime: "ollama" or "openai".
	Engine      string  `toml:"engine" json:"engine" yaml:"engine"`
	Model       string  `toml:"model" json:"model" yaml:"model"`
	Temperature float64 `toml:"temperature" json:"temperature" yaml:"temperature"`

	OllamaURL     string `toml:"ollama_url" json:"ollama_url" yaml:"ollama_url"`
	OpenAIBaseURL string `toml:"openai_base_url" json:"openai_base_url" yaml:"openai_base_url"`
	OpenAIKey     string `toml:"openai_api_key" json:"openai_api_key" yaml:"openai_api_key"`

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins" yaml:"cors_origins"`

	// TTSCommand reads text on stdin and writes WAV audio to stdout.
	TTSCommand string `toml:"tts_command" json:"tts_command" yaml:"tts_command"`

	MaxUploadMB int `toml:"max_upload_mb" json:"max_upload_mb" yaml:"max_upload_mb"`

	// RateLimit is requests per second per client address (0 = unlimited).
	RateLimit float64 `toml:"rate_limit" json:"rate_limit" yaml:"rate_limit"`

	// AutoTitle names a chat after its first question.
	AutoTitle bool `toml:"auto_title" json:"auto_title" yaml:"auto_title"`
}

// UIConfig contains terminal presentation settings.
type UIConfig struct {
	// Markdown renders finished answers with glamour.
	Markdown bool `toml:"markdown" json:"markdown" yaml:"markdown"`
	// Theme is "auto", "dark" or "light".
	Theme string `toml:"theme" json:"theme" yaml:"theme"`
	// ShowStats prints timing after each answer.
	ShowStats bool `toml:"show_stats" json:"show_stats" yaml:"show_stats"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level" json:"level" yaml:"level"`
	File  string `toml:"file" json:"file" yaml:"file"`
}

// Timeout returns the request timeout as a duration.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ConnectTimeout returns the dial timeout as a duration.
func (c ClientConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSecs) * time.Second
}

// MaxUploadBytes returns the upload limit in bytes.
func (c ServerConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Client: ClientConfig{
			ServerURL:          "http://127.0.0.1:8000",
			TimeoutSecs:        30,
			ConnectTimeoutSecs: 10,
			MaxRetries:         2,
			RequestsPerSecond:  10,
		},
		Playback: PlaybackConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Listen:      "127.0.0.1:8000",
			Database:    "~/.ollector/ollector.db",
			Engine:      "ollama",
			Model:       "llama3.2",
			Temperature: 0.5,
			OllamaURL:   "http://localhost:11434",
			CORSOrigins: []string{"http://localhost:3000"},
			TTSCommand:  "espeak-ng --stdout",
			MaxUploadMB: 20,
			RateLimit:   5,
			AutoTitle:   true,
		},
		UI: UIConfig{
			Markdown: true,
			Theme:    "auto",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// fillDefaults restores settings a file left empty or zero. Booleans and
// lists are taken as written.
func fillDefaults(cfg *Config) {
	d := Default()

	orDefault(&cfg.Version, d.Version)
	orDefault(&cfg.Client.ServerURL, d.Client.ServerURL)
	orDefault(&cfg.Client.RequestsPerSecond, d.Client.RequestsPerSecond)
	atLeastOne(&cfg.Client.TimeoutSecs, d.Client.TimeoutSecs)
	atLeastOne(&cfg.Client.ConnectTimeoutSecs, d.Client.ConnectTimeoutSecs)

	orDefault(&cfg.Server.Listen, d.Server.Listen)
	orDefault(&cfg.Server.Database, d.Server.Database)
	orDefault(&cfg.Server.Engine, d.Server.Engine)
	orDefault(&cfg.Server.Model, d.Server.Model)
	orDefault(&cfg.Server.OllamaURL, d.Server.OllamaURL)
	atLeastOne(&cfg.Server.MaxUploadMB, d.Server.MaxUploadMB)

	orDefault(&cfg.UI.Theme, d.UI.Theme)
	orDefault(&cfg.Log.Level, d.Log.Level)
}

func orDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

func atLeastOne(v *int, def int) {
	if *v < 1 {
		*v = def
	}
}

// Clone returns a copy that shares no slices with c.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Server.CORSOrigins = slices.Clone(c.Server.CORSOrigins)
	return &clone
}

// Redacted returns a copy safe to print, with the API key masked.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	if safe.Server.OpenAIKey != "" {
		safe.Server.OpenAIKey = "[REDACTED]"
	}
	return safe
}
