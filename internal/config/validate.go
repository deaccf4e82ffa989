// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError is one bad setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string { return e.Field + ": " + e.Message }

// ValidateErrors lists every bad setting of a config.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	engines   = []string{"ollama", "openai"}
	themes    = []string{"auto", "dark", "light"}
	logLevels = []string{"debug", "info", "warn", "warning", "error", "fatal"}
)

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors
	check := func(field string, err error) {
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
		}
	}

	check("client.server_url", httpURL(c.Client.ServerURL))
	check("client.speech_url", optional(c.Client.SpeechURL, httpURL))
	check("client.timeout_secs", between(c.Client.TimeoutSecs, 1, 3600))
	check("client.requests_per_second", notNegative(c.Client.RequestsPerSecond))

	check("server.engine", oneOf(c.Server.Engine, engines))
	check("server.temperature", between(c.Server.Temperature, 0, 2))
	check("server.ollama_url", httpURL(c.Server.OllamaURL))
	check("server.openai_base_url", optional(c.Server.OpenAIBaseURL, httpURL))
	if strings.EqualFold(c.Server.Engine, "openai") && c.Server.OpenAIKey == "" && c.Server.OpenAIBaseURL == "" {
		check("server.openai_api_key", errors.New("required when engine is openai and no openai_base_url is set"))
	}
	check("server.max_upload_mb", between(c.Server.MaxUploadMB, 0, 200))
	check("server.rate_limit", notNegative(c.Server.RateLimit))
	for _, origin := range c.Server.CORSOrigins {
		if origin != "*" {
			if err := httpURL(origin); err != nil {
				check("server.cors_origins", fmt.Errorf("%s: %w", origin, err))
			}
		}
	}

	check("ui.theme", oneOf(c.UI.Theme, themes))
	check("log.level", oneOf(c.Log.Level, logLevels))

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func httpURL(raw string) error {
	if raw == "" {
		return errors.New("must not be empty")
	}
	u, err := url.Parse(raw)
	switch {
	case err != nil:
		return err
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	case u.Host == "":
		return errors.New("missing host")
	}
	return nil
}

func optional(v string, check func(string) error) error {
	if v == "" {
		return nil
	}
	return check(v)
}

func between[T int | float64](v, lo, hi T) error {
	if v < lo || v > hi {
		return fmt.Errorf("must be between %v and %v, got %v", lo, hi, v)
	}
	return nil
}

func notNegative(v float64) error {
	if v < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

func oneOf(v string, allowed []string) error {
	if slices.Contains(allowed, strings.ToLower(v)) {
		return nil
	}
	return fmt.Errorf("%q is not one of %s", v, strings.Join(allowed, ", "))
}
