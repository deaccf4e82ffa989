// Copyright (c) 2025 MoriitoDev and Ollector contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// ApplyEnvOverrides copies OLLECTOR_* variables over the loaded settings.
//
//	OLLECTOR_SERVER_URL       client.server_url
//	OLLECTOR_SPEECH_URL       client.speech_url
//	OLLECTOR_PLAYER           playback.command
//	OLLECTOR_NO_SPEECH        turns playback.enabled off when true
//	OLLECTOR_LISTEN           server.listen
//	OLLECTOR_DB               server.database
//	OLLECTOR_ENGINE           server.engine
//	OLLECTOR_MODEL            server.model
//	OLLECTOR_OLLAMA_URL       server.ollama_url
//	OLLECTOR_OPENAI_BASE_URL  server.openai_base_url
//	OLLECTOR_OPENAI_API_KEY   server.openai_api_key, else OPENAI_API_KEY
//	OLLECTOR_TTS_COMMAND      server.tts_command
//	OLLECTOR_NO_MARKDOWN      turns ui.markdown off when true
//	OLLECTOR_LOG_LEVEL        log.level
//	OLLECTOR_LOG_FILE         log.file
func (c *Config) ApplyEnvOverrides() {
	values := []struct {
		dst  *string
		vars []string
	}{
		{&c.Client.ServerURL, []string{"OLLECTOR_SERVER_URL"}},
		{&c.Client.SpeechURL, []string{"OLLECTOR_SPEECH_URL"}},
		{&c.Playback.Command, []string{"OLLECTOR_PLAYER"}},
		{&c.Server.Listen, []string{"OLLECTOR_LISTEN"}},
		{&c.Server.Database, []string{"OLLECTOR_DB"}},
		{&c.Server.Engine, []string{"OLLECTOR_ENGINE"}},
		{&c.Server.Model, []string{"OLLECTOR_MODEL"}},
		{&c.Server.OllamaURL, []string{"OLLECTOR_OLLAMA_URL"}},
		{&c.Server.OpenAIBaseURL, []string{"OLLECTOR_OPENAI_BASE_URL"}},
		{&c.Server.OpenAIKey, []string{"OLLECTOR_OPENAI_API_KEY", "OPENAI_API_KEY"}},
		{&c.Server.TTSCommand, []string{"OLLECTOR_TTS_COMMAND"}},
		{&c.Log.Level, []string{"OLLECTOR_LOG_LEVEL"}},
		{&c.Log.File, []string{"OLLECTOR_LOG_FILE"}},
	}
	for _, s := range values {
		for _, name := range s.vars {
			if v := os.Getenv(name); v != "" {
				*s.dst = v
				break
			}
		}
	}

	switches := map[string]*bool{
		"OLLECTOR_NO_SPEECH":   &c.Playback.Enabled,
		"OLLECTOR_NO_MARKDOWN": &c.UI.Markdown,
	}
	for name, dst := range switches {
		if v := os.Getenv(name); v != "" {
			*dst = !isTrue(v)
		}
	}
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// Get returns the setting named by a dotted key such as "server.model".
// Section and field names match case-insensitively.
func (c *Config) Get(key string) (any, error) {
	field, err := c.field(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set parses value into the setting named by key. Lists are comma
// separated.
func (c *Config) Set(key string, value string) error {
	field, err := c.field(key)
	if err != nil {
		return err
	}
	if err := parseInto(field, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// field resolves a dotted key to a settable leaf of c.
func (c *Config) field(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	v := reflect.ValueOf(c).Elem()
	path := strings.Split(key, ".")
	for i, name := range path {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("%s is a value, not a section", strings.Join(path[:i], "."))
		}
		next, ok := byTag(v, name)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown key %s", strings.Join(path[:i+1], "."))
		}
		v = next
	}
	if v.Kind() == reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%s is a section, not a value", key)
	}
	return v, nil
}

func tagName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	return name
}

func byTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := range t.NumField() {
		if strings.EqualFold(tagName(t.Field(i)), name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func parseInto(field reflect.Value, s string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("%q is not a whole number", s)
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("%q is not a number", s)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("%q is not true or false", s)
		}
		field.SetBool(b)
	case reflect.Slice:
		var items []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("cannot set a %s", field.Kind())
	}
	return nil
}

// Keys lists every setting in dot notation, sorted.
func Keys() []string {
	var keys []string
	var walk func(reflect.Type, string)
	walk = func(t reflect.Type, prefix string) {
		for i := range t.NumField() {
			f := t.Field(i)
			name := tagName(f)
			switch {
			case name == "":
			case f.Type.Kind() == reflect.Struct:
				walk(f.Type, prefix+name+".")
			default:
				keys = append(keys, prefix+name)
			}
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	sort.Strings(keys)
	return keys
}
