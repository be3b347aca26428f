// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/rigrun-transcript/internal/logging"
	"github.com/jeranaias/rigrun-transcript/internal/markdown"
	"github.com/jeranaias/rigrun-transcript/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigrun-transcript configuration.
type Config struct {
	// Store configures the transcript store.
	Store StoreConfig `toml:"store" json:"store"`

	// Session configures chat sessions.
	Session SessionConfig `toml:"session" json:"session"`

	// Storage configures the chat database.
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Render configures terminal output.
	Render RenderConfig `toml:"render" json:"render"`

	// Server configures the shared-chat HTTP API.
	Server ServerConfig `toml:"server" json:"server"`

	// Log configures the structured logger.
	Log LogConfig `toml:"log" json:"log"`
}

// StoreConfig contains transcript store settings.
type StoreConfig struct {
	// ThrottleMS is the subscriber notification window in milliseconds.
	// Zero notifies on every mutation.
	ThrottleMS int `toml:"throttle_ms" json:"throttle_ms"`
	// MinBlockSlots is the minimum number of markdown block slots reported
	// for a part.
	MinBlockSlots int `toml:"min_block_slots" json:"min_block_slots"`
}

// SessionConfig contains chat session settings.
type SessionConfig struct {
	// Model is the model id recorded on assistant messages.
	Model string `toml:"model" json:"model"`
	// AutoSave persists finished assistant messages.
	AutoSave bool `toml:"auto_save" json:"auto_save"`
	// AutoSaveIntervalSecs is the periodic save interval used by the TUI.
	AutoSaveIntervalSecs int `toml:"auto_save_interval_secs" json:"auto_save_interval_secs"`
}

// StorageConfig contains database settings.
type StorageConfig struct {
	// Path is the SQLite database file. Empty means the default location.
	Path string `toml:"path" json:"path"`
}

// RenderConfig contains terminal rendering settings.
type RenderConfig struct {
	// Markdown renders message text through glamour. When false text is
	// printed as-is.
	Markdown bool `toml:"markdown" json:"markdown"`
	// WordWrap is the wrap column. Zero disables wrapping.
	WordWrap int `toml:"word_wrap" json:"word_wrap"`
	// Style is the glamour style: auto, dark, light, notty or ascii.
	Style string `toml:"style" json:"style"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	// Listen is the listen address.
	Listen string `toml:"listen" json:"listen"`
	// RateLimit is requests per minute per client IP. Zero disables it.
	RateLimit int `toml:"rate_limit" json:"rate_limit"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" json:"level"`
	// Sink is stderr, stdout, discard or file:<path>.
	Sink string `toml:"sink" json:"sink"`
}

// Throttle returns the store notification window as a duration.
func (c *Config) Throttle() time.Duration {
	return time.Duration(c.Store.ThrottleMS) * time.Millisecond
}

// AutoSaveInterval returns the periodic save interval as a duration.
func (c *Config) AutoSaveInterval() time.Duration {
	return time.Duration(c.Session.AutoSaveIntervalSecs) * time.Second
}

// DatabasePath returns the configured database path or the default one.
func (c *Config) DatabasePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	dir, err := ConfigDir()
	if err != nil {
		return "transcript.db"
	}
	return filepath.Join(dir, "transcript.db")
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			ThrottleMS:    100,
			MinBlockSlots: markdown.DefaultMinSlots,
		},
		Session: SessionConfig{
			Model:                "unknown",
			AutoSave:             true,
			AutoSaveIntervalSecs: 30,
		},
		Render: RenderConfig{
			Markdown: true,
			WordWrap: 100,
			Style:    markdown.StyleAuto,
		},
		Server: ServerConfig{
			Listen:    "127.0.0.1:8787",
			RateLimit: 120,
		},
		Log: LogConfig{
			Level: "info",
			Sink:  logging.SinkStderr,
		},
	}
}

// SetDefaults fills in zero values that have no meaning of their own.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Store.MinBlockSlots == 0 {
		c.Store.MinBlockSlots = d.Store.MinBlockSlots
	}
	if c.Session.Model == "" {
		c.Session.Model = d.Session.Model
	}
	if c.Session.AutoSaveIntervalSecs == 0 {
		c.Session.AutoSaveIntervalSecs = d.Session.AutoSaveIntervalSecs
	}
	if c.Render.Style == "" {
		c.Render.Style = d.Render.Style
	}
	if c.Server.Listen == "" {
		c.Server.Listen = d.Server.Listen
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Sink == "" {
		c.Log.Sink = d.Log.Sink
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigrun-transcript"), nil
}

// ConfigPath returns the path to the TOML config file. TRANSCRIPT_CONFIG
// overrides the default location.
func ConfigPath() (string, error) {
	if p := os.Getenv("TRANSCRIPT_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the config file if there is one, falling back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return finish(Default())
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a TOML file. Keys missing from the
// file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logging.L().Warn("CONFIG_UNKNOWN_KEYS", "path", path, "keys", strings.Join(keys, ","))
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# rigrun-transcript configuration file\n")
	buf.WriteString("# Generated by rigrun-transcript - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validStyles = map[string]bool{
	markdown.StyleAuto:  true,
	markdown.StyleDark:  true,
	markdown.StyleLight: true,
	markdown.StyleNoTTY: true,
	markdown.StyleASCII: true,
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Store
	if c.Store.ThrottleMS < 0 || c.Store.ThrottleMS > 10_000 {
		errs = append(errs, ValidationError{
			Field:   "store.throttle_ms",
			Message: fmt.Sprintf("must be between 0 and 10000, got %d", c.Store.ThrottleMS),
		})
	}
	if c.Store.MinBlockSlots < 0 {
		errs = append(errs, ValidationError{
			Field:   "store.min_block_slots",
			Message: "cannot be negative",
		})
	}

	// Session
	if c.Session.AutoSaveIntervalSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "session.auto_save_interval_secs",
			Message: "cannot be negative",
		})
	}

	// Render
	if c.Render.WordWrap < 0 {
		errs = append(errs, ValidationError{
			Field:   "render.word_wrap",
			Message: "cannot be negative",
		})
	}
	if c.Render.Style != "" && !validStyles[c.Render.Style] {
		errs = append(errs, ValidationError{
			Field:   "render.style",
			Message: fmt.Sprintf("invalid style '%s', must be one of: auto, dark, light, notty, ascii", c.Render.Style),
		})
	}

	// Server
	if c.Server.Listen != "" && !strings.Contains(c.Server.Listen, ":") {
		errs = append(errs, ValidationError{
			Field:   "server.listen",
			Message: fmt.Sprintf("invalid address '%s', expected host:port", c.Server.Listen),
		})
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.rate_limit",
			Message: "cannot be negative",
		})
	}

	// Log
	if c.Log.Level != "" && !logging.ValidLevel(c.Log.Level) {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}
	if c.Log.Sink != "" && !validSink(c.Log.Sink) {
		errs = append(errs, ValidationError{
			Field:   "log.sink",
			Message: fmt.Sprintf("invalid sink '%s', must be stderr, stdout, discard or file:<path>", c.Log.Sink),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validSink(s string) bool {
	switch s {
	case logging.SinkStderr, logging.SinkStdout, logging.SinkDiscard:
		return true
	}
	return strings.HasPrefix(s, "file:") && len(s) > len("file:")
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - TRANSCRIPT_THROTTLE_MS: overrides store.throttle_ms
//   - TRANSCRIPT_DB: overrides storage.path
//   - TRANSCRIPT_LOG_LEVEL: overrides log.level
//   - TRANSCRIPT_LISTEN: overrides server.listen
//
// Unparseable numbers are ignored.
func (c *Config) ApplyEnvOverrides() {
	// TRANSCRIPT_THROTTLE_MS
	if v := os.Getenv("TRANSCRIPT_THROTTLE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Store.ThrottleMS = ms
		}
	}

	// TRANSCRIPT_DB
	if path := os.Getenv("TRANSCRIPT_DB"); path != "" {
		c.Storage.Path = path
	}

	// TRANSCRIPT_LOG_LEVEL
	if level := os.Getenv("TRANSCRIPT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}

	// TRANSCRIPT_LISTEN
	if addr := os.Getenv("TRANSCRIPT_LISTEN"); addr != "" {
		c.Server.Listen = addr
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "store.throttle_ms").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from a value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			switch strings.ToLower(strVal) {
			case "1", "true", "yes", "on":
				field.SetBool(true)
			case "0", "false", "no", "off":
				field.SetBool(false)
			default:
				return fmt.Errorf("invalid boolean value: %q", strVal)
			}
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"store.throttle_ms",
		"store.min_block_slots",
		"session.model",
		"session.auto_save",
		"session.auto_save_interval_secs",
		"storage.path",
		"render.markdown",
		"render.word_wrap",
		"render.style",
		"server.listen",
		"server.rate_limit",
		"log.level",
		"log.sink",
	}
}
