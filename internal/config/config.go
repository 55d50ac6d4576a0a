// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for inkweaver.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/inkweaver/internal/model"
	"github.com/jeranaias/inkweaver/internal/util"
)

// Environment variable names.
const (
	EnvHome           = "INKWEAVER_HOME"
	EnvAPIKey         = "INKWEAVER_API_KEY"
	EnvGeminiAPIKey   = "GEMINI_API_KEY"
	EnvAPIKeyFallback = "API_KEY"
	EnvBaseURL        = "INKWEAVER_BASE_URL"
	EnvStorageDir     = "INKWEAVER_STORAGE_DIR"
	EnvStorageBackend = "INKWEAVER_STORAGE_BACKEND"
	EnvLogLevel       = "INKWEAVER_LOG_LEVEL"
	EnvServerAddr     = "INKWEAVER_SERVER_ADDR"
)

// Storage backends.
const (
	StorageJSON   = "json"
	StorageSQLite = "sqlite"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete inkweaver configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	API      APIConfig      `toml:"api" json:"api"`
	Defaults DefaultsConfig `toml:"defaults" json:"defaults"`
	Storage  StorageConfig  `toml:"storage" json:"storage"`
	Server   ServerConfig   `toml:"server" json:"server"`
	Log      LogConfig      `toml:"log" json:"log"`
}

// APIConfig configures the Gemini client.
type APIConfig struct {
	// Key is the Gemini API key. Prefer the INKWEAVER_API_KEY environment
	// variable over storing it here.
	Key               string `toml:"key" json:"key,omitempty"`
	BaseURL           string `toml:"base_url" json:"base_url"`
	TimeoutSecs       int    `toml:"timeout_secs" json:"timeout_secs"`
	RequestsPerMinute int    `toml:"requests_per_minute" json:"requests_per_minute"`
}

// DefaultsConfig holds the generation settings given to new sessions.
type DefaultsConfig struct {
	Variant        string `toml:"variant" json:"variant"`
	AutoSwitch     bool   `toml:"auto_switch" json:"auto_switch"`
	DeepThinking   bool   `toml:"deep_thinking" json:"deep_thinking"`
	ThinkingBudget int    `toml:"thinking_budget" json:"thinking_budget"`
	EnableSearch   bool   `toml:"enable_search" json:"enable_search"`
}

// StorageConfig selects where sessions are persisted.
type StorageConfig struct {
	Backend     string `toml:"backend" json:"backend"`
	Dir         string `toml:"dir" json:"dir"`
	MaxSessions int    `toml:"max_sessions" json:"max_sessions"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string `toml:"addr" json:"addr"`
	MaxBodyBytes int64  `toml:"max_body_bytes" json:"max_body_bytes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	mc := model.DefaultModelConfig()
	return &Config{
		Version: "1.0.0",
		API: APIConfig{
			BaseURL:           "https://generativelanguage.googleapis.com",
			TimeoutSecs:       60,
			RequestsPerMinute: 0,
		},
		Defaults: DefaultsConfig{
			Variant:        strings.ToLower(mc.Variant.String()),
			AutoSwitch:     mc.AutoSwitch,
			DeepThinking:   mc.DeepThinking,
			ThinkingBudget: mc.ThinkingBudget,
			EnableSearch:   mc.EnableSearch,
		},
		Storage: StorageConfig{
			Backend:     StorageJSON,
			MaxSessions: 500,
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8787",
			MaxBodyBytes: 1 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ModelConfig converts the defaults section into a session config.
// An unparseable variant falls back to PRO; Validate reports it.
func (d DefaultsConfig) ModelConfig() model.ModelConfig {
	v, err := model.ParseVariant(d.Variant)
	if err != nil {
		v = model.VariantPro
	}
	return model.ModelConfig{
		Variant:        v,
		AutoSwitch:     d.AutoSwitch,
		DeepThinking:   d.DeepThinking,
		ThinkingBudget: d.ThinkingBudget,
		EnableSearch:   d.EnableSearch,
	}.Normalize()
}

// Timeout returns the API timeout as a duration.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSecs) * time.Second
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the inkweaver configuration directory: $INKWEAVER_HOME,
// or ~/.inkweaver.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".inkweaver"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// SessionsDir returns the storage directory: the configured one, or
// <config dir>/sessions.
func (c *Config) SessionsDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions"), nil
}

// ensureSecurePermissions tightens a config file to 0600 since it may hold
// the API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.inkweaver/config.toml, then config.json,
// then the built-in defaults. Environment overrides are applied last.
//
// A file that fails to parse is reported alongside the defaults so callers
// can warn and carry on.
func Load() (*Config, error) {
	var loadErr error

	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		loadErr = err
		break
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadFromPath loads a specific file on top of the defaults, applies
// environment overrides and validates the result. The format follows the
// file extension; anything but .json is read as TOML.
func LoadFromPath(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := Default()
	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config %s: %w", path, err)
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML config %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills zero values a file may have blanked out.
func fillDefaults(cfg *Config) {
	d := Default()

	if cfg.Version == "" {
		cfg.Version = d.Version
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = d.API.BaseURL
	}
	if cfg.API.TimeoutSecs == 0 {
		cfg.API.TimeoutSecs = d.API.TimeoutSecs
	}
	if cfg.Defaults.Variant == "" {
		cfg.Defaults.Variant = d.Defaults.Variant
	}
	if cfg.Defaults.ThinkingBudget == 0 {
		cfg.Defaults.ThinkingBudget = d.Defaults.ThinkingBudget
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = d.Storage.Backend
	}
	if cfg.Storage.MaxSessions == 0 {
		cfg.Storage.MaxSessions = d.Storage.MaxSessions
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = d.Server.Addr
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf strings.Builder
	buf.WriteString("# inkweaver configuration file\n")
	buf.WriteString("# The API key is best supplied through INKWEAVER_API_KEY or GEMINI_API_KEY.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, []byte(buf.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
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
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and returns all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{"api.base_url", fmt.Sprintf("invalid URL %q", c.API.BaseURL)})
	} else if u.Scheme != "https" && u.Scheme != "http" {
		errs = append(errs, ValidationError{"api.base_url", "scheme must be http or https"})
	}
	if c.API.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{"api.timeout_secs", "must not be negative"})
	}
	if c.API.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{"api.requests_per_minute", "must not be negative"})
	}

	if _, err := model.ParseVariant(c.Defaults.Variant); err != nil {
		errs = append(errs, ValidationError{"defaults.variant", "must be one of pro, flash, lite"})
	}
	if b := c.Defaults.ThinkingBudget; b < model.MinThinkingBudget || b > model.MaxThinkingBudget {
		errs = append(errs, ValidationError{"defaults.thinking_budget",
			fmt.Sprintf("must be between %d and %d", model.MinThinkingBudget, model.MaxThinkingBudget)})
	}

	switch c.Storage.Backend {
	case StorageJSON, StorageSQLite:
	default:
		errs = append(errs, ValidationError{"storage.backend", "must be json or sqlite"})
	}
	if c.Storage.MaxSessions < 0 {
		errs = append(errs, ValidationError{"storage.max_sessions", "must not be negative"})
	}

	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, ValidationError{"server.max_body_bytes", "must not be negative"})
	}

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{"log.level", fmt.Sprintf("unknown level %q", c.Log.Level)})
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{"log.format", "must be text or json"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// The API key comes from the first non-empty of INKWEAVER_API_KEY,
// GEMINI_API_KEY and API_KEY. Other variables:
//   - INKWEAVER_BASE_URL: overrides api.base_url
//   - INKWEAVER_STORAGE_DIR: overrides storage.dir
//   - INKWEAVER_STORAGE_BACKEND: overrides storage.backend
//   - INKWEAVER_LOG_LEVEL: overrides log.level
//   - INKWEAVER_SERVER_ADDR: overrides server.addr
func (c *Config) ApplyEnvOverrides() {
	for _, name := range []string{EnvAPIKey, EnvGeminiAPIKey, EnvAPIKeyFallback} {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			c.API.Key = key
			break
		}
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvStorageDir); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv(EnvStorageBackend); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvServerAddr); v != "" {
		c.Server.Addr = v
	}
}

// =============================================================================
// DISPLAY
// =============================================================================

// Redacted returns a copy safe to print: the API key is replaced by a
// presence marker.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.API.Key != "" {
		cp.API.Key = "[set, length=" + strconv.Itoa(len(c.API.Key)) + "]"
	}
	return &cp
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration, loading it on first access.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal replaces the global configuration.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
