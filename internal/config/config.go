// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - configuration loading, defaults, env overrides and validation.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTS
// =============================================================================

// CurrentVersion is written into new config files.
const CurrentVersion = "1"

// Default endpoints.
const (
	DefaultOllamaURL = "http://127.0.0.1:11434"
	DefaultOpenAIURL = "http://127.0.0.1:8080/v1"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RIGCHAT_"

// Config is the complete rigchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// DefaultModel is the catalog id selected at startup. Empty means none.
	DefaultModel string `toml:"default_model" json:"default_model"`

	Ollama     OllamaConfig     `toml:"ollama" json:"ollama"`
	OpenAI     OpenAIConfig     `toml:"openai" json:"openai"`
	Generation GenerationConfig `toml:"generation" json:"generation"`
	Catalog    CatalogConfig    `toml:"catalog" json:"catalog"`
	Log        LogConfig        `toml:"log" json:"log"`
	Metrics    MetricsConfig    `toml:"metrics" json:"metrics"`
}

// OllamaConfig configures the Ollama backend.
type OllamaConfig struct {
	URL string `toml:"url" json:"url"`

	// TimeoutSecs bounds non-streaming requests (tags, warm, unload).
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// Timeout returns TimeoutSecs as a duration.
func (o OllamaConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSecs) * time.Second
}

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	BaseURL     string `toml:"base_url" json:"base_url"`
	APIKey      string `toml:"api_key" json:"api_key"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
}

// Timeout returns TimeoutSecs as a duration.
func (o OpenAIConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSecs) * time.Second
}

// GenerationConfig holds the instruction set and sampling parameters.
type GenerationConfig struct {
	SystemPrompt string  `toml:"system_prompt" json:"system_prompt"`
	Temperature  float64 `toml:"temperature" json:"temperature"`
	MaxTokens    int     `toml:"max_tokens" json:"max_tokens"`
}

// Params returns the sampling parameters for the session controller.
func (g GenerationConfig) Params() session.Params {
	return session.Params{Temperature: g.Temperature, MaxTokens: g.MaxTokens}
}

// CatalogConfig filters the built-in catalog and adds user entries.
type CatalogConfig struct {
	// MaxSizeGB drops descriptors larger than this (0 = no limit).
	MaxSizeGB float64 `toml:"max_size_gb" json:"max_size_gb"`

	// Backends keeps only descriptors for these backends (empty = all).
	Backends []string `toml:"backends" json:"backends"`

	// Models are appended to the built-in list; matching ids replace built-ins.
	Models []catalog.Descriptor `toml:"models" json:"models"`
}

// LogConfig configures the event log.
type LogConfig struct {
	// File is the log path. Empty means ~/.rigchat/rigchat.log, "-" means stderr.
	File string `toml:"file" json:"file"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:9464". Empty disables it.
	Addr string `toml:"addr" json:"addr"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	params := session.DefaultParams()
	return &Config{
		Version:      CurrentVersion,
		DefaultModel: "",
		Ollama: OllamaConfig{
			URL:         DefaultOllamaURL,
			TimeoutSecs: 30,
		},
		OpenAI: OpenAIConfig{
			BaseURL:     DefaultOpenAIURL,
			TimeoutSecs: 30,
		},
		Generation: GenerationConfig{
			SystemPrompt: "You are a helpful assistant.",
			Temperature:  params.Temperature,
			MaxTokens:    params.MaxTokens,
		},
		Catalog: CatalogConfig{},
		Log:     LogConfig{},
		Metrics: MetricsConfig{},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigchat"), nil
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

// LogPath resolves the event log location. "-" is returned unchanged.
func (c *Config) LogPath() (string, error) {
	if c.Log.File != "" {
		return c.Log.File, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "rigchat.log"), nil
}

// ensureSecurePermissions tightens config files to 0600; they may hold an API key.
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

// Load reads ~/.rigchat/config.toml, falling back to config.json and then to
// defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	if path := SourcePath(); path != "" {
		return LoadFromPath(path)
	}
	return finish(Default(), os.Environ())
}

// SourcePath returns the file Load reads, or "" when neither config.toml nor
// config.json exists.
func SourcePath() string {
	for _, locate := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := locate()
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadFromPath loads configuration from a specific file. Files ending in
// .json are decoded as JSON, everything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg, os.Environ())
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

func finish(cfg *Config, environ []string) (*Config, error) {
	if err := cfg.ApplyEnvOverrides(environ); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// envOverrides mirrors the RIGCHAT_* variables. Unset variables stay nil.
type envOverrides struct {
	OllamaURL    *string  `env:"OLLAMA_URL"`
	OpenAIURL    *string  `env:"OPENAI_URL"`
	OpenAIKey    *string  `env:"OPENAI_KEY"`
	Model        *string  `env:"MODEL"`
	SystemPrompt *string  `env:"SYSTEM_PROMPT"`
	Temperature  *float64 `env:"TEMPERATURE"`
	MaxTokens    *int     `env:"MAX_TOKENS"`
	LogFile      *string  `env:"LOG_FILE"`
	MetricsAddr  *string  `env:"METRICS_ADDR"`
}

// ApplyEnvOverrides applies RIGCHAT_* variables from environ (KEY=VALUE
// pairs, as returned by os.Environ):
//   - RIGCHAT_OLLAMA_URL: overrides ollama.url
//   - RIGCHAT_OPENAI_URL / RIGCHAT_OPENAI_KEY: override openai.base_url / api_key
//   - RIGCHAT_MODEL: overrides default_model
//   - RIGCHAT_SYSTEM_PROMPT, RIGCHAT_TEMPERATURE, RIGCHAT_MAX_TOKENS: override [generation]
//   - RIGCHAT_LOG_FILE: overrides log.file
//   - RIGCHAT_METRICS_ADDR: overrides metrics.addr
func (c *Config) ApplyEnvOverrides(environ []string) error {
	var o envOverrides
	opts := env.Options{
		Prefix:      EnvPrefix,
		Environment: toEnvMap(environ),
	}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	if o.OllamaURL != nil {
		c.Ollama.URL = *o.OllamaURL
	}
	if o.OpenAIURL != nil {
		c.OpenAI.BaseURL = *o.OpenAIURL
	}
	if o.OpenAIKey != nil {
		c.OpenAI.APIKey = *o.OpenAIKey
	}
	if o.Model != nil {
		c.DefaultModel = *o.Model
	}
	if o.SystemPrompt != nil {
		c.Generation.SystemPrompt = *o.SystemPrompt
	}
	if o.Temperature != nil {
		c.Generation.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		c.Generation.MaxTokens = *o.MaxTokens
	}
	if o.LogFile != nil {
		c.Log.File = *o.LogFile
	}
	if o.MetricsAddr != nil {
		c.Metrics.Addr = *o.MetricsAddr
	}
	return nil
}

func toEnvMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

// =============================================================================
// DEFAULTS
// =============================================================================

// SetDefaults fills empty fields. Temperature is left alone since 0 is valid.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = defaults.Ollama.URL
	}
	if c.Ollama.TimeoutSecs == 0 {
		c.Ollama.TimeoutSecs = defaults.Ollama.TimeoutSecs
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = defaults.OpenAI.BaseURL
	}
	if c.OpenAI.TimeoutSecs == 0 {
		c.OpenAI.TimeoutSecs = defaults.OpenAI.TimeoutSecs
	}
	if c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = defaults.Generation.MaxTokens
	}
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

// Validate checks the configuration and returns ValidateErrors on failure.
func (c *Config) Validate() error {
	var errs ValidateErrors

	errs = append(errs, validateURL("ollama.url", c.Ollama.URL)...)
	errs = append(errs, validateURL("openai.base_url", c.OpenAI.BaseURL)...)

	if c.Ollama.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "ollama.timeout_secs", Message: "cannot be negative"})
	}
	if c.OpenAI.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "openai.timeout_secs", Message: "cannot be negative"})
	}

	if err := c.Generation.Params().Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "generation", Message: err.Error()})
	}

	if c.Catalog.MaxSizeGB < 0 {
		errs = append(errs, ValidationError{Field: "catalog.max_size_gb", Message: "cannot be negative"})
	}
	for _, b := range c.Catalog.Backends {
		if !knownBackend(b) {
			errs = append(errs, ValidationError{
				Field:   "catalog.backends",
				Message: fmt.Sprintf("unknown backend '%s', must be one of: ollama, openai", b),
			})
		}
	}
	seen := make(map[string]bool, len(c.Catalog.Models))
	for i, m := range c.Catalog.Models {
		field := fmt.Sprintf("catalog.models[%d]", i)
		id := strings.TrimSpace(m.ID)
		switch {
		case id == "":
			errs = append(errs, ValidationError{Field: field + ".id", Message: "cannot be empty"})
		case seen[id]:
			errs = append(errs, ValidationError{Field: field + ".id", Message: fmt.Sprintf("duplicate id '%s'", id)})
		}
		seen[id] = true
		if !knownBackend(m.Recipe.Backend) {
			errs = append(errs, ValidationError{
				Field:   field + ".recipe.backend",
				Message: fmt.Sprintf("unknown backend '%s', must be one of: ollama, openai", m.Recipe.Backend),
			})
		}
		if strings.TrimSpace(m.Recipe.Model) == "" {
			errs = append(errs, ValidationError{Field: field + ".recipe.model", Message: "cannot be empty"})
		}
		if m.Recipe.BaseURL != "" {
			errs = append(errs, validateURL(field+".recipe.base_url", m.Recipe.BaseURL)...)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(field, raw string) ValidateErrors {
	u, err := url.Parse(raw)
	if err != nil {
		return ValidateErrors{{Field: field, Message: fmt.Sprintf("invalid URL: %v", err)}}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ValidateErrors{{Field: field, Message: fmt.Sprintf("URL must use http or https, got '%s'", raw)}}
	}
	if u.Host == "" {
		return ValidateErrors{{Field: field, Message: "URL must include a host"}}
	}
	return nil
}

func knownBackend(name string) bool {
	switch strings.ToLower(name) {
	case catalog.BackendOllama, catalog.BackendOpenAI:
		return true
	}
	return false
}

// =============================================================================
// CATALOG
// =============================================================================

// BuildCatalog merges the built-in list with [[catalog.models]] and applies
// the backend and size filters.
func (c *Config) BuildCatalog() (*catalog.Catalog, error) {
	all, err := catalog.New(catalog.Merge(catalog.Builtin(), c.Catalog.Models)...)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	limit := int64(c.Catalog.MaxSizeGB * float64(1<<30))
	return all.Filter(catalog.AllOf(
		catalog.ByBackend(c.Catalog.Backends...),
		catalog.MaxSize(limit),
	)), nil
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

// SaveTOML atomically writes cfg as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# rigchat configuration file")
	fmt.Fprintln(&buf, "# Generated by rigchat - edit with care")
	fmt.Fprintln(&buf, "")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON atomically writes cfg as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// MISC
// =============================================================================

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Catalog.Backends = append([]string(nil), c.Catalog.Backends...)
	clone.Catalog.Models = append([]catalog.Descriptor(nil), c.Catalog.Models...)
	return &clone
}

// Redacted returns a copy with secrets replaced.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	if safe.OpenAI.APIKey != "" {
		safe.OpenAI.APIKey = "[REDACTED]"
	}
	return safe
}

// String renders the config as TOML with secrets redacted.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c.Redacted()); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}
