// Package config loads and validates the application configuration: layered
// JSON files merged over defaults, with environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360/vizflow/errors"
	"github.com/c360/vizflow/gateway"
	"github.com/c360/vizflow/pkg/cache"
	"github.com/c360/vizflow/pkg/retry"
)

// envPrefix namespaces environment overrides, e.g. VIZFLOW_REPOSITORY_ENDPOINT.
const envPrefix = "VIZFLOW"

// Config is the complete application configuration.
type Config struct {
	Version    string           `json:"version,omitempty"`
	Log        LogConfig        `json:"log"`
	Repository RepositoryConfig `json:"repository"`
	Loader     LoaderConfig     `json:"loader"`
	Render     RenderConfig     `json:"render"`
	Caches     CachesConfig     `json:"caches"`
	Gateway    gateway.Config   `json:"gateway"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error (default: "info").
	Level string `json:"level,omitempty"`
	// Format is "json" or "text" (default: "text").
	Format string `json:"format,omitempty"`
}

// RepositoryConfig configures payload resolution against the structure
// repository.
type RepositoryConfig struct {
	// Endpoint is the base URL for remote-id lookups.
	Endpoint string `json:"endpoint"`
	// Format names the payload format the repository serves (default: "pdb").
	Format string `json:"format,omitempty"`
	// FetchTimeoutStr bounds a single resolution attempt (default: "30s").
	FetchTimeoutStr string `json:"fetch_timeout,omitempty"`
	// Retry configures backoff for transient repository failures.
	Retry retry.Config `json:"retry"`

	fetchTimeout time.Duration
}

// FetchTimeout returns the parsed fetch timeout.
func (r *RepositoryConfig) FetchTimeout() time.Duration { return r.fetchTimeout }

// LoaderConfig configures dependency loading.
type LoaderConfig struct {
	// TimeoutStr bounds a single dependency load (default: "30s").
	TimeoutStr string `json:"timeout,omitempty"`

	timeout time.Duration
}

// Timeout returns the parsed load timeout.
func (l *LoaderConfig) Timeout() time.Duration { return l.timeout }

// RenderConfig configures render execution.
type RenderConfig struct {
	// SettleDelayStr is the post-flush settle delay (default: "150ms").
	SettleDelayStr string `json:"settle_delay,omitempty"`

	settleDelay time.Duration
}

// SettleDelay returns the parsed settle delay.
func (r *RenderConfig) SettleDelay() time.Duration { return r.settleDelay }

// CachesConfig sizes the process-wide caches.
type CachesConfig struct {
	// Payloads caches resolved payloads by identity key.
	Payloads cache.Config `json:"payloads"`
	// Renders caches completed renders by fingerprint.
	Renders cache.Config `json:"renders"`
}

// Default returns the default application configuration. Repository.Endpoint
// has no default and must be configured.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Repository: RepositoryConfig{
			Format:          "pdb",
			FetchTimeoutStr: "30s",
			Retry:           retry.DefaultConfig(),
		},
		Loader: LoaderConfig{TimeoutStr: "30s"},
		Render: RenderConfig{SettleDelayStr: "150ms"},
		Caches: CachesConfig{
			Payloads: cache.DefaultConfig(),
			Renders:  cache.DefaultConfig(),
		},
		Gateway: gateway.DefaultConfig(),
	}
}

// Loader handles configuration loading with file layers and env overrides.
type Loader struct {
	layers []string
}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// AddLayer adds a configuration file layer. Later layers override earlier
// ones field by field.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// LoadFile loads configuration from a single file over defaults.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges all layers over defaults, applies environment overrides, and
// validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if err := mergeFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile decodes a JSON layer directly over the current config so absent
// fields keep their prior values.
func mergeFile(cfg *Config, path string) error {
	clean := filepath.Clean(path)
	data, err := os.ReadFile(clean)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("invalid config JSON: %w", err)
	}
	return nil
}

// applyEnvOverrides applies VIZFLOW_* environment variables over the loaded
// configuration.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(envPrefix + "_REPOSITORY_ENDPOINT"); val != "" {
		cfg.Repository.Endpoint = val
	}
	if val := os.Getenv(envPrefix + "_BIND_ADDRESS"); val != "" {
		cfg.Gateway.BindAddress = val
	}
	if val := os.Getenv(envPrefix + "_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv(envPrefix + "_LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
}

// Validate checks the configuration and parses duration fields.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	var err error
	if c.Repository.fetchTimeout, err = parseDuration(c.Repository.FetchTimeoutStr, 30*time.Second); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "repository.fetch_timeout")
	}
	if c.Loader.timeout, err = parseDuration(c.Loader.TimeoutStr, 30*time.Second); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "loader.timeout")
	}
	if c.Render.settleDelay, err = parseDuration(c.Render.SettleDelayStr, 150*time.Millisecond); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "render.settle_delay")
	}

	if err := c.Caches.Payloads.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "caches.payloads")
	}
	if err := c.Caches.Renders.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "caches.renders")
	}

	if err := c.Gateway.Validate(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "gateway")
	}

	return nil
}

// parseDuration parses a duration string, substituting a default when empty.
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", s)
	}
	return d, nil
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Clean(path), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}
