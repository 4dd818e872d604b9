package gateway

import (
	"fmt"
	"time"

	"github.com/c360/vizflow/errors"
)

// Config holds configuration for the HTTP gateway.
type Config struct {
	// BindAddress is the HTTP bind address (default: ":8080")
	BindAddress string `json:"bind_address"`

	// EnableCORS enables CORS headers (default: true)
	EnableCORS bool `json:"enable_cors"`

	// CORSOrigins lists allowed CORS origins (default: ["*"])
	CORSOrigins []string `json:"cors_origins,omitempty"`

	// TimeoutStr is the per-request timeout (default: "60s"). Render runs
	// block until Success or Error, so this must cover a full pipeline pass.
	TimeoutStr string `json:"timeout,omitempty"`

	// SurfaceWidth and SurfaceHeight size the headless surfaces the gateway
	// renders into (defaults: 1024x768).
	SurfaceWidth  int `json:"surface_width,omitempty"`
	SurfaceHeight int `json:"surface_height,omitempty"`

	// timeout is the parsed duration (internal use)
	timeout time.Duration
}

// Validate ensures the configuration is valid and applies defaults.
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		c.BindAddress = ":8080"
	}

	if c.TimeoutStr == "" {
		c.timeout = 60 * time.Second
	} else {
		timeout, err := time.ParseDuration(c.TimeoutStr)
		if err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				fmt.Sprintf("invalid timeout format: %s", c.TimeoutStr))
		}
		if timeout < 100*time.Millisecond || timeout > 10*time.Minute {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"timeout must be between 100ms and 10m")
		}
		c.timeout = timeout
	}

	if c.SurfaceWidth <= 0 {
		c.SurfaceWidth = 1024
	}
	if c.SurfaceHeight <= 0 {
		c.SurfaceHeight = 768
	}

	if c.EnableCORS && len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}

	return nil
}

// Timeout returns the parsed request timeout.
func (c *Config) Timeout() time.Duration {
	return c.timeout
}

// DefaultConfig returns default gateway configuration.
func DefaultConfig() Config {
	return Config{
		BindAddress:   ":8080",
		EnableCORS:    true,
		CORSOrigins:   []string{"*"},
		TimeoutStr:    "60s",
		SurfaceWidth:  1024,
		SurfaceHeight: 768,
	}
}
