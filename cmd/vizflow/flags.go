package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Endpoint        string
	BindAddress     string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("VIZFLOW_CONFIG", ""),
		"Path to configuration file, optional (env: VIZFLOW_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("VIZFLOW_CONFIG", ""),
		"Path to configuration file, optional (env: VIZFLOW_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("VIZFLOW_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: VIZFLOW_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("VIZFLOW_LOG_FORMAT", ""),
		"Log format: json, text (env: VIZFLOW_LOG_FORMAT)")

	flag.StringVar(&cfg.Endpoint, "endpoint",
		getEnv("VIZFLOW_REPOSITORY_ENDPOINT", ""),
		"Structure repository base URL (env: VIZFLOW_REPOSITORY_ENDPOINT)")

	flag.StringVar(&cfg.BindAddress, "bind",
		getEnv("VIZFLOW_BIND_ADDRESS", ""),
		"Gateway bind address (env: VIZFLOW_BIND_ADDRESS)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("VIZFLOW_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: VIZFLOW_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp

	flag.Parse()

	return cfg
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Asynchronous visualization render service

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run against a structure repository
  %s --endpoint=https://files.example.org/structures

  # Run with a config file and debug logging
  %s --config=/etc/vizflow/config.json --log-level=debug

  # Run with environment variables
  export VIZFLOW_REPOSITORY_ENDPOINT=https://files.example.org/structures
  export VIZFLOW_LOG_LEVEL=debug
  %s

  # Validate configuration only
  %s --config=/etc/vizflow/config.json --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
