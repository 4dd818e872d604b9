// Package main implements the entry point for the vizflow render service:
// an HTTP gateway over the asynchronous visualization pipeline, rendering
// into headless surfaces.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/vizflow/config"
	"github.com/c360/vizflow/gateway"
	"github.com/c360/vizflow/loader"
	"github.com/c360/vizflow/metric"
	"github.com/c360/vizflow/pipeline"
	"github.com/c360/vizflow/pkg/cache"
	"github.com/c360/vizflow/render"
	"github.com/c360/vizflow/resolver"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "vizflow"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid")
		return nil
	}

	logger.Info("Starting vizflow render service",
		"version", Version,
		"build_time", BuildTime,
		"endpoint", cfg.Repository.Endpoint,
		"bind_address", cfg.Gateway.BindAddress)

	srv, err := buildGateway(cfg, logger)
	if err != nil {
		return err
	}

	return runWithSignalHandling(srv, logger, cliCfg)
}

// loadConfig merges the optional config file, environment, and CLI flags.
// Flags win over the file and environment.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	l := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		l.AddLayer(cliCfg.ConfigPath)
	}
	cfg, err := l.Load()
	if err != nil {
		return nil, err
	}

	if cliCfg.Endpoint != "" {
		cfg.Repository.Endpoint = cliCfg.Endpoint
	}
	if cliCfg.BindAddress != "" {
		cfg.Gateway.BindAddress = cliCfg.BindAddress
	}
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Repository.Endpoint == "" {
		return nil, fmt.Errorf("repository endpoint is required (--endpoint or VIZFLOW_REPOSITORY_ENDPOINT)")
	}
	return cfg, nil
}

// buildGateway wires the pipeline stages, caches, and metrics behind the
// HTTP gateway.
func buildGateway(cfg *config.Config, logger *slog.Logger) (*gateway.Server, error) {
	registry := metric.NewRegistry()

	deps := loader.New(
		loader.WithTimeout(cfg.Loader.Timeout()),
		loader.WithLogger(logger),
		loader.WithMetrics(registry.Pipeline),
	)

	// The service renders headlessly; the recording engine stands in for an
	// interactive toolkit and keeps draw-call sequences inspectable.
	engine := render.NewRecordingEngine()
	if err := deps.Register("render-engine", func(ctx context.Context) (any, error) {
		return engine, nil
	}); err != nil {
		return nil, fmt.Errorf("register render engine: %w", err)
	}

	payloadCache, err := cache.NewFromConfig(cfg.Caches.Payloads,
		cache.WithMetrics[resolver.Entry](registry, "payloads"))
	if err != nil {
		return nil, fmt.Errorf("create payload cache: %w", err)
	}

	resCfg := resolver.DefaultConfig()
	resCfg.Endpoint = cfg.Repository.Endpoint
	resCfg.RemoteFormat = cfg.Repository.Format
	resCfg.FetchTimeout = cfg.Repository.FetchTimeout()
	resCfg.Retry = cfg.Repository.Retry
	res, err := resolver.New(resCfg, payloadCache, deps,
		resolver.WithLogger(logger),
		resolver.WithMetrics(registry.Pipeline))
	if err != nil {
		return nil, fmt.Errorf("create resolver: %w", err)
	}

	exec := render.NewExecutor(
		render.WithSettleDelay(cfg.Render.SettleDelay()),
		render.WithLogger(logger),
		render.WithMetrics(registry.Pipeline))

	renderCache, err := cache.NewFromConfig(cfg.Caches.Renders,
		cache.WithMetrics[pipeline.RenderEntry](registry, "renders"))
	if err != nil {
		return nil, fmt.Errorf("create render cache: %w", err)
	}

	coord, err := pipeline.NewCoordinator(pipeline.DefaultConfig(), deps, res, exec, renderCache,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(registry.Pipeline))
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	srv, err := gateway.NewServer(cfg.Gateway, coord, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}
	if err := srv.Setup(); err != nil {
		return nil, fmt.Errorf("setup gateway: %w", err)
	}
	return srv, nil
}

// runWithSignalHandling starts the gateway and blocks until SIGINT/SIGTERM
// or server failure.
func runWithSignalHandling(srv *gateway.Server, logger *slog.Logger, cliCfg *CLIConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx, ready)
	}()

	select {
	case <-ready:
		logger.Info("Gateway ready")
	case err := <-errCh:
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received", "timeout", cliCfg.ShutdownTimeout)
		if err := srv.Stop(cliCfg.ShutdownTimeout); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
