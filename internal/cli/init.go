// Package cli holds the start-up steps shared by the optify commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"optify/internal/backend"
	"optify/internal/config"
	applog "optify/internal/log"
)

// LoadEnvFile loads .env for local development. A missing file is not an error.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from cfg and installs it as the
// slog default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: component,
		Format:    cfg.LogFormat,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads the environment configuration, sets up logging
// and exits the process if the configuration is invalid.
func LoadAndValidateConfig(component string) (*config.Config, *applog.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg, logger
}

// InitBackend opens the configured store and, when configured, the recompute
// queue. requireQueue forces a broker connection regardless of RECALC_MODE.
// It exits the process on failure.
func InitBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config, requireQueue bool) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err.Error())
		os.Exit(1)
	}
	bcfg.RequireQueue = bcfg.RequireQueue || requireQueue

	res, err := backend.NewFactory(logger.Logger.With(applog.FieldComponent, applog.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend",
			applog.FieldError, err.Error(),
			"backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
