package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gamelog-backend/internal/app"
	"gamelog-backend/internal/config"
	"gamelog-backend/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	slog.SetDefault(logger)

	runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := runtime.Shutdown(shutdownCtx); err != nil {
			logger.Warn("observability shutdown", "error", err.Error())
		}
	}()

	a, err := app.Build(ctx, cfg, logger, runtime)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	logger.Info("starting gamelog auth backend",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"database_driver", cfg.DatabaseDriver,
		"google_oauth", cfg.AuthGoogleEnabled,
	)
	return a.Run(ctx)
}
