package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/tableimport/internal/config"
	"github.com/JonMunkholm/tableimport/internal/core"
	"github.com/JonMunkholm/tableimport/internal/logging"
	"github.com/JonMunkholm/tableimport/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Values in .env take precedence over the inherited environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file, reading the environment only")
	} else {
		slog.Info("applied .env over the environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("effective configuration", "config", cfg.String())

	slog.Info("starting import server",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"schema", cfg.Import.Schema,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	pool, err := core.OpenPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	service := core.NewService(pool, cfg)

	// Verify connection
	if err := service.TestConnection(ctx); err != nil {
		slog.Error("failed to reach database", "error", err, "hint", core.FormatUserError(err))
		os.Exit(1)
	}
	slog.Info("connected to database", "name", cfg.Database.DatabaseName())

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let running imports finish before the listener goes away
		limiter := service.Limiter()
		if active := limiter.ActiveCount(); active > 0 {
			slog.Info("waiting for imports to complete", "active", active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
}
