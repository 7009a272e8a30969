// Package main is the entrypoint for the FinDoc API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/findoc/internal/api"
	"github.com/kiranshivaraju/findoc/internal/api/handler"
	mw "github.com/kiranshivaraju/findoc/internal/api/middleware"
	"github.com/kiranshivaraju/findoc/internal/app"
	"github.com/kiranshivaraju/findoc/internal/config"
	"github.com/kiranshivaraju/findoc/internal/metrics"
	"github.com/kiranshivaraju/findoc/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	router := api.NewRouter(dependencies(a))

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.Worker.JobTimeout + time.Minute, // synchronous analyses hold the connection
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func dependencies(a *app.App) api.Dependencies {
	return api.Dependencies{
		RateLimit: mw.NewRateLimit(a.Cache, a.Config.Server.RateLimitPerMinute),

		RootHandler:        handler.NewRootHandler(),
		HealthHandler:      handler.NewHealthHandler(a.Store, a.Queue, a.Pipeline),
		AnalyzeHandler:     handler.NewAnalyzeHandler(a.Service, a.Config.Documents.MaxUploadBytes),
		ListAnalyses:       handler.NewListAnalysesHandler(a.Store),
		GetAnalysis:        handler.NewGetAnalysisHandler(a.Store),
		ListFiles:          handler.NewListFilesHandler(a.Store),
		GetFile:            handler.NewGetFileHandler(a.Store),
		DeleteFile:         handler.NewDeleteFileHandler(a.Store),
		CreateUser:         handler.NewCreateUserHandler(a.Store),
		GetUser:            handler.NewGetUserHandler(a.Store),
		QueueStatusHandler: handler.NewQueueStatusHandler(a.Queue),
		MetricsHandler:     metrics.Handler(),
	}
}
