// Package main is the entrypoint for the FinDoc queue worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/findoc/internal/app"
	"github.com/kiranshivaraju/findoc/internal/config"
	"github.com/kiranshivaraju/findoc/internal/queue"
	"github.com/kiranshivaraju/findoc/internal/worker"
)

var errBrokerUnavailable = errors.New("queue broker unavailable")

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	// without a broker there is nothing to consume; the API runs jobs inline
	if _, ok := a.Queue.(queue.Unavailable); ok {
		return fmt.Errorf("%w at %s", errBrokerUnavailable, cfg.Redis.URL)
	}

	pool := worker.New(a.Queue, a.Service, cfg.Worker.Concurrency, cfg.Worker.Name)
	if err := pool.Run(ctx); err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}
