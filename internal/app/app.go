// Package app wires configuration into the components shared by the API
// server and the queue worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/findoc/internal/ai"
	"github.com/kiranshivaraju/findoc/internal/analysis"
	"github.com/kiranshivaraju/findoc/internal/cache"
	"github.com/kiranshivaraju/findoc/internal/config"
	"github.com/kiranshivaraju/findoc/internal/documents"
	"github.com/kiranshivaraju/findoc/internal/pipeline"
	"github.com/kiranshivaraju/findoc/internal/queue"
	"github.com/kiranshivaraju/findoc/internal/search"
	"github.com/kiranshivaraju/findoc/internal/store"
)

// App holds the long-lived components of one process.
type App struct {
	Config   *config.Config
	Pool     *pgxpool.Pool
	Store    store.Store
	Cache    *cache.RedisCache
	Queue    queue.Queue
	Docs     documents.Store
	Pipeline *pipeline.Pipeline
	Service  *analysis.Service

	closers []func() error
}

// New connects to every backing service and builds the analysis service.
// On error, anything already opened is closed.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close() //nolint:errcheck
		}
	}()

	a.Pool, err = store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, func() error { a.Pool.Close(); return nil })
	a.Store = store.NewPostgresStore(a.Pool)
	slog.Info("database connected")

	a.Cache, err = cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	a.closers = append(a.closers, a.Cache.Close)

	a.Queue = queue.Resolve(ctx, cfg.Redis.URL, 0)
	if rq, ok := a.Queue.(*queue.RedisQueue); ok {
		a.closers = append(a.closers, rq.Close)
	}

	a.Docs, err = newDocumentStore(ctx, cfg.Documents)
	if err != nil {
		return nil, err
	}

	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", provider.Name(), "model", provider.Model())

	crew, err := pipeline.DefaultCrew()
	if err != nil {
		return nil, fmt.Errorf("load crew: %w", err)
	}
	opts := pipeline.Options{
		Temperature:       cfg.AI.Temperature,
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
	}
	if cfg.Search.Enabled() {
		opts.Search = search.NewHTTPClient(cfg.Search.BaseURL, cfg.Search.APIKey, cfg.Search.Timeout, a.Cache)
	} else {
		slog.Info("web search disabled, SERPER_API_KEY not set")
	}
	a.Pipeline = pipeline.New(provider, crew, opts)

	a.Service = analysis.NewService(a.Store, a.Docs, a.Queue, a.Pipeline, cfg.Worker.JobTimeout)
	return a, nil
}

func newDocumentStore(ctx context.Context, cfg config.DocumentsConfig) (documents.Store, error) {
	if !cfg.Minio.Enabled() {
		s, err := documents.NewLocalStore(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		slog.Info("storing uploads on local disk", "dir", cfg.UploadDir)
		return s, nil
	}

	s, err := documents.NewMinioStore(cfg.Minio)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("minio bucket %s: %w", cfg.Minio.Bucket, err)
	}
	slog.Info("storing uploads in object storage", "endpoint", cfg.Minio.Endpoint, "bucket", cfg.Minio.Bucket)
	return s, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
