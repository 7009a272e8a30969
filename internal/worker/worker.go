// Package worker consumes queued analyses and executes them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kiranshivaraju/findoc/internal/metrics"
	"github.com/kiranshivaraju/findoc/internal/queue"
	"github.com/kiranshivaraju/findoc/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Executor runs one analysis to a terminal state. Abandon fails a job whose
// previous consumer died mid-run.
type Executor interface {
	Execute(ctx context.Context, task queue.Task) (*models.Analysis, error)
	Abandon(ctx context.Context, task queue.Task, reason string) (*models.Analysis, error)
}

const strandedReason = "worker stopped before the job finished"

const brokerRetryDelay = 2 * time.Second

type Pool struct {
	queue       queue.Queue
	exec        Executor
	concurrency int
	name        string
}

// New returns a Pool of concurrency consumers. Consumer ids are derived from
// name so that each replica owns distinct processing lists.
func New(q queue.Queue, exec Executor, concurrency int, name string) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	if name == "" {
		name, _ = os.Hostname()
	}
	return &Pool{queue: q, exec: exec, concurrency: concurrency, name: name}
}

// Run blocks until ctx is cancelled. In-flight jobs finish before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= p.concurrency; i++ {
		id := fmt.Sprintf("%s-%d", p.name, i)
		g.Go(func() error { return p.consume(ctx, id) })
	}
	slog.Info("worker pool started", "concurrency", p.concurrency, "name", p.name)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) consume(ctx context.Context, workerID string) error {
	log := slog.With("worker_id", workerID)
	p.recoverStranded(ctx, log, workerID)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		d, err := p.queue.Dequeue(ctx, workerID)
		switch {
		case errors.Is(err, queue.ErrNoTask):
			continue
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			log.Warn("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(brokerRetryDelay):
			}
			continue
		}

		p.handle(ctx, log, d)
	}
}

func (p *Pool) handle(ctx context.Context, log *slog.Logger, d *queue.Delivery) {
	metrics.WorkersBusy.Inc()
	defer metrics.WorkersBusy.Dec()

	start := time.Now()
	log = log.With("analysis_id", d.Task.AnalysisID, "ticket", d.Task.Ticket)
	log.Info("job dequeued", "queued_for_ms", start.Sub(d.Task.EnqueuedAt).Milliseconds())

	// let a job that already started finish on shutdown; its own timeout bounds it
	a, err := p.exec.Execute(context.WithoutCancel(ctx), d.Task)
	failed := err != nil || a == nil || a.Status != models.JobStatusCompleted
	if err != nil {
		log.Error("job failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
	} else {
		log.Info("job finished", "status", a.Status, "duration_ms", time.Since(start).Milliseconds())
	}

	if ackErr := p.queue.Ack(context.WithoutCancel(ctx), d, failed); ackErr != nil {
		log.Warn("ack failed", "error", ackErr)
	}
}

// recoverStranded settles deliveries left in this consumer's processing list by
// a previous process with the same id. They are failed rather than re-run.
func (p *Pool) recoverStranded(ctx context.Context, log *slog.Logger, workerID string) {
	stranded, err := p.queue.Stranded(ctx, workerID)
	if err != nil {
		log.Warn("could not list stranded jobs", "error", err)
		return
	}
	for _, d := range stranded {
		a, err := p.exec.Abandon(context.WithoutCancel(ctx), d.Task, strandedReason)
		if err != nil {
			log.Error("could not fail stranded job", "analysis_id", d.Task.AnalysisID, "error", err)
		} else {
			log.Warn("stranded job failed", "analysis_id", d.Task.AnalysisID, "status", a.Status)
		}
		failed := err != nil || a == nil || a.Status != models.JobStatusCompleted
		if ackErr := p.queue.Ack(context.WithoutCancel(ctx), d, failed); ackErr != nil {
			log.Warn("ack failed", "analysis_id", d.Task.AnalysisID, "error", ackErr)
		}
	}
}
