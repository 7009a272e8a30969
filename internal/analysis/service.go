// Package analysis owns the job lifecycle: accepting an upload, dispatching it
// to the queue or running it inline, and driving the record from pending to a
// terminal state. The worker and the synchronous fallback share Execute.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/findoc/internal/ai"
	"github.com/kiranshivaraju/findoc/internal/documents"
	"github.com/kiranshivaraju/findoc/internal/metrics"
	"github.com/kiranshivaraju/findoc/internal/pipeline"
	"github.com/kiranshivaraju/findoc/internal/queue"
	"github.com/kiranshivaraju/findoc/internal/store"
	"github.com/kiranshivaraju/findoc/pkg/models"
)

var (
	ErrJobTimeout = errors.New("analysis exceeded the job timeout")

	errInfrastructure = errors.New("infrastructure failure")
)

// CompletionSummary is stored as result_summary on every completed analysis.
const CompletionSummary = "Comprehensive financial analysis completed by AI specialists"

const (
	ModeQueued      = "queued"
	ModeSynchronous = "synchronous"
)

// startAttempts bounds how often Execute tries the pending -> processing
// transition before giving up on a flaky database.
const startAttempts = 3

// Upload is a validated-by-transport request to analyse a document.
type Upload struct {
	Body         io.Reader
	Filename     string
	ContentType  string
	Query        string
	AnalysisType string
	UserID       *int64
	ClientIP     string
	UserAgent    string
}

// Submission reports how an upload was dispatched. On the queued path Analysis
// is the pending record; on the synchronous path it is the terminal record.
type Submission struct {
	Mode     string
	Ticket   string
	Analysis *models.Analysis
	File     *models.File
}

type Service struct {
	store      store.Store
	docs       documents.Store
	queue      queue.Queue
	runner     pipeline.Runner
	jobTimeout time.Duration
	retryDelay time.Duration
}

func NewService(s store.Store, docs documents.Store, q queue.Queue, runner pipeline.Runner, jobTimeout time.Duration) *Service {
	if q == nil {
		q = queue.Unavailable{}
	}
	return &Service{store: s, docs: docs, queue: q, runner: runner, jobTimeout: jobTimeout, retryDelay: 250 * time.Millisecond}
}

// NormalizeQuery trims q, substitutes the default query when blank and caps
// the result at MaxQueryLength characters.
func NormalizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return models.DefaultQuery
	}
	if utf8.RuneCountInString(q) > models.MaxQueryLength {
		q = string([]rune(q)[:models.MaxQueryLength])
	}
	return q
}

// Submit stores the upload, creates its File and Analysis records and
// dispatches the job. Validation errors are returned before any record exists.
// When the job ran synchronously and failed, the failed record is returned
// together with the error.
func (s *Service) Submit(ctx context.Context, up Upload) (*Submission, error) {
	query := NormalizeQuery(up.Query)

	doc, err := s.docs.Save(ctx, up.Body, up.Filename)
	if err != nil {
		return nil, err
	}

	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	file, err := s.store.CreateFile(ctx, store.NewFile{
		Filename:         doc.Name,
		OriginalFilename: up.Filename,
		StoragePath:      doc.Ref,
		SizeBytes:        doc.Size,
		ContentType:      contentType,
		Checksum:         doc.Checksum,
		ClientIP:         up.ClientIP,
		UserAgent:        up.UserAgent,
	})
	if err != nil {
		s.docs.Delete(ctx, doc.Ref)
		return nil, fmt.Errorf("create file record: %w", err)
	}

	a, err := s.store.CreateAnalysis(ctx, store.NewAnalysis{
		Query:        query,
		AnalysisType: up.AnalysisType,
		FileID:       &file.ID,
		UserID:       up.UserID,
	})
	if err != nil {
		s.docs.Delete(ctx, doc.Ref)
		if delErr := s.store.SoftDeleteFile(context.WithoutCancel(ctx), file.ID); delErr != nil {
			slog.Warn("failed to retire orphaned file record", "file_id", file.ID, "error", delErr)
		}
		return nil, fmt.Errorf("create analysis: %w", err)
	}

	task := queue.Task{
		AnalysisID: a.ID,
		Query:      query,
		FileRef:    doc.Ref,
		FileID:     &file.ID,
		Timeout:    s.jobTimeout,
	}

	if s.queue.IsAvailable(ctx) {
		ticket, err := s.queue.Enqueue(ctx, task)
		if err == nil {
			metrics.JobsSubmitted.WithLabelValues(ModeQueued).Inc()
			slog.Info("analysis queued", "analysis_id", a.ID, "ticket", ticket)
			return &Submission{Mode: ModeQueued, Ticket: ticket, Analysis: a, File: file}, nil
		}
		slog.Warn("enqueue failed, running synchronously", "analysis_id", a.ID, "error", err)
	}

	metrics.JobsSubmitted.WithLabelValues(ModeSynchronous).Inc()
	metrics.QueueFallbacks.Inc()

	// the job outlives a disconnecting client; JOB_TIMEOUT still bounds it
	done, err := s.Execute(context.WithoutCancel(ctx), task)
	if done == nil {
		done = a
	}
	return &Submission{Mode: ModeSynchronous, Analysis: done, File: file}, err
}

// Execute moves the analysis to processing, runs the pipeline under the job
// timeout and records the terminal state. The document is deleted and the
// File marked processed whatever the outcome.
func (s *Service) Execute(ctx context.Context, task queue.Task) (*models.Analysis, error) {
	log := slog.With("analysis_id", task.AnalysisID, "ticket", task.Ticket)
	start := time.Now()
	defer s.cleanup(ctx, task)

	if err := s.markProcessing(ctx, task.AnalysisID); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("mark processing: %w", err)
		}
		cause := fmt.Errorf("%w: mark processing: %w", errInfrastructure, err)
		log.Error("analysis could not start", "error", err)
		a, failErr := s.fail(ctx, task.AnalysisID, cause)
		if failErr != nil {
			return nil, errors.Join(cause, fmt.Errorf("record failure: %w", failErr))
		}
		return a, cause
	}
	log.Info("analysis started")

	report, runErr := s.run(ctx, task)
	metrics.JobDuration.Observe(time.Since(start).Seconds())

	if runErr == nil {
		a, err := s.store.UpdateAnalysisStatus(context.WithoutCancel(ctx), task.AnalysisID, models.JobStatusCompleted,
			store.WithResult(CompletionSummary, report.DetailedResults()))
		if err == nil {
			metrics.JobsFinished.WithLabelValues(models.JobStatusCompleted, "").Inc()
			log.Info("analysis completed", "duration_ms", time.Since(start).Milliseconds())
			return a, nil
		}
		runErr = fmt.Errorf("%w: record result: %w", errInfrastructure, err)
	}

	log.Error("analysis failed", "error_kind", ErrorKind(runErr), "error", runErr, "duration_ms", time.Since(start).Milliseconds())
	a, err := s.fail(ctx, task.AnalysisID, runErr)
	if err != nil {
		return nil, errors.Join(runErr, fmt.Errorf("record failure: %w", err))
	}
	return a, runErr
}

// Abandon fails a job whose consumer stopped before acknowledging it and
// releases its document. A job that already reached a terminal state is
// returned unchanged.
func (s *Service) Abandon(ctx context.Context, task queue.Task, reason string) (*models.Analysis, error) {
	ctx = context.WithoutCancel(ctx)
	defer s.cleanup(ctx, task)

	a, err := s.store.GetAnalysis(ctx, task.AnalysisID)
	if err != nil {
		return nil, fmt.Errorf("load abandoned analysis: %w", err)
	}
	if a.Status == models.JobStatusCompleted || a.Status == models.JobStatusFailed {
		return a, nil
	}

	slog.Warn("failing abandoned analysis", "analysis_id", a.ID, "ticket", task.Ticket, "status", a.Status, "reason", reason)
	failed, err := s.fail(ctx, a.ID, fmt.Errorf("%w: %s", errInfrastructure, reason))
	if err != nil {
		return nil, fmt.Errorf("record abandoned analysis: %w", err)
	}
	return failed, nil
}

func (s *Service) markProcessing(ctx context.Context, id int64) error {
	var err error
	for attempt := 1; attempt <= startAttempts; attempt++ {
		_, err = s.store.UpdateAnalysisStatus(ctx, id, models.JobStatusProcessing)
		if err == nil || errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
			return err
		}
		if attempt < startAttempts {
			slog.Warn("retrying start of analysis", "analysis_id", id, "attempt", attempt, "error", err)
			time.Sleep(time.Duration(attempt) * s.retryDelay)
		}
	}
	return err
}

// fail records cause on the analysis. A job still pending is first moved to
// processing so the lifecycle never skips a state.
func (s *Service) fail(ctx context.Context, id int64, cause error) (*models.Analysis, error) {
	ctx = context.WithoutCancel(ctx)
	kind := ErrorKind(cause)
	opt := store.WithFailure(kind, cause.Error())

	a, err := s.store.UpdateAnalysisStatus(ctx, id, models.JobStatusFailed, opt)
	if errors.Is(err, store.ErrInvalidTransition) {
		if _, err = s.store.UpdateAnalysisStatus(ctx, id, models.JobStatusProcessing); err == nil {
			a, err = s.store.UpdateAnalysisStatus(ctx, id, models.JobStatusFailed, opt)
		}
	}
	if err != nil {
		return nil, err
	}
	metrics.JobsFinished.WithLabelValues(models.JobStatusFailed, kind).Inc()
	return a, nil
}

type outcome struct {
	report *pipeline.Report
	err    error
}

// run enforces the job timeout whether or not the runner honours ctx: once the
// deadline passes the job is a timeout, even if the runner later returns a report.
func (s *Service) run(ctx context.Context, task queue.Task) (*pipeline.Report, error) {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = s.jobTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	timedOut := func(cause error) error {
		return fmt.Errorf("%w (%s): %w", ErrJobTimeout, timeout, cause)
	}

	path, release, err := s.docs.Open(ctx, task.FileRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInfrastructure, err)
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("pipeline panicked", "analysis_id", task.AnalysisID, "panic", r, "stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("%w: panic: %v", pipeline.ErrPipeline, r)}
			}
		}()
		report, err := s.runner.Run(ctx, task.Query, path)
		done <- outcome{report: report, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
		release()
	case <-ctx.Done():
		// the runner keeps the local copy until it gives up
		go func() {
			<-done
			release()
		}()
		return nil, timedOut(ctx.Err())
	}

	if ctx.Err() != nil || errors.Is(out.err, context.DeadlineExceeded) {
		cause := out.err
		if cause == nil {
			cause = ctx.Err()
		}
		return nil, timedOut(cause)
	}
	if out.err == nil && out.report == nil {
		return nil, fmt.Errorf("%w: empty report", pipeline.ErrPipeline)
	}
	return out.report, out.err
}

// cleanup runs on every exit from Execute. Failures are logged only.
func (s *Service) cleanup(ctx context.Context, task queue.Task) {
	ctx = context.WithoutCancel(ctx)
	s.docs.Delete(ctx, task.FileRef)
	if task.FileID == nil {
		return
	}
	if err := s.store.MarkFileProcessed(ctx, *task.FileID); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("failed to mark file processed", "file_id", *task.FileID, "error", err)
	}
}

// ErrorKind classifies a job failure for the error_kind column.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrJobTimeout), errors.Is(err, ai.ErrInferenceTimeout):
		return models.ErrorKindTimeout
	case errors.Is(err, pipeline.ErrPipeline):
		return models.ErrorKindPipeline
	default:
		return models.ErrorKindInfrastructure
	}
}
