package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/findoc/internal/queue"
	"github.com/kiranshivaraju/findoc/internal/worker"
	"github.com/kiranshivaraju/findoc/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanQueue hands out tasks from a channel and records acks.
type chanQueue struct {
	tasks chan queue.Task

	mu       sync.Mutex
	stranded map[string][]*queue.Delivery
	acked   map[int64]bool // analysis id -> failed
	workers map[string]bool
}

func newChanQueue(tasks ...queue.Task) *chanQueue {
	q := &chanQueue{tasks: make(chan queue.Task, len(tasks)), acked: map[int64]bool{}, workers: map[string]bool{}}
	for _, t := range tasks {
		q.tasks <- t
	}
	return q
}

func (q *chanQueue) Enqueue(context.Context, queue.Task) (string, error) { return "", nil }
func (q *chanQueue) IsAvailable(context.Context) bool                   { return true }
func (q *chanQueue) Status(context.Context) (queue.Stats, error)         { return queue.Stats{}, nil }

func (q *chanQueue) Dequeue(ctx context.Context, workerID string) (*queue.Delivery, error) {
	q.mu.Lock()
	q.workers[workerID] = true
	q.mu.Unlock()
	select {
	case t := <-q.tasks:
		return &queue.Delivery{Task: t, WorkerID: workerID}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(20 * time.Millisecond):
		return nil, queue.ErrNoTask
	}
}

func (q *chanQueue) Ack(_ context.Context, d *queue.Delivery, failed bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked[d.Task.AnalysisID] = failed
	return nil
}

func (q *chanQueue) Stranded(_ context.Context, workerID string) ([]*queue.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ds := q.stranded[workerID]
	delete(q.stranded, workerID)
	return ds, nil
}

func (q *chanQueue) ackCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.acked)
}

type execFunc func(ctx context.Context, task queue.Task) (*models.Analysis, error)

func (f execFunc) Execute(ctx context.Context, task queue.Task) (*models.Analysis, error) {
	return f(ctx, task)
}

func (f execFunc) Abandon(_ context.Context, task queue.Task, _ string) (*models.Analysis, error) {
	return &models.Analysis{ID: task.AnalysisID, Status: models.JobStatusFailed}, nil
}

func runPool(t *testing.T, p *worker.Pool) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("worker pool did not stop")
			return nil
		}
	}
}

func TestPool_ExecutesAndAcks(t *testing.T) {
	q := newChanQueue(queue.Task{AnalysisID: 1}, queue.Task{AnalysisID: 2}, queue.Task{AnalysisID: 3})
	exec := execFunc(func(_ context.Context, task queue.Task) (*models.Analysis, error) {
		if task.AnalysisID == 2 {
			return &models.Analysis{ID: 2, Status: models.JobStatusFailed}, errors.New("pipeline failed")
		}
		return &models.Analysis{ID: task.AnalysisID, Status: models.JobStatusCompleted}, nil
	})

	stop := runPool(t, worker.New(q, exec, 2, "test"))
	require.Eventually(t, func() bool { return q.ackCount() == 3 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	assert.False(t, q.acked[1])
	assert.True(t, q.acked[2])
	assert.False(t, q.acked[3])
}

func TestPool_StartsConfiguredConsumers(t *testing.T) {
	q := newChanQueue()
	exec := execFunc(func(context.Context, queue.Task) (*models.Analysis, error) { return nil, nil })

	stop := runPool(t, worker.New(q, exec, 3, "replica"))
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.workers) == 3
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	for _, id := range []string{"replica-1", "replica-2", "replica-3"} {
		assert.True(t, q.workers[id], id)
	}
}

func TestPool_InFlightJobSurvivesShutdown(t *testing.T) {
	q := newChanQueue(queue.Task{AnalysisID: 1})
	started := make(chan struct{})
	release := make(chan struct{})
	var execCtxErr error
	exec := execFunc(func(ctx context.Context, task queue.Task) (*models.Analysis, error) {
		close(started)
		<-release
		execCtxErr = ctx.Err()
		return &models.Analysis{ID: task.AnalysisID, Status: models.JobStatusCompleted}, nil
	})

	stop := runPool(t, worker.New(q, exec, 1, "test"))
	<-started

	stopped := make(chan error, 1)
	go func() { stopped <- stop() }()
	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, <-stopped)
	assert.NoError(t, execCtxErr)
	assert.Equal(t, 1, q.ackCount())
}

func TestPool_RetriesAfterBrokerError(t *testing.T) {
	var calls int
	var mu sync.Mutex
	q := &flakyQueue{chanQueue: newChanQueue(queue.Task{AnalysisID: 9}), failFirst: true, calls: &calls, mu: &mu}
	exec := execFunc(func(_ context.Context, task queue.Task) (*models.Analysis, error) {
		return &models.Analysis{ID: task.AnalysisID, Status: models.JobStatusCompleted}, nil
	})

	stop := runPool(t, worker.New(q, exec, 1, "test"))
	require.Eventually(t, func() bool { return q.ackCount() == 1 }, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, stop())
}

type flakyQueue struct {
	*chanQueue
	failFirst bool
	calls     *int
	mu        *sync.Mutex
}

func (q *flakyQueue) Dequeue(ctx context.Context, workerID string) (*queue.Delivery, error) {
	q.mu.Lock()
	*q.calls++
	first := *q.calls == 1
	q.mu.Unlock()
	if first && q.failFirst {
		return nil, queue.ErrUnavailable
	}
	return q.chanQueue.Dequeue(ctx, workerID)
}

// abandonRecorder fails every abandoned task and records the reason given.
type abandonRecorder struct {
	execFunc

	mu      sync.Mutex
	reasons map[int64]string
}

func (r *abandonRecorder) Abandon(_ context.Context, task queue.Task, reason string) (*models.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons[task.AnalysisID] = reason
	if task.AnalysisID == 3 {
		return &models.Analysis{ID: 3, Status: models.JobStatusCompleted}, nil
	}
	return &models.Analysis{ID: task.AnalysisID, Status: models.JobStatusFailed}, nil
}

func TestPool_StrandedJobsFailedBeforeConsuming(t *testing.T) {
	q := newChanQueue(queue.Task{AnalysisID: 7})
	q.stranded = map[string][]*queue.Delivery{
		"replica-1": {
			{Task: queue.Task{AnalysisID: 1}, WorkerID: "replica-1"},
			{Task: queue.Task{AnalysisID: 3}, WorkerID: "replica-1"},
		},
		"other-1": {{Task: queue.Task{AnalysisID: 2}, WorkerID: "other-1"}},
	}
	exec := &abandonRecorder{
		execFunc: func(_ context.Context, task queue.Task) (*models.Analysis, error) {
			return &models.Analysis{ID: task.AnalysisID, Status: models.JobStatusCompleted}, nil
		},
		reasons: map[int64]string{},
	}

	stop := runPool(t, worker.New(q, exec, 1, "replica"))
	require.Eventually(t, func() bool { return q.ackCount() == 3 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	assert.True(t, q.acked[1], "stranded job acked as failed")
	assert.False(t, q.acked[3], "job that had already completed acked as finished")
	assert.False(t, q.acked[7])
	assert.NotContains(t, q.acked, int64(2), "another consumer's list is left alone")
	assert.Contains(t, exec.reasons[1], "worker stopped")
	assert.Len(t, exec.reasons, 2)
}
