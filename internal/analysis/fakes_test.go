package analysis_test

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/findoc/internal/pipeline"
	"github.com/kiranshivaraju/findoc/internal/queue"
)

// --- queue ---

type fakeQueue struct {
	available  bool
	enqueueErr error
	tasks      []queue.Task
}

func (q *fakeQueue) Enqueue(_ context.Context, t queue.Task) (string, error) {
	if q.enqueueErr != nil {
		return "", q.enqueueErr
	}
	t.Ticket = fmt.Sprintf("ticket-%d", len(q.tasks)+1)
	q.tasks = append(q.tasks, t)
	return t.Ticket, nil
}
func (q *fakeQueue) IsAvailable(context.Context) bool { return q.available }
func (q *fakeQueue) Status(context.Context) (queue.Stats, error) {
	return queue.Stats{Pending: int64(len(q.tasks))}, nil
}
func (q *fakeQueue) Dequeue(context.Context, string) (*queue.Delivery, error) {
	return nil, queue.ErrNoTask
}
func (q *fakeQueue) Ack(context.Context, *queue.Delivery, bool) error { return nil }
func (q *fakeQueue) Stranded(context.Context, string) ([]*queue.Delivery, error) {
	return nil, nil
}

// --- runner ---

type runnerFunc func(ctx context.Context, query, path string) (*pipeline.Report, error)

func (f runnerFunc) Run(ctx context.Context, query, path string) (*pipeline.Report, error) {
	return f(ctx, query, path)
}

func okReport(query string) *pipeline.Report {
	return &pipeline.Report{
		Query:      query,
		Components: []string{"a", "b", "c", "d"},
		Stages:     []pipeline.StageOutput{{Task: "risk_assessment", Output: "final answer"}},
		Provider:   "mock",
	}
}
