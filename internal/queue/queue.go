// Package queue dispatches analysis jobs to worker processes through Redis.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoTask is returned by Dequeue when the blocking window elapsed
	// without a task. Callers loop and re-check their context.
	ErrNoTask      = errors.New("no task available")
	ErrUnavailable = errors.New("queue unavailable")
)

// Task is the invocation descriptor handed from the API to a worker.
type Task struct {
	Ticket     string        `json:"ticket"`
	AnalysisID int64         `json:"analysis_id"`
	Query      string        `json:"query"`
	FileRef    string        `json:"file_ref"`
	FileID     *int64        `json:"file_id,omitempty"`
	Timeout    time.Duration `json:"timeout"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// Delivery is a dequeued task held in a worker's processing list until acked.
type Delivery struct {
	Task     Task
	WorkerID string
	raw      string
}

type Stats struct {
	Pending  int64 `json:"pending"`
	Started  int64 `json:"started"`
	Failed   int64 `json:"failed"`
	Finished int64 `json:"finished"`
}

// Queue is the broker contract. IsAvailable must be consulted before every
// Enqueue since the broker is optional.
type Queue interface {
	Enqueue(ctx context.Context, task Task) (string, error)
	IsAvailable(ctx context.Context) bool
	Status(ctx context.Context) (Stats, error)
	Dequeue(ctx context.Context, workerID string) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery, failed bool) error
	// Stranded returns the deliveries an earlier run of workerID dequeued but
	// never acked. Each one must still be acked by the caller.
	Stranded(ctx context.Context, workerID string) ([]*Delivery, error)
}

// Unavailable is the Queue used when no broker could be reached at startup.
// Every submission then runs on the synchronous path.
type Unavailable struct{}

func (Unavailable) Enqueue(context.Context, Task) (string, error) { return "", ErrUnavailable }
func (Unavailable) IsAvailable(context.Context) bool              { return false }
func (Unavailable) Status(context.Context) (Stats, error)         { return Stats{}, ErrUnavailable }
func (Unavailable) Dequeue(context.Context, string) (*Delivery, error) {
	return nil, ErrUnavailable
}
func (Unavailable) Ack(context.Context, *Delivery, bool) error { return nil }
func (Unavailable) Stranded(context.Context, string) ([]*Delivery, error) {
	return nil, ErrUnavailable
}

var (
	_ Queue = Unavailable{}
	_ Queue = (*RedisQueue)(nil)
)
