package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	PendingKey     = "findoc:queue:analysis"
	processingKey  = "findoc:queue:analysis:processing:%s"
	startedKey     = "findoc:queue:stats:started"
	finishedKey    = "findoc:queue:stats:finished"
	failedKey      = "findoc:queue:stats:failed"
	pingTimeout    = 2 * time.Second
	defaultBlockOn = 5 * time.Second
)

// RedisQueue keeps pending tasks in a Redis list. Dequeue atomically moves a
// task into a per-worker processing list, so a task is handed to at most one
// consumer.
type RedisQueue struct {
	client  *redis.Client
	blockOn time.Duration
}

// NewRedisQueue creates a RedisQueue from a Redis URL. blockOn is how long
// Dequeue blocks before returning ErrNoTask; zero selects a default.
func NewRedisQueue(redisURL string, blockOn time.Duration) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if blockOn <= 0 {
		blockOn = defaultBlockOn
	}
	// the blocking pop must not be cut short by the client read timeout
	if opts.ReadTimeout > 0 && opts.ReadTimeout <= blockOn {
		opts.ReadTimeout = blockOn + time.Second
	}
	return &RedisQueue{client: redis.NewClient(opts), blockOn: blockOn}, nil
}

// Resolve pings the broker once and returns a RedisQueue when it answers,
// or Unavailable otherwise.
func Resolve(ctx context.Context, redisURL string, blockOn time.Duration) Queue {
	q, err := NewRedisQueue(redisURL, blockOn)
	if err != nil {
		slog.Warn("queue disabled, invalid redis url", "error", err)
		return Unavailable{}
	}
	if !q.IsAvailable(ctx) {
		q.Close()
		slog.Warn("queue unavailable, falling back to synchronous processing")
		return Unavailable{}
	}
	return q
}

func (q *RedisQueue) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return q.client.Ping(ctx).Err() == nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, task Task) (string, error) {
	if task.Ticket == "" {
		task.Ticket = uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.LPush(ctx, PendingKey, payload).Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return task.Ticket, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, workerID string) (*Delivery, error) {
	raw, err := q.client.BLMove(ctx, PendingKey, fmt.Sprintf(processingKey, workerID), "RIGHT", "LEFT", q.blockOn).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoTask
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	d, err := q.decode(ctx, workerID, raw)
	if err != nil {
		return nil, err
	}
	if err := q.client.Incr(ctx, startedKey).Err(); err != nil {
		slog.Warn("could not bump started counter", "error", err)
	}
	return d, nil
}

// decode parses a raw entry of workerID's processing list. An undecodable
// entry is dropped and counted as failed so it is not redelivered forever.
func (q *RedisQueue) decode(ctx context.Context, workerID, raw string) (*Delivery, error) {
	d := &Delivery{WorkerID: workerID, raw: raw}
	if err := json.Unmarshal([]byte(raw), &d.Task); err != nil {
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, fmt.Sprintf(processingKey, workerID), 1, raw)
		pipe.Incr(ctx, failedKey)
		if _, perr := pipe.Exec(ctx); perr != nil {
			slog.Warn("could not drop undecodable task", "worker_id", workerID, "error", perr)
		}
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return d, nil
}

// Stranded lists what a previous run of workerID left in its processing list,
// oldest first. Those tasks were counted as started and never acked.
func (q *RedisQueue) Stranded(ctx context.Context, workerID string) ([]*Delivery, error) {
	raws, err := q.client.LRange(ctx, fmt.Sprintf(processingKey, workerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var out []*Delivery
	// BLMOVE pushes on the left, so the oldest entry is last
	for i := len(raws) - 1; i >= 0; i-- {
		d, err := q.decode(ctx, workerID, raws[i])
		if err != nil {
			slog.Warn("dropped stranded task", "worker_id", workerID, "error", err)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery, failed bool) error {
	counter := finishedKey
	if failed {
		counter = failedKey
	}
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, fmt.Sprintf(processingKey, d.WorkerID), 1, d.raw)
	pipe.Decr(ctx, startedKey)
	pipe.Incr(ctx, counter)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack task %s: %w", d.Task.Ticket, err)
	}
	return nil
}

func (q *RedisQueue) Status(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, PendingKey)
	started := pipe.Get(ctx, startedKey)
	finished := pipe.Get(ctx, finishedKey)
	failed := pipe.Get(ctx, failedKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return Stats{
		Pending:  pending.Val(),
		Started:  max(counter(started), 0),
		Finished: counter(finished),
		Failed:   counter(failed),
	}, nil
}

func counter(cmd *redis.StringCmd) int64 {
	n, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return n
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
