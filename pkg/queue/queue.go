// Package queue implements a durable Redis-backed job queue for recording
// transfer work: waiting list, delayed retries with exponential backoff,
// bounded completed/failed retention, and a stats snapshot.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Job states.
const (
	StateWaiting   = "waiting"
	StateDelayed   = "delayed"
	StateActive    = "active"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// ErrNotFound is returned by GetJob when the job does not exist or has been purged.
var ErrNotFound = errors.New("queue: job not found")

// Job is the queue's job envelope. The queue owns all state transitions;
// callers only observe jobs and report outcomes.
type Job struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	Priority   int             `json:"priority"`
	State      string          `json:"state"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Stats is an eventually consistent snapshot of queue depth.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Total     int64 `json:"total"`
}

// EnqueueOptions control placement of a new job.
type EnqueueOptions struct {
	Priority int           // > 0 jumps ahead of normal jobs
	Delay    time.Duration // > 0 holds the job until the delay elapses
}

// Options tune queue behavior. Zero values fall back to defaults.
type Options struct {
	KeyPrefix     string
	MaxAttempts   int           // total attempts before a job is marked failed
	BackoffBase   time.Duration // first retry delay; doubles per retry
	CompletedKept int           // newest completed jobs retained
	FailedKept    int           // newest failed jobs retained
	Retention     time.Duration // finished jobs older than this are purged
}

func (o Options) withDefaults() Options {
	if o.KeyPrefix == "" {
		o.KeyPrefix = "transfer"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 2 * time.Second
	}
	if o.CompletedKept <= 0 {
		o.CompletedKept = 100
	}
	if o.FailedKept <= 0 {
		o.FailedKept = 50
	}
	if o.Retention <= 0 {
		o.Retention = 24 * time.Hour
	}
	return o
}

// BackoffDelay returns the delay before the next attempt after `attempt`
// failed attempts: base, 2*base, 4*base, ...
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Queue is a durable job queue on Redis.
type Queue struct {
	client redis.Cmdable
	opts   Options
	logger *zap.Logger
}

// New creates a queue. Enqueued jobs are durable in Redis before Enqueue returns.
func New(client redis.Cmdable, opts Options, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, opts: opts.withDefaults(), logger: logger}
}

func (q *Queue) keyWaiting() string   { return q.opts.KeyPrefix + ":waiting" }
func (q *Queue) keyActive() string    { return q.opts.KeyPrefix + ":active" }
func (q *Queue) keyDelayed() string   { return q.opts.KeyPrefix + ":delayed" }
func (q *Queue) keyCompleted() string { return q.opts.KeyPrefix + ":completed" }
func (q *Queue) keyFailed() string    { return q.opts.KeyPrefix + ":failed" }
func (q *Queue) keyJob(id string) string {
	return fmt.Sprintf("%s:job:%s", q.opts.KeyPrefix, id)
}

// Enqueue persists a job and places it on the waiting list (or the delayed set
// when opts.Delay > 0). The returned job carries the queue-assigned ID.
func (q *Queue) Enqueue(ctx context.Context, payload interface{}, opts EnqueueOptions) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	job := &Job{
		ID:         uuid.New().String(),
		Payload:    body,
		Attempt:    0,
		Priority:   opts.Priority,
		State:      StateWaiting,
		EnqueuedAt: time.Now().UTC(),
	}
	if opts.Delay > 0 {
		job.State = StateDelayed
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.keyJob(job.ID), map[string]interface{}{
		"payload":     string(body),
		"attempt":     job.Attempt,
		"priority":    job.Priority,
		"state":       job.State,
		"enqueued_at": job.EnqueuedAt.Format(time.RFC3339Nano),
	})
	switch {
	case opts.Delay > 0:
		pipe.ZAdd(ctx, q.keyDelayed(), redis.Z{
			Score:  float64(time.Now().Add(opts.Delay).UnixMilli()),
			Member: job.ID,
		})
	case opts.Priority > 0:
		pipe.RPush(ctx, q.keyWaiting(), job.ID)
	default:
		pipe.LPush(ctx, q.keyWaiting(), job.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	q.logger.Debug("job enqueued",
		zap.String("job_id", job.ID),
		zap.Int("priority", job.Priority),
		zap.Duration("delay", opts.Delay),
	)
	return job, nil
}

// Dequeue blocks until a job is ready or ctx is done. The job is moved to the
// active list and its attempt counter incremented. Returns (nil, nil) on a
// poll timeout so callers can re-check their context.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	id, err := q.client.BLMove(ctx, q.keyWaiting(), q.keyActive(), "RIGHT", "LEFT", 2*time.Second).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	pipe := q.client.TxPipeline()
	attempt := pipe.HIncrBy(ctx, q.keyJob(id), "attempt", 1)
	pipe.HSet(ctx, q.keyJob(id), "state", StateActive)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("activate job %s: %w", id, err)
	}

	job, err := q.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Job hash was purged while the ID lingered on a list; drop it.
			q.client.LRem(ctx, q.keyActive(), 1, id)
			return nil, nil
		}
		return nil, err
	}
	job.Attempt = int(attempt.Val())
	job.State = StateActive
	return job, nil
}

// Complete records the job's result payload and moves it to the bounded
// completed set.
func (q *Queue) Complete(ctx context.Context, job *Job, result json.RawMessage) error {
	now := time.Now().UTC()
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.keyActive(), 1, job.ID)
	pipe.HSet(ctx, q.keyJob(job.ID), map[string]interface{}{
		"state":       StateCompleted,
		"result":      string(result),
		"finished_at": now.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, q.keyJob(job.ID), q.opts.Retention)
	pipe.LPush(ctx, q.keyCompleted(), job.ID)
	pipe.LTrim(ctx, q.keyCompleted(), 0, int64(q.opts.CompletedKept-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	q.logger.Info("job completed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// Fail handles a processing failure. Attempts below the cap are rescheduled on
// the delayed set with exponential backoff; exhausted jobs land in the bounded
// failed set for later inspection.
func (q *Queue) Fail(ctx context.Context, job *Job, errMsg string) error {
	if job.Attempt >= q.opts.MaxAttempts {
		return q.Discard(ctx, job, errMsg)
	}

	delay := BackoffDelay(q.opts.BackoffBase, job.Attempt)
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.keyActive(), 1, job.ID)
	pipe.HSet(ctx, q.keyJob(job.ID), map[string]interface{}{
		"state": StateDelayed,
		"error": errMsg,
	})
	pipe.ZAdd(ctx, q.keyDelayed(), redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reschedule job %s: %w", job.ID, err)
	}
	q.logger.Info("job rescheduled",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
		zap.Duration("delay", delay),
	)
	return nil
}

// Discard marks a job permanently failed without further retries, regardless
// of remaining attempts. Used for failures that retrying cannot fix, such as
// malformed payloads.
func (q *Queue) Discard(ctx context.Context, job *Job, errMsg string) error {
	now := time.Now().UTC()
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.keyActive(), 1, job.ID)
	pipe.HSet(ctx, q.keyJob(job.ID), map[string]interface{}{
		"state":       StateFailed,
		"error":       errMsg,
		"finished_at": now.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, q.keyJob(job.ID), q.opts.Retention)
	pipe.LPush(ctx, q.keyFailed(), job.ID)
	pipe.LTrim(ctx, q.keyFailed(), 0, int64(q.opts.FailedKept-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	q.logger.Warn("job failed permanently",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
		zap.String("error", errMsg),
	)
	return nil
}

// GetJob loads a job by ID.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	fields, err := q.client.HGetAll(ctx, q.keyJob(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	job := &Job{ID: id, Payload: json.RawMessage(fields["payload"]), State: fields["state"], Error: fields["error"]}
	job.Attempt, _ = strconv.Atoi(fields["attempt"])
	job.Priority, _ = strconv.Atoi(fields["priority"])
	if v := fields["enqueued_at"]; v != "" {
		job.EnqueuedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v := fields["finished_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.FinishedAt = &t
		}
	}
	if v := fields["result"]; v != "" {
		job.Result = json.RawMessage(v)
	}
	return job, nil
}

// Stats returns a snapshot of queue depth. Waiting includes delayed jobs.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.LLen(ctx, q.keyWaiting())
	delayed := pipe.ZCard(ctx, q.keyDelayed())
	active := pipe.LLen(ctx, q.keyActive())
	completed := pipe.LLen(ctx, q.keyCompleted())
	failed := pipe.LLen(ctx, q.keyFailed())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	s := &Stats{
		Waiting:   waiting.Val() + delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}
	s.Total = s.Waiting + s.Active + s.Completed + s.Failed
	return s, nil
}

// PromoteDelayed moves due jobs from the delayed set to the waiting list.
// Returns the number of jobs promoted.
func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.client.ZRangeByScore(ctx, q.keyDelayed(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.keyDelayed(), id).Result()
		if err != nil || removed == 0 {
			continue // another promoter won the race
		}
		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, q.keyJob(id), "state", StateWaiting)
		pipe.LPush(ctx, q.keyWaiting(), id)
		if _, err := pipe.Exec(ctx); err != nil {
			q.logger.Error("promote delayed job failed", zap.Error(err), zap.String("job_id", id))
			continue
		}
		promoted++
	}
	return promoted, nil
}

// Cleanup drops completed/failed list entries whose job hash has expired
// (finished longer ago than the retention window).
func (q *Queue) Cleanup(ctx context.Context) error {
	for _, key := range []string{q.keyCompleted(), q.keyFailed()} {
		ids, err := q.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("cleanup range %s: %w", key, err)
		}
		for _, id := range ids {
			exists, err := q.client.Exists(ctx, q.keyJob(id)).Result()
			if err != nil {
				return err
			}
			if exists == 0 {
				q.client.LRem(ctx, key, 0, id)
			}
		}
	}
	return nil
}

// RunMaintenance drives delayed-job promotion and retention cleanup until ctx
// is cancelled. Run it once per process next to the worker pool.
func (q *Queue) RunMaintenance(ctx context.Context) {
	promote := time.NewTicker(time.Second)
	defer promote.Stop()
	cleanup := time.NewTicker(10 * time.Minute)
	defer cleanup.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-promote.C:
			if _, err := q.PromoteDelayed(ctx); err != nil && ctx.Err() == nil {
				q.logger.Warn("promote delayed jobs failed", zap.Error(err))
			}
		case <-cleanup.C:
			if err := q.Cleanup(ctx); err != nil && ctx.Err() == nil {
				q.logger.Warn("queue cleanup failed", zap.Error(err))
			}
		}
	}
}
