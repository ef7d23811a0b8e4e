package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nimbusmeet/backend/internal/models"
	"github.com/nimbusmeet/backend/internal/transfer"
	"github.com/nimbusmeet/backend/pkg/queue"
)

// JobSource is the queue surface the pool needs. *queue.Queue implements it.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Complete(ctx context.Context, job *queue.Job, result json.RawMessage) error
	Fail(ctx context.Context, job *queue.Job, errMsg string) error
	Discard(ctx context.Context, job *queue.Job, errMsg string) error
}

// JobProcessor turns one job payload into a result. *Processor implements it.
type JobProcessor interface {
	Process(ctx context.Context, payload models.TransferJobPayload) (*models.JobResult, error)
}

// Pool pulls jobs from the queue with a fixed number of workers. Shutdown is
// graceful: cancelling ctx stops intake and lets in-flight jobs finish (or hit
// their own per-file timeouts).
type Pool struct {
	source      JobSource
	processor   JobProcessor
	concurrency int
	logger      *zap.Logger
}

// NewPool creates a worker pool.
func NewPool(source JobSource, processor JobProcessor, concurrency int, logger *zap.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{source: source, processor: processor, concurrency: concurrency, logger: logger}
}

// Run blocks until ctx is cancelled and every worker has drained.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	wg.Wait()
	p.logger.Info("worker pool drained")
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	log := p.logger.With(zap.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("dequeue error", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		p.handle(ctx, job, log)
	}
}

// handle runs one job to a terminal report. Every path reports back to the
// queue; nothing escapes uncaught.
func (p *Pool) handle(ctx context.Context, job *queue.Job, log *zap.Logger) {
	log = log.With(zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	log.Debug("processing job")

	// Shutdown stops intake only: an active job runs to completion (bounded
	// by its per-file timeouts) and still hands its verdict back to the queue.
	jobCtx := context.WithoutCancel(ctx)
	reportCtx := jobCtx

	// A panic anywhere below must still produce a terminal report; otherwise
	// the job's ID strands on the active list and the worker dies with it.
	defer func() {
		if r := recover(); r != nil {
			log.Error("job handler panic", zap.Any("panic", r))
			if fErr := p.source.Fail(reportCtx, job, fmt.Sprintf("job handler panic: %v", r)); fErr != nil {
				log.Error("fail report failed", zap.Error(fErr))
			}
		}
	}()

	var payload models.TransferJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		log.Error("malformed job payload", zap.Error(err))
		if dErr := p.source.Discard(reportCtx, job, "malformed payload: "+err.Error()); dErr != nil {
			log.Error("discard failed", zap.Error(dErr))
		}
		return
	}

	result, err := p.processor.Process(jobCtx, payload)
	if err != nil {
		// Validation failures gain nothing from retrying; everything else
		// goes through the queue's backoff cycle.
		if transfer.KindOf(err) == transfer.KindValidation {
			if dErr := p.source.Discard(reportCtx, job, err.Error()); dErr != nil {
				log.Error("discard failed", zap.Error(dErr))
			}
			return
		}
		log.Error("job processing failed", zap.Error(err))
		if fErr := p.source.Fail(reportCtx, job, err.Error()); fErr != nil {
			log.Error("fail report failed", zap.Error(fErr))
		}
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		log.Error("marshal job result", zap.Error(err))
		raw = []byte(`{}`)
	}
	if cErr := p.source.Complete(reportCtx, job, raw); cErr != nil {
		log.Error("complete report failed", zap.Error(cErr))
	}
}
