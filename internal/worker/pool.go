package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"evidence-job-service/internal/service"
)

// Pool consumes the distributed queue: claim -> execute -> ack. The queue
// backend guarantees at most one active consumer per claimed message; the
// status-guarded job transitions make redundant redeliveries harmless.
type Pool struct {
	queue      service.Queue
	executor   *Executor
	workers    int
	claimDelay time.Duration
	logger     *slog.Logger
}

func NewPool(queue service.Queue, executor *Executor, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:      queue,
		executor:   executor,
		workers:    workers,
		claimDelay: 5 * time.Second,
		logger:     logger,
	}
}

// Run blocks until ctx is done. One listener claims job ids; N workers execute
// them. A job is acked in every case: either it reached a terminal state, or
// it failed before any transition and the reaper will requeue it.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("worker pool started", "workers", p.workers)

	jobCh := make(chan string)

	for i := 0; i < p.workers; i++ {
		go func(n int) {
			log := p.logger.With("worker", n)
			for rawID := range jobCh {
				p.process(ctx, log, rawID)
				if err := p.queue.Ack(ctx, rawID); err != nil {
					log.Error("ack failed", "job_id", rawID, "error", err)
				}
			}
		}(i + 1)
	}

	for {
		select {
		case <-ctx.Done():
			close(jobCh)
			p.logger.Info("worker pool stopped")
			return
		default:
			rawID, err := p.queue.ClaimBlocking(ctx, p.claimDelay)
			if err != nil {
				if !errors.Is(err, service.ErrQueueEmpty) && ctx.Err() == nil {
					p.logger.Warn("claim failed", "error", err)
				}
				continue
			}
			select {
			case jobCh <- rawID:
			case <-ctx.Done():
				close(jobCh)
				return
			}
		}
	}
}

func (p *Pool) process(ctx context.Context, log *slog.Logger, rawID string) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		// Poison message; ack it away rather than looping on it forever.
		log.Error("discarding unparseable job id from queue", "job_id", rawID, "error", err)
		return
	}
	if err := p.executor.Execute(ctx, id); err != nil {
		log.Error("job execution error", "job_id", id, "error", err)
	}
}
