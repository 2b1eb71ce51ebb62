package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// InlineRunner executes jobs in-process when no queue backend is in play.
// Each job gets its own goroutine behind a bounded semaphore; a crashed run is
// logged rather than silently lost, and the executor's own deadline bounds the
// wall clock.
type InlineRunner struct {
	executor *Executor
	sem      *semaphore.Weighted
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewInlineRunner(executor *Executor, maxConcurrent int, logger *slog.Logger) *InlineRunner {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InlineRunner{
		executor: executor,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		logger:   logger,
	}
}

// Schedule fires off one execution and returns immediately. The caller
// observes the job by polling its persisted record.
func (r *InlineRunner) Schedule(jobID uuid.UUID) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("inline worker panic", "job_id", jobID, "panic", rec)
			}
		}()

		// Detached from the submitting request on purpose: the job must not
		// die with the caller's context.
		ctx := context.Background()
		if err := r.sem.Acquire(ctx, 1); err != nil {
			r.logger.Error("inline slot acquire failed", "job_id", jobID, "error", err)
			return
		}
		defer r.sem.Release(1)

		if err := r.executor.Execute(ctx, jobID); err != nil {
			r.logger.Error("inline job execution failed", "job_id", jobID, "error", err)
		}
	}()
}

// Wait blocks until every scheduled job has finished. Used on shutdown and by
// tests.
func (r *InlineRunner) Wait() {
	r.wg.Wait()
}
