package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evidence-job-service/internal/entity"
	"evidence-job-service/internal/module"
	"evidence-job-service/internal/service"
)

type fakeQueue struct {
	mu    sync.Mutex
	items []string
	acked []string
}

func (q *fakeQueue) Publish(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, jobID)
	return nil
}

func (q *fakeQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	q.mu.Lock()
	if len(q.items) > 0 {
		id := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return id, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return "", service.ErrQueueEmpty
	}
}

func (q *fakeQueue) Ack(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, jobID)
	return nil
}

func (q *fakeQueue) RequeueStale(ctx context.Context, max int64) (int64, error) {
	return 0, nil
}

func TestPoolConsumesAndAcks(t *testing.T) {
	f := newExecutorFixture(t)
	done := make(chan struct{}, 8)
	f.registry.MustRegister(module.Descriptor{
		Name: "ok",
		Runner: runnerFunc(func(ctx context.Context, req module.Request) (map[string]any, error) {
			done <- struct{}{}
			return map[string]any{"status": "ok"}, nil
		}),
	})

	queue := &fakeQueue{}
	var jobs []*entity.Job
	for i := 0; i < 3; i++ {
		job := f.seedJob(t, "ok", false)
		jobs = append(jobs, job)
		require.NoError(t, queue.Publish(context.Background(), job.ID.String()))
	}
	// Unparseable id must be discarded and acked, not looped on.
	require.NoError(t, queue.Publish(context.Background(), "not-a-uuid"))

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(queue, f.executor(t, time.Hour), 2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	finished := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(finished)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("pool did not execute all jobs in time")
		}
	}

	// Give the workers a beat to ack, then stop.
	require.Eventually(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.acked) == 4
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-finished

	for _, job := range jobs {
		got, err := f.store.Get(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCompleted, got.Status)
	}
	queue.mu.Lock()
	defer queue.mu.Unlock()
	assert.Contains(t, queue.acked, "not-a-uuid")
}
