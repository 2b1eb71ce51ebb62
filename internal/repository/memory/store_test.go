package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evidence-job-service/internal/entity"
	apperrors "evidence-job-service/internal/errors"
)

func seedJob(t *testing.T, s *Store, caseID uuid.UUID, createdAt time.Time) *entity.Job {
	t.Helper()
	job := entity.NewJob(caseID, nil, "report", nil, createdAt)
	require.NoError(t, s.Create(context.Background(), job))
	return job
}

func TestStoreJobLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	job := seedJob(t, s, uuid.New(), time.Now().UTC())

	started := time.Now().UTC()
	require.NoError(t, s.MarkRunning(ctx, job.ID, started))

	completed := started.Add(time.Second)
	require.NoError(t, s.MarkCompleted(ctx, job.ID, []byte(`{"status":"ok"}`), []byte(`{"status":"ok"}`), []string{"a.bin"}, completed))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, got.Status)
	assert.Equal(t, &started, got.StartedAt)
	assert.Equal(t, &completed, got.CompletedAt)
	assert.Equal(t, []string{"a.bin"}, got.OutputFiles)
	assert.Nil(t, got.ErrorMessage)
}

func TestStoreTransitionGuards(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("complete without running", func(t *testing.T) {
		job := seedJob(t, s, uuid.New(), now)
		err := s.MarkCompleted(ctx, job.ID, nil, nil, nil, now)
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeConflict, apperrors.CodeOf(err))
	})

	t.Run("fail without running", func(t *testing.T) {
		job := seedJob(t, s, uuid.New(), now)
		err := s.MarkFailed(ctx, job.ID, "boom", now)
		assert.Equal(t, apperrors.ErrCodeConflict, apperrors.CodeOf(err))
	})

	t.Run("double running", func(t *testing.T) {
		job := seedJob(t, s, uuid.New(), now)
		require.NoError(t, s.MarkRunning(ctx, job.ID, now))
		err := s.MarkRunning(ctx, job.ID, now)
		assert.Equal(t, apperrors.ErrCodeConflict, apperrors.CodeOf(err))
	})

	t.Run("terminal is immutable", func(t *testing.T) {
		job := seedJob(t, s, uuid.New(), now)
		require.NoError(t, s.MarkRunning(ctx, job.ID, now))
		require.NoError(t, s.MarkFailed(ctx, job.ID, "boom", now))
		err := s.MarkCompleted(ctx, job.ID, nil, nil, nil, now)
		assert.Equal(t, apperrors.ErrCodeConflict, apperrors.CodeOf(err))
	})
}

func TestStoreFailedClearsResult(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	job := seedJob(t, s, uuid.New(), now)
	require.NoError(t, s.MarkRunning(ctx, job.ID, now))
	require.NoError(t, s.MarkFailed(ctx, job.ID, "boom", now))

	got, _ := s.Get(ctx, job.ID)
	assert.Equal(t, entity.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "boom", *got.ErrorMessage)
	assert.Nil(t, got.Result)
}

func TestStoreDeleteOnlyPending(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	pending := seedJob(t, s, uuid.New(), now)
	require.NoError(t, s.Delete(ctx, pending.ID))
	_, err := s.Get(ctx, pending.ID)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))

	running := seedJob(t, s, uuid.New(), now)
	require.NoError(t, s.MarkRunning(ctx, running.ID, now))
	err = s.Delete(ctx, running.ID)
	require.Error(t, err)
	_, err = s.Get(ctx, running.ID)
	assert.NoError(t, err)
}

func TestStoreListByCaseOrder(t *testing.T) {
	s := NewStore()
	caseID := uuid.New()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	oldest := seedJob(t, s, caseID, base)
	middle := seedJob(t, s, caseID, base.Add(time.Minute))
	newest := seedJob(t, s, caseID, base.Add(2*time.Minute))
	seedJob(t, s, uuid.New(), base) // another case, must not appear

	jobs, err := s.ListByCase(context.Background(), caseID)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, newest.ID, jobs[0].ID)
	assert.Equal(t, middle.ID, jobs[1].ID)
	assert.Equal(t, oldest.ID, jobs[2].ID)
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	job := seedJob(t, s, uuid.New(), time.Now().UTC())

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	got.Status = entity.StatusFailed
	got.Module = "tampered"

	fresh, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, fresh.Status)
	assert.Equal(t, "report", fresh.Module)
}

func TestStoreCaseAndEvidence(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	caseID, evID := uuid.New(), uuid.New()

	require.NoError(t, s.CreateCase(ctx, &entity.Case{ID: caseID, Name: "case-1"}))
	require.NoError(t, s.CreateEvidence(ctx, &entity.Evidence{ID: evID, CaseID: caseID, Filename: "disk.img"}))

	c, err := s.GetCase(ctx, caseID)
	require.NoError(t, err)
	assert.Equal(t, "case-1", c.Name)

	ev, err := s.GetEvidence(ctx, evID)
	require.NoError(t, err)
	assert.Equal(t, caseID, ev.CaseID)

	_, err = s.GetCase(ctx, uuid.New())
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
	_, err = s.GetEvidence(ctx, uuid.New())
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
}
