package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evidence-job-service/internal/entity"
	apperrors "evidence-job-service/internal/errors"
	"evidence-job-service/internal/module"
	"evidence-job-service/internal/repository/memory"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, jobID)
	return nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []uuid.UUID
}

func (f *fakeScheduler) Schedule(jobID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, jobID)
}

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, req module.Request) (map[string]any, error) {
	return map[string]any{"status": "ok"}, nil
}

type dispatcherFixture struct {
	store    *memory.Store
	registry *module.Registry
	queue    *fakePublisher
	inline   *fakeScheduler
	caseID   uuid.UUID
	evID     uuid.UUID
	otherEv  uuid.UUID
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	f := &dispatcherFixture{
		store:    memory.NewStore(),
		registry: module.NewRegistry(),
		queue:    &fakePublisher{},
		inline:   &fakeScheduler{},
		caseID:   uuid.New(),
		evID:     uuid.New(),
		otherEv:  uuid.New(),
	}
	f.registry.MustRegister(module.Descriptor{Name: "verify", RequiresEvidence: true, Runner: noopRunner{}})
	f.registry.MustRegister(module.Descriptor{Name: "report", Runner: noopRunner{}})

	ctx := context.Background()
	otherCase := uuid.New()
	require.NoError(t, f.store.CreateCase(ctx, &entity.Case{ID: f.caseID, Name: "case-1"}))
	require.NoError(t, f.store.CreateCase(ctx, &entity.Case{ID: otherCase, Name: "case-2"}))
	require.NoError(t, f.store.CreateEvidence(ctx, &entity.Evidence{ID: f.evID, CaseID: f.caseID, Filename: "disk.img"}))
	require.NoError(t, f.store.CreateEvidence(ctx, &entity.Evidence{ID: f.otherEv, CaseID: otherCase, Filename: "other.img"}))
	return f
}

func (f *dispatcherFixture) dispatcher(t *testing.T, mode ExecutionMode, withQueue bool) *Dispatcher {
	t.Helper()
	opts := DispatcherOptions{
		Jobs:    f.store,
		Cases:   f.store,
		Modules: f.registry,
		Inline:  f.inline,
		Mode:    mode,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if withQueue {
		opts.Queue = f.queue
	}
	d, err := NewDispatcher(opts)
	require.NoError(t, err)
	return d
}

func TestSubmitInline(t *testing.T) {
	f := newDispatcherFixture(t)
	d := f.dispatcher(t, ModeInline, true)

	job, err := d.Submit(context.Background(), SubmitRequest{
		CaseID:     f.caseID,
		Module:     "verify",
		EvidenceID: &f.evID,
		Actor:      "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, job.Status)
	assert.Equal(t, "inline:"+job.ID.String(), job.DispatchToken)
	assert.Equal(t, []uuid.UUID{job.ID}, f.inline.scheduled)
	assert.Empty(t, f.queue.published)

	// Token survived the write too.
	stored, err := f.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.DispatchToken, stored.DispatchToken)
}

func TestSubmitQueue(t *testing.T) {
	f := newDispatcherFixture(t)
	d := f.dispatcher(t, ModeQueue, true)

	job, err := d.Submit(context.Background(), SubmitRequest{
		CaseID: f.caseID,
		Module: "report",
		Actor:  "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID.String()}, f.queue.published)
	assert.Empty(t, f.inline.scheduled)
	assert.Equal(t, "queue:"+job.ID.String(), job.DispatchToken)
}

func TestSubmitQueueModePublishFailure(t *testing.T) {
	f := newDispatcherFixture(t)
	f.queue.err = errors.New("connection refused")
	d := f.dispatcher(t, ModeQueue, true)

	_, err := d.Submit(context.Background(), SubmitRequest{
		CaseID: f.caseID,
		Module: "report",
		Actor:  "alice",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeQueueUnavailable, apperrors.CodeOf(err))

	// No runnable job may survive a failed strict-queue submission.
	jobs, err := f.store.ListByCase(context.Background(), f.caseID)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Empty(t, f.inline.scheduled)
}

func TestSubmitAutoFallsBackToInline(t *testing.T) {
	f := newDispatcherFixture(t)
	f.queue.err = errors.New("connection refused")
	d := f.dispatcher(t, ModeAuto, true)

	job, err := d.Submit(context.Background(), SubmitRequest{
		CaseID: f.caseID,
		Module: "report",
		Actor:  "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{job.ID}, f.inline.scheduled)
	assert.Equal(t, "inline:"+job.ID.String(), job.DispatchToken)
}

func TestSubmitAutoPrefersQueue(t *testing.T) {
	f := newDispatcherFixture(t)
	d := f.dispatcher(t, ModeAuto, true)

	job, err := d.Submit(context.Background(), SubmitRequest{
		CaseID: f.caseID,
		Module: "report",
		Actor:  "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID.String()}, f.queue.published)
	assert.Empty(t, f.inline.scheduled)
}

func TestSubmitAutoWithoutQueueRunsInline(t *testing.T) {
	f := newDispatcherFixture(t)
	d := f.dispatcher(t, ModeAuto, false)

	job, err := d.Submit(context.Background(), SubmitRequest{
		CaseID: f.caseID,
		Module: "report",
		Actor:  "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{job.ID}, f.inline.scheduled)
}

func TestSubmitUnsupportedModule(t *testing.T) {
	f := newDispatcherFixture(t)
	d := f.dispatcher(t, ModeInline, true)

	_, err := d.Submit(context.Background(), SubmitRequest{
		CaseID: f.caseID,
		Module: "ghost",
		Actor:  "alice",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnsupportedModule, apperrors.CodeOf(err))

	// Rejected before any record was written.
	jobs, _ := f.store.ListByCase(context.Background(), f.caseID)
	assert.Empty(t, jobs)
}

func TestSubmitEvidenceRequired(t *testing.T) {
	f := newDispatcherFixture(t)
	d := f.dispatcher(t, ModeInline, true)

	_, err := d.Submit(context.Background(), SubmitRequest{
		CaseID: f.caseID,
		Module: "verify",
		Actor:  "alice",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeEvidenceRequired, apperrors.CodeOf(err))
}

func TestSubmitUnknownCase(t *testing.T) {
	f := newDispatcherFixture(t)
	d := f.dispatcher(t, ModeInline, true)

	_, err := d.Submit(context.Background(), SubmitRequest{
		CaseID: uuid.New(),
		Module: "report",
		Actor:  "alice",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
}

func TestSubmitEvidenceFromAnotherCase(t *testing.T) {
	f := newDispatcherFixture(t)
	d := f.dispatcher(t, ModeInline, true)

	_, err := d.Submit(context.Background(), SubmitRequest{
		CaseID:     f.caseID,
		Module:     "verify",
		EvidenceID: &f.otherEv,
		Actor:      "alice",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))
}

func TestSubmitInjectsActorAndEvidence(t *testing.T) {
	f := newDispatcherFixture(t)
	d := f.dispatcher(t, ModeInline, true)

	job, err := d.Submit(context.Background(), SubmitRequest{
		CaseID:     f.caseID,
		Module:     "verify",
		EvidenceID: &f.evID,
		Actor:      "alice",
		Params:     map[string]any{"deep_scan": true},
	})
	require.NoError(t, err)

	var params map[string]any
	require.NoError(t, json.Unmarshal(job.Params, &params))
	assert.Equal(t, "alice", params["actor"])
	assert.Equal(t, f.evID.String(), params["evidence_id"])
	assert.Equal(t, true, params["deep_scan"])
}

func TestListByCaseNewestFirst(t *testing.T) {
	f := newDispatcherFixture(t)
	d := f.dispatcher(t, ModeInline, true)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		job := entity.NewJob(f.caseID, nil, "report", nil, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, f.store.Create(context.Background(), job))
	}

	jobs, err := d.ListByCase(context.Background(), f.caseID)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.True(t, jobs[0].CreatedAt.After(jobs[1].CreatedAt))
	assert.True(t, jobs[1].CreatedAt.After(jobs[2].CreatedAt))
}

func TestListByCaseUnknownCase(t *testing.T) {
	f := newDispatcherFixture(t)
	d := f.dispatcher(t, ModeInline, true)

	_, err := d.ListByCase(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
}

func TestModulesCatalog(t *testing.T) {
	f := newDispatcherFixture(t)
	d := f.dispatcher(t, ModeInline, true)

	list := d.Modules()
	require.Len(t, list, 2)
	assert.Equal(t, "report", list[0].Name)
	assert.Equal(t, "verify", list[1].Name)
}
