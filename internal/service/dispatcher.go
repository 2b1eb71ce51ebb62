package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"evidence-job-service/internal/entity"
	apperrors "evidence-job-service/internal/errors"
	"evidence-job-service/internal/module"
)

// JobStore is the dispatcher's port onto job persistence
// (implementations: postgresql.JobRepository, memory.Store).
type JobStore interface {
	Create(ctx context.Context, job *entity.Job) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*entity.Job, error)
	SetDispatchToken(ctx context.Context, id uuid.UUID, token string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CaseStore resolves cases and evidence for submission validation.
type CaseStore interface {
	GetCase(ctx context.Context, id uuid.UUID) (*entity.Case, error)
	GetEvidence(ctx context.Context, id uuid.UUID) (*entity.Evidence, error)
}

// Publisher pushes a job reference onto the distributed queue.
type Publisher interface {
	Publish(ctx context.Context, jobID string) error
}

// InlineScheduler schedules concurrent in-process execution and returns
// immediately; the caller observes the job via polling.
type InlineScheduler interface {
	Schedule(jobID uuid.UUID)
}

// ModuleCatalog is the read side of the module registry.
type ModuleCatalog interface {
	Resolve(name string) (module.Descriptor, error)
	List() []module.Descriptor
}

// Dispatcher validates submissions, persists the PENDING job and hands it to
// either the queue or the inline runner. It owns no module logic and never
// blocks on completion.
type Dispatcher struct {
	jobs    JobStore
	cases   CaseStore
	modules ModuleCatalog
	queue   Publisher // nil when no queue backend is configured
	inline  InlineScheduler
	mode    ExecutionMode
	logger  *slog.Logger
	now     func() time.Time
}

type DispatcherOptions struct {
	Jobs    JobStore
	Cases   CaseStore
	Modules ModuleCatalog
	Queue   Publisher
	Inline  InlineScheduler
	Mode    ExecutionMode
	Logger  *slog.Logger
	Now     func() time.Time // test seam, defaults to time.Now
}

func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Jobs == nil || opts.Cases == nil || opts.Modules == nil || opts.Inline == nil {
		return nil, fmt.Errorf("dispatcher: jobs, cases, modules and inline scheduler are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeAuto
	}
	return &Dispatcher{
		jobs:    opts.Jobs,
		cases:   opts.Cases,
		modules: opts.Modules,
		queue:   opts.Queue,
		inline:  opts.Inline,
		mode:    mode,
		logger:  opts.Logger,
		now:     opts.Now,
	}, nil
}

// SubmitRequest is one job submission. Params is opaque; the dispatcher
// injects the acting identity and, when present, the evidence reference.
type SubmitRequest struct {
	CaseID     uuid.UUID
	Module     string
	EvidenceID *uuid.UUID
	Actor      string
	Params     map[string]any
}

// Submit validates the request, persists a PENDING job and dispatches it.
// Validation failures return before any job exists. Submit returns as soon as
// the job is durably recorded and either published or scheduled.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (*entity.Job, error) {
	desc, err := d.modules.Resolve(req.Module)
	if err != nil {
		return nil, err
	}
	if desc.RequiresEvidence && req.EvidenceID == nil {
		return nil, apperrors.EvidenceRequired(req.Module)
	}

	if _, err := d.cases.GetCase(ctx, req.CaseID); err != nil {
		return nil, err
	}
	if req.EvidenceID != nil {
		ev, err := d.cases.GetEvidence(ctx, *req.EvidenceID)
		if err != nil {
			return nil, err
		}
		if ev.CaseID != req.CaseID {
			return nil, apperrors.Validation("evidence does not belong to the selected case")
		}
	}

	params := make(map[string]any, len(req.Params)+2)
	for k, v := range req.Params {
		params[k] = v
	}
	params["actor"] = req.Actor
	if req.EvidenceID != nil {
		params["evidence_id"] = req.EvidenceID.String()
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, apperrors.Validation("params are not serializable")
	}

	job := entity.NewJob(req.CaseID, req.EvidenceID, req.Module, rawParams, d.now().UTC())
	if err := d.jobs.Create(ctx, job); err != nil {
		return nil, apperrors.Internal("persist job", err)
	}

	return d.dispatch(ctx, job)
}

func (d *Dispatcher) dispatch(ctx context.Context, job *entity.Job) (*entity.Job, error) {
	mode := d.mode
	if d.queue == nil && mode == ModeAuto {
		mode = ModeInline
	}

	switch mode {
	case ModeInline:
		return d.dispatchInline(ctx, job)

	case ModeQueue:
		if d.queue == nil {
			return d.rollback(ctx, job, fmt.Errorf("no queue backend configured"))
		}
		if err := d.queue.Publish(ctx, job.ID.String()); err != nil {
			return d.rollback(ctx, job, err)
		}
		d.annotate(ctx, job, "queue:"+job.ID.String())
		return job, nil

	default: // auto
		if err := d.queue.Publish(ctx, job.ID.String()); err != nil {
			d.logger.WarnContext(ctx, "queue unavailable, falling back to inline execution",
				"job_id", job.ID, "error", err)
			return d.dispatchInline(ctx, job)
		}
		d.annotate(ctx, job, "queue:"+job.ID.String())
		return job, nil
	}
}

func (d *Dispatcher) dispatchInline(ctx context.Context, job *entity.Job) (*entity.Job, error) {
	d.annotate(ctx, job, "inline:"+job.ID.String())
	d.inline.Schedule(job.ID)
	return job, nil
}

// rollback removes a job whose queue-mode publish failed: the caller gets a
// submission error and no record that implies the job will ever run.
func (d *Dispatcher) rollback(ctx context.Context, job *entity.Job, cause error) (*entity.Job, error) {
	if err := d.jobs.Delete(ctx, job.ID); err != nil {
		d.logger.ErrorContext(ctx, "failed to roll back unpublishable job",
			"job_id", job.ID, "error", err)
	}
	return nil, apperrors.QueueUnavailable(cause)
}

// annotate records the dispatch token. Diagnostics only, so a write failure is
// logged and ignored.
func (d *Dispatcher) annotate(ctx context.Context, job *entity.Job, token string) {
	job.DispatchToken = token
	if err := d.jobs.SetDispatchToken(ctx, job.ID, token); err != nil {
		d.logger.WarnContext(ctx, "failed to record dispatch token",
			"job_id", job.ID, "token", token, "error", err)
	}
}

// Get serves the status boundary: an idempotent read of the latest durably
// committed transition.
func (d *Dispatcher) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return d.jobs.Get(ctx, id)
}

// ListByCase serves the listing boundary, newest first by creation time.
func (d *Dispatcher) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*entity.Job, error) {
	if _, err := d.cases.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	return d.jobs.ListByCase(ctx, caseID)
}

// Modules exposes the registry catalog for display, ordered by name.
func (d *Dispatcher) Modules() []module.Descriptor {
	return d.modules.List()
}
