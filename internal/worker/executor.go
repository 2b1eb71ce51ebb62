package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"evidence-job-service/internal/custody"
	"evidence-job-service/internal/entity"
	apperrors "evidence-job-service/internal/errors"
	"evidence-job-service/internal/module"
)

// JobStore is the worker's port onto job persistence.
type JobStore interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	MarkCompleted(ctx context.Context, id uuid.UUID, result, preview json.RawMessage, outputFiles []string, completedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, completedAt time.Time) error
}

// EvidenceStore resolves the evidence item a job targets.
type EvidenceStore interface {
	GetEvidence(ctx context.Context, id uuid.UUID) (*entity.Evidence, error)
}

// Catalog is the read side of the module registry.
type Catalog interface {
	Resolve(name string) (module.Descriptor, error)
}

// Executor runs one job to a terminal state. Module failures never escape it;
// they end up as a FAILED job with a sanitized error message.
type Executor struct {
	jobs     JobStore
	evidence EvidenceStore
	modules  Catalog
	custody  custody.Recorder // optional
	vaultDir string
	timeout  time.Duration // wall-clock budget per run, 0 = unbounded
	logger   *slog.Logger
	now      func() time.Time
}

type ExecutorOptions struct {
	Jobs     JobStore
	Evidence EvidenceStore
	Modules  Catalog
	Custody  custody.Recorder
	VaultDir string
	Timeout  time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Jobs == nil || opts.Evidence == nil || opts.Modules == nil {
		return nil, fmt.Errorf("executor: jobs, evidence and modules are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Executor{
		jobs:     opts.Jobs,
		evidence: opts.Evidence,
		modules:  opts.Modules,
		custody:  opts.Custody,
		vaultDir: opts.VaultDir,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		now:      opts.Now,
	}, nil
}

// ArtifactRoot is where a case's artifacts live; every output_files entry is
// relative to it.
func ArtifactRoot(vaultDir string, caseID uuid.UUID) string {
	return filepath.Join(vaultDir, caseID.String(), "artifacts")
}

// Execute loads the job, moves it to RUNNING, invokes the capability and
// persists the terminal transition. An absent job is a no-op. Only persistence
// failures are returned; execution failures are communicated through the job.
func (e *Executor) Execute(ctx context.Context, jobID uuid.UUID) error {
	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
			e.logger.DebugContext(ctx, "job vanished before execution", "job_id", jobID)
			return nil
		}
		return err
	}

	if err := e.jobs.MarkRunning(ctx, job.ID, e.now().UTC()); err != nil {
		// Duplicate queue delivery lands here: the transition guard refuses
		// and the redundant message is simply dropped by the caller's Ack.
		return err
	}

	start := e.now().UTC()
	actor, result, runErr := e.run(ctx, job)
	completedAt := e.now().UTC()

	if runErr != nil {
		msg := Sanitize(runErr.Error())
		if err := e.jobs.MarkFailed(ctx, job.ID, msg, completedAt); err != nil {
			// Accepted limitation: the job may be left stale for external
			// reconciliation rather than risking double execution.
			e.logger.ErrorContext(ctx, "failed to persist FAILED transition",
				"job_id", job.ID, "error", err)
			return err
		}
		e.logger.InfoContext(ctx, "job failed",
			"job_id", job.ID, "module", job.Module,
			"duration_ms", completedAt.Sub(start).Milliseconds(), "error", msg)
		e.recordCustody(ctx, job, actor, "job.failed", map[string]any{
			"job_id":      job.ID.String(),
			"module":      job.Module,
			"evidence_id": evidenceRef(job),
			"error":       msg,
		})
		return nil
	}

	artifactRoot := ArtifactRoot(e.vaultDir, job.CaseID)
	outputFiles := ExtractOutputFiles(result, artifactRoot, e.logger)
	preview := Preview(result)

	rawResult, err := json.Marshal(result)
	if err != nil {
		return e.failMalformed(ctx, job, actor, completedAt, fmt.Errorf("module returned unserializable result: %w", err))
	}
	rawPreview, err := json.Marshal(preview)
	if err != nil {
		return e.failMalformed(ctx, job, actor, completedAt, fmt.Errorf("result preview not serializable: %w", err))
	}

	if err := e.jobs.MarkCompleted(ctx, job.ID, rawResult, rawPreview, outputFiles, completedAt); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist COMPLETED transition",
			"job_id", job.ID, "error", err)
		return err
	}
	e.logger.InfoContext(ctx, "job completed",
		"job_id", job.ID, "module", job.Module,
		"duration_ms", completedAt.Sub(start).Milliseconds(),
		"output_files", len(outputFiles))
	e.recordCustody(ctx, job, actor, "job.complete", map[string]any{
		"job_id":       job.ID.String(),
		"module":       job.Module,
		"evidence_id":  evidenceRef(job),
		"output_files": outputFiles,
	})
	return nil
}

// run resolves the capability and invokes it under the configured deadline.
func (e *Executor) run(ctx context.Context, job *entity.Job) (actor string, result map[string]any, err error) {
	var params map[string]any
	if len(job.Params) > 0 {
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return "", nil, fmt.Errorf("job params are not a valid mapping: %w", err)
		}
	}
	if params == nil {
		params = map[string]any{}
	}
	actor, _ = params["actor"].(string)

	desc, err := e.modules.Resolve(job.Module)
	if err != nil {
		return actor, nil, err
	}

	var evidencePath string
	if job.EvidenceID != nil {
		ev, err := e.evidence.GetEvidence(ctx, *job.EvidenceID)
		if err != nil {
			return actor, nil, fmt.Errorf("resolve evidence %s: %w", job.EvidenceID, err)
		}
		evidencePath = filepath.Join(e.vaultDir, filepath.FromSlash(ev.VaultRelPath))
	}

	req := module.Request{
		CaseID:       job.CaseID,
		EvidenceID:   job.EvidenceID,
		EvidencePath: evidencePath,
		ArtifactRoot: ArtifactRoot(e.vaultDir, job.CaseID),
		Actor:        actor,
		Params:       params,
	}

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result, err = invokeRunner(runCtx, desc.Runner, req)
	if err != nil {
		return actor, nil, err
	}
	if result == nil {
		return actor, nil, fmt.Errorf("module returned malformed result")
	}
	return actor, result, nil
}

// invokeRunner shields the worker from panicking modules.
func invokeRunner(ctx context.Context, runner module.Runner, req module.Request) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("module panicked: %v", r)
		}
	}()
	return runner.Run(ctx, req)
}

func (e *Executor) failMalformed(ctx context.Context, job *entity.Job, actor string, completedAt time.Time, cause error) error {
	msg := Sanitize(cause.Error())
	if err := e.jobs.MarkFailed(ctx, job.ID, msg, completedAt); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist FAILED transition",
			"job_id", job.ID, "error", err)
		return err
	}
	e.recordCustody(ctx, job, actor, "job.failed", map[string]any{
		"job_id":      job.ID.String(),
		"module":      job.Module,
		"evidence_id": evidenceRef(job),
		"error":       msg,
	})
	return nil
}

// recordCustody is a local failure boundary: the audit sink must never affect
// job state, so errors and panics are logged and swallowed here.
func (e *Executor) recordCustody(ctx context.Context, job *entity.Job, actor, action string, details map[string]any) {
	if e.custody == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "custody recorder panicked",
				"job_id", job.ID, "action", action, "panic", r)
		}
	}()
	if err := e.custody.Record(job.CaseID, actor, action, details); err != nil {
		e.logger.WarnContext(ctx, "custody record failed",
			"job_id", job.ID, "action", action, "error", err)
	}
}

func evidenceRef(job *entity.Job) string {
	if job.EvidenceID == nil {
		return ""
	}
	return job.EvidenceID.String()
}
