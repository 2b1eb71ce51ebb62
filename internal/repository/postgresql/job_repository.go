package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"evidence-job-service/internal/entity"
	apperrors "evidence-job-service/internal/errors"
)

// JobRepository persists job records. Every transition is a single
// status-guarded UPDATE so a terminal job can never be rewritten and partial
// writes are never visible.
type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, case_id, evidence_id, module, params, status, queued_at,
started_at, completed_at, result, result_preview, output_files, error_message,
dispatch_token, created_at`

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	files := []byte(`[]`)
	if job.OutputFiles != nil {
		var err error
		files, err = json.Marshal(job.OutputFiles)
		if err != nil {
			return fmt.Errorf("marshal output files: %w", err)
		}
	}

	const q = `
INSERT INTO jobs (id, case_id, evidence_id, module, params, status, queued_at,
                  output_files, dispatch_token, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err := r.pool.Exec(ctx, q,
		job.ID, job.CaseID, job.EvidenceID, job.Module, job.Params,
		string(job.Status), job.QueuedAt, files, job.DispatchToken, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	return r.scanJob(r.pool.QueryRow(ctx, q, id))
}

// ListByCase returns the case's jobs newest-first by creation time.
func (r *JobRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*entity.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE case_id = $1 ORDER BY created_at DESC, id DESC;`

	rows, err := r.pool.Query(ctx, q, caseID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*entity.Job
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *JobRepository) SetDispatchToken(ctx context.Context, id uuid.UUID, token string) error {
	const q = `UPDATE jobs SET dispatch_token = $2 WHERE id = $1;`

	tag, err := r.pool.Exec(ctx, q, id, token)
	if err != nil {
		return fmt.Errorf("set dispatch token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("job not found")
	}
	return nil
}

// Delete removes a job that never became runnable. Restricted to PENDING rows;
// it exists only to roll back a failed queue-mode publish.
func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM jobs WHERE id = $1 AND status = 'PENDING';`

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("pending job not found")
	}
	return nil
}

// MarkRunning transitions PENDING -> RUNNING and sets started_at.
func (r *JobRepository) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	const q = `UPDATE jobs SET status = 'RUNNING', started_at = $2 WHERE id = $1 AND status = 'PENDING';`

	tag, err := r.pool.Exec(ctx, q, id, startedAt)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, id, entity.StatusRunning)
	}
	return nil
}

// MarkCompleted transitions RUNNING -> COMPLETED with result payload, preview
// and artifact references in one atomic update.
func (r *JobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, result, preview json.RawMessage, outputFiles []string, completedAt time.Time) error {
	if outputFiles == nil {
		outputFiles = []string{}
	}
	files, err := json.Marshal(outputFiles)
	if err != nil {
		return fmt.Errorf("marshal output files: %w", err)
	}

	const q = `
UPDATE jobs
SET status = 'COMPLETED', result = $2, result_preview = $3, output_files = $4,
    completed_at = $5, error_message = NULL
WHERE id = $1 AND status = 'RUNNING';
`
	tag, err := r.pool.Exec(ctx, q, id, result, preview, files, completedAt)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, id, entity.StatusCompleted)
	}
	return nil
}

// MarkFailed transitions RUNNING -> FAILED with a sanitized error message.
func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, completedAt time.Time) error {
	const q = `
UPDATE jobs
SET status = 'FAILED', error_message = $2, completed_at = $3, result = NULL
WHERE id = $1 AND status = 'RUNNING';
`
	tag, err := r.pool.Exec(ctx, q, id, errMsg, completedAt)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.transitionConflict(ctx, id, entity.StatusFailed)
	}
	return nil
}

// transitionConflict distinguishes a missing job from an illegal transition
// after a zero-row guarded update.
func (r *JobRepository) transitionConflict(ctx context.Context, id uuid.UUID, wanted entity.JobStatus) error {
	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return apperrors.Conflictf("job %s is %s, cannot transition to %s", id, job.Status, wanted)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *JobRepository) scanJob(row rowScanner) (*entity.Job, error) {
	var (
		job        entity.Job
		statusText string
		files      []byte
	)

	err := row.Scan(
		&job.ID,
		&job.CaseID,
		&job.EvidenceID,
		&job.Module,
		&job.Params,
		&statusText,
		&job.QueuedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.Result,
		&job.ResultPreview,
		&files,
		&job.ErrorMessage,
		&job.DispatchToken,
		&job.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("job not found")
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Status = entity.JobStatus(statusText)
	job.OutputFiles = []string{}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &job.OutputFiles); err != nil {
			return nil, fmt.Errorf("unmarshal output files: %w", err)
		}
	}
	return &job, nil
}
