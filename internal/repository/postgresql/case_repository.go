package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"evidence-job-service/internal/entity"
	apperrors "evidence-job-service/internal/errors"
)

// CaseRepository persists cases and their evidence items.
type CaseRepository struct {
	pool *pgxpool.Pool
}

func NewCaseRepository(pool *pgxpool.Pool) *CaseRepository {
	return &CaseRepository{pool: pool}
}

func (r *CaseRepository) CreateCase(ctx context.Context, c *entity.Case) error {
	const q = `INSERT INTO cases (id, name, created_at) VALUES ($1, $2, $3);`

	if _, err := r.pool.Exec(ctx, q, c.ID, c.Name, c.CreatedAt); err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (r *CaseRepository) GetCase(ctx context.Context, id uuid.UUID) (*entity.Case, error) {
	const q = `SELECT id, name, created_at FROM cases WHERE id = $1;`

	var c entity.Case
	err := r.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("case not found")
		}
		return nil, fmt.Errorf("scan case: %w", err)
	}
	return &c, nil
}

func (r *CaseRepository) CreateEvidence(ctx context.Context, ev *entity.Evidence) error {
	const q = `
INSERT INTO evidence (id, case_id, filename, vault_relpath, sha256, size_bytes, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err := r.pool.Exec(ctx, q, ev.ID, ev.CaseID, ev.Filename, ev.VaultRelPath, ev.SHA256, ev.SizeBytes, ev.IngestedAt)
	if err != nil {
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

func (r *CaseRepository) GetEvidence(ctx context.Context, id uuid.UUID) (*entity.Evidence, error) {
	const q = `
SELECT id, case_id, filename, vault_relpath, sha256, size_bytes, ingested_at
FROM evidence WHERE id = $1;
`
	var ev entity.Evidence
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&ev.ID, &ev.CaseID, &ev.Filename, &ev.VaultRelPath, &ev.SHA256, &ev.SizeBytes, &ev.IngestedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("evidence not found")
		}
		return nil, fmt.Errorf("scan evidence: %w", err)
	}
	return &ev, nil
}
