// Package memory provides an in-process store used when no database is
// configured (offline workstation mode) and by tests. It enforces the same
// status-guarded transitions as the Postgres repositories.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"evidence-job-service/internal/entity"
	apperrors "evidence-job-service/internal/errors"
)

type Store struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*entity.Job
	cases    map[uuid.UUID]*entity.Case
	evidence map[uuid.UUID]*entity.Evidence
}

func NewStore() *Store {
	return &Store{
		jobs:     make(map[uuid.UUID]*entity.Job),
		cases:    make(map[uuid.UUID]*entity.Case),
		evidence: make(map[uuid.UUID]*entity.Evidence),
	}
}

func cloneJob(j *entity.Job) *entity.Job {
	c := *j
	if j.OutputFiles != nil {
		c.OutputFiles = append([]string(nil), j.OutputFiles...)
	}
	return &c
}

func (s *Store) Create(ctx context.Context, job *entity.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return apperrors.Conflictf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job not found")
	}
	return cloneJob(job), nil
}

func (s *Store) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*entity.Job
	for _, job := range s.jobs {
		if job.CaseID == caseID {
			out = append(out, cloneJob(job))
		}
	}
	// Newest first, id as tiebreak for stable order.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

func (s *Store) SetDispatchToken(ctx context.Context, id uuid.UUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return apperrors.NotFound("job not found")
	}
	job.DispatchToken = token
	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != entity.StatusPending {
		return apperrors.NotFound("pending job not found")
	}
	delete(s.jobs, id)
	return nil
}

func (s *Store) MarkRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return apperrors.NotFound("job not found")
	}
	if !job.Status.CanTransitionTo(entity.StatusRunning) {
		return apperrors.Conflictf("job %s is %s, cannot transition to %s", id, job.Status, entity.StatusRunning)
	}
	job.Status = entity.StatusRunning
	job.StartedAt = &startedAt
	return nil
}

func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID, result, preview json.RawMessage, outputFiles []string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return apperrors.NotFound("job not found")
	}
	if !job.Status.CanTransitionTo(entity.StatusCompleted) {
		return apperrors.Conflictf("job %s is %s, cannot transition to %s", id, job.Status, entity.StatusCompleted)
	}
	if outputFiles == nil {
		outputFiles = []string{}
	}
	job.Status = entity.StatusCompleted
	job.Result = result
	job.ResultPreview = preview
	job.OutputFiles = append([]string(nil), outputFiles...)
	job.CompletedAt = &completedAt
	job.ErrorMessage = nil
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return apperrors.NotFound("job not found")
	}
	if !job.Status.CanTransitionTo(entity.StatusFailed) {
		return apperrors.Conflictf("job %s is %s, cannot transition to %s", id, job.Status, entity.StatusFailed)
	}
	job.Status = entity.StatusFailed
	job.ErrorMessage = &errMsg
	job.CompletedAt = &completedAt
	job.Result = nil
	return nil
}

func (s *Store) CreateCase(ctx context.Context, c *entity.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cases[c.ID]; ok {
		return apperrors.Conflictf("case %s already exists", c.ID)
	}
	cc := *c
	s.cases[c.ID] = &cc
	return nil
}

func (s *Store) GetCase(ctx context.Context, id uuid.UUID) (*entity.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[id]
	if !ok {
		return nil, apperrors.NotFound("case not found")
	}
	cc := *c
	return &cc, nil
}

func (s *Store) CreateEvidence(ctx context.Context, ev *entity.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.evidence[ev.ID]; ok {
		return apperrors.Conflictf("evidence %s already exists", ev.ID)
	}
	ec := *ev
	s.evidence[ev.ID] = &ec
	return nil
}

func (s *Store) GetEvidence(ctx context.Context, id uuid.UUID) (*entity.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.evidence[id]
	if !ok {
		return nil, apperrors.NotFound("evidence not found")
	}
	ec := *ev
	return &ec, nil
}
