package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"evidence-job-service/internal/entity"
	apperrors "evidence-job-service/internal/errors"
	"evidence-job-service/internal/service"
)

type Handler struct {
	dispatcher *service.Dispatcher
}

func NewHandler(dispatcher *service.Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

type submitJobDTO struct {
	Module     string         `json:"module"`
	EvidenceID *string        `json:"evidence_id,omitempty"`
	Params     map[string]any `json:"params"`
}

// jobSummaryResp is returned from submission: enough to poll with.
type jobSummaryResp struct {
	ID        string           `json:"id"`
	Status    entity.JobStatus `json:"status"`
	Module    string           `json:"module"`
	CreatedAt string           `json:"created_at"`
}

type jobResp struct {
	ID            string           `json:"id"`
	CaseID        string           `json:"case_id"`
	EvidenceID    *string          `json:"evidence_id,omitempty"`
	Module        string           `json:"module"`
	Status        entity.JobStatus `json:"status"`
	QueuedAt      string           `json:"queued_at"`
	StartedAt     *string          `json:"started_at,omitempty"`
	CompletedAt   *string          `json:"completed_at,omitempty"`
	ResultPreview map[string]any   `json:"result_preview,omitempty"`
	OutputFiles   []string         `json:"output_files"`
	Error         *string          `json:"error,omitempty"`
	DispatchToken string           `json:"dispatch_token,omitempty"`
	CreatedAt     string           `json:"created_at"`
}

type moduleResp struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	RequiresEvidence bool   `json:"requires_evidence"`
}

// SubmitJob godoc
// @Summary Submit an analysis job for a case
// @Description Validates the module and evidence reference, records the job as PENDING and dispatches it (queue or inline). Poll the job for completion.
// @Tags jobs
// @Accept json
// @Produce json
// @Param caseID path string true "case id (uuid)"
// @Param request body submitJobDTO true "job submission"
// @Success 201 {object} jobSummaryResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Failure 503 {object} apiError
// @Router /cases/{caseID}/jobs [post]
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(chi.URLParam(r, "caseID"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, apperrors.ErrCodeValidation, "invalid case id")
		return
	}

	var dto submitJobDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, apperrors.ErrCodeValidation, "invalid json")
		return
	}

	var evidenceID *uuid.UUID
	if dto.EvidenceID != nil && *dto.EvidenceID != "" {
		id, err := uuid.Parse(*dto.EvidenceID)
		if err != nil {
			writeErr(w, http.StatusBadRequest, apperrors.ErrCodeValidation, "invalid evidence id")
			return
		}
		evidenceID = &id
	}

	job, err := h.dispatcher.Submit(r.Context(), service.SubmitRequest{
		CaseID:     caseID,
		Module:     dto.Module,
		EvidenceID: evidenceID,
		Actor:      actorFrom(r),
		Params:     dto.Params,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, jobSummaryResp{
		ID:        job.ID.String(),
		Status:    job.Status,
		Module:    job.Module,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	})
}

// GetJob godoc
// @Summary Get job by id
// @Description Status boundary: reflects the latest durably committed transition.
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, apperrors.ErrCodeValidation, "invalid id")
		return
	}

	job, err := h.dispatcher.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResp(job))
}

// ListCaseJobs godoc
// @Summary List a case's jobs, newest first
// @Tags jobs
// @Produce json
// @Param caseID path string true "case id (uuid)"
// @Success 200 {array} jobResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /cases/{caseID}/jobs [get]
func (h *Handler) ListCaseJobs(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(chi.URLParam(r, "caseID"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, apperrors.ErrCodeValidation, "invalid case id")
		return
	}

	jobs, err := h.dispatcher.ListByCase(r.Context(), caseID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	out := make([]jobResp, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toJobResp(job))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListModules godoc
// @Summary List registered analysis modules
// @Description Keeps clients in sync with runtime capabilities without hardcoding module names.
// @Tags modules
// @Produce json
// @Success 200 {array} moduleResp
// @Router /modules [get]
func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	descs := h.dispatcher.Modules()
	out := make([]moduleResp, 0, len(descs))
	for _, d := range descs {
		out = append(out, moduleResp{
			Name:             d.Name,
			Description:      d.Description,
			RequiresEvidence: d.RequiresEvidence,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// actorFrom names the acting identity for params injection and custody
// entries. Authentication itself lives in front of this service.
func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "anonymous"
}

func toJobResp(job *entity.Job) jobResp {
	resp := jobResp{
		ID:            job.ID.String(),
		CaseID:        job.CaseID.String(),
		Module:        job.Module,
		Status:        job.Status,
		QueuedAt:      job.QueuedAt.Format(time.RFC3339),
		OutputFiles:   job.OutputFiles,
		Error:         job.ErrorMessage,
		DispatchToken: job.DispatchToken,
		CreatedAt:     job.CreatedAt.Format(time.RFC3339),
	}
	if resp.OutputFiles == nil {
		resp.OutputFiles = []string{}
	}
	if job.EvidenceID != nil {
		s := job.EvidenceID.String()
		resp.EvidenceID = &s
	}
	if job.StartedAt != nil {
		s := job.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &s
	}
	if job.CompletedAt != nil {
		s := job.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	if len(job.ResultPreview) > 0 {
		_ = json.Unmarshal(job.ResultPreview, &resp.ResultPreview)
	}
	return resp
}
