package entity

import (
	"time"

	"github.com/google/uuid"
)

// Case is the top-level grouping of evidence, jobs and artifacts. Artifacts
// produced for a case live under <vault>/<case_id>/artifacts.
type Case struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Evidence is an ingested item within a case. VaultRelPath is relative to the
// vault root, never absolute.
type Evidence struct {
	ID           uuid.UUID `json:"id"`
	CaseID       uuid.UUID `json:"case_id"`
	Filename     string    `json:"filename"`
	VaultRelPath string    `json:"vault_relpath"`
	SHA256       string    `json:"sha256"`
	SizeBytes    int64     `json:"size_bytes"`
	IngestedAt   time.Time `json:"ingested_at"`
}
