// Package custody appends chain-of-custody entries for case actions. Entries
// are JSON lines under <vault>/<case_id>/chain_of_custody.log. Recording is
// best-effort from the caller's perspective; the worker wraps calls in its own
// failure boundary.
package custody

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Recorder is the custody/audit sink contract the worker depends on.
type Recorder interface {
	Record(caseID uuid.UUID, actor, action string, details map[string]any) error
}

// Log writes append-only custody entries into the case vault.
type Log struct {
	vaultDir string
}

func NewLog(vaultDir string) *Log {
	return &Log{vaultDir: vaultDir}
}

type entry struct {
	Timestamp string         `json:"timestamp"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
}

// Record appends one entry to the case's custody log, creating the case
// directory if needed.
func (l *Log) Record(caseID uuid.UUID, actor, action string, details map[string]any) error {
	dir := filepath.Join(l.vaultDir, caseID.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create case dir: %w", err)
	}

	line, err := json.Marshal(entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Actor:     actor,
		Action:    action,
		Details:   details,
	})
	if err != nil {
		return fmt.Errorf("marshal custody entry: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "chain_of_custody.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open custody log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append custody entry: %w", err)
	}
	return nil
}
