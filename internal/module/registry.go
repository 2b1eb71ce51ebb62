// Package module holds the capability registry. The registry is populated once
// at process startup by explicit Register calls and is read-only afterwards;
// dispatch goroutines only ever call Resolve and List.
package module

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	apperrors "evidence-job-service/internal/errors"
)

// Request carries everything a capability may need for one run. Params is the
// opaque mapping from the submission, already including the acting identity
// ("actor") and, when present, "evidence_id".
type Request struct {
	CaseID       uuid.UUID
	EvidenceID   *uuid.UUID
	EvidencePath string // absolute path to the evidence file, empty if no evidence
	ArtifactRoot string // absolute path to <vault>/<case>/artifacts
	Actor        string
	Params       map[string]any
}

// Runner is an invocable unit of analysis work. Implementations must honor the
// context deadline and report artifacts through "output_file"/"output_files"
// keys in the returned mapping.
type Runner interface {
	Run(ctx context.Context, req Request) (map[string]any, error)
}

// Descriptor is a registry entry describing one capability.
type Descriptor struct {
	Name             string
	Description      string
	RequiresEvidence bool
	Runner           Runner
}

// Registry maps module names to descriptors. Register is only legal during
// startup; concurrent reads need no external synchronization.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Descriptor)}
}

// Register adds a descriptor. Registering the same name twice with the same
// descriptor is a no-op; a different descriptor under an existing name is a
// configuration error and must abort startup.
func (r *Registry) Register(desc Descriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("module descriptor has empty name")
	}
	if desc.Runner == nil {
		return fmt.Errorf("module %s has no runner", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[desc.Name]; ok {
		// Runner values are left out of the comparison: func-typed adapters
		// are not comparable and would panic here.
		if existing.Description == desc.Description &&
			existing.RequiresEvidence == desc.RequiresEvidence {
			return nil
		}
		return fmt.Errorf("module %s registered twice with different descriptors", desc.Name)
	}

	r.entries[desc.Name] = desc
	return nil
}

// MustRegister panics on a registration conflict. For use in startup wiring.
func (r *Registry) MustRegister(desc Descriptor) {
	if err := r.Register(desc); err != nil {
		panic(err)
	}
}

// Resolve returns the descriptor for name or an unsupported_module error.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.entries[name]
	if !ok {
		return Descriptor{}, apperrors.UnsupportedModule(name)
	}
	return desc, nil
}

// List returns all descriptors ordered by name for deterministic display.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.entries))
	for _, d := range r.entries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
