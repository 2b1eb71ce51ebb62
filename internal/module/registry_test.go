package module

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "evidence-job-service/internal/errors"
)

type nopRunner struct{}

func (nopRunner) Run(ctx context.Context, req Request) (map[string]any, error) {
	return map[string]any{"status": "ok"}, nil
}

type funcRunner func(ctx context.Context, req Request) (map[string]any, error)

func (f funcRunner) Run(ctx context.Context, req Request) (map[string]any, error) {
	return f(ctx, req)
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{
		Name:             "verify",
		Description:      "integrity check",
		RequiresEvidence: true,
		Runner:           nopRunner{},
	}))

	desc, err := r.Resolve("verify")
	require.NoError(t, err)
	assert.Equal(t, "verify", desc.Name)
	assert.True(t, desc.RequiresEvidence)
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve("nope")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnsupportedModule, apperrors.CodeOf(err))
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	desc := Descriptor{Name: "verify", Runner: nopRunner{}}

	require.NoError(t, r.Register(desc))
	// Same descriptor again is a no-op.
	require.NoError(t, r.Register(desc))

	// Same name, different shape is a startup error.
	err := r.Register(Descriptor{Name: "verify", RequiresEvidence: true, Runner: nopRunner{}})
	require.Error(t, err)
}

func TestRegistryDuplicateFuncRunner(t *testing.T) {
	r := NewRegistry()
	run := funcRunner(func(ctx context.Context, req Request) (map[string]any, error) {
		return map[string]any{"status": "ok"}, nil
	})

	// Func-typed runners are not comparable; a repeated registration must
	// still be a quiet no-op, not a panic.
	require.NoError(t, r.Register(Descriptor{Name: "carve", Description: "carve files", Runner: run}))
	require.NoError(t, r.Register(Descriptor{Name: "carve", Description: "carve files", Runner: run}))

	err := r.Register(Descriptor{Name: "carve", Description: "different", Runner: run})
	require.Error(t, err)

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, "carve files", list[0].Description)
}

func TestRegistryRejectsInvalidDescriptors(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(Descriptor{Name: "", Runner: nopRunner{}}))
	require.Error(t, r.Register(Descriptor{Name: "broken", Runner: nil}))
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"strings", "verify", "carve", "report"} {
		require.NoError(t, r.Register(Descriptor{Name: name, Runner: nopRunner{}}))
	}

	list := r.List()
	require.Len(t, list, 4)
	names := make([]string, 0, len(list))
	for _, d := range list {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"carve", "report", "strings", "verify"}, names)
}
