package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/powerport/user-service/domains/providers/be/service"
)

func TestMemoryRegistryCreateAndGet(t *testing.T) {
	registry := NewMemoryRegistry()
	ctx := context.Background()

	exists, err := registry.Exists(ctx, "acme")
	require.NoError(t, err)
	require.False(t, exists)

	p, err := service.NewProvider("acme", "Acme Corp", "ops@acme.io", uuid.New())
	require.NoError(t, err)
	require.NoError(t, registry.Create(ctx, p))

	exists, err = registry.Exists(ctx, "acme")
	require.NoError(t, err)
	require.True(t, exists)

	stored, err := registry.Get(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, p, stored)
}

func TestMemoryRegistryCreateConflict(t *testing.T) {
	registry := NewMemoryRegistry()
	ctx := context.Background()

	p, err := service.NewProvider("acme", "Acme Corp", "ops@acme.io", uuid.New())
	require.NoError(t, err)
	require.NoError(t, registry.Create(ctx, p))

	err = registry.Create(ctx, p)
	var conflictErr *service.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Equal(t, "acme", conflictErr.UniqueName)
}

func TestMemoryRegistryGetNotFound(t *testing.T) {
	registry := NewMemoryRegistry()

	_, err := registry.Get(context.Background(), "missing")
	require.ErrorIs(t, err, service.ErrNotFound)
}
