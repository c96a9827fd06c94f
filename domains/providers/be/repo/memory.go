package repo

import (
	"context"
	"sync"

	"github.com/powerport/user-service/domains/providers/be/service"
)

// MemoryRegistry is an in-memory registry for tests and early development.
// Create is atomic under the mutex, mirroring the conflict semantics of the
// Postgres implementation.
type MemoryRegistry struct {
	mu    sync.RWMutex
	byKey map[string]service.Provider
}

// NewMemoryRegistry constructs an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{byKey: make(map[string]service.Provider)}
}

func (r *MemoryRegistry) Exists(ctx context.Context, uniqueName string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byKey[uniqueName]
	return ok, nil
}

func (r *MemoryRegistry) Create(ctx context.Context, p service.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[p.UniqueName]; ok {
		return &service.ConflictError{UniqueName: p.UniqueName}
	}
	r.byKey[p.UniqueName] = p
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, uniqueName string) (service.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byKey[uniqueName]
	if !ok {
		return service.Provider{}, service.ErrNotFound
	}
	return p, nil
}

var _ service.Registry = (*MemoryRegistry)(nil)
