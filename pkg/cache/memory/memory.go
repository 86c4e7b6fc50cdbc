// Package memory provides an in-process [cache.Backend] backed by a map.
//
// Values live only as long as the process. It is the default backend for
// single-instance deployments and for tests.
package memory

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/cache"
)

// Compile-time interface assertion.
var _ cache.Backend = (*Backend)(nil)

// Backend is a map-backed cache. The zero value is not usable; call [New].
type Backend struct {
	mu      sync.RWMutex
	entries map[string]map[string][]byte
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{entries: make(map[string]map[string][]byte)}
}

// Get implements [cache.Backend]. The returned slice is a copy.
func (b *Backend) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.entries[namespace][key]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

// Set implements [cache.Backend]. The value is copied before it is stored.
func (b *Backend) Set(_ context.Context, namespace, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ns, ok := b.entries[namespace]
	if !ok {
		ns = make(map[string][]byte)
		b.entries[namespace] = ns
	}
	ns[key] = clone(value)
	return nil
}

// Len returns the number of keys stored in namespace.
func (b *Backend) Len(namespace string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries[namespace])
}

// Close implements [cache.Backend]. It is a no-op.
func (b *Backend) Close() error { return nil }

func clone(v []byte) []byte {
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
