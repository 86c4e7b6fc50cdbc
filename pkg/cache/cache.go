// Package cache defines the namespaced key/value store used for NPC and scene
// records, dialogue histories and relationship memories.
//
// A [Backend] stores opaque bytes under (namespace, key) pairs. A [Factory]
// hands out [Cache] views bound to one namespace so that identical keys used
// for different purposes never collide. Typed values are encoded with CBOR via
// [Get] and [Set].
//
// There is no TTL and no versioning: every Set is a full overwrite and the
// last writer wins. Callers that mutate a stored value must read it, change it
// in memory and write the whole value back; concurrent writers can therefore
// lose updates.
package cache

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Well-known namespaces.
const (
	NamespaceNPC           = "npc"
	NamespaceScene         = "scene"
	NamespaceSessions      = "sessions"
	NamespaceConversations = "conversations"
	NamespaceMemory        = "memory"
	NamespaceConvExample   = "conv_example"
)

// Backend is the storage contract shared by all cache implementations.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the value stored under (namespace, key). A miss is reported
	// as found == false with a nil error.
	Get(ctx context.Context, namespace, key string) (value []byte, found bool, err error)

	// Set stores value under (namespace, key), replacing any existing value.
	Set(ctx context.Context, namespace, key string, value []byte) error

	// Close releases resources held by the backend.
	Close() error
}

// Factory returns namespaced cache views over a single backend.
type Factory struct {
	backend Backend
}

// NewFactory creates a Factory over backend.
func NewFactory(backend Backend) *Factory {
	return &Factory{backend: backend}
}

// Cache returns the view for namespace.
func (f *Factory) Cache(namespace string) *Cache {
	return &Cache{backend: f.backend, namespace: namespace}
}

// Backend returns the underlying backend.
func (f *Factory) Backend() Backend {
	return f.backend
}

// Close closes the underlying backend.
func (f *Factory) Close() error {
	return f.backend.Close()
}

// Cache is a [Backend] bound to one namespace.
type Cache struct {
	backend   Backend
	namespace string
}

// Namespace returns the namespace this view is bound to.
func (c *Cache) Namespace() string {
	return c.namespace
}

// GetBytes returns the raw value stored under key.
func (c *Cache) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := c.backend.Get(ctx, c.namespace, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s/%s: %w", c.namespace, key, err)
	}
	return v, ok, nil
}

// SetBytes stores a raw value under key.
func (c *Cache) SetBytes(ctx context.Context, key string, value []byte) error {
	if err := c.backend.Set(ctx, c.namespace, key, value); err != nil {
		return fmt.Errorf("cache: set %s/%s: %w", c.namespace, key, err)
	}
	return nil
}

// encMode keeps sub-second timestamps; the CBOR default truncates times to
// whole Unix seconds.
var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: cbor encode options: %v", err))
	}
	return em
}()

// Get decodes the value stored under key into a T. A miss returns the zero
// value and found == false.
func Get[T any](ctx context.Context, c *Cache, key string) (value T, found bool, err error) {
	raw, ok, err := c.GetBytes(ctx, key)
	if err != nil || !ok {
		return value, false, err
	}
	if err := cbor.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("cache: decode %s/%s: %w", c.namespace, key, err)
	}
	return value, true, nil
}

// Set encodes value and stores it under key.
func Set[T any](ctx context.Context, c *Cache, key string, value T) error {
	raw, err := encMode.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s/%s: %w", c.namespace, key, err)
	}
	return c.SetBytes(ctx, key, raw)
}
