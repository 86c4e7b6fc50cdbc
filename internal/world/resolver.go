package world

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/cache"
)

// flightTimeout bounds a shared store read, which runs detached from the
// cancellation of the request that started it.
const flightTimeout = 30 * time.Second

// Resolver reads NPCs and scenes through the cache. A miss loads the record
// from the store and writes it to the cache, where it stays until the cache
// backend forgets it: updates made in the store afterwards are not seen.
//
// Concurrent misses for the same id within one process share a single store
// read. Absent records are not cached.
type Resolver struct {
	store   Store
	npcs    *cache.Cache
	scenes  *cache.Cache
	metrics *observe.Metrics
	group   singleflight.Group
}

// ResolverOption is a functional option for [NewResolver].
type ResolverOption func(*Resolver)

// WithResolverMetrics records cache hits and misses to m.
func WithResolverMetrics(m *observe.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver over store, caching in the
// [cache.NamespaceNPC] and [cache.NamespaceScene] namespaces of f.
func NewResolver(store Store, f *cache.Factory, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		npcs:   f.Cache(cache.NamespaceNPC),
		scenes: f.Cache(cache.NamespaceScene),
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// NPC returns the NPC with the given id. It returns an error wrapping
// [ErrNotFound] when neither the cache nor the store has it.
func (r *Resolver) NPC(ctx context.Context, id string) (NPC, error) {
	return resolve(ctx, r, r.npcs, "npc:"+id, id, r.store.GetNPC)
}

// Scene returns the scene with the given id. It returns an error wrapping
// [ErrNotFound] when neither the cache nor the store has it.
func (r *Resolver) Scene(ctx context.Context, id string) (Scene, error) {
	return resolve(ctx, r, r.scenes, "scene:"+id, id, r.store.GetScene)
}

func resolve[T any](ctx context.Context, r *Resolver, c *cache.Cache, flight, id string, load func(context.Context, string) (*T, error)) (T, error) {
	var zero T

	v, ok, err := cache.Get[T](ctx, c, id)
	if err != nil {
		return zero, fmt.Errorf("world: %s %q: %w", c.Namespace(), id, err)
	}
	r.metrics.RecordCacheLookup(ctx, c.Namespace(), ok)
	if ok {
		return v, nil
	}

	// The shared load outlives any single caller, so one cancelled request
	// does not fail the others waiting on it.
	ch := r.group.DoChan(flight, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()

		// A flight that finished between the lookup above and DoChan has
		// already filled the cache.
		if v, ok, err := cache.Get[T](ctx, c, id); err == nil && ok {
			return v, nil
		}
		rec, err := load(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
		if err := cache.Set(ctx, c, id, *rec); err != nil {
			return nil, err
		}
		observe.Logger(ctx).Debug("cached world record", "namespace", c.Namespace(), "id", id)
		return *rec, nil
	})

	var res any
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("world: %s %q: %w", c.Namespace(), id, context.Cause(ctx))
	case out := <-ch:
		if out.Err != nil {
			return zero, fmt.Errorf("world: %s %q: %w", c.Namespace(), id, out.Err)
		}
		res = out.Val
	}
	if res == nil {
		return zero, fmt.Errorf("world: %s %q: %w", c.Namespace(), id, ErrNotFound)
	}
	return res.(T), nil
}
