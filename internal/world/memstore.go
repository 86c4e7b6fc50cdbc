package world

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// Records are copied on the way in and out.
type MemStore struct {
	mu     sync.RWMutex
	npcs   map[string]NPC
	scenes map[string]Scene
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		npcs:   make(map[string]NPC),
		scenes: make(map[string]Scene),
	}
}

// GetNPC implements [Store.GetNPC].
func (s *MemStore) GetNPC(_ context.Context, id string) (*NPC, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.npcs[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

// GetScene implements [Store.GetScene].
func (s *MemStore) GetScene(_ context.Context, id string) (*Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scenes[id]
	if !ok {
		return nil, nil
	}
	sc.NPCIDs = slices.Clone(sc.NPCIDs)
	return &sc, nil
}

// UpsertNPC implements [Store.UpsertNPC].
func (s *MemStore) UpsertNPC(_ context.Context, npc *NPC) error {
	if err := npc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.npcs[npc.ID] = *npc
	return nil
}

// UpsertScene implements [Store.UpsertScene].
func (s *MemStore) UpsertScene(_ context.Context, scene *Scene) error {
	if err := scene.Validate(); err != nil {
		return err
	}
	sc := *scene
	sc.NPCIDs = slices.Clone(scene.NPCIDs)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenes[sc.ID] = sc
	return nil
}

// ListNPCs implements [Store.ListNPCs].
func (s *MemStore) ListNPCs(_ context.Context) ([]NPC, error) {
	s.mu.RLock()
	out := make([]NPC, 0, len(s.npcs))
	for _, n := range s.npcs {
		out = append(out, n)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b NPC) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// ListScenes implements [Store.ListScenes].
func (s *MemStore) ListScenes(_ context.Context) ([]Scene, error) {
	s.mu.RLock()
	out := make([]Scene, 0, len(s.scenes))
	for _, sc := range s.scenes {
		sc.NPCIDs = slices.Clone(sc.NPCIDs)
		out = append(out, sc)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Scene) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}
