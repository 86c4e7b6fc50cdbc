package session

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MrWong99/parley/pkg/cache"
)

// Emotion records how each side of a relationship feels.
type Emotion struct {
	Player string `cbor:"player" json:"player"`
	NPC    string `cbor:"npc" json:"npc"`
}

// MemoryRecord is a distilled summary of part of a player/NPC relationship.
type MemoryRecord struct {
	ID                   string    `cbor:"id" json:"id"`
	PlayerID             string    `cbor:"player_id" json:"player_id"`
	NPCID                string    `cbor:"npc_id" json:"npc_id"`
	Keywords             []string  `cbor:"keywords" json:"keywords"`
	StartTime            time.Time `cbor:"start_time" json:"start_time"`
	EndTime              time.Time `cbor:"end_time" json:"end_time"`
	Emotion              Emotion   `cbor:"emotion" json:"emotion"`
	RelationshipProgress string    `cbor:"relationship_progress" json:"relationship_progress"`
	PotentialInterest    string    `cbor:"potential_interest" json:"potential_interest"`
	SuggestedNextAction  string    `cbor:"suggested_next_action" json:"suggested_next_action"`
	OtherInfo            []string  `cbor:"other_info" json:"other_info"`
	Summary              string    `cbor:"summary" json:"summary"`
}

// MemoryStore keeps an append-only list of [MemoryRecord] per player/NPC
// pair, keyed by [MemoryKey]. Records are never overwritten or removed.
type MemoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore returns a MemoryStore over c, normally the
// [cache.NamespaceMemory] view.
func NewMemoryStore(c *cache.Cache) *MemoryStore {
	return &MemoryStore{cache: c}
}

// GetMemory returns all records for the pair, oldest first, or an empty slice.
func (s *MemoryStore) GetMemory(ctx context.Context, playerID, npcID string) ([]MemoryRecord, error) {
	key := MemoryKey(playerID, npcID)
	records, _, err := cache.Get[[]MemoryRecord](ctx, s.cache, key)
	if err != nil {
		return nil, fmt.Errorf("session: get memory %q: %w", key, err)
	}
	if records == nil {
		records = []MemoryRecord{}
	}
	return records, nil
}

// AddMemory appends records to the pair's list and returns the new list.
// Records without an ID get a fresh ULID; empty player and NPC fields are
// filled from the arguments.
//
// Like every store in this package, the append is a read-extend-write.
func (s *MemoryStore) AddMemory(ctx context.Context, playerID, npcID string, records ...MemoryRecord) ([]MemoryRecord, error) {
	existing, err := s.GetMemory(ctx, playerID, npcID)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.ID == "" {
			r.ID = ulid.Make().String()
		}
		if r.PlayerID == "" {
			r.PlayerID = playerID
		}
		if r.NPCID == "" {
			r.NPCID = npcID
		}
		existing = append(existing, r)
	}

	key := MemoryKey(playerID, npcID)
	if err := cache.Set(ctx, s.cache, key, existing); err != nil {
		return nil, fmt.Errorf("session: add memory %q: %w", key, err)
	}
	return existing, nil
}
