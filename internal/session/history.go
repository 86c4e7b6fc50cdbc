package session

import (
	"context"
	"fmt"

	"github.com/MrWong99/parley/pkg/cache"
)

// HistoryStore holds the ordered turn list of each multi-turn conversation,
// keyed by [DeriveKey]. The list is the unit of storage: it is read whole and
// written whole.
type HistoryStore struct {
	cache *cache.Cache
}

// NewHistoryStore returns a HistoryStore over c, normally the
// [cache.NamespaceSessions] view.
func NewHistoryStore(c *cache.Cache) *HistoryStore {
	return &HistoryStore{cache: c}
}

// Get returns the turns stored under key, or an empty slice if there are none.
func (s *HistoryStore) Get(ctx context.Context, key string) ([]ConversationTurn, error) {
	turns, _, err := cache.Get[[]ConversationTurn](ctx, s.cache, key)
	if err != nil {
		return nil, fmt.Errorf("session: get history %q: %w", key, err)
	}
	if turns == nil {
		turns = []ConversationTurn{}
	}
	return turns, nil
}

// Set replaces the turns stored under key and returns the key.
func (s *HistoryStore) Set(ctx context.Context, key string, turns []ConversationTurn) (string, error) {
	if err := cache.Set(ctx, s.cache, key, turns); err != nil {
		return "", fmt.Errorf("session: set history %q: %w", key, err)
	}
	return key, nil
}
