package session

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/parley/pkg/cache"
)

// ConversationLog is the per player/NPC record of everything said, keyed by
// [ConversationKey]. It feeds memory summarisation.
type ConversationLog struct {
	cache *cache.Cache
	now   func() time.Time
}

// NewConversationLog returns a log over c, normally the
// [cache.NamespaceConversations] view.
func NewConversationLog(c *cache.Cache, opts ...Option) *ConversationLog {
	o := applyOptions(opts)
	return &ConversationLog{cache: c, now: o.now}
}

// History returns the logged turns between player and npc, or an empty slice.
func (l *ConversationLog) History(ctx context.Context, playerID, npcID string) ([]ConversationTurn, error) {
	key := ConversationKey(playerID, npcID)
	turns, _, err := cache.Get[[]ConversationTurn](ctx, l.cache, key)
	if err != nil {
		return nil, fmt.Errorf("session: conversation log %q: %w", key, err)
	}
	if turns == nil {
		turns = []ConversationTurn{}
	}
	return turns, nil
}

// AppendTurn appends text to the log between player and npc and returns the
// updated turn list. The turn is a player turn when speaker equals player,
// otherwise a character turn.
//
// The read and the write are separate cache calls. Concurrent appends to the
// same pair may lose a turn.
func (l *ConversationLog) AppendTurn(ctx context.Context, playerID, npcID, speakerID, text string) ([]ConversationTurn, error) {
	turns, err := l.History(ctx, playerID, npcID)
	if err != nil {
		return nil, err
	}

	role := RoleCharacter
	if speakerID == playerID {
		role = RolePlayer
	}
	turns = append(turns, ConversationTurn{Role: role, Text: text, Timestamp: l.now()})

	key := ConversationKey(playerID, npcID)
	if err := cache.Set(ctx, l.cache, key, turns); err != nil {
		return nil, fmt.Errorf("session: append turn %q: %w", key, err)
	}
	return turns, nil
}
