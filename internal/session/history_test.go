package session

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/parley/pkg/cache"
	"github.com/MrWong99/parley/pkg/cache/memory"
)

func newFactory() *cache.Factory {
	return cache.NewFactory(memory.New())
}

func TestHistoryStore_GetAbsentIsEmpty(t *testing.T) {
	t.Parallel()
	s := NewHistoryStore(newFactory().Cache(cache.NamespaceSessions))
	turns, err := s.Get(context.Background(), "TAVERN_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if turns == nil || len(turns) != 0 {
		t.Errorf("Get absent = %#v, want empty non-nil slice", turns)
	}
}

func TestHistoryStore_SetReplacesWhole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewHistoryStore(newFactory().Cache(cache.NamespaceSessions))
	ts := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)

	first := []ConversationTurn{
		{Role: RolePlayer, Text: "[CHAR(p1:bob)]Hello", Timestamp: ts},
		{Role: RoleCharacter, Text: "[CHAR(bob)]Hi", Timestamp: ts},
	}
	key, err := s.Set(ctx, "TAVERN_1", first)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if key != "TAVERN_1" {
		t.Errorf("Set returned key %q", key)
	}

	got, err := s.Get(ctx, "TAVERN_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].Role != RoleCharacter || got[1].Text != "[CHAR(bob)]Hi" || !got[1].Timestamp.Equal(ts) {
		t.Errorf("turn[1] = %+v", got[1])
	}

	if _, err := s.Set(ctx, "TAVERN_1", first[:1]); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, _ = s.Get(ctx, "TAVERN_1")
	if len(got) != 1 {
		t.Errorf("after replace len = %d, want 1", len(got))
	}
}
