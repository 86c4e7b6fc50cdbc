package world

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "world", "world.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	storeContract(t, s)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := NewSQLiteStore(ctx, ":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	// Migrate is idempotent.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if err := s.UpsertNPC(ctx, &NPC{ID: "bob", Name: "Bob"}); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.GetNPC(ctx, "bob"); n == nil {
		t.Error("in-memory database lost the row between connections")
	}
}
