package session

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/parley/pkg/cache"
)

func TestMemoryStore_AddExtendsNeverOverwrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore(newFactory().Cache(cache.NamespaceMemory))

	empty, err := s.GetMemory(ctx, "p1", "bob")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("GetMemory absent = %#v", empty)
	}

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	if _, err := s.AddMemory(ctx, "p1", "bob", MemoryRecord{
		Keywords:  []string{"sword", "debt"},
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Emotion:   Emotion{Player: "curious", NPC: "wary"},
		Summary:   "The player asked about a sword.",
	}); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	all, err := s.AddMemory(ctx, "P1", "BOB",
		MemoryRecord{Summary: "second"},
		MemoryRecord{ID: "fixed", Summary: "third"},
	)
	if err != nil {
		t.Fatalf("AddMemory: %v", err)
	}

	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Summary != "The player asked about a sword." || all[2].Summary != "third" {
		t.Errorf("order not preserved: %q, %q", all[0].Summary, all[2].Summary)
	}
	if all[0].ID == "" || all[1].ID == "" || all[0].ID == all[1].ID {
		t.Errorf("generated ids = %q, %q", all[0].ID, all[1].ID)
	}
	if all[2].ID != "fixed" {
		t.Errorf("explicit id replaced: %q", all[2].ID)
	}
	if all[0].PlayerID != "p1" || all[0].NPCID != "bob" {
		t.Errorf("pair not filled in: %+v", all[0])
	}
	if all[0].Emotion.NPC != "wary" || !all[0].EndTime.Equal(start.Add(time.Hour)) {
		t.Errorf("fields lost in round trip: %+v", all[0])
	}

	// Memory keys are case-insensitive.
	got, _ := s.GetMemory(ctx, "P1", "Bob")
	if len(got) != 3 {
		t.Errorf("GetMemory with other casing = %d records, want 3", len(got))
	}
}
