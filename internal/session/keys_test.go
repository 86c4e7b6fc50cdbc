package session

import (
	"fmt"
	"testing"
)

func TestDeriveKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                        string
		scene, npc, player, session string
		want                        string
	}{
		{"scene scoped", "tavern", "bob", "p1", "s-1", "TAVERN_s-1"},
		{"one on one", "", "bob", "p1", "s-1", "BOB_P1_s-1"},
		{"session id kept verbatim", "", "Bob", "P1", "AbC", "BOB_P1_AbC"},
		{"mixed case scene", "TaVeRn", "", "", "x", "TAVERN_x"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := DeriveKey(tc.scene, tc.npc, tc.player, tc.session); got != tc.want {
				t.Errorf("DeriveKey(%q, %q, %q, %q) = %q, want %q",
					tc.scene, tc.npc, tc.player, tc.session, got, tc.want)
			}
		})
	}
}

func TestDeriveKey_SceneKeyIgnoresParticipants(t *testing.T) {
	t.Parallel()
	want := DeriveKey("market", "", "", "session-9")
	for _, npc := range []string{"", "bob", "Erika", "guard-2"} {
		for _, player := range []string{"", "p1", "Player-7"} {
			if got := DeriveKey("market", npc, player, "session-9"); got != want {
				t.Errorf("DeriveKey(market, %q, %q) = %q, want %q", npc, player, got, want)
			}
		}
	}
}

func TestDeriveKey_OneOnOneIsInjective(t *testing.T) {
	t.Parallel()
	npcs := []string{"bob", "erika", "guard-1", "guard-2", "old-man"}
	players := []string{"p1", "p2", "player-10", "hero"}
	sessions := []string{"1", "2", "a1b2", "2024-05-01"}

	seen := make(map[string]string)
	for _, n := range npcs {
		for _, p := range players {
			for _, s := range sessions {
				key := DeriveKey("", n, p, s)
				triple := fmt.Sprintf("%s|%s|%s", n, p, s)
				if prev, ok := seen[key]; ok {
					t.Fatalf("collision: %s and %s both map to %q", prev, triple, key)
				}
				seen[key] = triple
			}
		}
	}
	if len(seen) != len(npcs)*len(players)*len(sessions) {
		t.Errorf("got %d distinct keys", len(seen))
	}
}

func TestDeriveKey_CaseInsensitiveIdentifiers(t *testing.T) {
	t.Parallel()
	if DeriveKey("", "Bob", "P1", "s") != DeriveKey("", "bob", "p1", "s") {
		t.Error("npc/player casing must not change the key")
	}
	if DeriveKey("Tavern", "", "", "s") != DeriveKey("TAVERN", "", "", "s") {
		t.Error("scene casing must not change the key")
	}
}

func TestDeriveKey_SceneAndOneOnOneDiffer(t *testing.T) {
	t.Parallel()
	if DeriveKey("bob", "", "", "s1") == DeriveKey("", "bob", "p1", "s1") {
		t.Error("scene key collided with one-on-one key")
	}
}

// Identifiers containing the '_' separator can collide. The key format is
// shared with existing stored histories, so the collision is accepted.
func TestDeriveKey_UnderscoreIdentifiersCollide(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b [4]string
	}{
		{"scene vs one-on-one", [4]string{"a_b", "", "", "s"}, [4]string{"", "a", "b", "s"}},
		{"one-on-one split point", [4]string{"", "a_b", "c", "s"}, [4]string{"", "a", "b_c", "s"}},
	}
	for _, tt := range tests {
		ka := DeriveKey(tt.a[0], tt.a[1], tt.a[2], tt.a[3])
		kb := DeriveKey(tt.b[0], tt.b[1], tt.b[2], tt.b[3])
		if ka != kb {
			t.Errorf("%s: %q != %q", tt.name, ka, kb)
		}
	}
}

func TestConversationAndMemoryKeys(t *testing.T) {
	t.Parallel()
	if got := ConversationKey("p1", "Bob"); got != "p1-Bob" {
		t.Errorf("ConversationKey = %q", got)
	}
	if got := MemoryKey("p1", "Bob"); got != "P1-BOB" {
		t.Errorf("MemoryKey = %q", got)
	}
}
