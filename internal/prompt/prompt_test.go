package prompt

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/session"
)

func TestHasGoal(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"":                 false,
		"NA":               false,
		"  NA ":            false,
		"Find the amulet.": true,
		"na":               true,
	}
	for goal, want := range tests {
		if got := HasGoal(goal); got != want {
			t.Errorf("HasGoal(%q) = %v, want %v", goal, got, want)
		}
	}
}

func TestBuildConversationPrompt(t *testing.T) {
	t.Parallel()

	tmpl := Templates{
		Goal:           "GOAL {NPC_CONVERSATION_RULES} / {NPC_CONVERSATION_DIALOGUE_FORMAT} / {SCENE_GOAL}",
		NoGoal:         "PLAIN {NPC_CONVERSATION_RULES} / {NPC_CONVERSATION_DIALOGUE_FORMAT}",
		DialogueFormat: "fmt",
		Rules:          "rules",
	}

	t.Run("with goal", func(t *testing.T) {
		t.Parallel()
		got := BuildConversationPrompt(true, tmpl)
		if got != "GOAL rules / fmt / {SCENE_GOAL}" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("without goal", func(t *testing.T) {
		t.Parallel()
		got := BuildConversationPrompt(false, tmpl)
		if got != "PLAIN rules / fmt" {
			t.Errorf("got %q", got)
		}
	})
}

func TestFormatScene_NoGoalScene(t *testing.T) {
	t.Parallel()

	goal := NoGoal
	tmpl := DefaultTemplates()
	has := HasGoal(goal)
	got := FormatScene(BuildConversationPrompt(has, tmpl), has, SceneValues{
		Backgrounds: []string{"Bob is a smith."},
		Example:     "[CHAR(Bob)]Hello.",
		Scene:       "A smithy at dawn.",
		Goal:        goal,
		NonPlayers:  []string{"Bob"},
	})

	for _, want := range []string{"Bob is a smith.", "A smithy at dawn.", "[CHAR(Bob)]Hello."} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	for _, unwanted := range []string{PlaceholderSceneGoal, "Scene goal", "{"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("no-goal prompt contains %q:\n%s", unwanted, got)
		}
	}
}

func TestFormatScene_GoalScene(t *testing.T) {
	t.Parallel()

	tmpl := DefaultTemplates()
	got := FormatScene(BuildConversationPrompt(true, tmpl), true, SceneValues{
		Backgrounds: []string{"Bob is a smith.", "Ann is a bard."},
		Scene:       "The tavern.",
		Goal:        "Convince the player to join the guild.",
		NonPlayers:  []string{"Bob", "Ann"},
	})
	if !strings.Contains(got, "Bob is a smith.\nAnn is a bard.") {
		t.Error("backgrounds not joined by line breaks")
	}
	if !strings.Contains(got, "Convince the player to join the guild.") {
		t.Error("goal not substituted")
	}
	if !strings.Contains(got, "Bob,Ann") {
		t.Error("non-player list not comma joined")
	}
}

func TestBuildReviewPrompt(t *testing.T) {
	t.Parallel()

	tmpl := Templates{
		DialogueFormat: "FORMAT",
		Review:         "{NPC_CONVERSATION_DIALOGUE_FORMAT}|{NON_PLAYER_CHARACTERS}|{PLAYER_INPUT}|{NPC_RESPONSE}|{CONVERSATION_HISTORY}",
	}

	t.Run("empty history", func(t *testing.T) {
		t.Parallel()
		got := BuildReviewPrompt(tmpl, ReviewValues{
			NonPlayers:  []string{"Bob", "Ann"},
			PlayerInput: "[CHAR(p1:Bob)]hi",
			NPCResponse: "[CHAR(Bob)]hello",
		})
		want := "FORMAT|Bob,Ann|[CHAR(p1:Bob)]hi|[CHAR(Bob)]hello|N/A"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("history rendered one turn per line", func(t *testing.T) {
		t.Parallel()
		now := time.Now()
		got := BuildReviewPrompt(tmpl, ReviewValues{
			History: []session.ConversationTurn{
				{Role: session.RolePlayer, Text: "a", Timestamp: now},
				{Role: session.RoleCharacter, Text: "b", Timestamp: now},
			},
		})
		if !strings.HasSuffix(got, "|a\nb") {
			t.Errorf("got %q", got)
		}
	})
}

func TestNonPlayers(t *testing.T) {
	t.Parallel()

	ids := []string{"Erika", "Bob", "Ann"}
	if got := NonPlayers(ids, "Erika"); !slices.Equal(got, []string{"Bob", "Ann"}) {
		t.Errorf("NonPlayers = %v", got)
	}
	if got := NonPlayers(ids, ""); !slices.Equal(got, ids) {
		t.Errorf("NonPlayers with empty player = %v", got)
	}
}

func TestTemplatesValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultTemplates().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
	err := Templates{}.Validate()
	if err == nil || !strings.Contains(err.Error(), "review template") {
		t.Errorf("Validate() = %v", err)
	}
}
