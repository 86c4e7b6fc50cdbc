// Package prompt assembles the system instructions sent to the model for
// scene dialogue and for the review pass that follows it.
//
// Templates use named placeholders in braces, e.g. {CURRENT_SCENE}.
// Assembly happens in two stages. [BuildConversationPrompt] picks the goal
// or no-goal template and resolves the scene-independent placeholders
// (dialogue format and rules). [FormatScene] then fills in the per-scene
// values. Unknown placeholders are left untouched.
//
// Every function in this package is pure and safe for concurrent use.
package prompt

import (
	"errors"
	"strings"

	"github.com/MrWong99/parley/internal/session"
)

// Placeholder names recognised in templates.
const (
	PlaceholderDialogueFormat      = "{NPC_CONVERSATION_DIALOGUE_FORMAT}"
	PlaceholderRules               = "{NPC_CONVERSATION_RULES}"
	PlaceholderCharacterBackground = "{CHARACTER_BACKGROUND}"
	PlaceholderConversationExample = "{CONVERSATION_EXAMPLE}"
	PlaceholderCurrentScene        = "{CURRENT_SCENE}"
	PlaceholderSceneGoal           = "{SCENE_GOAL}"
	PlaceholderNonPlayers          = "{NON_PLAYER_CHARACTERS}"
	PlaceholderPlayerInput         = "{PLAYER_INPUT}"
	PlaceholderNPCResponse         = "{NPC_RESPONSE}"
	PlaceholderHistory             = "{CONVERSATION_HISTORY}"
)

// NoGoal is the sentinel goal value that selects the no-goal template.
const NoGoal = "NA"

// noHistory is rendered into the review prompt when a session has no turns.
const noHistory = "N/A"

// Templates holds the configurable prompt text.
type Templates struct {
	// Goal is used for scenes with a goal. It should contain {SCENE_GOAL}.
	Goal string `yaml:"goal_template"`

	// NoGoal is used for scenes without a goal.
	NoGoal string `yaml:"no_goal_template"`

	// DialogueFormat describes the [CHAR(..)]/[NARR(..)] line syntax.
	DialogueFormat string `yaml:"dialogue_format"`

	// Rules are the conversation rules the characters must follow.
	Rules string `yaml:"rules"`

	// Review is the template for the verification pass.
	Review string `yaml:"review_template"`
}

// Validate reports missing templates.
func (t Templates) Validate() error {
	var errs []error
	if strings.TrimSpace(t.Goal) == "" {
		errs = append(errs, errors.New("prompt: goal template is empty"))
	}
	if strings.TrimSpace(t.NoGoal) == "" {
		errs = append(errs, errors.New("prompt: no-goal template is empty"))
	}
	if strings.TrimSpace(t.Review) == "" {
		errs = append(errs, errors.New("prompt: review template is empty"))
	}
	return errors.Join(errs...)
}

// HasGoal reports whether goal selects the goal template. The empty string
// and [NoGoal] both mean "no goal".
func HasGoal(goal string) bool {
	g := strings.TrimSpace(goal)
	return g != "" && g != NoGoal
}

// BuildConversationPrompt selects the goal or no-goal template and resolves
// the dialogue format and rules placeholders. The result still contains the
// per-scene placeholders consumed by [FormatScene].
func BuildConversationPrompt(hasGoal bool, t Templates) string {
	tmpl := t.NoGoal
	if hasGoal {
		tmpl = t.Goal
	}
	return strings.NewReplacer(
		PlaceholderDialogueFormat, t.DialogueFormat,
		PlaceholderRules, t.Rules,
	).Replace(tmpl)
}

// SceneValues are the per-scene substitutions made by [FormatScene].
type SceneValues struct {
	// Backgrounds are the character backgrounds, joined with line breaks.
	Backgrounds []string
	Example     string
	Scene       string
	// Goal is only substituted when the template was built with a goal.
	Goal string
	// NonPlayers are the participants the model voices, joined with commas.
	NonPlayers []string
}

// FormatScene fills the per-scene placeholders of a prompt returned by
// [BuildConversationPrompt]. When hasGoal is false the goal placeholder is
// not substituted.
func FormatScene(tmpl string, hasGoal bool, v SceneValues) string {
	pairs := []string{
		PlaceholderCharacterBackground, strings.Join(v.Backgrounds, "\n"),
		PlaceholderConversationExample, v.Example,
		PlaceholderCurrentScene, v.Scene,
		PlaceholderNonPlayers, strings.Join(v.NonPlayers, ","),
	}
	if hasGoal {
		pairs = append(pairs, PlaceholderSceneGoal, v.Goal)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// ReviewValues are the substitutions made by [BuildReviewPrompt].
type ReviewValues struct {
	NonPlayers  []string
	PlayerInput string
	NPCResponse string
	History     []session.ConversationTurn
}

// BuildReviewPrompt renders the review template that asks the model to
// check a candidate response against the dialogue format.
func BuildReviewPrompt(t Templates, v ReviewValues) string {
	return strings.NewReplacer(
		PlaceholderDialogueFormat, t.DialogueFormat,
		PlaceholderNonPlayers, strings.Join(v.NonPlayers, ","),
		PlaceholderPlayerInput, v.PlayerInput,
		PlaceholderNPCResponse, v.NPCResponse,
		PlaceholderHistory, RenderHistory(v.History),
	).Replace(t.Review)
}

// RenderHistory returns the text of each turn on its own line, or "N/A"
// when there are no turns.
func RenderHistory(turns []session.ConversationTurn) string {
	if len(turns) == 0 {
		return noHistory
	}
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.Text
	}
	return strings.Join(lines, "\n")
}

// NonPlayers returns ids without the player-controlled character, keeping
// order. An empty player keeps every id.
func NonPlayers(ids []string, player string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if player != "" && id == player {
			continue
		}
		out = append(out, id)
	}
	return out
}
