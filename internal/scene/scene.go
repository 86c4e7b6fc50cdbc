// Package scene turns a player utterance into a multi-character reply.
//
// An [Orchestrator] handles each chat request in a fixed sequence of
// states:
//
//	RESOLVE_SCENE → RESOLVE_PARTICIPANTS → BUILD_PROMPT → GENERATE →
//	PARSE → VERIFY → NORMALIZE → RESPOND
//
// Scene and participant records come from a read-through resolver. The
// prompt is assembled from the configured templates, the model is called
// once with the session history (Flash tier) and once statelessly to review
// the candidate reply (Text tier). The reviewed text is parsed into tagged
// dialogue lines before it is returned.
//
// Failures map to three sentinels: [ErrSceneNotFound], [ErrNPCNotFound]
// and [ErrGeneration]. A request whose participants do not all resolve is
// aborted.
package scene

import (
	"context"
	"errors"

	"github.com/MrWong99/parley/internal/generate"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/world"
)

var (
	// ErrSceneNotFound is returned when the requested scene exists in
	// neither the cache nor the store.
	ErrSceneNotFound = errors.New("scene: scene not found")

	// ErrNPCNotFound is returned when a participant or knowledge NPC of the
	// scene cannot be resolved.
	ErrNPCNotFound = errors.New("scene: npc not found")

	// ErrGeneration is returned when a model call fails.
	ErrGeneration = errors.New("scene: generation failed")

	// ErrInvalidRequest is returned for requests missing required fields.
	ErrInvalidRequest = errors.New("scene: invalid request")
)

// ChatRequest is one player utterance addressed to a scene.
type ChatRequest struct {
	PlayerID string `json:"player_id"`
	// NPCID is the character the player addresses. Without a SceneID it is
	// the only participant.
	NPCID    string `json:"npc_id"`
	Sentence string `json:"sentence"`
	// InGameTime is echoed back unchanged.
	InGameTime string `json:"in_game_time,omitempty"`
	SceneID    string `json:"scene_id"`
	// SessionID scopes the dialogue history. A random id is assigned when
	// it is empty.
	SessionID string `json:"session_id"`
}

// Validate reports missing required fields.
func (r *ChatRequest) Validate() error {
	var errs []error
	if r.PlayerID == "" {
		errs = append(errs, errors.New("player_id is required"))
	}
	if r.Sentence == "" {
		errs = append(errs, errors.New("sentence is required"))
	}
	if r.SceneID == "" && r.NPCID == "" {
		errs = append(errs, errors.New("scene_id or npc_id is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return errors.Join(ErrInvalidRequest, err)
	}
	return nil
}

// ChatResponse is the reply to a [ChatRequest].
type ChatResponse struct {
	PlayerID string `json:"player_id"`
	// NPCIDs are the scene participants, comma-joined.
	NPCIDs     string `json:"npc_ids"`
	SceneID    string `json:"scene_id"`
	Sentence   string `json:"sentence"`
	InGameTime string `json:"in_game_time,omitempty"`
	SessionID  string `json:"session_id"`
}

// Resolver looks up world records. [world.Resolver] satisfies it.
type Resolver interface {
	NPC(ctx context.Context, id string) (world.NPC, error)
	Scene(ctx context.Context, id string) (world.Scene, error)
}

// Generator issues model calls. [generate.Generator] satisfies it.
type Generator interface {
	MultiturnGenerate(ctx context.Context, req generate.MultiturnRequest) (string, []session.ConversationTurn, error)
	AskLLM(ctx context.Context, tier generate.Tier, prompt string) (string, error)
}
