package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

// DefaultMemoryPrompt is the system prompt sent to the LLM when distilling a
// conversation log into a [MemoryRecord].
const DefaultMemoryPrompt = `You are the memory of a non-player character in a role-playing game.
Read the conversation log between the player and you and distil it into a single JSON object with these fields:
"keywords" (array of short strings), "emotion" (object with "player" and "npc": how each side feels),
"relationship_progress", "potential_interest", "suggested_next_action" (strings),
"other_info" (array of strings with facts worth remembering) and "summary" (a short narrative).
Reply with the JSON object only.`

// ErrEmptyConversation is returned when there is nothing to summarise.
var ErrEmptyConversation = errors.New("session: no conversation turns to summarise")

// MemorySummariser distils conversation turns into a memory record.
type MemorySummariser interface {
	Summarise(ctx context.Context, playerID, npcID string, turns []ConversationTurn) (MemoryRecord, error)
}

// LLMMemorySummariser uses an LLM provider to summarise conversations.
type LLMMemorySummariser struct {
	llm    llm.Provider
	prompt string
}

// NewLLMMemorySummariser creates a summariser backed by provider. An empty
// prompt selects [DefaultMemoryPrompt].
func NewLLMMemorySummariser(provider llm.Provider, prompt string) *LLMMemorySummariser {
	if prompt == "" {
		prompt = DefaultMemoryPrompt
	}
	return &LLMMemorySummariser{llm: provider, prompt: prompt}
}

// summaryReply is the JSON shape requested from the model.
type summaryReply struct {
	Keywords             []string `json:"keywords"`
	Emotion              Emotion  `json:"emotion"`
	RelationshipProgress string   `json:"relationship_progress"`
	PotentialInterest    string   `json:"potential_interest"`
	SuggestedNextAction  string   `json:"suggested_next_action"`
	OtherInfo            []string `json:"other_info"`
	Summary              string   `json:"summary"`
}

// Summarise formats turns as a log transcript, asks the model for a JSON
// summary and converts it into a MemoryRecord spanning the turns' time range.
func (s *LLMMemorySummariser) Summarise(ctx context.Context, playerID, npcID string, turns []ConversationTurn) (MemoryRecord, error) {
	if len(turns) == 0 {
		return MemoryRecord{}, ErrEmptyConversation
	}

	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(t.Render())
		sb.WriteByte('\n')
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: s.prompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: sb.String()},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return MemoryRecord{}, fmt.Errorf("session: summarise: %w", err)
	}

	var reply summaryReply
	if err := json.Unmarshal([]byte(trimFences(resp.Content)), &reply); err != nil {
		return MemoryRecord{}, fmt.Errorf("session: summarise: decode reply: %w", err)
	}

	return MemoryRecord{
		PlayerID:             playerID,
		NPCID:                npcID,
		Keywords:             reply.Keywords,
		StartTime:            turns[0].Timestamp,
		EndTime:              turns[len(turns)-1].Timestamp,
		Emotion:              reply.Emotion,
		RelationshipProgress: reply.RelationshipProgress,
		PotentialInterest:    reply.PotentialInterest,
		SuggestedNextAction:  reply.SuggestedNextAction,
		OtherInfo:            reply.OtherInfo,
		Summary:              reply.Summary,
	}, nil
}

// trimFences removes a surrounding ```json ... ``` block if present.
func trimFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
