// Package knowledge stores lore snippets with embeddings and finds the ones
// an NPC is allowed to know.
//
// Every snippet carries a lore level. A search on behalf of an NPC only sees
// snippets whose level is at most the NPC's own lore level, ordered by
// cosine similarity to the query.
package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/parley/pkg/provider/embeddings"
)

// defaultTopK is the number of results returned when a search does not set
// a limit.
const defaultTopK = 5

// ErrEmptyQuery is returned for a search without query text.
var ErrEmptyQuery = errors.New("knowledge: query is empty")

// Entry is one lore snippet.
type Entry struct {
	ID        int64  `json:"-"`
	Knowledge string `json:"knowledge"`
	LoreLevel int    `json:"lore_level"`
}

// Result is a search hit. Score is the cosine similarity, 1 for an exact
// match.
type Result struct {
	Entry
	Score float64 `json:"score"`
}

// Index persists entries with their embeddings.
type Index interface {
	// Add stores e with its embedding and returns the assigned id.
	Add(ctx context.Context, e Entry, embedding []float32) (int64, error)

	// Search returns at most topK entries with LoreLevel <= maxLoreLevel,
	// most similar first.
	Search(ctx context.Context, embedding []float32, maxLoreLevel, topK int) ([]Result, error)
}

// Embedder turns text into a vector. [generate.Generator] satisfies it.
type Embedder interface {
	TextEmbedding(ctx context.Context, taskType, text, title string) ([]float32, error)
}

// Service embeds queries and documents and delegates to an [Index].
type Service struct {
	index    Index
	embedder Embedder
	topK     int
}

// Option configures a [Service].
type Option func(*Service)

// WithTopK sets the default result limit.
func WithTopK(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topK = n
		}
	}
}

// NewService creates a Service.
func NewService(index Index, embedder Embedder, opts ...Option) *Service {
	s := &Service{index: index, embedder: embedder, topK: defaultTopK}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SearchRequest asks for lore visible at a lore level.
type SearchRequest struct {
	NPCLoreLevel int    `json:"npc_lore_level"`
	Query        string `json:"query"`
	// TopK overrides the service default when positive.
	TopK int `json:"top_k,omitempty"`
}

// Search embeds the query as a retrieval query and returns matching lore.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]Result, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	vec, err := s.embedder.TextEmbedding(ctx, embeddings.TaskRetrievalQuery, req.Query, "")
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	topK := s.topK
	if req.TopK > 0 {
		topK = req.TopK
	}
	res, err := s.index.Search(ctx, vec, req.NPCLoreLevel, topK)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	return res, nil
}

// Ingest embeds text as a retrieval document and adds it to the index.
func (s *Service) Ingest(ctx context.Context, text string, loreLevel int) (int64, error) {
	if text == "" {
		return 0, errors.New("knowledge: ingest: text is empty")
	}
	vec, err := s.embedder.TextEmbedding(ctx, embeddings.TaskRetrievalDocument, text, "")
	if err != nil {
		return 0, fmt.Errorf("knowledge: ingest: %w", err)
	}
	id, err := s.index.Add(ctx, Entry{Knowledge: text, LoreLevel: loreLevel}, vec)
	if err != nil {
		return 0, fmt.Errorf("knowledge: ingest: %w", err)
	}
	return id, nil
}
