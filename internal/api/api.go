// Package api exposes the parley HTTP surface: scene chat (plain and over
// WebSocket), NPC and scene lookups, conversation logs, relationship memory
// and knowledge search.
//
// Every route except the health and metrics endpoints requires the
// configured API key in the X-API-KEY header. Errors are returned as
// {"error": "..."} with a status derived from the error chain.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/knowledge"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/scene"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/world"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Chatter runs one scene chat turn.
type Chatter interface {
	Chat(ctx context.Context, req scene.ChatRequest) (*scene.ChatResponse, error)
}

// World resolves NPCs and scenes.
type World interface {
	NPC(ctx context.Context, id string) (world.NPC, error)
	Scene(ctx context.Context, id string) (world.Scene, error)
}

// Conversations reads the per player/NPC conversation log.
type Conversations interface {
	History(ctx context.Context, playerID, npcID string) ([]session.ConversationTurn, error)
}

// Memories reads and appends relationship memory records.
type Memories interface {
	GetMemory(ctx context.Context, playerID, npcID string) ([]session.MemoryRecord, error)
	AddMemory(ctx context.Context, playerID, npcID string, records ...session.MemoryRecord) ([]session.MemoryRecord, error)
}

// Summariser distils the new part of a conversation log into a memory.
type Summariser interface {
	ConsolidatePair(ctx context.Context, playerID, npcID string) (*session.MemoryRecord, error)
}

// Knowledge searches lore visible to an NPC.
type Knowledge interface {
	Search(ctx context.Context, req knowledge.SearchRequest) ([]knowledge.Result, error)
}

// Deps are the services behind the routes. A nil dependency leaves its
// routes unregistered.
type Deps struct {
	Chat          Chatter
	World         World
	Conversations Conversations
	Memories      Memories
	Summariser    Summariser
	Knowledge     Knowledge
}

// Server builds the HTTP handler.
type Server struct {
	deps    Deps
	apiKey  string
	timeout time.Duration
	metrics *observe.Metrics
	health  *health.Handler
	promH   http.Handler
}

// Option is a functional option for [New].
type Option func(*Server)

// WithAPIKey requires key in the X-API-KEY header. Empty disables the check.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithRequestTimeout bounds each request. For WebSocket connections the
// bound applies per chat message.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithMetrics records HTTP and stream metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth serves /healthz and /readyz from h without authentication.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler serves /metrics from h without authentication.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.promH = h }
}

// New returns a Server over deps.
func New(deps Deps, opts ...Option) *Server {
	s := &Server{deps: deps}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.health != nil {
		s.health.Register(mux)
	}
	if s.promH != nil {
		mux.Handle("GET /metrics", s.promH)
	}

	if s.deps.World != nil {
		mux.Handle("GET /npcs/{id}", s.protect(s.handleNPC))
		mux.Handle("GET /scenes/{id}", s.protect(s.handleScene))
	}
	if s.deps.Chat != nil {
		mux.Handle("POST /scenes/chat", s.protect(s.handleChat))
		// The per-message timeout is applied inside the stream loop.
		mux.Handle("GET /scenes/chat/ws", s.requireKey(http.HandlerFunc(s.handleChatStream)))
	}
	if s.deps.Conversations != nil {
		mux.Handle("GET /conversations/{player}/{npc}", s.protect(s.handleConversation))
	}
	if s.deps.Memories != nil {
		mux.Handle("GET /memory/{player}/{npc}", s.protect(s.handleGetMemory))
		mux.Handle("POST /memory/{player}/{npc}", s.protect(s.handleAddMemory))
	}
	if s.deps.Summariser != nil {
		mux.Handle("POST /memory/{player}/{npc}/summarise", s.protect(s.handleSummarise))
	}
	if s.deps.Knowledge != nil {
		mux.Handle("POST /knowledge/search", s.protect(s.handleKnowledgeSearch))
	}

	var h http.Handler = mux
	if s.metrics != nil {
		h = observe.Middleware(s.metrics)(h)
	}
	return h
}

// protect wraps a route with the API key check and the request timeout.
func (s *Server) protect(fn http.HandlerFunc) http.Handler {
	return s.requireKey(s.withTimeout(fn))
}
