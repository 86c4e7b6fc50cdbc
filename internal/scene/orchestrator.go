package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parley/internal/dialogue"
	"github.com/MrWong99/parley/internal/generate"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/prompt"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/world"
	"github.com/MrWong99/parley/pkg/cache"
)

// ─────────────────────────────────────────────────────────────────────────────
// Orchestrator
// ─────────────────────────────────────────────────────────────────────────────

// Orchestrator runs chat requests against scenes. It holds no per-request
// state; all methods are safe for concurrent use.
type Orchestrator struct {
	resolver  Resolver
	gen       Generator
	templates atomic.Pointer[prompt.Templates]

	player      atomic.Pointer[string]
	examples    *cache.Cache
	exampleFile atomic.Pointer[exampleSource]

	log          *session.ConversationLog
	consolidator *session.Consolidator
	metrics      *observe.Metrics
	newID        func() string
}

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithPlayerCharacter names the player-controlled character, which is left
// out of the non-player participant list given to the model.
func WithPlayerCharacter(id string) Option {
	return func(o *Orchestrator) { o.player.Store(&id) }
}

// WithExamples sets where worked conversation examples come from: the
// c cache keyed by scene id, falling back to the contents of file.
func WithExamples(c *cache.Cache, file string) Option {
	return func(o *Orchestrator) {
		o.examples = c
		o.exampleFile.Store(&exampleSource{path: file})
	}
}

// WithConversationLog appends each completed exchange to log.
func WithConversationLog(log *session.ConversationLog) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithConsolidator marks each player/NPC pair with a logged exchange as
// pending memory consolidation.
func WithConsolidator(c *session.Consolidator) Option {
	return func(o *Orchestrator) { o.consolidator = c }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSessionIDs overrides the generator of session ids for requests that
// carry none.
func WithSessionIDs(next func() string) Option {
	return func(o *Orchestrator) { o.newID = next }
}

// New creates an Orchestrator.
func New(resolver Resolver, gen Generator, templates prompt.Templates, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver: resolver,
		gen:      gen,
		newID:    uuid.NewString,
	}
	o.templates.Store(&templates)
	empty := ""
	o.exampleFile.Store(&exampleSource{})
	o.player.Store(&empty)
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// SetTemplates replaces the prompt templates used by subsequent requests.
func (o *Orchestrator) SetTemplates(t prompt.Templates) {
	o.templates.Store(&t)
}

// Templates returns the templates currently in use.
func (o *Orchestrator) Templates() prompt.Templates {
	return *o.templates.Load()
}

// SetExampleFile replaces the fallback conversation example file. The file
// is read again on next use even when path is unchanged.
func (o *Orchestrator) SetExampleFile(path string) {
	o.exampleFile.Store(&exampleSource{path: path})
}

// SetPlayerCharacter replaces the player character name.
func (o *Orchestrator) SetPlayerCharacter(id string) {
	o.player.Store(&id)
}

// Chat runs one request through the full state sequence.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (resp *ChatResponse, err error) {
	ctx, span := observe.StartSpan(ctx, "scene.Chat")
	start := time.Now()
	defer func() {
		observe.EndSpan(span, err)
		o.metrics.RecordChat(ctx, chatStatus(err), time.Since(start).Seconds())
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		req.SessionID = o.newID()
	}
	ctx = observe.WithLogAttrs(ctx,
		slog.String("scene_id", req.SceneID),
		slog.String("player_id", req.PlayerID),
		slog.String("session_id", req.SessionID),
	)
	log := observe.Logger(ctx)

	// The model sees a consistently tagged transcript.
	if !strings.HasPrefix(req.Sentence, "[CHAR") {
		req.Sentence = dialogue.CharPrefix + req.PlayerID + ":" + req.NPCID + ")]" + req.Sentence
	}

	log.Debug("chat state", "state", "RESOLVE_SCENE")
	sc, err := o.resolveScene(ctx, req)
	if err != nil {
		return nil, err
	}

	log.Debug("chat state", "state", "RESOLVE_PARTICIPANTS", "participants", len(sc.NPCIDs))
	npcs, err := o.resolveParticipants(ctx, sc)
	if err != nil {
		return nil, err
	}

	log.Debug("chat state", "state", "BUILD_PROMPT")
	tmpl := o.Templates()
	hasGoal := prompt.HasGoal(sc.Goal)
	nonPlayers := prompt.NonPlayers(sc.NPCIDs, *o.player.Load())
	backgrounds := make([]string, len(npcs))
	for i, n := range npcs {
		backgrounds[i] = n.Background
	}
	system := prompt.FormatScene(prompt.BuildConversationPrompt(hasGoal, tmpl), hasGoal, prompt.SceneValues{
		Backgrounds: backgrounds,
		Example:     o.example(ctx, sc.ID),
		Scene:       sc.Scene,
		Goal:        sc.Goal,
		NonPlayers:  nonPlayers,
	})

	log.Debug("chat state", "state", "GENERATE")
	raw, prior, err := o.gen.MultiturnGenerate(ctx, generate.MultiturnRequest{
		NPCID:      req.NPCID,
		Background: system,
		Query:      req.Sentence,
		SpeakerID:  req.PlayerID,
		SessionID:  req.SessionID,
		SceneID:    req.SceneID,
		Tier:       generate.TierFlash,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: multiturn: %w", ErrGeneration, err)
	}

	log.Debug("chat state", "state", "PARSE")
	candidate := o.parse(ctx, "candidate", raw)

	log.Debug("chat state", "state", "VERIFY")
	reviewed, err := o.gen.AskLLM(ctx, generate.TierText, prompt.BuildReviewPrompt(tmpl, prompt.ReviewValues{
		NonPlayers:  nonPlayers,
		PlayerInput: req.Sentence,
		NPCResponse: candidate,
		History:     prior,
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: review: %w", ErrGeneration, err)
	}

	log.Debug("chat state", "state", "NORMALIZE")
	final := o.parse(ctx, "final", reviewed)

	o.record(ctx, req, final)

	log.Debug("chat state", "state", "RESPOND")
	return &ChatResponse{
		PlayerID:   req.PlayerID,
		NPCIDs:     world.JoinCSV(sc.NPCIDs),
		SceneID:    req.SceneID,
		Sentence:   final,
		InGameTime: req.InGameTime,
		SessionID:  req.SessionID,
	}, nil
}

// resolveScene loads the requested scene. A request without a scene id
// talks to req.NPCID alone.
func (o *Orchestrator) resolveScene(ctx context.Context, req ChatRequest) (world.Scene, error) {
	if req.SceneID == "" {
		return world.Scene{NPCIDs: []string{req.NPCID}}, nil
	}
	sc, err := o.resolver.Scene(ctx, req.SceneID)
	if errors.Is(err, world.ErrNotFound) {
		return world.Scene{}, fmt.Errorf("%w: %q", ErrSceneNotFound, req.SceneID)
	}
	if err != nil {
		return world.Scene{}, fmt.Errorf("scene: resolve scene %q: %w", req.SceneID, err)
	}
	return sc, nil
}

// resolveParticipants fetches the participants followed by the knowledge
// NPCs, in that order. Any failure aborts the whole set.
func (o *Orchestrator) resolveParticipants(ctx context.Context, sc world.Scene) ([]world.NPC, error) {
	ids := append(append([]string{}, sc.NPCIDs...), sc.KnowledgeIDs()...)
	npcs := make([]world.NPC, len(ids))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, id := range ids {
		eg.Go(func() error {
			npc, err := o.resolver.NPC(egCtx, id)
			if errors.Is(err, world.ErrNotFound) {
				return fmt.Errorf("%w: %q", ErrNPCNotFound, id)
			}
			if err != nil {
				return fmt.Errorf("scene: resolve npc %q: %w", id, err)
			}
			npcs[i] = npc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return npcs, nil
}

// parse returns the tagged lines of raw. Output without any tagged line
// yields an empty result and a warning.
func (o *Orchestrator) parse(ctx context.Context, stage, raw string) string {
	script, err := dialogue.Parse(raw)
	if script.Discarded > 0 {
		o.metrics.RecordParseAnomaly(ctx, "discarded")
		observe.Logger(ctx).Warn("dropped untagged model output", "stage", stage, "lines", script.Discarded)
	}
	if errors.Is(err, dialogue.ErrNoDialogue) {
		o.metrics.RecordParseAnomaly(ctx, "no_dialogue")
		observe.Logger(ctx).Warn("model output has no tagged dialogue", "stage", stage)
		return ""
	}
	return script.String()
}

// example returns the conversation example for a scene.
func (o *Orchestrator) example(ctx context.Context, sceneID string) string {
	if o.examples != nil && sceneID != "" {
		ex, ok, err := cache.Get[string](ctx, o.examples, sceneID)
		if err != nil {
			observe.Logger(ctx).Warn("conversation example lookup failed", "scene_id", sceneID, "err", err)
		}
		if ok && ex != "" {
			return ex
		}
	}
	return o.exampleFile.Load().text(ctx)
}

// exampleSource holds the fallback example file, read once per source.
type exampleSource struct {
	path string

	mu     sync.Mutex
	loaded bool
	body   string
}

// text returns the file contents. A failed read is retried on the next call.
func (s *exampleSource) text(ctx context.Context) string {
	if s.path == "" {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.body
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		observe.Logger(ctx).Warn("read conversation example file", "path", s.path, "err", err)
		return ""
	}
	s.body, s.loaded = string(b), true
	return s.body
}

// record appends the exchange to the conversation log. An empty reply is
// not logged. The reply has already been generated and stored in the
// session history, so failures here are logged and not returned.
func (o *Orchestrator) record(ctx context.Context, req ChatRequest, reply string) {
	if reply == "" {
		return
	}
	if script, err := dialogue.Parse(reply); err == nil {
		for _, l := range script.Lines {
			if l.Kind == dialogue.KindCharacter {
				o.metrics.RecordNPCUtterance(ctx, l.Speaker)
			}
		}
	}
	if o.log == nil {
		return
	}
	npcID := req.NPCID
	if npcID == "" {
		npcID = req.SceneID
	}
	if _, err := o.log.AppendTurn(ctx, req.PlayerID, npcID, req.PlayerID, req.Sentence); err != nil {
		observe.Logger(ctx).Warn("append player turn to conversation log", "err", err)
		return
	}
	if _, err := o.log.AppendTurn(ctx, req.PlayerID, npcID, npcID, reply); err != nil {
		observe.Logger(ctx).Warn("append npc turn to conversation log", "err", err)
		return
	}
	if o.consolidator != nil {
		o.consolidator.Track(req.PlayerID, npcID)
	}
}

func chatStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrSceneNotFound), errors.Is(err, ErrNPCNotFound):
		return "not_found"
	case errors.Is(err, ErrGeneration):
		return "generation_error"
	default:
		return "error"
	}
}
