// Package generate wraps the model providers with the calls the dialogue
// pipeline needs: stateful multi-turn generation backed by the session
// history store, stateless single-turn generation, a streamed one-shot
// question and text embedding.
//
// Provider errors are returned unchanged apart from wrapping. Nothing in
// this package retries.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/pkg/provider/embeddings"
	"github.com/MrWong99/parley/pkg/provider/llm"
)

// ErrNoEmbeddings is returned by [Generator.TextEmbedding] when no
// embeddings provider is configured.
var ErrNoEmbeddings = errors.New("generate: no embeddings provider configured")

// GenerationConfig holds the sampling parameters sent with every call.
type GenerationConfig struct {
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	TopK        int     `yaml:"top_k"`
}

// DefaultGeneration are the sampling defaults for narrative generation.
var DefaultGeneration = GenerationConfig{
	MaxTokens:   8192,
	Temperature: 1,
	TopP:        0.95,
	TopK:        40,
}

// DefaultSafety lets all four harm categories through. Game dialogue is
// fiction and routinely contains threats and violence.
func DefaultSafety() []llm.SafetySetting {
	return []llm.SafetySetting{
		{Category: llm.HarmHateSpeech, Threshold: llm.BlockNone},
		{Category: llm.HarmDangerousContent, Threshold: llm.BlockNone},
		{Category: llm.HarmSexuallyExplicit, Threshold: llm.BlockNone},
		{Category: llm.HarmHarassment, Threshold: llm.BlockNone},
	}
}

// Generator issues model calls. It is safe for concurrent use.
type Generator struct {
	models  Models
	history *session.HistoryStore
	gen     GenerationConfig
	safety  []llm.SafetySetting
	metrics *observe.Metrics
	now     func() time.Time
}

// Option is a functional option for [New].
type Option func(*Generator)

// WithGeneration overrides [DefaultGeneration].
func WithGeneration(c GenerationConfig) Option {
	return func(g *Generator) { g.gen = c }
}

// WithSafety overrides [DefaultSafety].
func WithSafety(s []llm.SafetySetting) Option {
	return func(g *Generator) { g.safety = s }
}

// WithMetrics records call latency and errors to m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithClock overrides the time source used to stamp persisted turns.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New creates a Generator. history may be nil when multi-turn generation
// is not used.
func New(models Models, history *session.HistoryStore, opts ...Option) *Generator {
	g := &Generator{
		models:  models,
		history: history,
		gen:     DefaultGeneration,
		safety:  DefaultSafety(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// Models returns the tier bindings the generator was built with.
func (g *Generator) Models() Models {
	return g.models
}

// MultiturnRequest describes one stateful generation call.
type MultiturnRequest struct {
	NPCID string
	// Background is the system instruction for the whole conversation.
	Background string
	// Query is the user turn sent to the model.
	Query     string
	SpeakerID string
	SessionID string
	// SceneID scopes the history to the scene when set.
	SceneID string
	Tier    Tier
}

// MultiturnGenerate loads the session history, sends it with req.Query to
// the model and persists prior + query + response back to the store. It
// returns the response text and the history as it was before this call.
//
// The load and the save are separate store calls; see the session package
// for the consequences under concurrency. Nothing is persisted when the
// model call fails.
func (g *Generator) MultiturnGenerate(ctx context.Context, req MultiturnRequest) (string, []session.ConversationTurn, error) {
	if g.history == nil {
		return "", nil, errors.New("generate: multiturn: no history store")
	}
	key := session.DeriveKey(req.SceneID, req.NPCID, req.SpeakerID, req.SessionID)

	prior, err := g.history.Get(ctx, key)
	if err != nil {
		return "", nil, fmt.Errorf("generate: multiturn: %w", err)
	}

	msgs := make([]llm.Message, 0, len(prior)+1)
	for _, t := range prior {
		msgs = append(msgs, turnMessage(t))
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: req.Query, Name: req.SpeakerID})

	asked := g.now()
	resp, err := g.complete(ctx, req.Tier, "multiturn", llm.CompletionRequest{
		SystemPrompt: req.Background,
		Messages:     msgs,
	})
	if err != nil {
		return "", nil, err
	}

	updated := make([]session.ConversationTurn, 0, len(prior)+2)
	updated = append(updated, prior...)
	updated = append(updated,
		session.ConversationTurn{Role: session.RolePlayer, Text: req.Query, Timestamp: asked},
		session.ConversationTurn{Role: session.RoleCharacter, Text: resp, Timestamp: g.now()},
	)
	if _, err := g.history.Set(ctx, key, updated); err != nil {
		return "", nil, fmt.Errorf("generate: multiturn: %w", err)
	}
	return resp, prior, nil
}

// SingleturnGenerate sends background as system instruction and query as
// the only user turn. No history is read or written.
func (g *Generator) SingleturnGenerate(ctx context.Context, tier Tier, background, query string) (string, error) {
	return g.complete(ctx, tier, "singleturn", llm.CompletionRequest{
		SystemPrompt: background,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: query}},
	})
}

// AskLLM streams a one-shot answer to prompt and returns the concatenated
// text with code fences removed (see [StripFences]).
func (g *Generator) AskLLM(ctx context.Context, tier Tier, prompt string) (string, error) {
	p := g.models.For(tier)
	if p == nil {
		return "", fmt.Errorf("generate: ask: no provider for tier %s", tier)
	}
	req := g.request(p, llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})

	start := time.Now()
	text, err := collect(ctx, p, req)
	g.observe(ctx, tier, "ask", start, err)
	if err != nil {
		return "", fmt.Errorf("generate: ask (%s): %w", tier, err)
	}
	return StripFences(text), nil
}

// TextEmbedding embeds text. taskType selects the embedding profile when
// non-empty and the provider supports profiles; title is passed along for
// document embeddings.
func (g *Generator) TextEmbedding(ctx context.Context, taskType, text, title string) ([]float32, error) {
	p := g.models.Embeddings
	if p == nil {
		return nil, ErrNoEmbeddings
	}
	start := time.Now()
	vec, err := embeddings.EmbedTask(ctx, p, embeddings.TaskRequest{
		Text:     text,
		TaskType: taskType,
		Title:    title,
	})
	g.metrics.EmbeddingDuration.Record(ctx, time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
		g.metrics.RecordProviderError(ctx, p.ModelID(), "embeddings")
	}
	g.metrics.RecordProviderRequest(ctx, p.ModelID(), "embeddings", status)
	if err != nil {
		return nil, fmt.Errorf("generate: embed: %w", err)
	}
	return vec, nil
}

func (g *Generator) complete(ctx context.Context, tier Tier, call string, req llm.CompletionRequest) (string, error) {
	p := g.models.For(tier)
	if p == nil {
		return "", fmt.Errorf("generate: %s: no provider for tier %s", call, tier)
	}
	req = g.request(p, req)

	start := time.Now()
	resp, err := p.Complete(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	g.observe(ctx, tier, call, start, err)
	if err != nil {
		return "", fmt.Errorf("generate: %s (%s): %w", call, tier, err)
	}
	return resp.Content, nil
}

// request applies the generation and safety defaults, clamping MaxTokens to
// what the model can produce.
func (g *Generator) request(p llm.Provider, req llm.CompletionRequest) llm.CompletionRequest {
	req.Temperature = g.gen.Temperature
	req.TopP = g.gen.TopP
	req.TopK = g.gen.TopK
	req.MaxTokens = g.gen.MaxTokens
	if limit := p.Capabilities().MaxOutputTokens; limit > 0 && req.MaxTokens > limit {
		req.MaxTokens = limit
	}
	req.Safety = g.safety
	return req
}

func (g *Generator) observe(ctx context.Context, tier Tier, call string, start time.Time, err error) {
	g.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			observe.Attr("tier", tier.String()),
			observe.Attr("call", call),
		),
	)
	status := "ok"
	if err != nil {
		status = "error"
		g.metrics.RecordProviderError(ctx, tier.String(), "llm")
	}
	g.metrics.RecordProviderRequest(ctx, tier.String(), "llm", status)
}

// collect drains a completion stream into a single string. A chunk with
// finish reason [llm.FinishError] aborts with its text as the error message.
func collect(ctx context.Context, p llm.Provider, req llm.CompletionRequest) (string, error) {
	ch, err := p.StreamCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			go drain(ch)
			return "", ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return sb.String(), nil
			}
			if chunk.FinishReason == llm.FinishError {
				go drain(ch)
				return "", errors.New(chunk.Text)
			}
			sb.WriteString(chunk.Text)
		}
	}
}

func drain(ch <-chan llm.Chunk) {
	for range ch {
	}
}

// StripFences removes a markdown code fence from s. When s contains a
// fence, the ```json and ```html openers are dropped and the text is cut
// at the next fence.
func StripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```html", "")
	// A bare ``` opener with nothing before it is not the closing fence.
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func turnMessage(t session.ConversationTurn) llm.Message {
	if t.Role == session.RolePlayer {
		return llm.Message{Role: llm.RoleUser, Content: t.Text}
	}
	return llm.Message{Role: llm.RoleAssistant, Content: t.Text}
}
