// Package anyllm runs dialogue generation on any backend supported by
// github.com/mozilla-ai/any-llm-go. It serves the tiers configured with a
// provider that has no dedicated package, such as Anthropic, Mistral or a
// local Ollama:
//
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey(key))
//
// any-llm has no top-k and no safety thresholds, so both request fields are
// dropped.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

type factory func(opts ...anyllmlib.Option) (anyllmlib.Provider, error)

func backend[P anyllmlib.Provider](newFn func(...anyllmlib.Option) (P, error)) factory {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		p, err := newFn(opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

var factories = map[string]factory{
	"anthropic": backend(anthropic.New),
	"deepseek":  backend(deepseek.New),
	"gemini":    backend(gemini.New),
	"groq":      backend(groq.New),
	"llamacpp":  backend(llamacpp.New),
	"llamafile": backend(llamafile.New),
	"mistral":   backend(mistral.New),
	"ollama":    backend(ollama.New),
	"openai":    backend(anyllmoai.New),
}

// Backends returns the sorted backend names accepted by [New].
func Backends() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Provider generates completions with one model on one any-llm backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New opens backend for model. Without an API key option the backend reads
// its usual environment variable (ANTHROPIC_API_KEY, MISTRAL_API_KEY, ...).
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	switch {
	case backend == "":
		return nil, errors.New("anyllm: backend is required")
	case model == "":
		return nil, errors.New("anyllm: model is required")
	}
	newFn, ok := factories[strings.ToLower(backend)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unknown backend %q, want one of %s", backend, strings.Join(Backends(), ", "))
	}
	b, err := newFn(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: open %s: %w", backend, err)
	}
	return &Provider{backend: b, model: model}, nil
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	events, errs := p.backend.CompletionStream(ctx, p.params(req))
	return llm.Relay(ctx, func(yield func(llm.Chunk, error) bool) {
		for ev := range events {
			if len(ev.Choices) == 0 {
				continue
			}
			c := ev.Choices[0]
			if !yield(llm.Chunk{Text: c.Delta.Content, FinishReason: llm.NormalizeFinish(string(c.FinishReason))}, nil) {
				return
			}
		}
		if err := <-errs; err != nil {
			yield(llm.Chunk{}, fmt.Errorf("anyllm: stream: %w", err))
		}
	}), nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("anyllm: completion returned no choices")
	}
	c := resp.Choices[0]
	out := &llm.CompletionResponse{
		Content:      c.Message.ContentString(),
		FinishReason: llm.NormalizeFinish(string(c.FinishReason)),
	}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	return out, nil
}

// limits spans the model families reachable through any-llm, most specific
// prefix first.
var limits = []llm.ModelLimit{
	{Prefix: "gpt-4o", ContextWindow: 128_000, MaxOutputTokens: 16_384},
	{Prefix: "gpt-4", ContextWindow: 8_192, MaxOutputTokens: 4_096},
	{Prefix: "claude-3-opus", ContextWindow: 200_000, MaxOutputTokens: 4_096},
	{Prefix: "claude", ContextWindow: 200_000, MaxOutputTokens: 8_192},
	{Prefix: "gemini-1.5-pro", ContextWindow: 2_097_152, MaxOutputTokens: 8_192},
	{Prefix: "gemini", ContextWindow: 1_048_576, MaxOutputTokens: 8_192},
	{Prefix: "deepseek", ContextWindow: 65_536, MaxOutputTokens: 8_192},
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

func modelCapabilities(model string) llm.ModelCapabilities {
	return llm.LookupCapabilities(model, llm.ModelCapabilities{
		ContextWindow:     128_000,
		MaxOutputTokens:   4_096,
		SupportsStreaming: true,
	}, limits)
}

func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, convertMessage(m))
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = ptr(req.Temperature)
	}
	if req.TopP != 0 {
		params.TopP = ptr(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = ptr(req.MaxTokens)
	}
	return params
}

func convertMessage(m llm.Message) anyllmlib.Message {
	return anyllmlib.Message{Role: m.Role, Content: m.Content, Name: m.Name}
}

func ptr[T any](v T) *T { return &v }
