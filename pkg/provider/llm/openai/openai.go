// Package openai runs dialogue generation on the OpenAI chat completions API
// or any server that speaks it (vLLM, LM Studio, Ollama's /v1 endpoint).
//
// The chat API has no top-k sampling and no per-category safety thresholds;
// both request fields are dropped. A response cut by the content filter
// finishes with [llm.FinishSafety].
package openai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"
	"unicode"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

// Provider generates completions with one OpenAI model.
type Provider struct {
	client oai.Client
	model  string
}

var _ llm.Provider = (*Provider)(nil)

type settings struct {
	requestOpts []option.RequestOption
}

// Option configures [New].
type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.requestOpts = append(s.requestOpts, option.WithBaseURL(url)) }
}

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(s *settings) { s.requestOpts = append(s.requestOpts, option.WithOrganization(org)) }
}

// WithTimeout bounds each HTTP request. Zero leaves requests bounded by their
// context only.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.requestOpts = append(s.requestOpts, option.WithHTTPClient(&http.Client{Timeout: d}))
		}
	}
}

// New returns a provider for model authenticated with apiKey.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: api key is required")
	case model == "":
		return nil, errors.New("openai: model is required")
	}
	s := settings{requestOpts: []option.RequestOption{option.WithAPIKey(apiKey)}}
	for _, o := range opts {
		o(&s)
	}
	return &Provider{client: oai.NewClient(s.requestOpts...), model: model}, nil
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("openai: open stream: %w", err)
	}
	return llm.Relay(ctx, chunks(stream)), nil
}

// chunks yields the first choice of every streamed event. Events without a
// choice, such as a trailing usage event, are skipped.
func chunks(stream *ssestream.Stream[oai.ChatCompletionChunk]) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {
		defer stream.Close()
		for stream.Next() {
			ev := stream.Current()
			if len(ev.Choices) == 0 {
				continue
			}
			c := ev.Choices[0]
			if !yield(llm.Chunk{Text: c.Delta.Content, FinishReason: llm.NormalizeFinish(string(c.FinishReason))}, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(llm.Chunk{}, fmt.Errorf("openai: stream: %w", err))
		}
	}
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: completion returned no choices")
	}
	c := resp.Choices[0]
	return &llm.CompletionResponse{
		Content:      c.Message.Content,
		FinishReason: llm.NormalizeFinish(string(c.FinishReason)),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// limits covers the OpenAI model families; anything else, including local
// models behind a compatible server, gets the defaults in Capabilities.
var limits = []llm.ModelLimit{
	{Prefix: "gpt-4.1", ContextWindow: 1_047_576, MaxOutputTokens: 32_768},
	{Prefix: "gpt-4o", ContextWindow: 128_000, MaxOutputTokens: 16_384},
	{Prefix: "gpt-4-turbo", ContextWindow: 128_000, MaxOutputTokens: 4_096},
	{Prefix: "gpt-4", ContextWindow: 8_192, MaxOutputTokens: 4_096},
	{Prefix: "gpt-3.5-turbo", ContextWindow: 16_385, MaxOutputTokens: 4_096},
	{Prefix: "o3", ContextWindow: 200_000, MaxOutputTokens: 100_000},
	{Prefix: "o4", ContextWindow: 200_000, MaxOutputTokens: 100_000},
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return llm.LookupCapabilities(p.model, llm.ModelCapabilities{
		ContextWindow:     128_000,
		MaxOutputTokens:   4_096,
		SupportsStreaming: true,
	}, limits)
}

func (p *Provider) params(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		msg, err := message(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		msgs = append(msgs, msg)
	}

	params := oai.ChatCompletionNewParams{Model: shared.ChatModel(p.model), Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.TopP != 0 {
		params.TopP = param.NewOpt(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

func message(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	name := participantName(m.Name)
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleUser:
		u := oai.ChatCompletionUserMessageParam{}
		u.Content.OfString = oai.String(m.Content)
		if name != "" {
			u.Name = oai.String(name)
		}
		return oai.ChatCompletionMessageParamUnion{OfUser: &u}, nil
	case llm.RoleAssistant:
		a := oai.ChatCompletionAssistantMessageParam{}
		a.Content.OfString = oai.String(m.Content)
		if name != "" {
			a.Name = oai.String(name)
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &a}, nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unsupported message role %q", m.Role)
	}
}

// participantName makes a speaker id acceptable as a message name, which
// must not contain whitespace or any of <|\/>.
func participantName(id string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(`<|\/>`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(id))
}
