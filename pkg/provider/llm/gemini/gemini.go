// Package gemini provides an LLM provider backed by Google's Gemini models
// through the google.golang.org/genai SDK, either on the Gemini API or on
// Vertex AI.
//
// Gemini is the only backend that honours per-category safety thresholds, so
// it is the default for narrative dialogue where the permissive settings
// matter.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

// Model names of the default dialogue tiers.
const (
	ModelFlash = "gemini-1.5-flash-002"
	ModelPro   = "gemini-1.5-pro-002"
	ModelText  = "gemini-1.5-flash-001"
)

// generator is the subset of *genai.Models used by the provider.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Provider implements llm.Provider on top of genai.
type Provider struct {
	models generator
	model  string
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

type config struct {
	vertex   bool
	project  string
	location string
	baseURL  string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithVertexAI routes requests to Vertex AI in the given project and
// location instead of the Gemini API. Credentials come from the ambient
// Google application default credentials.
func WithVertexAI(project, location string) Option {
	return func(c *config) {
		c.vertex = true
		c.project = project
		c.location = location
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// New creates a Gemini provider for model. apiKey may be empty when
// [WithVertexAI] is used.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("gemini: model must not be empty")
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	if apiKey == "" && !cfg.vertex {
		return nil, errors.New("gemini: apiKey must not be empty")
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.vertex {
		cc.APIKey = ""
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.project
		cc.Location = cfg.location
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Provider{models: client.Models, model: model}, nil
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	seq := p.models.GenerateContentStream(ctx, p.model, contents, buildConfig(req))
	return llm.Relay(ctx, func(yield func(llm.Chunk, error) bool) {
		for resp, err := range seq {
			if err != nil {
				yield(llm.Chunk{}, err)
				return
			}
			if !yield(llm.Chunk{Text: resp.Text(), FinishReason: finishReason(resp)}, nil) {
				return
			}
		}
	}), nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	resp, err := p.models.GenerateContent(ctx, p.model, contents, buildConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		reason := ""
		if resp.PromptFeedback != nil {
			reason = string(resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("gemini: no candidates in response (block reason %q)", reason)
	}

	out := &llm.CompletionResponse{
		Content:      resp.Text(),
		FinishReason: finishReason(resp),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

var limits = []llm.ModelLimit{
	{Prefix: "gemini-1.5-pro", ContextWindow: 2_097_152, MaxOutputTokens: 8_192},
	{Prefix: "gemini-2.5", ContextWindow: 1_048_576, MaxOutputTokens: 65_536},
}

func modelCapabilities(model string) llm.ModelCapabilities {
	return llm.LookupCapabilities(model, llm.ModelCapabilities{
		ContextWindow:          1_048_576,
		MaxOutputTokens:        8_192,
		SupportsStreaming:      true,
		SupportsSafetySettings: true,
	}, limits)
}

// convertMessages maps llm roles onto genai's user/model roles. System
// messages inside the history are rejected; the system prompt travels in
// the request config.
func convertMessages(msgs []llm.Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role
		switch m.Role {
		case llm.RoleUser:
			role = genai.RoleUser
		case llm.RoleAssistant:
			role = genai.RoleModel
		default:
			return nil, fmt.Errorf("gemini: unsupported message role %q", m.Role)
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents, nil
}

func buildConfig(req llm.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.TopP != 0 {
		cfg.TopP = genai.Ptr(float32(req.TopP))
	}
	if req.TopK != 0 {
		cfg.TopK = genai.Ptr(float32(req.TopK))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	for _, s := range req.Safety {
		cat, ok := harmCategories[s.Category]
		if !ok {
			continue
		}
		cfg.SafetySettings = append(cfg.SafetySettings, &genai.SafetySetting{
			Category:  cat,
			Threshold: thresholds[s.Threshold],
		})
	}
	return cfg
}

var harmCategories = map[llm.HarmCategory]genai.HarmCategory{
	llm.HarmHateSpeech:       genai.HarmCategoryHateSpeech,
	llm.HarmDangerousContent: genai.HarmCategoryDangerousContent,
	llm.HarmSexuallyExplicit: genai.HarmCategorySexuallyExplicit,
	llm.HarmHarassment:       genai.HarmCategoryHarassment,
}

var thresholds = map[llm.SafetyThreshold]genai.HarmBlockThreshold{
	llm.BlockNone:           genai.HarmBlockThresholdBlockNone,
	llm.BlockOnlyHigh:       genai.HarmBlockThresholdBlockOnlyHigh,
	llm.BlockMediumAndAbove: genai.HarmBlockThresholdBlockMediumAndAbove,
	llm.BlockLowAndAbove:    genai.HarmBlockThresholdBlockLowAndAbove,
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return ""
	}
	return llm.NormalizeFinish(string(resp.Candidates[0].FinishReason))
}
