// Package gemini provides an embeddings provider backed by Google's
// text-embedding models through the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/MrWong99/parley/pkg/provider/embeddings"
)

// DefaultModel is the multilingual embedding model used for lore knowledge.
const DefaultModel = "text-multilingual-embedding-002"

// defaultDimensions is the native vector length of the text-embedding-00x
// family.
const defaultDimensions = 768

var (
	_ embeddings.Provider     = (*Provider)(nil)
	_ embeddings.TaskEmbedder = (*Provider)(nil)
)

type embedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Provider implements embeddings.Provider and embeddings.TaskEmbedder.
type Provider struct {
	models     embedder
	model      string
	dimensions int
}

type config struct {
	vertex     bool
	project    string
	location   string
	dimensions int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithVertexAI routes requests to Vertex AI in the given project and location.
func WithVertexAI(project, location string) Option {
	return func(c *config) {
		c.vertex = true
		c.project = project
		c.location = location
	}
}

// WithDimensions truncates output vectors to n dimensions.
func WithDimensions(n int) Option {
	return func(c *config) {
		c.dimensions = n
	}
}

// New creates a Gemini embeddings provider. If model is empty DefaultModel
// is used.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	if apiKey == "" && !cfg.vertex {
		return nil, errors.New("gemini embeddings: apiKey must not be empty")
	}

	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if cfg.vertex {
		cc = &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.project,
			Location: cfg.location,
		}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: new client: %w", err)
	}
	return &Provider{models: client.Models, model: model, dimensions: cfg.dimensions}, nil
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.EmbedTask(ctx, embeddings.TaskRequest{Text: text})
}

// EmbedTask implements embeddings.TaskEmbedder.
func (p *Provider) EmbedTask(ctx context.Context, req embeddings.TaskRequest) ([]float32, error) {
	cfg := p.baseConfig()
	cfg.TaskType = req.TaskType
	cfg.Title = req.Title

	vecs, err := p.embed(ctx, []string{req.Text}, cfg)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return p.embed(ctx, texts, p.baseConfig())
}

func (p *Provider) baseConfig() *genai.EmbedContentConfig {
	cfg := &genai.EmbedContentConfig{}
	if p.dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(p.dimensions))
	}
	return cfg
}

func (p *Provider) embed(ctx context.Context, texts []string, cfg *genai.EmbedContentConfig) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	resp, err := p.models.EmbedContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings: embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embeddings: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}
	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.dimensions > 0 {
		return p.dimensions
	}
	return defaultDimensions
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.model }
