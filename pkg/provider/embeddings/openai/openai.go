// Package openai embeds text with the OpenAI embeddings API or a compatible
// server such as Ollama's /v1 endpoint. OpenAI has no task profiles, so the
// provider does not implement embeddings.TaskEmbedder.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/parley/pkg/provider/embeddings"
)

// DefaultModel is used when New gets no model.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// maxInputs is the most texts the API accepts in one request.
const maxInputs = 2048

// Provider embeds with one model.
type Provider struct {
	client     oai.Client
	model      string
	dimensions int
}

var _ embeddings.Provider = (*Provider)(nil)

type settings struct {
	requestOpts []option.RequestOption
	dimensions  int
}

// Option configures [New].
type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.requestOpts = append(s.requestOpts, option.WithBaseURL(url)) }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.requestOpts = append(s.requestOpts, option.WithHTTPClient(&http.Client{Timeout: d}))
		}
	}
}

// WithDimensions asks for vectors shortened to n values. Only the
// text-embedding-3 models support it. n has to match the vector column of
// the knowledge table.
func WithDimensions(n int) Option {
	return func(s *settings) { s.dimensions = n }
}

// New returns a provider for model, or [DefaultModel] when model is empty.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai embeddings: api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	s := settings{requestOpts: []option.RequestOption{option.WithAPIKey(apiKey)}}
	for _, o := range opts {
		o(&s)
	}
	if s.dimensions < 0 {
		return nil, fmt.Errorf("openai embeddings: negative dimensions %d", s.dimensions)
	}
	return &Provider{client: oai.NewClient(s.requestOpts...), model: model, dimensions: s.dimensions}, nil
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements embeddings.Provider. Inputs beyond the per-request
// limit are sent in further requests.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxInputs {
		end := min(start+maxInputs, len(texts))
		vecs, err := p.request(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// request embeds texts in one call and orders the vectors by input index.
func (p *Provider) request(ctx context.Context, texts []string) ([][]float32, error) {
	params := oai.EmbeddingNewParams{Model: p.model}
	if len(texts) == 1 {
		params.Input.OfString = param.NewOpt(texts[0])
	} else {
		params.Input.OfArrayOfStrings = texts
	}
	if p.dimensions > 0 {
		params.Dimensions = param.NewOpt(int64(p.dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d texts", len(resp.Data), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(vecs) || vecs[i] != nil {
			return nil, fmt.Errorf("openai embeddings: bad vector index %d", d.Index)
		}
		vecs[i] = make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vecs[i][j] = float32(v)
		}
	}
	return vecs, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	switch {
	case p.dimensions > 0:
		return p.dimensions
	case strings.HasPrefix(strings.ToLower(p.model), "text-embedding-3-large"):
		return 3072
	default:
		return 1536
	}
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.model }
