// Package mock provides a scripted embeddings backend for tests. It
// implements both [embeddings.Provider] and [embeddings.TaskEmbedder].
//
//	p := &mock.Provider{EmbedResult: []float32{1, 0, 0}, DimensionsValue: 3}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/embeddings"
)

// Provider returns the configured vectors and records what it was asked to
// embed.
type Provider struct {
	EmbedResult []float32
	EmbedErr    error

	// EmbedBatchResult is returned as is. When nil, EmbedBatch returns one
	// nil vector per text.
	EmbedBatchResult [][]float32
	EmbedBatchErr    error

	// EmbedTaskResult falls back to EmbedResult when nil.
	EmbedTaskResult []float32
	EmbedTaskErr    error

	DimensionsValue int
	ModelIDValue    string

	mu              sync.Mutex
	EmbedCalls      []string
	EmbedBatchCalls [][]string
	EmbedTaskCalls  []embeddings.TaskRequest
}

var (
	_ embeddings.Provider     = (*Provider)(nil)
	_ embeddings.TaskEmbedder = (*Provider)(nil)
)

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	return p.EmbedResult, p.EmbedErr
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, slices.Clone(texts))
	switch {
	case p.EmbedBatchErr != nil:
		return nil, p.EmbedBatchErr
	case p.EmbedBatchResult != nil:
		return p.EmbedBatchResult, nil
	default:
		return make([][]float32, len(texts)), nil
	}
}

// EmbedTask implements embeddings.TaskEmbedder.
func (p *Provider) EmbedTask(_ context.Context, req embeddings.TaskRequest) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedTaskCalls = append(p.EmbedTaskCalls, req)
	switch {
	case p.EmbedTaskErr != nil:
		return nil, p.EmbedTaskErr
	case p.EmbedTaskResult != nil:
		return p.EmbedTaskResult, nil
	default:
		return p.EmbedResult, nil
	}
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.ModelIDValue }
