package resilience

import (
	"context"

	"github.com/MrWong99/parley/pkg/provider/embeddings"
)

// EmbeddingsGroup is an [embeddings.Provider] that fails over between
// embedding backends. All members must produce vectors of the same
// dimension; vectors from different models are only comparable when the
// fallback is the same model served elsewhere.
type EmbeddingsGroup struct {
	group *Group[embeddings.Provider]
}

var (
	_ embeddings.Provider     = (*EmbeddingsGroup)(nil)
	_ embeddings.TaskEmbedder = (*EmbeddingsGroup)(nil)
)

// NewEmbeddingsGroup creates an EmbeddingsGroup with primary as the
// preferred backend.
func NewEmbeddingsGroup(name string, primary embeddings.Provider, cfg BreakerConfig) *EmbeddingsGroup {
	return &EmbeddingsGroup{group: NewGroup(name, primary, cfg)}
}

// Available reports per backend whether it accepts calls.
func (e *EmbeddingsGroup) Available() map[string]bool {
	return e.group.Available()
}

// Add registers a fallback backend.
func (e *EmbeddingsGroup) Add(name string, p embeddings.Provider) {
	e.group.Add(name, p)
}

// Embed implements [embeddings.Provider].
func (e *EmbeddingsGroup) Embed(ctx context.Context, text string) ([]float32, error) {
	return Do(ctx, e.group, func(p embeddings.Provider) ([]float32, error) {
		return p.Embed(ctx, text)
	})
}

// EmbedBatch implements [embeddings.Provider].
func (e *EmbeddingsGroup) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return Do(ctx, e.group, func(p embeddings.Provider) ([][]float32, error) {
		return p.EmbedBatch(ctx, texts)
	})
}

// EmbedTask implements [embeddings.TaskEmbedder]. Members without task
// profiles fall back to plain embedding.
func (e *EmbeddingsGroup) EmbedTask(ctx context.Context, req embeddings.TaskRequest) ([]float32, error) {
	return Do(ctx, e.group, func(p embeddings.Provider) ([]float32, error) {
		return embeddings.EmbedTask(ctx, p, req)
	})
}

// Dimensions reports the primary backend's dimension.
func (e *EmbeddingsGroup) Dimensions() int {
	return e.group.Primary().Dimensions()
}

// ModelID reports the primary backend's model.
func (e *EmbeddingsGroup) ModelID() string {
	return e.group.Primary().ModelID()
}
