// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider maps text to dense float32 vectors. Vectors are used
// for lore-level knowledge search: knowledge rows are embedded when they are
// ingested and player utterances are embedded at query time.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Task types understood by [TaskEmbedder] implementations. They select the
// embedding profile on backends that distinguish between indexed documents
// and search queries.
const (
	TaskRetrievalQuery     = "RETRIEVAL_QUERY"
	TaskRetrievalDocument  = "RETRIEVAL_DOCUMENT"
	TaskSemanticSimilarity = "SEMANTIC_SIMILARITY"
	TaskClassification     = "CLASSIFICATION"
	TaskClustering         = "CLUSTERING"
)

// Provider is the abstraction over any text-embedding backend.
//
// All embedding vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions). Vectors from different providers
// must not be compared.
type Provider interface {
	// Embed computes the embedding vector for a single text string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of text strings in a
	// single provider call. The i-th result corresponds to texts[i]. On error
	// the entire slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every embedding vector produced
	// by this provider.
	Dimensions() int

	// ModelID returns the provider-specific model identifier.
	ModelID() string
}

// TaskRequest is a single embedding request with an optional task profile.
type TaskRequest struct {
	// Text is the content to embed.
	Text string

	// TaskType selects the embedding profile (see the Task constants). Empty
	// means the backend default.
	TaskType string

	// Title is an optional document title. Only meaningful with
	// [TaskRetrievalDocument].
	Title string
}

// TaskEmbedder is implemented by providers whose backend distinguishes
// embedding task profiles.
type TaskEmbedder interface {
	EmbedTask(ctx context.Context, req TaskRequest) ([]float32, error)
}

// EmbedTask embeds req with p, using the task profile when p implements
// [TaskEmbedder] and req.TaskType is set, and plain [Provider.Embed] otherwise.
func EmbedTask(ctx context.Context, p Provider, req TaskRequest) ([]float32, error) {
	if te, ok := p.(TaskEmbedder); ok && req.TaskType != "" {
		return te.EmbedTask(ctx, req)
	}
	return p.Embed(ctx, req.Text)
}
