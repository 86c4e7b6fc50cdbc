// Package llm is the model-facing side of dialogue generation: the request
// and response types every backend adapter translates to, and the helpers
// the adapters share. Providers must be safe for concurrent use.
package llm

import "context"

// Usage is the token accounting of one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is the
	// "user" turn that drives the response.
	Messages []Message

	// SystemPrompt is the fixed instruction the model follows for the whole
	// conversation. For scene dialogue it carries the character backgrounds,
	// the scene and the output format rules.
	SystemPrompt string

	// Sampling parameters. Zero leaves the backend default in place;
	// backends without top-k ignore TopK.
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int

	// Safety lists per-category blocking thresholds. Providers without
	// configurable safety filters ignore it.
	Safety []SafetySetting
}

// Chunk is one fragment of a streamed completion.
type Chunk struct {
	Text string

	// FinishReason is empty until the final chunk, which carries one of
	// [FinishStop], [FinishLength], [FinishSafety] or a backend specific
	// value. A chunk with [FinishError] ends a failed stream and its Text
	// is the error message.
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// FinishReason reports why generation stopped.
	FinishReason string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is one model on one backend.
type Provider interface {
	// StreamCompletion starts a completion and returns its chunks. The
	// channel is never nil when err is nil, and the implementation closes
	// it when generation ends or ctx is done. Failures after the stream has
	// started arrive as a [FinishError] chunk. Callers drain the channel;
	// [Relay] builds one with these properties from an iterator.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete waits for the whole completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities describes the model. It does not change over the life of
	// the Provider.
	Capabilities() ModelCapabilities
}
