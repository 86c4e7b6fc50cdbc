package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

// LLMGroup is an [llm.Provider] that fails over between model backends.
type LLMGroup struct {
	group *Group[llm.Provider]
}

var _ llm.Provider = (*LLMGroup)(nil)

// NewLLMGroup creates an LLMGroup with primary as the preferred backend.
func NewLLMGroup(name string, primary llm.Provider, cfg BreakerConfig) *LLMGroup {
	return &LLMGroup{group: NewGroup(name, primary, cfg)}
}

// Available reports per backend whether it accepts calls.
func (l *LLMGroup) Available() map[string]bool {
	return l.group.Available()
}

// Add registers a fallback backend.
func (l *LLMGroup) Add(name string, p llm.Provider) {
	l.group.Add(name, p)
}

// States reports the breaker state per backend.
func (l *LLMGroup) States() map[string]State {
	return l.group.States()
}

// Complete implements [llm.Provider].
func (l *LLMGroup) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, l.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion implements [llm.Provider]. A backend whose first chunk
// already reports an error counts as failed and the next one is tried.
// Errors later in the stream reach the caller as usual.
func (l *LLMGroup) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return Do(ctx, l.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		ch, err := p.StreamCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		first, ok := <-ch
		if !ok {
			return closedStream(), nil
		}
		if first.FinishReason == llm.FinishError {
			for range ch {
			}
			return nil, errors.New(first.Text)
		}
		return prepend(first, ch), nil
	})
}

// Capabilities reports the primary backend's capabilities.
func (l *LLMGroup) Capabilities() llm.ModelCapabilities {
	return l.group.Primary().Capabilities()
}

func closedStream() <-chan llm.Chunk {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch
}

// prepend returns a stream that yields first and then everything from rest.
func prepend(first llm.Chunk, rest <-chan llm.Chunk) <-chan llm.Chunk {
	out := make(chan llm.Chunk, 1)
	out <- first
	go func() {
		defer close(out)
		for c := range rest {
			out <- c
		}
	}()
	return out
}
