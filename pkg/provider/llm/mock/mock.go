// Package mock provides a scripted [llm.Provider] for tests.
//
//	p := &mock.Provider{
//		CompleteResponse: &llm.CompletionResponse{Content: "[CHAR(bob)]Aye."},
//	}
//
// Set the response fields before the first call. Every call is recorded
// with its request.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

// Call is one recorded request.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider answers every request with the configured response.
type Provider struct {
	// StreamChunks are emitted in order by StreamCompletion, unless StreamErr
	// is set.
	StreamChunks []llm.Chunk
	StreamErr    error

	// CompleteResponse and CompleteErr are returned by Complete as they are.
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	ModelCapabilities llm.ModelCapabilities

	mu            sync.Mutex
	StreamCalls   []Call
	CompleteCalls []Call
}

var _ llm.Provider = (*Provider)(nil)

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, Call{Ctx: ctx, Req: req})
	chunks, err := slices.Clone(p.StreamChunks), p.StreamErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return llm.Relay(ctx, func(yield func(llm.Chunk, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}), nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, Call{Ctx: ctx, Req: req})
	return p.CompleteResponse, p.CompleteErr
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.ModelCapabilities
}

// Calls returns a copy of the Complete calls so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.CompleteCalls)
}

// Reset forgets all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StreamCalls, p.CompleteCalls = nil, nil
}
