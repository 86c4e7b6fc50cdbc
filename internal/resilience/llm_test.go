package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/parley/pkg/provider/llm"
	llmmock "github.com/MrWong99/parley/pkg/provider/llm/mock"
)

func drainText(t *testing.T, ch <-chan llm.Chunk) string {
	t.Helper()
	var s string
	for c := range ch {
		s += c.Text
	}
	return s
}

func TestLLMGroup_Complete(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("primary down")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from secondary"}}

	g := NewLLMGroup("primary", primary, BreakerConfig{MaxFailures: 3})
	g.Add("secondary", secondary)

	resp, err := g.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "from secondary" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(primary.CompleteCalls) != 1 || len(secondary.CompleteCalls) != 1 {
		t.Errorf("calls = %d/%d", len(primary.CompleteCalls), len(secondary.CompleteCalls))
	}
}

func TestLLMGroup_StreamCompletion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		primary *llmmock.Provider
		want    string
	}{
		{
			name:    "primary streams",
			primary: &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "a"}, {Text: "b", FinishReason: "stop"}}},
			want:    "ab",
		},
		{
			name:    "primary refuses",
			primary: &llmmock.Provider{StreamErr: errors.New("unavailable")},
			want:    "fallback",
		},
		{
			name:    "primary errors on first chunk",
			primary: &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "quota", FinishReason: "error"}}},
			want:    "fallback",
		},
		{
			name:    "primary empty stream",
			primary: &llmmock.Provider{},
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			secondary := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "fallback", FinishReason: "stop"}}}
			g := NewLLMGroup("primary", tt.primary, BreakerConfig{MaxFailures: 3})
			g.Add("secondary", secondary)

			ch, err := g.StreamCompletion(context.Background(), llm.CompletionRequest{})
			if err != nil {
				t.Fatal(err)
			}
			if got := drainText(t, ch); got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLLMGroup_Capabilities(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{ModelCapabilities: llm.ModelCapabilities{MaxOutputTokens: 8192}}
	g := NewLLMGroup("primary", primary, BreakerConfig{})
	g.Add("secondary", &llmmock.Provider{})
	if got := g.Capabilities().MaxOutputTokens; got != 8192 {
		t.Errorf("MaxOutputTokens = %d", got)
	}
}
