package gemini

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

type fakeGenerator struct {
	resp      *genai.GenerateContentResponse
	err       error
	stream    []*genai.GenerateContentResponse
	streamErr error

	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel, f.gotContents, f.gotConfig = model, contents, config
	return f.resp, f.err
}

func (f *fakeGenerator) GenerateContentStream(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.gotModel, f.gotContents, f.gotConfig = model, contents, config
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, r := range f.stream {
			if !yield(r, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield(nil, f.streamErr)
		}
	}
}

func textResponse(text string, reason genai.FinishReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      genai.NewContentFromText(text, genai.RoleModel),
			FinishReason: reason,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     10,
			CandidatesTokenCount: 5,
			TotalTokenCount:      15,
		},
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()
	fg := &fakeGenerator{resp: textResponse("[CHAR(Bob)]Hello", genai.FinishReasonStop)}
	p := &Provider{models: fg, model: ModelFlash}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "You are Bob.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "[CHAR(P1:Bob)]Hi"},
			{Role: llm.RoleAssistant, Content: "[CHAR(Bob)]Hey"},
			{Role: llm.RoleUser, Content: "[CHAR(P1:Bob)]How are you?"},
		},
		Temperature: 1,
		TopP:        0.95,
		TopK:        40,
		MaxTokens:   8192,
		Safety: []llm.SafetySetting{
			{Category: llm.HarmHateSpeech, Threshold: llm.BlockNone},
			{Category: llm.HarmHarassment, Threshold: llm.BlockOnlyHigh},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "[CHAR(Bob)]Hello" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("finish reason = %q, want stop", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("total tokens = %d, want 15", resp.Usage.TotalTokens)
	}

	if fg.gotModel != ModelFlash {
		t.Errorf("model = %q", fg.gotModel)
	}
	if len(fg.gotContents) != 3 {
		t.Fatalf("contents = %d, want 3", len(fg.gotContents))
	}
	if fg.gotContents[1].Role != genai.RoleModel {
		t.Errorf("assistant turn role = %q, want model", fg.gotContents[1].Role)
	}
	cfg := fg.gotConfig
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "You are Bob." {
		t.Error("system instruction not forwarded")
	}
	if cfg.Temperature == nil || *cfg.Temperature != 1 {
		t.Errorf("temperature = %v", cfg.Temperature)
	}
	if cfg.TopP == nil || *cfg.TopP != 0.95 {
		t.Errorf("top_p = %v", cfg.TopP)
	}
	if cfg.TopK == nil || *cfg.TopK != 40 {
		t.Errorf("top_k = %v", cfg.TopK)
	}
	if cfg.MaxOutputTokens != 8192 {
		t.Errorf("max output tokens = %d", cfg.MaxOutputTokens)
	}
	if len(cfg.SafetySettings) != 2 {
		t.Fatalf("safety settings = %d, want 2", len(cfg.SafetySettings))
	}
	if cfg.SafetySettings[0].Category != genai.HarmCategoryHateSpeech ||
		cfg.SafetySettings[0].Threshold != genai.HarmBlockThresholdBlockNone {
		t.Errorf("safety[0] = %+v", cfg.SafetySettings[0])
	}
	if cfg.SafetySettings[1].Threshold != genai.HarmBlockThresholdBlockOnlyHigh {
		t.Errorf("safety[1] = %+v", cfg.SafetySettings[1])
	}
}

func TestComplete_Errors(t *testing.T) {
	t.Parallel()

	t.Run("upstream error wrapped", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("quota exceeded")
		p := &Provider{models: &fakeGenerator{err: boom}, model: ModelText}
		_, err := p.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "x"}}})
		if !errors.Is(err, boom) {
			t.Errorf("err = %v, want wrapped %v", err, boom)
		}
	})

	t.Run("blocked prompt", func(t *testing.T) {
		t.Parallel()
		resp := &genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		}
		p := &Provider{models: &fakeGenerator{resp: resp}, model: ModelText}
		_, err := p.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "x"}}})
		if err == nil || !strings.Contains(err.Error(), "no candidates") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("system role in history rejected", func(t *testing.T) {
		t.Parallel()
		p := &Provider{models: &fakeGenerator{}, model: ModelText}
		_, err := p.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{{Role: "system", Content: "x"}}})
		if err == nil {
			t.Error("expected error for system role")
		}
	})
}

func TestStreamCompletion(t *testing.T) {
	t.Parallel()
	fg := &fakeGenerator{
		stream: []*genai.GenerateContentResponse{
			textResponse("[CHAR(Bob)]Hel", ""),
			textResponse("lo", genai.FinishReasonStop),
		},
	}
	p := &Provider{models: fg, model: ModelText}

	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "review this"}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	var sb strings.Builder
	var last string
	for c := range ch {
		sb.WriteString(c.Text)
		last = c.FinishReason
	}
	if sb.String() != "[CHAR(Bob)]Hello" {
		t.Errorf("streamed text = %q", sb.String())
	}
	if last != "stop" {
		t.Errorf("final finish reason = %q", last)
	}
}

func TestStreamCompletion_MidStreamError(t *testing.T) {
	t.Parallel()
	fg := &fakeGenerator{
		stream:    []*genai.GenerateContentResponse{textResponse("partial", "")},
		streamErr: errors.New("connection reset"),
	}
	p := &Provider{models: fg, model: ModelText}

	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	var chunks []llm.Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if chunks[1].FinishReason != "error" || chunks[1].Text != "connection reset" {
		t.Errorf("error chunk = %+v", chunks[1])
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()
	if c := modelCapabilities(ModelPro); c.ContextWindow != 2_097_152 || c.MaxOutputTokens != 8_192 {
		t.Errorf("pro caps = %+v", c)
	}
	if c := modelCapabilities(ModelFlash); !c.SupportsSafetySettings || c.ContextWindow != 1_048_576 {
		t.Errorf("flash caps = %+v", c)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	if _, err := New(ctx, "key", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New(ctx, "", ModelFlash); err == nil {
		t.Error("expected error for empty api key without Vertex AI")
	}
}
