package gemini

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/parley/pkg/provider/embeddings"
)

type fakeEmbedder struct {
	vectors [][]float32
	err     error

	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.EmbedContentConfig
}

func (f *fakeEmbedder) EmbedContent(_ context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.gotModel, f.gotContents, f.gotConfig = model, contents, config
	if f.err != nil {
		return nil, f.err
	}
	resp := &genai.EmbedContentResponse{}
	for _, v := range f.vectors {
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: v})
	}
	return resp, nil
}

func TestEmbedTask_ForwardsTaskProfile(t *testing.T) {
	t.Parallel()
	fe := &fakeEmbedder{vectors: [][]float32{{0.1, 0.2}}}
	p := &Provider{models: fe, model: DefaultModel, dimensions: 2}

	vec, err := embeddings.EmbedTask(context.Background(), p, embeddings.TaskRequest{
		Text:     "The old king hid the crown beneath the chapel.",
		TaskType: embeddings.TaskRetrievalDocument,
		Title:    "Chapel secrets",
	})
	if err != nil {
		t.Fatalf("EmbedTask: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.1 {
		t.Errorf("vector = %v", vec)
	}
	if fe.gotModel != DefaultModel {
		t.Errorf("model = %q", fe.gotModel)
	}
	if fe.gotConfig.TaskType != embeddings.TaskRetrievalDocument || fe.gotConfig.Title != "Chapel secrets" {
		t.Errorf("config = %+v", fe.gotConfig)
	}
	if fe.gotConfig.OutputDimensionality == nil || *fe.gotConfig.OutputDimensionality != 2 {
		t.Error("output dimensionality not forwarded")
	}
	if fe.gotContents[0].Parts[0].Text != "The old king hid the crown beneath the chapel." {
		t.Errorf("content = %q", fe.gotContents[0].Parts[0].Text)
	}
}

func TestEmbed_NoTaskType(t *testing.T) {
	t.Parallel()
	fe := &fakeEmbedder{vectors: [][]float32{{1}}}
	p := &Provider{models: fe, model: DefaultModel}

	if _, err := p.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if fe.gotConfig.TaskType != "" || fe.gotConfig.OutputDimensionality != nil {
		t.Errorf("config = %+v, want defaults", fe.gotConfig)
	}
	if p.Dimensions() != defaultDimensions {
		t.Errorf("Dimensions() = %d", p.Dimensions())
	}
}

func TestEmbedBatch(t *testing.T) {
	t.Parallel()

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		p := &Provider{models: &fakeEmbedder{}, model: DefaultModel}
		got, err := p.EmbedBatch(context.Background(), nil)
		if err != nil || got != nil {
			t.Errorf("EmbedBatch(nil) = %v, %v", got, err)
		}
	})

	t.Run("count mismatch", func(t *testing.T) {
		t.Parallel()
		p := &Provider{models: &fakeEmbedder{vectors: [][]float32{{1}}}, model: DefaultModel}
		if _, err := p.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
			t.Error("expected error on count mismatch")
		}
	})

	t.Run("upstream error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("permission denied")
		p := &Provider{models: &fakeEmbedder{err: boom}, model: DefaultModel}
		if _, err := p.EmbedBatch(context.Background(), []string{"a"}); !errors.Is(err, boom) {
			t.Errorf("err = %v, want %v", err, boom)
		}
	})
}

func TestNew_RequiresKeyOrVertex(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), "", ""); err == nil {
		t.Error("expected error without api key")
	}
}
