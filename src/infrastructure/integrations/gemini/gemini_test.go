package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/genai"

	"ragtune/src/core/rag"
)

type fakeModels struct {
	model    string
	config   *genai.GenerateContentConfig
	prompt   string
	deadline bool
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	_, f.deadline = ctx.Deadline()
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func textResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: genai.RoleModel, Parts: parts}}},
	}
}

func TestGenerate(t *testing.T) {
	models := &fakeModels{resp: textResponse(
		&genai.Part{Text: "thinking...", Thought: true},
		&genai.Part{Text: `{"verdict": 1}`},
	)}
	gen := NewGeneratorWithModels(models, "", time.Minute)

	out, err := gen.Generate(context.Background(), "¿Qué cubre la póliza?", rag.GenerateOptions{Temperature: 0.3, MaxOutputTokens: 512, JSON: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != `{"verdict": 1}` {
		t.Errorf("Generate() = %q", out)
	}
	if models.model != DefaultModel {
		t.Errorf("model = %q, want %q", models.model, DefaultModel)
	}
	if models.prompt != "¿Qué cubre la póliza?" {
		t.Errorf("prompt = %q", models.prompt)
	}
	if !models.deadline {
		t.Error("request context has no deadline")
	}
	cfg := models.config
	if cfg.Temperature == nil || *cfg.Temperature != float32(0.3) || cfg.MaxOutputTokens != 512 || cfg.ResponseMIMEType != "application/json" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestGenerateErrors(t *testing.T) {
	apiErr := errors.New("quota exceeded")

	tests := []struct {
		name   string
		models *fakeModels
		want   error
	}{
		{name: "api error", models: &fakeModels{err: apiErr}, want: apiErr},
		{name: "no candidates", models: &fakeModels{resp: &genai.GenerateContentResponse{}}, want: rag.ErrEmptyResponse},
		{name: "only thoughts", models: &fakeModels{resp: textResponse(&genai.Part{Text: "hmm", Thought: true})}, want: rag.ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGeneratorWithModels(tt.models, "gemini-test", 0).Generate(context.Background(), "p", rag.GenerateOptions{})
			if !errors.Is(err, tt.want) {
				t.Errorf("Generate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewGeneratorRequiresKey(t *testing.T) {
	if _, err := NewGenerator(context.Background(), Config{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("NewGenerator() error = %v, want ErrMissingAPIKey", err)
	}
}
