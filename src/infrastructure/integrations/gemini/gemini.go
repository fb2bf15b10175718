package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"ragtune/src/core/rag"
	"ragtune/src/log"
)

const (
	DefaultModel   = "gemini-2.0-flash"
	DefaultTimeout = 300 * time.Second
)

var ErrMissingAPIKey = errors.New("gemini api key is not set")

// Models is the part of genai.Models the generator uses.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config configures the Gemini generator.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Generator implements rag.Generator on the Gemini API.
type Generator struct {
	models  Models
	model   string
	timeout time.Duration
}

var _ rag.Generator = (*Generator)(nil)

func NewGenerator(ctx context.Context, cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return NewGeneratorWithModels(client.Models, cfg.Model, cfg.Timeout), nil
}

// NewGeneratorWithModels builds a generator over an existing Models
// implementation.
func NewGeneratorWithModels(models Models, model string, timeout time.Duration) *Generator {
	if model == "" {
		model = DefaultModel
	}
	return &Generator{
		models:  models,
		model:   model,
		timeout: timeout,
	}
}

func (g *Generator) Generate(ctx context.Context, prompt string, opts rag.GenerateOptions) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}
	if opts.JSON {
		config.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		log.Debug("gemini returned no text", "model", g.model)
		return "", rag.ErrEmptyResponse
	}
	return text, nil
}

// responseText concatenates the text parts of the first candidate, skipping
// thought parts.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
