package ollama

import (
	"context"

	"ragtune/src/core/rag"
)

// Provider binds a client to one model. It serves as the raw embedding
// client of a langchaingo embedder and as a rag.Generator.
type Provider struct {
	client    *Client
	modelName string
}

func NewProvider(client *Client, modelName string) *Provider {
	return &Provider{
		client:    client,
		modelName: modelName,
	}
}

// CreateEmbedding embeds texts one request at a time; the embeddings endpoint
// takes a single prompt.
func (p *Provider) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := p.client.GetEmbedding(ctx, p.modelName, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, opts rag.GenerateOptions) (string, error) {
	options := map[string]interface{}{
		"temperature": opts.Temperature,
	}
	if opts.MaxOutputTokens > 0 {
		options["num_predict"] = opts.MaxOutputTokens
	}

	req := GenerateRequest{
		Model:   p.modelName,
		Prompt:  prompt,
		Stream:  true,
		Options: options,
	}
	if opts.JSON {
		req.Format = "json"
	}
	return p.client.generate(ctx, req)
}
