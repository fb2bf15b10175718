// Package tei talks to a HuggingFace text-embeddings-inference server.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultURL       = "http://localhost:8081"
	DefaultBatchSize = 32
)

type embedRequest struct {
	Inputs    []string `json:"inputs"`
	Normalize bool     `json:"normalize"`
	Truncate  bool     `json:"truncate"`
}

// Client is a TEI embedding client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	batchSize  int
}

func NewClient(baseURL string, c *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if c == nil {
		c = http.DefaultClient
	}
	return &Client{
		httpClient: c,
		baseURL:    strings.TrimRight(baseURL, "/"),
		batchSize:  DefaultBatchSize,
	}
}

// CreateEmbedding embeds texts in batches through POST /embed.
func (c *Client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vectors, err := c.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("tei returned %d vectors for %d inputs", len(vectors), end-start)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (c *Client) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	jsonData, err := json.Marshal(embedRequest{Inputs: inputs, Normalize: true, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tei embed error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return vectors, nil
}
