package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ollama/ollama/api"

	"ragtune/src/log"
)

const (
	DefaultURL = "http://localhost:11434/api"
)

// GenerateRequest represents the request structure for model generation
type GenerateRequest struct {
	Model   string                 `json:"model"`
	System  string                 `json:"system,omitempty"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// ErrTruncated is returned when the response was truncated
type ErrTruncated struct {
	Message string
}

func (e *ErrTruncated) Error() string {
	return e.Message
}

// GenerateResponse is one streamed line of /generate. Error lines and the
// truncation flag are not part of api.GenerateResponse.
type GenerateResponse struct {
	api.GenerateResponse
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Client represents an Ollama API client
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new Ollama API client
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
	}
}

// GetEmbedding generates an embedding vector for the given text using the specified model
func (c *Client) GetEmbedding(ctx context.Context, model string, text string) ([]float32, error) {
	reqBody := api.EmbeddingRequest{
		Model:  model,
		Prompt: text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
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
		return nil, fmt.Errorf("ollama embeddings error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var result api.EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}

	embedding32 := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		embedding32[i] = float32(v)
	}

	return embedding32, nil
}

// Generate performs model generation with the given prompt
func (c *Client) Generate(ctx context.Context, model, system, prompt string, options map[string]interface{}) (string, error) {
	return c.generate(ctx, GenerateRequest{
		Model:   model,
		System:  system,
		Prompt:  prompt,
		Stream:  true,
		Options: options,
	})
}

func (c *Client) generate(ctx context.Context, reqBody GenerateRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/generate", c.baseURL)
	log.Debug("sending request to ollama",
		"url", url,
		"model", reqBody.Model,
		"options", reqBody.Options,
		"prompt_length", len(reqBody.Prompt))

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error(err, "failed to make request to ollama")
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama generate error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	reader := bufio.NewReader(resp.Body)
	var fullResponse strings.Builder

	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var response GenerateResponse
			if uerr := json.Unmarshal(line, &response); uerr != nil {
				log.Error(uerr, "failed to unmarshal response line", "line", string(line))
				return "", fmt.Errorf("error unmarshaling response: %w", uerr)
			}
			if response.Error != "" {
				return "", fmt.Errorf("ollama error: %s", response.Error)
			}

			fullResponse.WriteString(response.Response)

			if response.Truncated {
				return "", &ErrTruncated{Message: "Response was truncated by the model"}
			}
			if response.Done {
				if fullResponse.Len() > 0 {
					return fullResponse.String(), nil
				}
				break
			}
		}
		if err != nil {
			if err == io.EOF {
				if fullResponse.Len() > 0 {
					return fullResponse.String(), nil
				}
				break
			}
			return "", fmt.Errorf("error reading response: %w", err)
		}
	}

	return "", fmt.Errorf("no response received from Ollama")
}
