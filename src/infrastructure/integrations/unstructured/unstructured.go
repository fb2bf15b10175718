package unstructured

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"ragtune/src/log"
)

type UnstructuredService struct {
	baseURL    string
	httpClient *http.Client
}

type UnstructuredElement struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	ElementID string   `json:"element_id"`
	Metadata  Metadata `json:"metadata"`
}

type Metadata struct {
	Filename   string `json:"filename,omitempty"`
	Filetype   string `json:"filetype,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
}

func NewUnstructuredService(baseURL string, c *http.Client) *UnstructuredService {
	if c == nil {
		c = http.DefaultClient
	}
	return &UnstructuredService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: c,
	}
}

// ExtractText returns the non-empty text of every element of the PDF in
// document order.
func (s *UnstructuredService) ExtractText(ctx context.Context, filename string, content []byte) ([]string, error) {
	elements, err := s.ConvertPDFToText(ctx, filename, content)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(elements))
	for _, e := range elements {
		if t := strings.TrimSpace(e.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return texts, nil
}

func (s *UnstructuredService) ConvertPDFToText(ctx context.Context, filename string, content []byte) ([]UnstructuredElement, error) {
	var requestBody bytes.Buffer
	multipartWriter := multipart.NewWriter(&requestBody)

	fileWriter, err := multipartWriter.CreateFormFile("files", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = io.Copy(fileWriter, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}

	fields := [][2]string{
		{"strategy", "auto"},
		{"output_format", "application/json"},
	}
	for _, f := range fields {
		if err := multipartWriter.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}
	if err := multipartWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/general/v0/general", &requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", multipartWriter.FormDataContentType())

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Error(fmt.Errorf("conversion failed"), "unstructured api error", "status", resp.Status, "body", string(body))
		return nil, fmt.Errorf("conversion service error: %s", resp.Status)
	}

	var elements []UnstructuredElement
	if err := json.NewDecoder(resp.Body).Decode(&elements); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return elements, nil
}
