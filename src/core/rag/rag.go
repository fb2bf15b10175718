package rag

import (
	"context"
	"errors"
)

var (
	ErrNoDocuments      = errors.New("no documents to index")
	ErrInvalidChunking  = errors.New("chunk size must be greater than chunk overlap")
	ErrEmptyResponse    = errors.New("model returned an empty response")
	ErrEmbeddingMissing = errors.New("embedding service returned no vectors")
)

// GenerateOptions controls a single model call.
type GenerateOptions struct {
	Temperature     float64
	MaxOutputTokens int
	// JSON asks the model for a JSON document instead of free text.
	JSON bool
}

// Generator is a text generation backend (Gemini, Ollama).
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Answer is the output of one chain invocation.
type Answer struct {
	Text     string
	Contexts []string
}

// Config holds the hyperparameters of one pipeline build.
type Config struct {
	ChunkSize       int
	ChunkOverlap    int
	TopK            int
	Temperature     float64
	MaxOutputTokens int
}
