package rag

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
)

// CachedEmbedder wraps a langchaingo embedder, L2-normalizes every vector and
// remembers document vectors by text so presets sharing chunks embed them once.
type CachedEmbedder struct {
	base embeddings.Embedder

	mu    sync.Mutex
	cache map[string][]float32
}

var _ embeddings.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder builds an embedder on top of a raw embedding client
// (Ollama, TEI).
func NewCachedEmbedder(client embeddings.EmbedderClient, opts ...embeddings.Option) (*CachedEmbedder, error) {
	base, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return WrapEmbedder(base), nil
}

// WrapEmbedder adds normalization and caching to an existing embedder.
func WrapEmbedder(base embeddings.Embedder) *CachedEmbedder {
	return &CachedEmbedder{
		base:  base,
		cache: make(map[string][]float32),
	}
}

func (e *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	e.mu.Lock()
	for i, t := range texts {
		if v, ok := e.cache[t]; ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	e.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := e.base.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingMissing, len(vectors), len(missing))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for j, v := range vectors {
		n := Normalize(v)
		e.cache[missing[j]] = n
		out[missingIdx[j]] = n
	}
	return out, nil
}

func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.base.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(v) == 0 {
		return nil, ErrEmbeddingMissing
	}
	return Normalize(v), nil
}

// Len reports the number of cached document vectors.
func (e *CachedEmbedder) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

// Normalize returns v scaled to unit length. A zero vector is returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
