package rag

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

type memoryEntry struct {
	id     string
	doc    schema.Document
	vector []float32
}

// MemoryStore is an exact in-process cosine index.
type MemoryStore struct {
	embedder embeddings.Embedder

	mu      sync.RWMutex
	entries []memoryEntry
}

var _ vectorstores.VectorStore = (*MemoryStore)(nil)

func NewMemoryStore(embedder embeddings.Embedder) *MemoryStore {
	return &MemoryStore{embedder: embedder}
}

func (s *MemoryStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	opts := s.options(options...)

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}
	vectors, err := opts.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("%w: got %d vectors for %d documents", ErrEmbeddingMissing, len(vectors), len(docs))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(docs))
	for i, d := range docs {
		id := strconv.Itoa(len(s.entries))
		s.entries = append(s.entries, memoryEntry{id: id, doc: d, vector: vectors[i]})
		ids[i] = id
	}
	return ids, nil
}

// SimilaritySearch returns the numDocuments entries closest to query by
// descending score. Equal scores keep insertion order.
func (s *MemoryStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 {
		return nil, nil
	}
	opts := s.options(options...)

	qv, err := opts.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	type scored struct {
		doc   schema.Document
		score float64
	}
	results := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		score := Cosine(qv, e.vector)
		if opts.ScoreThreshold > 0 && score < float64(opts.ScoreThreshold) {
			continue
		}
		results = append(results, scored{doc: e.doc, score: score})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > numDocuments {
		results = results[:numDocuments]
	}

	docs := make([]schema.Document, len(results))
	for i, r := range results {
		docs[i] = r.doc
		docs[i].Score = float32(r.score)
	}
	return docs, nil
}

// Len reports the number of indexed documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) options(options ...vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{}
	for _, o := range options {
		o(&opts)
	}
	if opts.Embedder == nil {
		opts.Embedder = s.embedder
	}
	return opts
}
