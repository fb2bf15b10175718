package rag

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"ragtune/src/log"
)

// Index is a vector store that can be torn down once a preset is done.
type Index interface {
	vectorstores.VectorStore
	Drop(ctx context.Context) error
}

// IndexFactory creates an empty index for one preset.
type IndexFactory interface {
	NewIndex(ctx context.Context, name string) (Index, error)
}

// Drop forgets every indexed document.
func (s *MemoryStore) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}

type memoryIndexFactory struct {
	embedder embeddings.Embedder
}

// NewMemoryIndexFactory returns a factory of in-process indexes.
func NewMemoryIndexFactory(embedder embeddings.Embedder) IndexFactory {
	return &memoryIndexFactory{embedder: embedder}
}

func (f *memoryIndexFactory) NewIndex(ctx context.Context, name string) (Index, error) {
	return NewMemoryStore(f.embedder), nil
}

// Pipeline builds one chain per preset over a fixed corpus.
type Pipeline struct {
	docs      []schema.Document
	indexes   IndexFactory
	generator Generator
	opts      []ChainOption
}

func NewPipeline(docs []schema.Document, indexes IndexFactory, generator Generator, opts ...ChainOption) *Pipeline {
	return &Pipeline{
		docs:      docs,
		indexes:   indexes,
		generator: generator,
		opts:      opts,
	}
}

// Build splits the corpus, indexes the chunks and returns a chain over them.
// The caller must Drop the returned index.
func (p *Pipeline) Build(ctx context.Context, name string, cfg Config) (*Chain, Index, error) {
	chunks, err := SplitDocuments(p.docs, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, nil, err
	}

	index, err := p.indexes.NewIndex(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create index: %w", err)
	}
	if _, err := index.AddDocuments(ctx, chunks); err != nil {
		if dropErr := index.Drop(ctx); dropErr != nil {
			log.Error(dropErr, "failed to drop index", "name", name)
		}
		return nil, nil, fmt.Errorf("failed to index chunks: %w", err)
	}
	log.Info("index built", "name", name, "chunks", len(chunks), "chunk_size", cfg.ChunkSize)

	opts := append([]ChainOption{WithMaxOutputTokens(cfg.MaxOutputTokens)}, p.opts...)
	return NewChain(index, p.generator, cfg.TopK, cfg.Temperature, opts...), index, nil
}
