package rag

import (
	"fmt"
	"unicode/utf8"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultChunkOverlap is used when the configuration does not set one.
const DefaultChunkOverlap = 200

// SplitDocuments cuts docs into overlapping chunks of at most chunkSize runes.
// Chunk metadata is copied from the source document and extended with the
// chunk index.
func SplitDocuments(docs []schema.Document, chunkSize, overlap int) ([]schema.Document, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	if chunkSize <= 0 || overlap < 0 || chunkSize <= overlap {
		return nil, fmt.Errorf("%w: chunk_size=%d overlap=%d", ErrInvalidChunking, chunkSize, overlap)
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)

	chunks, err := textsplitter.SplitDocuments(splitter, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to split documents: %w", err)
	}

	out := make([]schema.Document, 0, len(chunks))
	for _, c := range chunks {
		if c.PageContent == "" {
			continue
		}
		meta := make(map[string]any, len(c.Metadata)+1)
		for k, v := range c.Metadata {
			meta[k] = v
		}
		meta["chunk"] = len(out)
		out = append(out, schema.Document{PageContent: c.PageContent, Metadata: meta})
	}
	if len(out) == 0 {
		return nil, ErrNoDocuments
	}
	return out, nil
}
