package weaviate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/weaviate/weaviate/entities/models"

	"ragtune/src/core/rag"
	"ragtune/src/log"
)

const (
	propContent = "content"
	propSource  = "source"
	propChunk   = "chunk"

	classPrefix = "RagtuneChunk"
)

// vectorClient is the part of SDK the index needs.
type vectorClient interface {
	CreateSchema(ctx context.Context, className string, properties []*models.Property, vectorizer string) error
	DeleteSchema(ctx context.Context, className string) error
	BatchAddVectors(ctx context.Context, className string, objects []VectorObject) error
	QueryVectors(ctx context.Context, className string, vector []float32, config QueryConfig) ([]QueryResult, error)
}

var chunkProperties = []*models.Property{
	{Name: propContent, DataType: []string{"text"}},
	{Name: propSource, DataType: []string{"text"}},
	{Name: propChunk, DataType: []string{"int"}},
}

// Index stores precomputed chunk vectors in a dedicated Weaviate class.
type Index struct {
	sdk       vectorClient
	embedder  embeddings.Embedder
	className string
}

var _ rag.Index = (*Index)(nil)

// AddDocuments embeds docs and writes them in one batch.
func (i *Index) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, rag.ErrNoDocuments
	}

	texts := make([]string, len(docs))
	for j, d := range docs {
		texts[j] = d.PageContent
	}
	vectors, err := i.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}

	objects := make([]VectorObject, len(docs))
	ids := make([]string, len(docs))
	for j, d := range docs {
		props := map[string]interface{}{propContent: d.PageContent}
		if src, ok := d.Metadata["source"].(string); ok {
			props[propSource] = src
		}
		if n, ok := d.Metadata["chunk"].(int); ok {
			props[propChunk] = n
		}
		objects[j] = VectorObject{Vector: vectors[j], Properties: props}
		ids[j] = fmt.Sprintf("%s/%d", i.className, j)
	}

	if err := i.sdk.BatchAddVectors(ctx, i.className, objects); err != nil {
		return nil, err
	}
	return ids, nil
}

// SimilaritySearch returns the nearest chunks; Score is 1 - cosine distance.
func (i *Index) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 {
		return nil, nil
	}

	vector, err := i.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := i.sdk.QueryVectors(ctx, i.className, vector, QueryConfig{
		Fields: []string{propContent, propSource},
		Limit:  numDocuments,
	})
	if err != nil {
		return nil, err
	}

	docs := make([]schema.Document, 0, len(results))
	for _, r := range results {
		content, _ := r.Properties[propContent].(string)
		meta := map[string]any{"id": r.ID}
		if src, ok := r.Properties[propSource].(string); ok {
			meta["source"] = src
		}
		docs = append(docs, schema.Document{
			PageContent: content,
			Metadata:    meta,
			Score:       float32(1 - r.Distance),
		})
	}
	return docs, nil
}

// Drop deletes the class and all of its objects.
func (i *Index) Drop(ctx context.Context) error {
	return i.sdk.DeleteSchema(ctx, i.className)
}

// ClassName returns the Weaviate class backing the index.
func (i *Index) ClassName() string {
	return i.className
}

// IndexFactory creates one Weaviate class per preset.
type IndexFactory struct {
	sdk      vectorClient
	embedder embeddings.Embedder
}

var _ rag.IndexFactory = (*IndexFactory)(nil)

func NewIndexFactory(sdk *SDK, embedder embeddings.Embedder) *IndexFactory {
	return &IndexFactory{sdk: sdk, embedder: embedder}
}

func (f *IndexFactory) NewIndex(ctx context.Context, name string) (rag.Index, error) {
	className := ClassName(name)
	if err := f.sdk.CreateSchema(ctx, className, chunkProperties, "none"); err != nil {
		return nil, err
	}
	log.Debug("weaviate class created", "class", className, "preset", name)
	return &Index{sdk: f.sdk, embedder: f.embedder, className: className}, nil
}

// ClassName derives a unique, valid class name for a preset.
func ClassName(preset string) string {
	var sb strings.Builder
	sb.WriteString(classPrefix)
	for _, r := range preset {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	sb.WriteString("_")
	sb.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return sb.String()
}
