// Package elastic keeps preset indexes in Elasticsearch dense_vector fields.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"ragtune/src/core/rag"
	"ragtune/src/log"
)

const (
	indexPrefix = "ragtune-chunks-"

	fieldContent = "content"
	fieldSource  = "source"
	fieldChunk   = "chunk"
	fieldVector  = "vector"

	minCandidates = 100
)

// NewClient connects to the given Elasticsearch addresses.
func NewClient(addresses ...string) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}

// Index is one Elasticsearch index holding the chunks of a preset. The
// mapping is created on the first AddDocuments, once the vector size is known.
type Index struct {
	client   *elasticsearch.Client
	embedder embeddings.Embedder
	name     string
	created  bool
}

var _ rag.Index = (*Index)(nil)

func (i *Index) Name() string {
	return i.name
}

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
	if len(vectors) != len(docs) || len(vectors[0]) == 0 {
		return nil, rag.ErrEmbeddingMissing
	}

	if !i.created {
		if err := i.createIndex(ctx, len(vectors[0])); err != nil {
			return nil, err
		}
		i.created = true
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	ids := make([]string, len(docs))
	for j, d := range docs {
		ids[j] = fmt.Sprintf("%s-%d", i.name, j)
		doc := map[string]interface{}{
			fieldContent: d.PageContent,
			fieldVector:  vectors[j],
		}
		if src, ok := d.Metadata["source"].(string); ok {
			doc[fieldSource] = src
		}
		if n, ok := d.Metadata["chunk"].(int); ok {
			doc[fieldChunk] = n
		}
		if err := enc.Encode(map[string]interface{}{"index": map[string]string{"_id": ids[j]}}); err != nil {
			return nil, err
		}
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
	}

	res, err := i.client.Bulk(&body,
		i.client.Bulk.WithContext(ctx),
		i.client.Bulk.WithIndex(i.name),
		i.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bulk index chunks: %w", err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return nil, fmt.Errorf("failed to bulk index chunks: %w", err)
	}

	var bulk struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Error *struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
		return nil, fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if bulk.Errors {
		for _, item := range bulk.Items {
			for _, op := range item {
				if op.Error != nil {
					return nil, fmt.Errorf("failed to index chunk: %s", op.Error.Reason)
				}
			}
		}
	}
	return ids, nil
}

// SimilaritySearch runs an approximate kNN query. Score is the cosine
// similarity recovered from the Elasticsearch score.
func (i *Index) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 || !i.created {
		return nil, nil
	}

	vector, err := i.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	search := map[string]interface{}{
		"size": numDocuments,
		"knn": map[string]interface{}{
			"field":          fieldVector,
			"query_vector":   vector,
			"k":              numDocuments,
			"num_candidates": max(numDocuments*10, minCandidates),
		},
		"_source": []string{fieldContent, fieldSource},
	}
	data, err := json.Marshal(search)
	if err != nil {
		return nil, err
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.name),
		i.client.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", i.name, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", i.name, err)
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source struct {
					Content string `json:"content"`
					Source  string `json:"source"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	docs := make([]schema.Document, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		meta := map[string]any{"id": hit.ID}
		if hit.Source.Source != "" {
			meta["source"] = hit.Source.Source
		}
		docs = append(docs, schema.Document{
			PageContent: hit.Source.Content,
			Metadata:    meta,
			Score:       float32(2*hit.Score - 1),
		})
	}
	return docs, nil
}

func (i *Index) Drop(ctx context.Context) error {
	if !i.created {
		return nil
	}
	res, err := i.client.Indices.Delete([]string{i.name}, i.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete index %s: %w", i.name, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", i.name, err)
	}
	i.created = false
	return nil
}

func (i *Index) createIndex(ctx context.Context, dims int) error {
	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				fieldContent: map[string]string{"type": "text"},
				fieldSource:  map[string]string{"type": "keyword"},
				fieldChunk:   map[string]string{"type": "integer"},
				fieldVector: map[string]interface{}{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}
	data, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	res, err := i.client.Indices.Create(i.name,
		i.client.Indices.Create.WithContext(ctx),
		i.client.Indices.Create.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", i.name, err)
	}
	defer res.Body.Close()
	if err := responseError(res); err != nil {
		return fmt.Errorf("failed to create index %s: %w", i.name, err)
	}
	log.Debug("elasticsearch index created", "index", i.name, "dims", dims)
	return nil
}

func responseError(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(res.Body)
	return fmt.Errorf("%s: %s", res.Status(), strings.TrimSpace(string(body)))
}

// IndexFactory creates one index per preset.
type IndexFactory struct {
	client   *elasticsearch.Client
	embedder embeddings.Embedder
}

var _ rag.IndexFactory = (*IndexFactory)(nil)

func NewIndexFactory(client *elasticsearch.Client, embedder embeddings.Embedder) *IndexFactory {
	return &IndexFactory{client: client, embedder: embedder}
}

func (f *IndexFactory) NewIndex(ctx context.Context, name string) (rag.Index, error) {
	return &Index{client: f.client, embedder: f.embedder, name: IndexName(name)}, nil
}

// IndexName derives a unique, valid lowercase index name for a preset.
func IndexName(preset string) string {
	var sb strings.Builder
	sb.WriteString(indexPrefix)
	for _, r := range strings.ToLower(preset) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			sb.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			sb.WriteRune('-')
		}
	}
	sb.WriteString("-")
	sb.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return sb.String()
}
