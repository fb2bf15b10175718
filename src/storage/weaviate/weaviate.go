package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// SDK encapsulates all Weaviate operations
type SDK struct {
	client *weaviate.Client
}

// NewSDK creates a new instance of SDK
func NewSDK(client *weaviate.Client) *SDK {
	return &SDK{
		client: client,
	}
}

// NewClient connects to a Weaviate instance at scheme://host.
func NewClient(scheme, host string) (*weaviate.Client, error) {
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   host,
		Scheme: scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	return client, nil
}

// CreateSchema creates a new class schema in Weaviate
func (w *SDK) CreateSchema(ctx context.Context, className string, properties []*models.Property, vectorizer string) error {
	exists, err := w.classExists(ctx, className)
	if err != nil {
		return fmt.Errorf("failed to check if class exists: %w", err)
	}
	if exists {
		return fmt.Errorf("class %s already exists", className)
	}

	class := &models.Class{
		Class:      className,
		Properties: properties,
		Vectorizer: vectorizer,
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
	}

	err = w.client.Schema().ClassCreator().WithClass(class).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate class: %w", err)
	}

	return nil
}

// classExists checks if a class exists in the schema
func (w *SDK) classExists(ctx context.Context, className string) (bool, error) {
	schema, err := w.client.Schema().Getter().Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get schema: %w", err)
	}

	for _, class := range schema.Classes {
		if class.Class == className {
			return true, nil
		}
	}

	return false, nil
}

// DeleteSchema deletes a class schema from Weaviate
func (w *SDK) DeleteSchema(ctx context.Context, className string) error {
	err := w.client.Schema().ClassDeleter().WithClassName(className).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete Weaviate class: %w", err)
	}

	return nil
}

// VectorObject represents a single object with its vector and properties
type VectorObject struct {
	Vector     []float32
	Properties map[string]interface{}
}

// BatchAddVectors adds multiple vector objects to a class in a single operation
func (w *SDK) BatchAddVectors(ctx context.Context, className string, objects []VectorObject) error {
	objs := make([]*models.Object, len(objects))
	for i, obj := range objects {
		objs[i] = &models.Object{
			Class:      className,
			Properties: obj.Properties,
			Vector:     obj.Vector,
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to batch add vectors: %w", err)
	}
	if len(resp) == 0 {
		return fmt.Errorf("batch operation returned no results")
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch object rejected: %s", r.Result.Errors.Error[0].Message)
		}
	}

	return nil
}

// QueryConfig represents configuration for vector similarity search
type QueryConfig struct {
	Fields    []string // Fields to return in the result
	Limit     int      // Maximum number of results
	Distance  float64  // Optional distance threshold
	Certainty float64  // Optional certainty threshold (1/distance)
}

const DefaultQueryLimit = 20

// QueryResult represents a single result from vector similarity search
type QueryResult struct {
	ID         string
	Distance   float64
	Properties map[string]interface{}
}

// QueryVectors performs vector similarity search in a class. Results come
// back nearest first.
func (w *SDK) QueryVectors(ctx context.Context, className string, vector []float32, config QueryConfig) ([]QueryResult, error) {
	fields := make([]graphql.Field, len(config.Fields))
	for i, field := range config.Fields {
		fields[i] = graphql.Field{Name: field}
	}
	fields = append(fields, graphql.Field{Name: "_additional { id distance certainty }"})

	nearVectorBuilder := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	if config.Distance > 0 {
		nearVectorBuilder.WithDistance(float32(config.Distance))
	}
	if config.Certainty > 0 {
		nearVectorBuilder.WithCertainty(float32(config.Certainty))
	}

	if config.Limit <= 0 {
		config.Limit = DefaultQueryLimit
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(className).
		WithFields(fields...).
		WithNearVector(nearVectorBuilder).
		WithLimit(config.Limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("failed to query vectors: %s", result.Errors[0].Message)
	}

	return parseGetResults(result.Data, className), nil
}

// parseGetResults reads the objects of className out of a GraphQL Get reply.
func parseGetResults(data map[string]models.JSONObject, className string) []QueryResult {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := get[className].([]interface{})
	if !ok {
		return nil
	}

	results := make([]QueryResult, 0, len(objects))
	for _, obj := range objects {
		objMap, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}

		var r QueryResult
		if additional, ok := objMap["_additional"].(map[string]interface{}); ok {
			r.ID, _ = additional["id"].(string)
			r.Distance, _ = additional["distance"].(float64)
		}

		r.Properties = make(map[string]interface{}, len(objMap))
		for k, v := range objMap {
			if k != "_additional" {
				r.Properties[k] = v
			}
		}
		results = append(results, r)
	}
	return results
}
