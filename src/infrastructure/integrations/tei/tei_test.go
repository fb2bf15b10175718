package tei

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateEmbeddingBatches(t *testing.T) {
	var batches []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !req.Normalize || !req.Truncate {
			http.Error(w, "expected normalize and truncate", http.StatusBadRequest)
			return
		}
		batches = append(batches, len(req.Inputs))
		out := make([][]float32, len(req.Inputs))
		for i, in := range req.Inputs {
			out[i] = []float32{float32(len(in)), 0}
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", srv.Client())
	client.batchSize = 2

	vectors, err := client.CreateEmbedding(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	if err != nil {
		t.Fatalf("CreateEmbedding() error = %v", err)
	}
	if len(vectors) != 5 || vectors[4][0] != 5 {
		t.Errorf("vectors = %v", vectors)
	}
	if len(batches) != 3 || batches[0] != 2 || batches[2] != 1 {
		t.Errorf("batches = %v, want [2 2 1]", batches)
	}
}

func TestCreateEmbeddingErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model overloaded", http.StatusTooManyRequests)
			},
		},
		{
			name: "vector count mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`[[1,0]]`))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error":"nope"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			if _, err := NewClient(srv.URL, srv.Client()).CreateEmbedding(context.Background(), []string{"a", "b"}); err == nil {
				t.Error("CreateEmbedding() error = nil")
			}
		})
	}
}
