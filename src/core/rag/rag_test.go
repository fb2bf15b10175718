package rag_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tmc/langchaingo/schema"

	"ragtune/src/core/rag"
)

var vocabulary = []string{"seguro", "covid", "póliza", "ambulancia"}

// keywordClient embeds text as keyword counts plus a constant bias dimension.
type keywordClient struct {
	calls int
	texts int
}

func (c *keywordClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(vocabulary)+1)
		lower := strings.ToLower(t)
		for j, w := range vocabulary {
			v[j] = float32(strings.Count(lower, w)) * 10
		}
		v[len(vocabulary)] = 1
		out[i] = v
	}
	return out, nil
}

type recordingGenerator struct {
	reply   string
	err     error
	prompts []string
	opts    []rag.GenerateOptions
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string, opts rag.GenerateOptions) (string, error) {
	g.prompts = append(g.prompts, prompt)
	g.opts = append(g.opts, opts)
	return g.reply, g.err
}

func newEmbedder(t *testing.T) (*rag.CachedEmbedder, *keywordClient) {
	t.Helper()
	client := &keywordClient{}
	e, err := rag.NewCachedEmbedder(client)
	if err != nil {
		t.Fatalf("NewCachedEmbedder() error = %v", err)
	}
	return e, client
}

func TestSplitDocuments(t *testing.T) {
	text := strings.Repeat("La póliza cubre gastos médicos. ", 40)
	docs := []schema.Document{{PageContent: text, Metadata: map[string]any{"source": "a.txt"}}}

	tests := []struct {
		name      string
		chunkSize int
		overlap   int
		wantErr   error
	}{
		{name: "small chunks", chunkSize: 100, overlap: 20},
		{name: "large chunks", chunkSize: 600, overlap: 50},
		{name: "overlap too large", chunkSize: 50, overlap: 50, wantErr: rag.ErrInvalidChunking},
		{name: "zero chunk size", chunkSize: 0, overlap: 0, wantErr: rag.ErrInvalidChunking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := rag.SplitDocuments(docs, tt.chunkSize, tt.overlap)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SplitDocuments() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitDocuments() error = %v", err)
			}
			if len(chunks) < 2 {
				t.Fatalf("SplitDocuments() returned %d chunks, want several", len(chunks))
			}
			for i, c := range chunks {
				if n := utf8.RuneCountInString(c.PageContent); n > tt.chunkSize {
					t.Errorf("chunk %d has %d runes, want <= %d", i, n, tt.chunkSize)
				}
				if c.Metadata["source"] != "a.txt" {
					t.Errorf("chunk %d source = %v, want a.txt", i, c.Metadata["source"])
				}
				if c.Metadata["chunk"] != i {
					t.Errorf("chunk %d index = %v", i, c.Metadata["chunk"])
				}
			}
		})
	}
}

func TestSplitDocumentsEmpty(t *testing.T) {
	if _, err := rag.SplitDocuments(nil, 100, 10); !errors.Is(err, rag.ErrNoDocuments) {
		t.Errorf("SplitDocuments(nil) error = %v, want ErrNoDocuments", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want []float32
	}{
		{name: "3-4-5", in: []float32{3, 4}, want: []float32{0.6, 0.8}},
		{name: "already unit", in: []float32{0, 1, 0}, want: []float32{0, 1, 0}},
		{name: "zero vector", in: []float32{0, 0}, want: []float32{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rag.Normalize(tt.in)
			for i := range tt.want {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Fatalf("Normalize(%v) = %v, want %v", tt.in, got, tt.want)
				}
			}
		})
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2}, b: []float32{1, 2}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 0}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rag.Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	e, client := newEmbedder(t)

	first, err := e.EmbedDocuments(ctx, []string{"seguro", "covid"})
	if err != nil {
		t.Fatalf("EmbedDocuments() error = %v", err)
	}
	second, err := e.EmbedDocuments(ctx, []string{"covid", "póliza", "seguro"})
	if err != nil {
		t.Fatalf("EmbedDocuments() error = %v", err)
	}

	if client.texts != 3 {
		t.Errorf("client embedded %d texts, want 3", client.texts)
	}
	if e.Len() != 3 {
		t.Errorf("cache holds %d vectors, want 3", e.Len())
	}
	if rag.Cosine(first[1], second[0]) < 0.999999 {
		t.Errorf("cached covid vector differs")
	}
	for i, v := range second {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Errorf("vector %d has squared norm %v, want 1", i, sum)
		}
	}
}

func TestMemoryStoreSimilaritySearch(t *testing.T) {
	ctx := context.Background()
	e, _ := newEmbedder(t)
	store := rag.NewMemoryStore(e)

	_, err := store.AddDocuments(ctx, []schema.Document{
		{PageContent: "servicio de ambulancia"},
		{PageContent: "exclusiones del seguro covid"},
		{PageContent: "vigencia de la póliza"},
		{PageContent: "covid covid"},
	})
	if err != nil {
		t.Fatalf("AddDocuments() error = %v", err)
	}

	tests := []struct {
		name  string
		query string
		k     int
		want  []string
	}{
		{name: "top one", query: "ambulancia", k: 1, want: []string{"servicio de ambulancia"}},
		{name: "ranked", query: "covid", k: 2, want: []string{"covid covid", "exclusiones del seguro covid"}},
		{name: "k larger than index", query: "póliza", k: 10},
		{name: "zero k", query: "póliza", k: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := store.SimilaritySearch(ctx, tt.query, tt.k)
			if err != nil {
				t.Fatalf("SimilaritySearch() error = %v", err)
			}
			if tt.k == 0 {
				if len(docs) != 0 {
					t.Fatalf("got %d docs for k=0", len(docs))
				}
				return
			}
			if tt.want == nil {
				if len(docs) != store.Len() {
					t.Fatalf("got %d docs, want %d", len(docs), store.Len())
				}
				if docs[0].PageContent != "vigencia de la póliza" {
					t.Errorf("first doc = %q", docs[0].PageContent)
				}
				return
			}
			if len(docs) != len(tt.want) {
				t.Fatalf("got %d docs, want %d", len(docs), len(tt.want))
			}
			for i, w := range tt.want {
				if docs[i].PageContent != w {
					t.Errorf("doc %d = %q, want %q", i, docs[i].PageContent, w)
				}
			}
			for i := 1; i < len(docs); i++ {
				if docs[i].Score > docs[i-1].Score {
					t.Errorf("scores not descending: %v", docs)
				}
			}
		})
	}
}

func TestMemoryStoreTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	e, _ := newEmbedder(t)
	store := rag.NewMemoryStore(e)

	_, err := store.AddDocuments(ctx, []schema.Document{
		{PageContent: "seguro", Metadata: map[string]any{"n": 1}},
		{PageContent: "seguro", Metadata: map[string]any{"n": 2}},
		{PageContent: "seguro", Metadata: map[string]any{"n": 3}},
	})
	if err != nil {
		t.Fatalf("AddDocuments() error = %v", err)
	}

	docs, err := store.SimilaritySearch(ctx, "seguro", 3)
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	for i, d := range docs {
		if d.Metadata["n"] != i+1 {
			t.Errorf("doc %d has n=%v, want %d", i, d.Metadata["n"], i+1)
		}
	}

	if err := store.Drop(ctx); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() after Drop = %d", store.Len())
	}
}

func TestChainInvoke(t *testing.T) {
	ctx := context.Background()
	e, _ := newEmbedder(t)
	store := rag.NewMemoryStore(e)
	_, err := store.AddDocuments(ctx, []schema.Document{
		{PageContent: "exclusiones covid"},
		{PageContent: "ambulancia"},
		{PageContent: "covid"},
	})
	if err != nil {
		t.Fatalf("AddDocuments() error = %v", err)
	}

	gen := &recordingGenerator{reply: "  Respuesta.  \n"}
	chain := rag.NewChain(store, gen, 2, 0.3, rag.WithMaxOutputTokens(512))

	answer, err := chain.Invoke(ctx, "¿covid?")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if answer.Text != "Respuesta." {
		t.Errorf("Text = %q, want trimmed reply", answer.Text)
	}
	if len(answer.Contexts) != 2 {
		t.Fatalf("Contexts = %v, want 2 entries", answer.Contexts)
	}

	prompt := gen.prompts[0]
	wantContext := "Contexto: " + answer.Contexts[0] + "\n\n" + answer.Contexts[1]
	if !strings.Contains(prompt, wantContext) {
		t.Errorf("prompt does not contain joined context:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Pregunta: ¿covid?") {
		t.Errorf("prompt does not contain question:\n%s", prompt)
	}
	if !strings.HasPrefix(prompt, "Usa los siguientes fragmentos de contexto") {
		t.Errorf("unexpected prompt prefix:\n%s", prompt)
	}
	if gen.opts[0].Temperature != 0.3 || gen.opts[0].MaxOutputTokens != 512 {
		t.Errorf("options = %+v", gen.opts[0])
	}
}

func TestChainInvokeErrors(t *testing.T) {
	ctx := context.Background()
	e, _ := newEmbedder(t)
	store := rag.NewMemoryStore(e)
	if _, err := store.AddDocuments(ctx, []schema.Document{{PageContent: "seguro"}}); err != nil {
		t.Fatalf("AddDocuments() error = %v", err)
	}

	boom := errors.New("quota exceeded")
	tests := []struct {
		name    string
		gen     *recordingGenerator
		wantErr error
	}{
		{name: "empty reply", gen: &recordingGenerator{reply: "   "}, wantErr: rag.ErrEmptyResponse},
		{name: "generator error", gen: &recordingGenerator{err: boom}, wantErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, err := rag.NewChain(store, tt.gen, 1, 0).Invoke(ctx, "seguro")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Invoke() error = %v, want %v", err, tt.wantErr)
			}
			if len(answer.Contexts) != 1 {
				t.Errorf("Contexts = %v, want the retrieved chunk", answer.Contexts)
			}
		})
	}
}
