package evaluation_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"ragtune/src/core/evaluation"
	"ragtune/src/core/rag"
)

// scriptedGenerator answers each prompt with the reply of the first rule
// whose marker appears in it.
type scriptedGenerator struct {
	rules []rule
	calls int
	opts  []rag.GenerateOptions
}

type rule struct {
	marker string
	reply  string
	err    error
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string, opts rag.GenerateOptions) (string, error) {
	g.calls++
	g.opts = append(g.opts, opts)
	for _, r := range g.rules {
		if strings.Contains(prompt, r.marker) {
			return r.reply, r.err
		}
	}
	return "", errors.New("no rule for prompt")
}

// axisEmbedder maps a text to a fixed vector by lookup.
type axisEmbedder map[string][]float32

func (e axisEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e axisEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, ok := e[text]
	if !ok {
		return nil, errors.New("unknown text " + text)
	}
	return v, nil
}

var sample = evaluation.Sample{
	Question:    "¿Cuáles son las exclusiones?",
	Answer:      "Se excluyen otras enfermedades.",
	Contexts:    []string{"ctx-one", "ctx-two", "ctx-three"},
	GroundTruth: "Enfermedades distintas al COVID-19.",
}

func TestFaithfulness(t *testing.T) {
	tests := []struct {
		name     string
		rules    []rule
		want     float64
		wantErr  bool
		wantNoSt bool
	}{
		{
			name: "two of three supported",
			rules: []rule{
				{marker: "break the answer down", reply: "```json\n{\"statements\": [\"a\", \"b\", \"c\"]}\n```"},
				{marker: "judge the faithfulness", reply: `{"verdicts": [{"verdict": 1}, {"verdict": "0"}, {"verdict": true}]}`},
			},
			want: 2.0 / 3.0,
		},
		{
			name: "no statements",
			rules: []rule{
				{marker: "break the answer down", reply: `{"statements": []}`},
			},
			wantErr:  true,
			wantNoSt: true,
		},
		{
			name: "malformed verdicts",
			rules: []rule{
				{marker: "break the answer down", reply: `{"statements": ["a"]}`},
				{marker: "judge the faithfulness", reply: `not json`},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{rules: tt.rules}
			metrics, err := evaluation.NewMetrics([]string{evaluation.MetricFaithfulness}, evaluation.NewJudge(gen), nil)
			if err != nil {
				t.Fatalf("NewMetrics() error = %v", err)
			}

			got, err := metrics[0].Score(context.Background(), sample)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Score() = %v, want error", got)
				}
				if tt.wantNoSt && !errors.Is(err, evaluation.ErrNoStatements) {
					t.Errorf("Score() error = %v, want ErrNoStatements", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
			for _, o := range gen.opts {
				if o.Temperature != 0 || !o.JSON {
					t.Errorf("judge options = %+v, want temperature 0 and JSON", o)
				}
			}
		})
	}
}

func TestAnswerRelevancy(t *testing.T) {
	emb := axisEmbedder{
		sample.Question: {1, 0},
		"same":          {1, 0},
		"orthogonal":    {0, 1},
		"diagonal":      {1, 1},
	}

	tests := []struct {
		name    string
		reply   string
		want    float64
		wantErr bool
	}{
		{
			name:  "mean cosine",
			reply: `{"questions": ["same", "orthogonal", "diagonal"], "noncommittal": 0}`,
			want:  (1 + 0 + math.Sqrt2/2) / 3,
		},
		{
			name:  "noncommittal answer",
			reply: `{"questions": ["same", "same", "same"], "noncommittal": 1}`,
			want:  0,
		},
		{
			name:    "no questions",
			reply:   `{"questions": [], "noncommittal": 0}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{rules: []rule{{marker: "Generate 3 different questions", reply: tt.reply}}}
			metrics, err := evaluation.NewMetrics([]string{evaluation.MetricAnswerRelevancy}, evaluation.NewJudge(gen), emb)
			if err != nil {
				t.Fatalf("NewMetrics() error = %v", err)
			}

			got, err := metrics[0].Score(context.Background(), sample)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Score() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAveragePrecision(t *testing.T) {
	tests := []struct {
		name     string
		verdicts []int
		want     float64
	}{
		{name: "all useful", verdicts: []int{1, 1, 1}, want: 1},
		{name: "none useful", verdicts: []int{0, 0}, want: 0},
		{name: "useful last", verdicts: []int{0, 0, 1}, want: 1.0 / 3.0},
		{name: "mixed", verdicts: []int{1, 0, 1}, want: (1 + 2.0/3.0) / 2},
		{name: "empty", verdicts: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := evaluation.AveragePrecision(tt.verdicts); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("AveragePrecision(%v) = %v, want %v", tt.verdicts, got, tt.want)
			}
		})
	}
}

func TestContextPrecision(t *testing.T) {
	gen := &scriptedGenerator{rules: []rule{
		{marker: "Context: ctx-one", reply: `{"reason": "x", "verdict": 0}`},
		{marker: "Context: ctx-two", reply: `{"reason": "x", "verdict": 1}`},
		{marker: "Context: ctx-three", reply: `{"reason": "x", "verdict": 1}`},
	}}
	metrics, err := evaluation.NewMetrics([]string{evaluation.MetricContextPrecision}, evaluation.NewJudge(gen), nil)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	got, err := metrics[0].Score(context.Background(), sample)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	want := (1.0/2.0 + 2.0/3.0) / 2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Score() = %v, want %v", got, want)
	}
	if gen.calls != len(sample.Contexts) {
		t.Errorf("judge called %d times, want one per context", gen.calls)
	}
}

func TestContextRecall(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    float64
		wantErr bool
	}{
		{
			name:  "half attributed",
			reply: `{"classifications": [{"attributed": 1}, {"attributed": 0}]}`,
			want:  0.5,
		},
		{
			name:    "empty classification",
			reply:   `{"classifications": []}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{rules: []rule{{marker: "classify whether each sentence", reply: tt.reply}}}
			metrics, err := evaluation.NewMetrics([]string{evaluation.MetricContextRecall}, evaluation.NewJudge(gen), nil)
			if err != nil {
				t.Fatalf("NewMetrics() error = %v", err)
			}
			got, err := metrics[0].Score(context.Background(), sample)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Score() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewMetrics(t *testing.T) {
	judge := evaluation.NewJudge(&scriptedGenerator{})

	metrics, err := evaluation.NewMetrics(evaluation.DefaultMetrics, judge, axisEmbedder{})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	for i, m := range metrics {
		if m.Name() != evaluation.DefaultMetrics[i] {
			t.Errorf("metric %d = %s, want %s", i, m.Name(), evaluation.DefaultMetrics[i])
		}
	}

	if _, err := evaluation.NewMetrics([]string{"bleu"}, judge, nil); !errors.Is(err, evaluation.ErrUnknownMetric) {
		t.Errorf("NewMetrics(bleu) error = %v, want ErrUnknownMetric", err)
	}
	if _, err := evaluation.NewMetrics([]string{evaluation.MetricAnswerRelevancy}, judge, nil); err == nil {
		t.Errorf("NewMetrics(answer_relevancy) without embedder should fail")
	}
}
