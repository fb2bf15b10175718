package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"

	"ragtune/src/core/rag"
)

const (
	MetricFaithfulness     = "faithfulness"
	MetricAnswerRelevancy  = "answer_relevancy"
	MetricContextPrecision = "context_precision"
	MetricContextRecall    = "context_recall"
)

// DefaultMetrics is the metric column order of the results table.
var DefaultMetrics = []string{
	MetricFaithfulness,
	MetricAnswerRelevancy,
	MetricContextPrecision,
	MetricContextRecall,
}

var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrNoStatements  = errors.New("judge found no statements to verify")
)

// relevancyQuestions is the number of questions generated per answer.
const relevancyQuestions = 3

// Sample is what a metric scores: one question, the pipeline's answer and
// contexts, and the reference answer.
type Sample struct {
	Question    string
	Answer      string
	Contexts    []string
	GroundTruth string
}

type Metric interface {
	Name() string
	Score(ctx context.Context, s Sample) (float64, error)
}

// NewMetrics builds the named metrics in the given order.
func NewMetrics(names []string, judge *Judge, embedder embeddings.Embedder) ([]Metric, error) {
	metrics := make([]Metric, 0, len(names))
	for _, name := range names {
		switch name {
		case MetricFaithfulness:
			metrics = append(metrics, &Faithfulness{judge: judge})
		case MetricAnswerRelevancy:
			if embedder == nil {
				return nil, fmt.Errorf("%s needs an embedder", name)
			}
			metrics = append(metrics, &AnswerRelevancy{judge: judge, embedder: embedder, questions: relevancyQuestions})
		case MetricContextPrecision:
			metrics = append(metrics, &ContextPrecision{judge: judge})
		case MetricContextRecall:
			metrics = append(metrics, &ContextRecall{judge: judge})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
		}
	}
	return metrics, nil
}

// Faithfulness is the share of answer statements supported by the contexts.
type Faithfulness struct {
	judge *Judge
}

func (m *Faithfulness) Name() string { return MetricFaithfulness }

func (m *Faithfulness) Score(ctx context.Context, s Sample) (float64, error) {
	var extracted struct {
		Statements []string `json:"statements"`
	}
	err := m.judge.Ask(ctx, StatementExtractionPromptTmpl, map[string]any{
		"Question": s.Question,
		"Answer":   s.Answer,
	}, &extracted)
	if err != nil {
		return 0, fmt.Errorf("statement extraction: %w", err)
	}

	statements := nonEmpty(extracted.Statements)
	if len(statements) == 0 {
		return 0, ErrNoStatements
	}

	var judged struct {
		Verdicts []struct {
			Statement string `json:"statement"`
			Reason    string `json:"reason"`
			Verdict   binary `json:"verdict"`
		} `json:"verdicts"`
	}
	err = m.judge.Ask(ctx, FaithfulnessVerdictPromptTmpl, map[string]any{
		"Context":    strings.Join(s.Contexts, "\n"),
		"Statements": statements,
	}, &judged)
	if err != nil {
		return 0, fmt.Errorf("faithfulness verdicts: %w", err)
	}
	if len(judged.Verdicts) == 0 {
		return 0, ErrNoStatements
	}

	supported := 0
	for _, v := range judged.Verdicts {
		supported += int(v.Verdict)
	}
	return float64(supported) / float64(len(judged.Verdicts)), nil
}

// AnswerRelevancy is the mean cosine similarity between the question and
// questions generated back from the answer. Noncommittal answers score 0.
type AnswerRelevancy struct {
	judge     *Judge
	embedder  embeddings.Embedder
	questions int
}

func (m *AnswerRelevancy) Name() string { return MetricAnswerRelevancy }

func (m *AnswerRelevancy) Score(ctx context.Context, s Sample) (float64, error) {
	var generated struct {
		Questions    []string `json:"questions"`
		Noncommittal binary   `json:"noncommittal"`
	}
	err := m.judge.Ask(ctx, QuestionGenerationPromptTmpl, map[string]any{
		"Answer": s.Answer,
		"Count":  m.questions,
	}, &generated)
	if err != nil {
		return 0, fmt.Errorf("question generation: %w", err)
	}

	questions := nonEmpty(generated.Questions)
	if len(questions) == 0 {
		return 0, fmt.Errorf("judge generated no questions")
	}
	if generated.Noncommittal == 1 {
		return 0, nil
	}

	qv, err := m.embedder.EmbedQuery(ctx, s.Question)
	if err != nil {
		return 0, err
	}

	var sum float64
	for _, q := range questions {
		gv, err := m.embedder.EmbedQuery(ctx, q)
		if err != nil {
			return 0, err
		}
		sum += rag.Cosine(qv, gv)
	}
	return sum / float64(len(questions)), nil
}

// ContextPrecision rewards useful contexts ranked ahead of useless ones:
// sum over k of precision@k times v_k, divided by the number of useful
// contexts.
type ContextPrecision struct {
	judge *Judge
}

func (m *ContextPrecision) Name() string { return MetricContextPrecision }

func (m *ContextPrecision) Score(ctx context.Context, s Sample) (float64, error) {
	verdicts := make([]int, len(s.Contexts))
	for i, c := range s.Contexts {
		var judged struct {
			Reason  string `json:"reason"`
			Verdict binary `json:"verdict"`
		}
		err := m.judge.Ask(ctx, ContextPrecisionPromptTmpl, map[string]any{
			"Question":    s.Question,
			"GroundTruth": s.GroundTruth,
			"Context":     c,
		}, &judged)
		if err != nil {
			return 0, fmt.Errorf("context %d verdict: %w", i, err)
		}
		verdicts[i] = int(judged.Verdict)
	}
	return AveragePrecision(verdicts), nil
}

// AveragePrecision computes the rank-weighted precision of 0/1 verdicts.
func AveragePrecision(verdicts []int) float64 {
	var useful, numerator float64
	for k, v := range verdicts {
		if v != 1 {
			continue
		}
		useful++
		numerator += useful / float64(k+1)
	}
	if useful == 0 {
		return 0
	}
	return numerator / useful
}

// ContextRecall is the share of reference answer sentences attributable to
// the contexts.
type ContextRecall struct {
	judge *Judge
}

func (m *ContextRecall) Name() string { return MetricContextRecall }

func (m *ContextRecall) Score(ctx context.Context, s Sample) (float64, error) {
	var judged struct {
		Classifications []struct {
			Statement  string `json:"statement"`
			Reason     string `json:"reason"`
			Attributed binary `json:"attributed"`
		} `json:"classifications"`
	}
	err := m.judge.Ask(ctx, ContextRecallPromptTmpl, map[string]any{
		"Question":    s.Question,
		"Context":     strings.Join(s.Contexts, "\n"),
		"GroundTruth": s.GroundTruth,
	}, &judged)
	if err != nil {
		return 0, fmt.Errorf("recall classification: %w", err)
	}
	if len(judged.Classifications) == 0 {
		return 0, ErrNoStatements
	}

	attributed := 0
	for _, c := range judged.Classifications {
		attributed += int(c.Attributed)
	}
	return float64(attributed) / float64(len(judged.Classifications)), nil
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
