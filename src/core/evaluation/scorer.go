package evaluation

import (
	"context"
	"math"

	"ragtune/src/log"
)

// Scorer runs a fixed list of metrics over samples.
type Scorer struct {
	metrics []Metric
}

func NewScorer(metrics ...Metric) *Scorer {
	return &Scorer{metrics: metrics}
}

// Names returns the metric names in scoring order.
func (s *Scorer) Names() []string {
	names := make([]string, len(s.metrics))
	for i, m := range s.metrics {
		names[i] = m.Name()
	}
	return names
}

// Score evaluates every metric. A failing metric is logged and left missing;
// the others still run.
func (s *Scorer) Score(ctx context.Context, sample Sample) Scores {
	scores := MissingScores(s.Names())
	for _, m := range s.metrics {
		if ctx.Err() != nil {
			return scores
		}
		v, err := m.Score(ctx, sample)
		if err != nil {
			log.Error(err, "metric failed", "metric", m.Name())
			continue
		}
		if math.IsInf(v, 0) {
			continue
		}
		scores[m.Name()] = v
		log.Debug("metric scored", "metric", m.Name(), "score", v)
	}
	return scores
}
