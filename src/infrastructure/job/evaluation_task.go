package job

import (
	"errors"
	"fmt"
	"time"

	"ragtune/src/core/evaluation"
)

const TaskTypeEvaluation = "evaluation"

// EvaluationPayload describes a queued sweep. Empty lists fall back to the
// worker's configured defaults.
type EvaluationPayload struct {
	CorpusDir     string                     `json:"corpus_dir"`
	Benchmark     []evaluation.BenchmarkItem `json:"benchmark,omitempty"`
	Presets       []evaluation.Preset        `json:"presets,omitempty"`
	Metrics       []string                   `json:"metrics,omitempty"`
	QuestionPause *time.Duration             `json:"question_pause,omitempty"`
	ConfigPause   *time.Duration             `json:"config_pause,omitempty"`
	Upload        bool                       `json:"upload,omitempty"`
}

func (p EvaluationPayload) Validate() error {
	if p.CorpusDir == "" {
		return errors.New("corpus_dir is required")
	}
	if len(p.Benchmark) > 0 {
		if err := evaluation.ValidateBenchmark(p.Benchmark); err != nil {
			return fmt.Errorf("invalid benchmark: %w", err)
		}
	}
	if p.QuestionPause != nil && *p.QuestionPause < 0 {
		return errors.New("question_pause must not be negative")
	}
	if p.ConfigPause != nil && *p.ConfigPause < 0 {
		return errors.New("config_pause must not be negative")
	}
	return nil
}
