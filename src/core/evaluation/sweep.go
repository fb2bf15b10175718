package evaluation

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/schollz/progressbar/v3"

	"ragtune/src/core/rag"
	"ragtune/src/log"
)

const (
	DefaultQuestionPause = 180 * time.Second
	DefaultConfigPause   = 300 * time.Second
)

// Answerer is a built pipeline for one preset.
type Answerer interface {
	Invoke(ctx context.Context, question string) (rag.Answer, error)
}

// Builder prepares the pipeline of a preset. The returned release func frees
// whatever index backs it.
type Builder interface {
	Build(ctx context.Context, preset Preset) (Answerer, func(context.Context) error, error)
}

type pipelineBuilder struct {
	pipeline        *rag.Pipeline
	chunkOverlap    int
	maxOutputTokens int
}

// NewPipelineBuilder adapts a rag pipeline to the sweep.
func NewPipelineBuilder(p *rag.Pipeline, chunkOverlap, maxOutputTokens int) Builder {
	return &pipelineBuilder{pipeline: p, chunkOverlap: chunkOverlap, maxOutputTokens: maxOutputTokens}
}

func (b *pipelineBuilder) Build(ctx context.Context, preset Preset) (Answerer, func(context.Context) error, error) {
	chain, index, err := b.pipeline.Build(ctx, preset.Name, rag.Config{
		ChunkSize:       preset.ChunkSize,
		ChunkOverlap:    b.chunkOverlap,
		TopK:            preset.TopK,
		Temperature:     preset.Temperature,
		MaxOutputTokens: b.maxOutputTokens,
	})
	if err != nil {
		return nil, nil, err
	}
	return chain, index.Drop, nil
}

// Sweep evaluates every preset against the benchmark, one question at a time.
type Sweep struct {
	builder   Builder
	scorer    *Scorer
	presets   []Preset
	benchmark []BenchmarkItem

	questionPause time.Duration
	configPause   time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	progress      io.Writer
	onResult      func(Result)
}

type SweepOption func(*Sweep)

func WithQuestionPause(d time.Duration) SweepOption {
	return func(s *Sweep) {
		s.questionPause = d
	}
}

func WithConfigPause(d time.Duration) SweepOption {
	return func(s *Sweep) {
		s.configPause = d
	}
}

// WithSleep replaces the pause implementation.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) SweepOption {
	return func(s *Sweep) {
		s.sleep = fn
	}
}

// WithProgress draws a progress bar on w.
func WithProgress(w io.Writer) SweepOption {
	return func(s *Sweep) {
		s.progress = w
	}
}

// WithResultHook is called after each preset is averaged.
func WithResultHook(fn func(Result)) SweepOption {
	return func(s *Sweep) {
		s.onResult = fn
	}
}

func NewSweep(builder Builder, scorer *Scorer, presets []Preset, benchmark []BenchmarkItem, opts ...SweepOption) *Sweep {
	s := &Sweep{
		builder:       builder,
		scorer:        scorer,
		presets:       presets,
		benchmark:     benchmark,
		questionPause: DefaultQuestionPause,
		configPause:   DefaultConfigPause,
		sleep:         Pause,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pause waits for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes the sweep. On cancellation the table holds every preset
// reached so far and the context error is returned with it.
func (s *Sweep) Run(ctx context.Context) (*Table, error) {
	metrics := s.scorer.Names()
	table := &Table{Metrics: metrics, StartedAt: time.Now()}
	defer func() { table.FinishedAt = time.Now() }()

	var bar *progressbar.ProgressBar
	if s.progress != nil {
		bar = progressbar.NewOptions(len(s.presets)*len(s.benchmark),
			progressbar.OptionSetWriter(s.progress),
			progressbar.OptionSetDescription("evaluating"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	for i, preset := range s.presets {
		log.Info("evaluating preset",
			"index", i+1,
			"total", len(s.presets),
			"name", preset.Name,
			"chunk_size", preset.ChunkSize,
			"top_k", preset.TopK,
			"temperature", preset.Temperature)
		if bar != nil {
			bar.Describe(preset.Name)
		}

		result, err := s.runPreset(ctx, preset, metrics, bar)
		table.Results = append(table.Results, result)
		if err != nil {
			return table, err
		}
		s.logResult(result, metrics)
		if s.onResult != nil {
			s.onResult(result)
		}

		if i < len(s.presets)-1 {
			log.Info("pausing before next preset", "duration", s.configPause)
			if err := s.sleep(ctx, s.configPause); err != nil {
				return table, err
			}
		}
	}

	return table, nil
}

func (s *Sweep) runPreset(ctx context.Context, preset Preset, metrics []string, bar *progressbar.ProgressBar) (Result, error) {
	result := Result{Name: preset.Name, Preset: preset}

	answerer, release, buildErr := s.builder.Build(ctx, preset)
	if buildErr != nil {
		if ctx.Err() != nil {
			result.Scores = Average(nil, metrics)
			result.Partial = true
			return result, ctx.Err()
		}
		log.Error(buildErr, "failed to build pipeline", "preset", preset.Name)
	}
	if release != nil {
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Error(err, "failed to release index", "preset", preset.Name)
			}
		}()
	}

	var stopErr error
	rows := make([]Scores, 0, len(s.benchmark))
	for qi, item := range s.benchmark {
		log.Info("evaluating question", "preset", preset.Name, "index", qi+1, "total", len(s.benchmark))

		qr := QuestionResult{Question: item.Question, GroundTruth: item.GroundTruth}
		if buildErr != nil {
			qr.Scores = MissingScores(metrics)
			qr.Error = fmt.Sprintf("pipeline build failed: %v", buildErr)
		} else {
			answer, err := answerer.Invoke(ctx, item.Question)
			if err != nil && ctx.Err() != nil {
				break
			}
			if err != nil {
				log.Error(err, "question failed", "preset", preset.Name, "index", qi+1)
				qr.Scores = MissingScores(metrics)
				qr.Error = err.Error()
			} else {
				qr.Answer = answer.Text
				qr.Contexts = answer.Contexts
				qr.Scores = s.scorer.Score(ctx, Sample{
					Question:    item.Question,
					Answer:      answer.Text,
					Contexts:    answer.Contexts,
					GroundTruth: item.GroundTruth,
				})
				if ctx.Err() != nil {
					break
				}
			}
		}

		rows = append(rows, qr.Scores)
		result.Questions = append(result.Questions, qr)
		if bar != nil {
			_ = bar.Add(1)
		}

		log.Info("pausing after question", "duration", s.questionPause)
		if err := s.sleep(ctx, s.questionPause); err != nil {
			stopErr = err
			break
		}
	}

	result.Scores = Average(rows, metrics)
	if stopErr == nil {
		stopErr = ctx.Err()
	}
	if err := stopErr; err != nil {
		result.Partial = len(result.Questions) < len(s.benchmark)
		return result, err
	}
	return result, nil
}

func (s *Sweep) logResult(r Result, metrics []string) {
	kv := []interface{}{"preset", r.Name}
	for _, m := range metrics {
		v := r.Scores[m]
		if math.IsNaN(v) {
			kv = append(kv, m, FailedLabel)
			continue
		}
		kv = append(kv, m, fmt.Sprintf("%.4f", v))
	}
	log.Info("preset averages", kv...)
}
