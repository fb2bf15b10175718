package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"ragtune/src/core/evaluation"
	"ragtune/src/core/rag"
	"ragtune/src/fsutil"
	"ragtune/src/infrastructure/integrations/gemini"
	"ragtune/src/infrastructure/integrations/ollama"
	"ragtune/src/infrastructure/integrations/tei"
	"ragtune/src/infrastructure/integrations/unstructured"
	"ragtune/src/log"
	"ragtune/src/storage/elastic"
	"ragtune/src/storage/minioctrl"
	"ragtune/src/storage/postgres/runctrl"
	"ragtune/src/storage/weaviate"
)

// sweepRequest is everything a sweep needs besides the configured services.
type sweepRequest struct {
	CorpusDir     string
	Benchmark     []evaluation.BenchmarkItem
	Presets       []evaluation.Preset
	Metrics       []string
	QuestionPause time.Duration
	ConfigPause   time.Duration
	Progress      io.Writer
	OnResult      func(evaluation.Result)
}

// runSweep wires the configured providers and runs the sweep described by req.
func runSweep(ctx context.Context, req sweepRequest) (*evaluation.Table, error) {
	overlap := viper.GetInt("vectordb.chunk_overlap")
	if err := evaluation.ValidatePresets(req.Presets, overlap); err != nil {
		return nil, err
	}
	if err := evaluation.ValidateBenchmark(req.Benchmark); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder()
	if err != nil {
		return nil, err
	}
	generator, err := newGenerator(ctx)
	if err != nil {
		return nil, err
	}
	indexes, err := newIndexFactory(embedder)
	if err != nil {
		return nil, err
	}

	judge := evaluation.NewJudge(generator)
	metrics, err := evaluation.NewMetrics(req.Metrics, judge, embedder)
	if err != nil {
		return nil, err
	}

	docs, err := rag.NewLoader(fsutil.NewLocalFileStore(), newPDFConverter()).Load(ctx, req.CorpusDir)
	if err != nil {
		return nil, err
	}

	pipeline := rag.NewPipeline(docs, indexes, generator)
	builder := evaluation.NewPipelineBuilder(pipeline, overlap, viper.GetInt("gemini.max_output_tokens"))

	opts := []evaluation.SweepOption{
		evaluation.WithQuestionPause(req.QuestionPause),
		evaluation.WithConfigPause(req.ConfigPause),
	}
	if req.Progress != nil {
		opts = append(opts, evaluation.WithProgress(req.Progress))
	}
	if req.OnResult != nil {
		opts = append(opts, evaluation.WithResultHook(req.OnResult))
	}

	sweep := evaluation.NewSweep(builder, evaluation.NewScorer(metrics...), req.Presets, req.Benchmark, opts...)
	table, err := sweep.Run(ctx)
	log.Info("sweep finished", "presets", len(table.Results), "embeddings_cached", embedder.Len())
	return table, err
}

func newEmbedder() (*rag.CachedEmbedder, error) {
	httpClient := &http.Client{Timeout: 2 * time.Minute}

	switch provider := viper.GetString("embedding.provider"); provider {
	case "tei":
		return rag.NewCachedEmbedder(tei.NewClient(viper.GetString("tei.url"), httpClient))
	case "ollama":
		client := ollama.NewClient(viper.GetString("ollama.url"), httpClient)
		return rag.NewCachedEmbedder(ollama.NewProvider(client, viper.GetString("embedding.model")))
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

func newGenerator(ctx context.Context) (rag.Generator, error) {
	timeout := configDuration("gemini.timeout", gemini.DefaultTimeout)

	switch provider := viper.GetString("llm.provider"); provider {
	case "gemini":
		return gemini.NewGenerator(ctx, gemini.Config{
			APIKey:  viper.GetString("gemini.api_key"),
			Model:   viper.GetString("gemini.model"),
			Timeout: timeout,
		})
	case "ollama":
		client := ollama.NewClient(viper.GetString("ollama.url"), &http.Client{Timeout: timeout})
		return ollama.NewProvider(client, viper.GetString("ollama.model")), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

func newIndexFactory(embedder *rag.CachedEmbedder) (rag.IndexFactory, error) {
	switch backend := viper.GetString("vectordb.backend"); backend {
	case "memory":
		return rag.NewMemoryIndexFactory(embedder), nil
	case "weaviate":
		client, err := weaviate.NewClient(viper.GetString("weaviate.scheme"), viper.GetString("weaviate.url"))
		if err != nil {
			return nil, err
		}
		return weaviate.NewIndexFactory(weaviate.NewSDK(client), embedder), nil
	case "elasticsearch":
		client, err := elastic.NewClient(viper.GetStringSlice("elasticsearch.addresses")...)
		if err != nil {
			return nil, err
		}
		return elastic.NewIndexFactory(client, embedder), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", backend)
	}
}

func newPDFConverter() rag.PDFConverter {
	url := viper.GetString("unstructured.url")
	if url == "" {
		return nil
	}
	return unstructured.NewUnstructuredService(url, &http.Client{Timeout: 5 * time.Minute})
}

func openDB() (*gorm.DB, error) {
	host := viper.GetString("postgres.host")
	user := viper.GetString("postgres.user")
	password := viper.GetString("postgres.password")
	dbname := viper.GetString("postgres.db")
	port := viper.GetString("postgres.port")

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func newReportUploader(ctx context.Context) (*minioctrl.ReportUploader, error) {
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio service: %w", err)
	}

	bucket := viper.GetString("minio.report_bucket")
	if err := minioService.EnsureBucketExists(ctx, bucket); err != nil {
		return nil, err
	}
	return minioctrl.NewReportUploader(minioService, bucket), nil
}

// recordRun stores the outcome of a sweep and uploads its report when an
// uploader is given. ctx must outlive the sweep context.
func recordRun(ctx context.Context, runs *runctrl.RunService, uploader *minioctrl.ReportUploader, run *runctrl.Run, table *evaluation.Table, sweepErr error) error {
	if table == nil {
		return runs.MarkFailed(ctx, run.ID, sweepErr)
	}

	status := runctrl.RunStatusCompleted
	switch {
	case sweepErr == nil:
	case errors.Is(sweepErr, context.Canceled), errors.Is(sweepErr, context.DeadlineExceeded):
		status = runctrl.RunStatusCancelled
	default:
		status = runctrl.RunStatusFailed
	}
	if err := runs.SaveTable(ctx, run, table, status, sweepErr); err != nil {
		return err
	}
	log.Info("run stored", "run_id", run.RunID, "status", status)

	if uploader == nil {
		return nil
	}
	url, err := uploader.Upload(ctx, run.RunID, table)
	if err != nil {
		return err
	}
	if err := runs.SetReportURL(ctx, run.ID, url); err != nil {
		return err
	}
	log.Info("report uploaded", "run_id", run.RunID, "url", url)
	return nil
}
