package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ragtune/src/core/evaluation"
	"ragtune/src/fsutil"
	"ragtune/src/log"
	"ragtune/src/storage/minioctrl"
	"ragtune/src/storage/postgres/runctrl"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run the hyperparameter sweep over a corpus",
	Long: `The evaluate command indexes the corpus once per preset, answers every
benchmark question, scores the answers and prints one averaged row per preset.
Questions or presets that fail are reported as "failed" and the sweep goes on.
Interrupting the command prints the presets evaluated so far.`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringP("corpus", "c", "", "directory with .txt, .md and .pdf documents")
	evaluateCmd.MarkFlagRequired("corpus")
	evaluateCmd.Flags().StringP("benchmark", "b", "", "JSON file with question/ground_truth pairs (defaults to the built-in benchmark)")
	evaluateCmd.Flags().StringP("output", "o", "", "also write the table to a .csv or .json file")
	evaluateCmd.Flags().Bool("persist", false, "store the run in PostgreSQL")
	evaluateCmd.Flags().Bool("upload", false, "upload the CSV and JSON reports to MinIO (implies --persist)")
	evaluateCmd.Flags().Duration("question-pause", 0, "pause after every question (defaults to evaluation.question_pause)")
	evaluateCmd.Flags().Duration("config-pause", 0, "pause between presets (defaults to evaluation.config_pause)")
	evaluateCmd.Flags().Bool("progress", false, "draw a progress bar on stderr")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	corpus, _ := cmd.Flags().GetString("corpus")
	benchmarkPath, _ := cmd.Flags().GetString("benchmark")
	output, _ := cmd.Flags().GetString("output")
	persist, _ := cmd.Flags().GetBool("persist")
	upload, _ := cmd.Flags().GetBool("upload")
	progress, _ := cmd.Flags().GetBool("progress")

	if output != "" {
		if ext := strings.ToLower(filepath.Ext(output)); ext != ".csv" && ext != ".json" {
			return fmt.Errorf("unsupported output format %q, use .csv or .json", ext)
		}
	}

	files := fsutil.NewLocalFileStore()
	count, size, err := files.GetFileStats(corpus)
	if err != nil {
		return fmt.Errorf("failed to read corpus directory: %w", err)
	}
	log.Debug("corpus directory", "path", corpus, "files", count, "bytes", size)

	benchmark, err := loadBenchmarkFile(files, benchmarkPath)
	if err != nil {
		return err
	}
	presets, err := loadPresets()
	if err != nil {
		return err
	}

	req := sweepRequest{
		CorpusDir:     corpus,
		Benchmark:     benchmark,
		Presets:       presets,
		Metrics:       loadMetrics(),
		QuestionPause: configDuration("evaluation.question_pause", evaluation.DefaultQuestionPause),
		ConfigPause:   configDuration("evaluation.config_pause", evaluation.DefaultConfigPause),
	}
	if cmd.Flags().Changed("question-pause") {
		req.QuestionPause, _ = cmd.Flags().GetDuration("question-pause")
	}
	if cmd.Flags().Changed("config-pause") {
		req.ConfigPause, _ = cmd.Flags().GetDuration("config-pause")
	}
	if progress {
		req.Progress = os.Stderr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	storeCtx := context.WithoutCancel(ctx)

	var (
		runs     *runctrl.RunService
		run      *runctrl.Run
		uploader *minioctrl.ReportUploader
	)
	if persist || upload {
		db, err := openDB()
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		runs, err = runctrl.NewRunService(db)
		if err != nil {
			return err
		}
		if err := runs.AutoMigrate(ctx); err != nil {
			return err
		}
		if upload {
			if uploader, err = newReportUploader(ctx); err != nil {
				return err
			}
		}
		if run, err = runs.Create(ctx, corpus, req.Metrics); err != nil {
			return err
		}
		log.Info("run created", "run_id", run.RunID)
	}

	log.Info("starting sweep",
		"corpus", corpus,
		"presets", len(presets),
		"questions", len(benchmark),
		"question_pause", req.QuestionPause,
		"config_pause", req.ConfigPause)

	table, sweepErr := runSweep(ctx, req)

	if run != nil {
		if err := recordRun(storeCtx, runs, uploader, run, table, sweepErr); err != nil {
			log.Error(err, "failed to record run", "run_id", run.RunID)
		}
	}
	if table == nil {
		return sweepErr
	}

	if errors.Is(sweepErr, context.Canceled) {
		fmt.Fprintln(cmd.ErrOrStderr(), "sweep interrupted, showing partial results")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nEvaluation results")
	if err := table.Render(cmd.OutOrStdout()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nfinished in %s\n", table.FinishedAt.Sub(table.StartedAt).Round(time.Second))

	if output != "" {
		if err := writeTableFile(files, output, table); err != nil {
			return err
		}
		log.Info("results written", "path", output)
	}

	return sweepErr
}

func loadBenchmarkFile(files fsutil.FileStore, path string) ([]evaluation.BenchmarkItem, error) {
	if path == "" {
		return evaluation.DefaultBenchmark(), nil
	}
	f, err := files.ReadFileAsStream(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open benchmark: %w", err)
	}
	defer f.Close()
	return evaluation.LoadBenchmark(f)
}

func writeTableFile(files fsutil.FileStore, path string, table *evaluation.Table) error {
	var buf bytes.Buffer
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = table.WriteJSON(&buf)
	} else {
		err = table.WriteCSV(&buf)
	}
	if err != nil {
		return fmt.Errorf("failed to render results: %w", err)
	}
	if err := files.WriteFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}
