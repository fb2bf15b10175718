package cmd

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ragtune/src/fsutil"
	jobctrl "ragtune/src/infrastructure/job"
	"ragtune/src/log"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue a sweep for the worker",
	Long: `The enqueue command stores a sweep job in PostgreSQL and publishes it to
RabbitMQ. Presets and metrics come from the config file, the benchmark from
--benchmark or the built-in one.`,
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().StringP("corpus", "c", "", "corpus directory as seen by the worker")
	enqueueCmd.MarkFlagRequired("corpus")
	enqueueCmd.Flags().StringP("benchmark", "b", "", "JSON file with question/ground_truth pairs")
	enqueueCmd.Flags().Bool("upload", false, "upload the reports to MinIO when the sweep ends")
	enqueueCmd.Flags().Duration("question-pause", 0, "pause after every question (defaults to the worker's config)")
	enqueueCmd.Flags().Duration("config-pause", 0, "pause between presets (defaults to the worker's config)")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	corpus, _ := cmd.Flags().GetString("corpus")
	benchmarkPath, _ := cmd.Flags().GetString("benchmark")
	upload, _ := cmd.Flags().GetBool("upload")

	payload := jobctrl.EvaluationPayload{
		CorpusDir: corpus,
		Metrics:   loadMetrics(),
		Upload:    upload,
	}
	if benchmarkPath != "" {
		benchmark, err := loadBenchmarkFile(fsutil.NewLocalFileStore(), benchmarkPath)
		if err != nil {
			return err
		}
		payload.Benchmark = benchmark
	}
	if viper.IsSet("presets") {
		presets, err := loadPresets()
		if err != nil {
			return err
		}
		payload.Presets = presets
	}
	if cmd.Flags().Changed("question-pause") {
		d, _ := cmd.Flags().GetDuration("question-pause")
		payload.QuestionPause = &d
	}
	if cmd.Flags().Changed("config-pause") {
		d, _ := cmd.Flags().GetDuration("config-pause")
		payload.ConfigPause = &d
	}

	logger := jobctrl.NewLogrAdapter(log.Logger())

	db, err := openDB()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	defer sqlDB.Close()

	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	jobRepo := jobctrl.NewPostgresJobRepository(db)
	if err := jobRepo.AutoMigrate(cmd.Context()); err != nil {
		return err
	}

	jobService := jobctrl.NewJobService(amqpPublisher, jobRepo, logger, nil)
	job, err := jobService.EnqueueEvaluation(cmd.Context(), payload)
	if err != nil {
		return err
	}

	log.Info("job enqueued", "job_id", job.ID, "corpus", corpus)
	fmt.Fprintln(cmd.OutOrStdout(), job.ID)
	return nil
}
