package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ragtune/src/core/evaluation"
	jobctrl "ragtune/src/infrastructure/job"
	"ragtune/src/log"
	"ragtune/src/storage/minioctrl"
	"ragtune/src/storage/postgres/runctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background sweep worker",
	Long: `The worker command consumes queued sweeps from RabbitMQ one at a time,
runs them and stores their results in PostgreSQL.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().Bool("upload", false, "upload reports of every run to MinIO, not only of jobs that ask for it")
}

// sweepRunner executes queued sweeps and records them.
type sweepRunner struct {
	runs      *runctrl.RunService
	uploader  *minioctrl.ReportUploader
	uploadAll bool
}

func (r *sweepRunner) RunEvaluation(ctx context.Context, payload jobctrl.EvaluationPayload) error {
	req := sweepRequest{
		CorpusDir:     payload.CorpusDir,
		Benchmark:     payload.Benchmark,
		Presets:       payload.Presets,
		Metrics:       payload.Metrics,
		QuestionPause: configDuration("evaluation.question_pause", evaluation.DefaultQuestionPause),
		ConfigPause:   configDuration("evaluation.config_pause", evaluation.DefaultConfigPause),
	}
	if len(req.Benchmark) == 0 {
		req.Benchmark = evaluation.DefaultBenchmark()
	}
	if len(req.Presets) == 0 {
		presets, err := loadPresets()
		if err != nil {
			return err
		}
		req.Presets = presets
	}
	if len(req.Metrics) == 0 {
		req.Metrics = loadMetrics()
	}
	if payload.QuestionPause != nil {
		req.QuestionPause = *payload.QuestionPause
	}
	if payload.ConfigPause != nil {
		req.ConfigPause = *payload.ConfigPause
	}

	run, err := r.runs.Create(ctx, req.CorpusDir, req.Metrics)
	if err != nil {
		return err
	}
	log.Info("run created", "run_id", run.RunID, "corpus", req.CorpusDir)

	var uploader *minioctrl.ReportUploader
	if payload.Upload || r.uploadAll {
		uploader = r.uploader
	}

	table, sweepErr := runSweep(ctx, req)
	if err := recordRun(context.WithoutCancel(ctx), r.runs, uploader, run, table, sweepErr); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return sweepErr
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Initialize logger
	logger := jobctrl.NewLogrAdapter(log.Logger())

	db, err := openDB()
	if err != nil {
		return err
	}

	// Get underlying *sql.DB for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// Initialize AMQP publisher
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	// Initialize AMQP subscriber
	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(
		subscriberConfig,
		logger,
	)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	// Initialize router
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}

	// Failed sweeps are stored as failed runs and not retried.
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runService, err := runctrl.NewRunService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize run service: %w", err)
	}
	if err := runService.AutoMigrate(ctx); err != nil {
		return err
	}

	jobRepo := jobctrl.NewPostgresJobRepository(db)
	if err := jobRepo.AutoMigrate(ctx); err != nil {
		return err
	}

	uploadAll, _ := cmd.Flags().GetBool("upload")
	runner := &sweepRunner{runs: runService, uploadAll: uploadAll}
	if uploader, err := newReportUploader(ctx); err != nil {
		log.Error(err, "report upload disabled")
	} else {
		runner.uploader = uploader
	}

	jobService := jobctrl.NewJobService(amqpPublisher, jobRepo, logger, runner)

	// Add handler for processing jobs
	router.AddNoPublisherHandler(
		"job_processor",
		jobctrl.JobsTopic,
		amqpSubscriber,
		func(msg *message.Message) error {
			return jobService.ProcessJobMessage(msg)
		},
	)

	routerErr := make(chan error, 1)
	go func() {
		routerErr <- router.Run(ctx)
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-c:
	case err := <-routerErr:
		if err != nil {
			return fmt.Errorf("router stopped: %w", err)
		}
		return nil
	}

	log.Info("Shutting down...")
	cancel()
	if err := router.Close(); err != nil {
		log.Error(err, "failed to close router")
	}
	select {
	case <-routerErr:
	case <-time.After(30 * time.Second):
		log.Info("router did not stop in time")
	}
	log.Info("Router stopped")

	return nil
}
