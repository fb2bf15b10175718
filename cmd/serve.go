package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpHdlr "ragtune/handler/http"
	jobctrl "ragtune/src/infrastructure/job"
	"ragtune/src/log"
	"ragtune/src/storage/minioctrl"
	"ragtune/src/storage/postgres/runctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored evaluation runs over HTTP",
	Long: `The serve command starts an HTTP server that lists stored runs, renders
their results tables, returns uploaded reports and accepts new sweep jobs.`,
	RunE: RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}

	runService, err := runctrl.NewRunService(db)
	if err != nil {
		return err
	}
	if err := runService.AutoMigrate(cmd.Context()); err != nil {
		return err
	}

	// Reports and job submission are optional
	var reports httpHdlr.ReportStore
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		log.Error(err, "report download disabled")
	} else {
		reports = minioService
	}

	var jobs httpHdlr.JobQueue
	logger := jobctrl.NewLogrAdapter(log.Logger())
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		log.Error(err, "job submission disabled")
	} else {
		defer amqpPublisher.Close()
		jobRepo := jobctrl.NewPostgresJobRepository(db)
		if err := jobRepo.AutoMigrate(cmd.Context()); err != nil {
			return err
		}
		jobs = jobctrl.NewJobService(amqpPublisher, jobRepo, logger, nil)
	}

	handler := httpHdlr.NewHandler(runService, reports, jobs)

	// Setup gin router
	r := gin.Default()

	// Register routes
	handler.RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	// Get underlying *sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		log.Error(err, "Failed to get underlying *sql.DB")
	} else if err := sqlDB.Close(); err != nil {
		log.Error(err, "Error closing database connection")
	}

	log.Info("Server exited")
	return nil
}
