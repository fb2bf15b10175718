package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	jobctrl "ragtune/src/infrastructure/job"
	"ragtune/src/storage/postgres/runctrl"
)

var (
	ErrReportNotAvailable = errors.New("run has no uploaded report")
	ErrFeatureDisabled    = errors.New("feature not configured on this server")
)

// RunStore reads persisted evaluation runs.
type RunStore interface {
	List(ctx context.Context, limit int) ([]runctrl.Run, error)
	GetByRunID(ctx context.Context, runID string) (*runctrl.Run, error)
}

// ReportStore fetches uploaded report objects.
type ReportStore interface {
	GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error)
}

// JobQueue accepts sweeps for background execution.
type JobQueue interface {
	EnqueueEvaluation(ctx context.Context, payload jobctrl.EvaluationPayload) (*jobctrl.Job, error)
}

type Handler struct {
	runs    RunStore
	reports ReportStore
	jobs    JobQueue
}

// NewHandler builds the results API. reports and jobs may be nil, in which
// case their routes answer 503.
func NewHandler(runs RunStore, reports ReportStore, jobs JobQueue) *Handler {
	return &Handler{
		runs:    runs,
		reports: reports,
		jobs:    jobs,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	// Run routes
	v1.GET("/runs", h.ListRuns)
	v1.GET("/runs/:id", h.GetRun)
	v1.GET("/runs/:id/table", h.GetRunTable)
	v1.GET("/runs/:id/report", h.GetRunReport)

	// Job routes
	v1.POST("/jobs", h.EnqueueEvaluation)

	// System routes
	v1.GET("/health", h.CheckHealth)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func sendError(c *gin.Context, status int, err error) {
	var code string
	switch {
	case errors.Is(err, runctrl.ErrRunNotFound):
		code = "NOT_FOUND"
		status = http.StatusNotFound
	case errors.Is(err, ErrReportNotAvailable):
		code = "REPORT_NOT_AVAILABLE"
		status = http.StatusNotFound
	case errors.Is(err, ErrFeatureDisabled):
		code = "UNAVAILABLE"
		status = http.StatusServiceUnavailable
	case status == http.StatusBadRequest:
		code = "BAD_REQUEST"
	default:
		code = "INTERNAL_ERROR"
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
