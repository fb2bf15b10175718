package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ragtune/src/core/evaluation"
	jobctrl "ragtune/src/infrastructure/job"
	"ragtune/src/storage/minioctrl"
	"ragtune/src/storage/postgres/runctrl"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// RunDetail is a run with its results table.
type RunDetail struct {
	runctrl.Run
	Columns []string          `json:"columns"`
	Table   *evaluation.Table `json:"table"`
}

// ListRuns godoc
// @Summary List evaluation runs, newest first
// @Tags runs
// @Produce json
// @Param limit query int false "maximum number of runs"
// @Success 200 {array} runctrl.Run
// @Failure 400 {object} ErrorResponse
// @Router /runs [get]
func (h *Handler) ListRuns(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := h.runs.List(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []runctrl.Run{}
	}
	sendJSON(c, http.StatusOK, runs)
}

// GetRun godoc
// @Summary Get one run with its results table
// @Tags runs
// @Produce json
// @Param id path string true "run id"
// @Success 200 {object} RunDetail
// @Failure 404 {object} ErrorResponse
// @Router /runs/{id} [get]
func (h *Handler) GetRun(c *gin.Context) {
	run, table, ok := h.loadRun(c)
	if !ok {
		return
	}
	detail := RunDetail{Run: *run, Columns: table.Columns(), Table: table}
	detail.Run.Results = nil
	sendJSON(c, http.StatusOK, detail)
}

// GetRunTable godoc
// @Summary Render the results table of a run
// @Tags runs
// @Produce plain
// @Param id path string true "run id"
// @Param format query string false "text, csv or json"
// @Success 200 {string} string
// @Router /runs/{id}/table [get]
func (h *Handler) GetRunTable(c *gin.Context) {
	format := c.DefaultQuery("format", "text")

	var (
		render      func(*evaluation.Table, *bytes.Buffer) error
		contentType string
	)
	switch format {
	case "text":
		render = func(t *evaluation.Table, b *bytes.Buffer) error { return t.Render(b) }
		contentType = "text/plain; charset=utf-8"
	case "csv":
		render = func(t *evaluation.Table, b *bytes.Buffer) error { return t.WriteCSV(b) }
		contentType = "text/csv; charset=utf-8"
	case "json":
		render = func(t *evaluation.Table, b *bytes.Buffer) error { return t.WriteJSON(b) }
		contentType = "application/json; charset=utf-8"
	default:
		sendError(c, http.StatusBadRequest, fmt.Errorf("unsupported format %q", format))
		return
	}

	_, table, ok := h.loadRun(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := render(table, &buf); err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// GetRunReport godoc
// @Summary Download the JSON report uploaded for a run
// @Tags runs
// @Produce json
// @Param id path string true "run id"
// @Success 200 {object} evaluation.Table
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /runs/{id}/report [get]
func (h *Handler) GetRunReport(c *gin.Context) {
	if h.reports == nil {
		sendError(c, http.StatusServiceUnavailable, ErrFeatureDisabled)
		return
	}

	run, err := h.runs.GetByRunID(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		sendError(c, http.StatusNotFound, runctrl.ErrRunNotFound)
		return
	}

	bucket, object := minioctrl.GetBucketAndObjectFromURL(run.ReportURL)
	if bucket == "" || object == "" {
		sendError(c, http.StatusNotFound, ErrReportNotAvailable)
		return
	}

	data, err := h.reports.GetObject(c.Request.Context(), bucket, object)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// EnqueueEvaluation godoc
// @Summary Queue a sweep for the worker
// @Tags jobs
// @Accept json
// @Produce json
// @Param payload body jobctrl.EvaluationPayload true "sweep description"
// @Success 202 {object} jobctrl.Job
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /jobs [post]
func (h *Handler) EnqueueEvaluation(c *gin.Context) {
	if h.jobs == nil {
		sendError(c, http.StatusServiceUnavailable, ErrFeatureDisabled)
		return
	}

	var payload jobctrl.EvaluationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if err := payload.Validate(); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	job, err := h.jobs.EnqueueEvaluation(c.Request.Context(), payload)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}
	sendJSON(c, http.StatusAccepted, job)
}

// CheckHealth godoc
// @Summary Check server health
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) CheckHealth(c *gin.Context) {
	sendJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) loadRun(c *gin.Context) (*runctrl.Run, *evaluation.Table, bool) {
	run, err := h.runs.GetByRunID(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return nil, nil, false
	}
	if run == nil {
		sendError(c, http.StatusNotFound, runctrl.ErrRunNotFound)
		return nil, nil, false
	}

	table, err := run.Table()
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return nil, nil, false
	}
	return run, table, true
}
