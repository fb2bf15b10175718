package runctrl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"ragtune/src/core/evaluation"
)

var ErrRunNotFound = errors.New("evaluation run not found")

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

type Run struct {
	ID         int64      `gorm:"primaryKey" json:"id"`
	RunID      string     `gorm:"not null;uniqueIndex" json:"run_id"`
	Status     RunStatus  `gorm:"not null" json:"status"`
	CorpusDir  string     `gorm:"not null" json:"corpus_dir"`
	Metrics    string     `gorm:"not null" json:"metrics"` // comma separated, table column order
	ReportURL  string     `gorm:"column:report_url" json:"report_url,omitempty"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Results    []Result   `gorm:"foreignKey:RunID;references:ID" json:"results,omitempty"`
}

func (Run) TableName() string { return "evaluation_runs" }

type Result struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	RunID           int64     `gorm:"not null;index" json:"run_id"`
	Order           int       `gorm:"not null;column:result_order" json:"order"`
	CombinationName string    `gorm:"not null" json:"combination_name"`
	ChunkSize       int       `gorm:"not null" json:"chunk_size"`
	TopK            int       `gorm:"not null" json:"top_k"`
	Temperature     float64   `gorm:"not null" json:"temperature"`
	Partial         bool      `gorm:"not null;default:false" json:"partial"`
	Scores          string    `gorm:"type:jsonb;not null" json:"-"`
	Questions       string    `gorm:"type:jsonb;not null" json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Result) TableName() string { return "evaluation_results" }

// DecodeScores returns the stored averages; null values come back missing.
func (r Result) DecodeScores() (evaluation.Scores, error) {
	var s evaluation.Scores
	if err := json.Unmarshal([]byte(r.Scores), &s); err != nil {
		return nil, fmt.Errorf("failed to decode scores: %w", err)
	}
	return s, nil
}

// Table rebuilds the results table of a run loaded with its results.
func (r Run) Table() (*evaluation.Table, error) {
	t := &evaluation.Table{StartedAt: r.StartedAt}
	if r.Metrics != "" {
		t.Metrics = strings.Split(r.Metrics, ",")
	}
	if r.FinishedAt != nil {
		t.FinishedAt = *r.FinishedAt
	}
	for _, res := range r.Results {
		scores, err := res.DecodeScores()
		if err != nil {
			return nil, err
		}
		var questions []evaluation.QuestionResult
		if err := json.Unmarshal([]byte(res.Questions), &questions); err != nil {
			return nil, fmt.Errorf("failed to decode questions: %w", err)
		}
		t.Results = append(t.Results, evaluation.Result{
			Name: res.CombinationName,
			Preset: evaluation.Preset{
				Name:        res.CombinationName,
				ChunkSize:   res.ChunkSize,
				TopK:        res.TopK,
				Temperature: res.Temperature,
			},
			Scores:    scores,
			Questions: questions,
			Partial:   res.Partial,
		})
	}
	return t, nil
}

type RunService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewRunService(db *gorm.DB) (*RunService, error) {
	node, err := snowflake.NewNode(4)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}

	return &RunService{
		db:        db,
		snowflake: node,
	}, nil
}

// AutoMigrate creates or updates the run tables.
func (s *RunService) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Run{}, &Result{}); err != nil {
		return fmt.Errorf("failed to migrate evaluation tables: %w", err)
	}
	return nil
}

func (s *RunService) Create(ctx context.Context, corpusDir string, metrics []string) (*Run, error) {
	run := &Run{
		ID:        s.snowflake.Generate().Int64(),
		RunID:     uuid.NewString(),
		Status:    RunStatusRunning,
		CorpusDir: corpusDir,
		Metrics:   strings.Join(metrics, ","),
		StartedAt: time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// SaveTable stores every result of table and closes the run with status.
func (s *RunService) SaveTable(ctx context.Context, run *Run, table *evaluation.Table, status RunStatus, runErr error) error {
	records, err := s.resultRecords(run.ID, table)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(records) > 0 {
			if err := tx.Create(&records).Error; err != nil {
				return fmt.Errorf("failed to create results: %w", err)
			}
		}

		updates := map[string]interface{}{
			"status":      status,
			"finished_at": table.FinishedAt,
		}
		if runErr != nil {
			msg := runErr.Error()
			updates["error"] = &msg
		}
		if err := tx.Model(&Run{}).Where("id = ?", run.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}
		return nil
	})
}

func (s *RunService) MarkFailed(ctx context.Context, id int64, runErr error) error {
	msg := runErr.Error()
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&Run{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      RunStatusFailed,
		"error":       &msg,
		"finished_at": &now,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to mark run failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *RunService) SetReportURL(ctx context.Context, id int64, url string) error {
	result := s.db.WithContext(ctx).Model(&Run{}).Where("id = ?", id).Update("report_url", url)
	if result.Error != nil {
		return fmt.Errorf("failed to set report url: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// List returns the most recent runs without their results.
func (s *RunService) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetByRunID returns a run with its results in table order, or nil when it
// does not exist.
func (s *RunService) GetByRunID(ctx context.Context, runID string) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).
		Preload("Results", func(db *gorm.DB) *gorm.DB { return db.Order("result_order ASC") }).
		Where("run_id = ?", runID).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (s *RunService) resultRecords(runID int64, table *evaluation.Table) ([]Result, error) {
	records := make([]Result, 0, len(table.Results))
	for i, r := range table.Results {
		scores, err := json.Marshal(r.Scores)
		if err != nil {
			return nil, fmt.Errorf("failed to encode scores: %w", err)
		}
		questions, err := json.Marshal(r.Questions)
		if err != nil {
			return nil, fmt.Errorf("failed to encode questions: %w", err)
		}
		if r.Questions == nil {
			questions = []byte("[]")
		}

		records = append(records, Result{
			ID:              s.snowflake.Generate().Int64(),
			RunID:           runID,
			Order:           i,
			CombinationName: r.Name,
			ChunkSize:       r.Preset.ChunkSize,
			TopK:            r.Preset.TopK,
			Temperature:     r.Preset.Temperature,
			Partial:         r.Partial,
			Scores:          string(scores),
			Questions:       string(questions),
		})
	}
	return records, nil
}
