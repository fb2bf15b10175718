package runctrl

import (
	"math"
	"testing"
	"time"

	"ragtune/src/core/evaluation"
)

func TestResultRecordsRoundTrip(t *testing.T) {
	svc, err := NewRunService(nil)
	if err != nil {
		t.Fatalf("NewRunService() error = %v", err)
	}

	table := &evaluation.Table{
		Metrics: []string{"faithfulness", "context_recall"},
		Results: []evaluation.Result{
			{
				Name:   "Creative & Balanced",
				Preset: evaluation.Preset{Name: "Creative & Balanced", ChunkSize: 1000, TopK: 4, Temperature: 0.3},
				Scores: evaluation.Scores{"faithfulness": 0.8, "context_recall": math.NaN()},
				Questions: []evaluation.QuestionResult{
					{Question: "q", GroundTruth: "g", Scores: evaluation.Scores{"faithfulness": 0.8, "context_recall": math.NaN()}},
				},
			},
			{
				Name:    "Dense Precision",
				Preset:  evaluation.Preset{Name: "Dense Precision", ChunkSize: 1800, TopK: 2, Temperature: 0.15},
				Scores:  evaluation.Scores{"faithfulness": math.NaN(), "context_recall": math.NaN()},
				Partial: true,
			},
		},
	}

	records, err := svc.resultRecords(42, table)
	if err != nil {
		t.Fatalf("resultRecords() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID == records[1].ID {
		t.Errorf("records share an id")
	}
	if records[1].Order != 1 || records[1].RunID != 42 || !records[1].Partial {
		t.Errorf("second record = %+v", records[1])
	}
	if records[1].Questions != "[]" {
		t.Errorf("empty questions stored as %q", records[1].Questions)
	}

	finished := time.Now()
	run := Run{Metrics: "faithfulness,context_recall", FinishedAt: &finished, Results: records}
	got, err := run.Table()
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}
	if len(got.Metrics) != 2 || got.Metrics[1] != "context_recall" {
		t.Errorf("Metrics = %v", got.Metrics)
	}
	first := got.Results[0]
	if first.Preset.ChunkSize != 1000 || first.Scores["faithfulness"] != 0.8 || !math.IsNaN(first.Scores["context_recall"]) {
		t.Errorf("first result = %+v", first)
	}
	if len(first.Questions) != 1 || !math.IsNaN(first.Questions[0].Scores["context_recall"]) {
		t.Errorf("questions = %+v", first.Questions)
	}
}
