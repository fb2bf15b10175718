package minioctrl

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"ragtune/src/core/evaluation"
)

// ObjectPutter stores one object.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName, contentType string, data []byte) error
}

// ReportUploader writes the CSV and JSON renditions of a results table.
type ReportUploader struct {
	store  ObjectPutter
	bucket string
}

func NewReportUploader(store ObjectPutter, bucket string) *ReportUploader {
	if bucket == "" {
		bucket = ReportsBucket
	}
	return &ReportUploader{store: store, bucket: bucket}
}

// Upload stores <runID>/results.csv and <runID>/results.json and returns the
// "bucket/object" reference of the JSON report.
func (u *ReportUploader) Upload(ctx context.Context, runID string, table *evaluation.Table) (string, error) {
	var csvBuf bytes.Buffer
	if err := table.WriteCSV(&csvBuf); err != nil {
		return "", fmt.Errorf("failed to render csv report: %w", err)
	}
	var jsonBuf bytes.Buffer
	if err := table.WriteJSON(&jsonBuf); err != nil {
		return "", fmt.Errorf("failed to render json report: %w", err)
	}

	csvName := path.Join(runID, "results.csv")
	if err := u.store.PutObject(ctx, u.bucket, csvName, "text/csv", csvBuf.Bytes()); err != nil {
		return "", err
	}
	jsonName := path.Join(runID, "results.json")
	if err := u.store.PutObject(ctx, u.bucket, jsonName, "application/json", jsonBuf.Bytes()); err != nil {
		return "", err
	}

	return u.bucket + "/" + jsonName, nil
}
