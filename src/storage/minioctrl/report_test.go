package minioctrl

import (
	"context"
	"strings"
	"testing"

	"ragtune/src/core/evaluation"
)

type memoryObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *memoryObjects) PutObject(ctx context.Context, bucketName, objectName, contentType string, data []byte) error {
	key := bucketName + "/" + objectName
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func TestReportUploader(t *testing.T) {
	store := &memoryObjects{objects: map[string][]byte{}, types: map[string]string{}}
	table := &evaluation.Table{
		Metrics: []string{"faithfulness"},
		Results: []evaluation.Result{{Name: "Balanced Natural", Scores: evaluation.Scores{"faithfulness": 0.5}}},
	}

	ref, err := NewReportUploader(store, "").Upload(context.Background(), "run-1", table)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if ref != "reports/run-1/results.json" {
		t.Errorf("Upload() = %q", ref)
	}

	bucket, object := GetBucketAndObjectFromURL(ref)
	if bucket != ReportsBucket || object != "run-1/results.json" {
		t.Errorf("GetBucketAndObjectFromURL() = %q, %q", bucket, object)
	}

	csv := string(store.objects["reports/run-1/results.csv"])
	if !strings.HasPrefix(csv, "combination_name,faithfulness\n") || !strings.Contains(csv, "Balanced Natural,0.5000") {
		t.Errorf("csv report = %q", csv)
	}
	if store.types["reports/run-1/results.json"] != "application/json" {
		t.Errorf("json content type = %q", store.types["reports/run-1/results.json"])
	}
	if !strings.Contains(string(store.objects[ref]), `"combination_name": "Balanced Natural"`) {
		t.Errorf("json report = %s", store.objects[ref])
	}
}
