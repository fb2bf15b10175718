package unstructured

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/general/v0/general" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("strategy") != "auto" {
			http.Error(w, "strategy", http.StatusBadRequest)
			return
		}
		f, header, err := r.FormFile("files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if header.Filename != "poliza.pdf" || string(data) != "%PDF-1.4" {
			http.Error(w, "unexpected file", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`[
			{"type":"Title","text":"Póliza","element_id":"1","metadata":{"page_number":1}},
			{"type":"Footer","text":"   ","element_id":"2"},
			{"type":"NarrativeText","text":" Cobertura de enfermedades graves. ","element_id":"3"}
		]`))
	}))
	defer srv.Close()

	svc := NewUnstructuredService(srv.URL, srv.Client())
	texts, err := svc.ExtractText(context.Background(), "poliza.pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if len(texts) != 2 || texts[0] != "Póliza" || texts[1] != "Cobertura de enfermedades graves." {
		t.Errorf("texts = %q", texts)
	}
}

func TestConvertPDFToTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported file", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewUnstructuredService(srv.URL, srv.Client()).ConvertPDFToText(context.Background(), "x.pdf", []byte("x"))
	if err == nil {
		t.Error("ConvertPDFToText() error = nil")
	}
}
