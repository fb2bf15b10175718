package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/schema"

	"ragtune/src/fsutil"
	"ragtune/src/log"
)

// PDFConverter extracts text blocks from a PDF.
type PDFConverter interface {
	ExtractText(ctx context.Context, filename string, content []byte) ([]string, error)
}

var textExtensions = []string{".txt", ".md"}

// Loader reads a corpus directory into documents. Plain text and markdown are
// read as is; PDFs go through the converter when one is configured.
type Loader struct {
	files fsutil.FileStore
	pdf   PDFConverter
}

func NewLoader(files fsutil.FileStore, pdf PDFConverter) *Loader {
	return &Loader{files: files, pdf: pdf}
}

func (l *Loader) Load(ctx context.Context, dir string) ([]schema.Document, error) {
	exts := append([]string{}, textExtensions...)
	if l.pdf != nil {
		exts = append(exts, ".pdf")
	}

	paths, err := l.files.ListFiles(dir, exts...)
	if err != nil {
		return nil, fmt.Errorf("failed to list corpus files: %w", err)
	}

	var docs []schema.Document
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := l.files.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		var text string
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			blocks, err := l.pdf.ExtractText(ctx, filepath.Base(path), content)
			if err != nil {
				return nil, fmt.Errorf("failed to convert %s: %w", path, err)
			}
			text = strings.Join(blocks, "\n\n")
		} else {
			text = string(content)
		}

		if strings.TrimSpace(text) == "" {
			log.Debug("skipping empty corpus file", "path", path)
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: text,
			Metadata:    map[string]any{"source": path},
		})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, dir)
	}
	log.Info("corpus loaded", "dir", dir, "documents", len(docs))
	return docs, nil
}
