package fsutil

import "io"

// FileStore provides an interface for file system operations
type FileStore interface {
	// ReadFile reads a file and returns its contents
	ReadFile(path string) ([]byte, error)

	// ReadFileAsStream opens a file and returns a reader
	ReadFileAsStream(path string) (io.ReadCloser, error)

	// WriteFile writes data to path, creating parent directories
	WriteFile(path string, data []byte) error

	// MakeDirectory creates a new directory and all necessary parents
	MakeDirectory(path string) error

	// ListFiles walks root and returns regular files whose extension is one of
	// exts (case-insensitive, with the leading dot). No exts means every file.
	ListFiles(root string, exts ...string) ([]string, error)

	// GetFileStats returns the total count and size of files in a directory
	GetFileStats(path string) (count int, size int64, err error)
}

// Stat represents statistics about files in a directory
type Stat struct {
	Count int   // Number of files
	Size  int64 // Total size in bytes
}
