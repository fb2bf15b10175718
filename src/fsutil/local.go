package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalFileStore implements FileStore using the local filesystem
type LocalFileStore struct{}

// NewLocalFileStore creates a new LocalFileStore
func NewLocalFileStore() FileStore {
	return &LocalFileStore{}
}

func (fs *LocalFileStore) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (fs *LocalFileStore) ReadFileAsStream(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (fs *LocalFileStore) WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MakeDirectory(dir); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

func (fs *LocalFileStore) MakeDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

func (lfs *LocalFileStore) ListFiles(root string, exts ...string) ([]string, error) {
	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = struct{}{}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if len(allowed) > 0 {
			if _, ok := allowed[strings.ToLower(filepath.Ext(path))]; !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func (fs *LocalFileStore) GetFileStats(path string) (count int, size int64, err error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0, 0, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			info, err := entry.Info()
			if err != nil {
				return 0, 0, err
			}
			count++
			size += info.Size()
		}
	}

	return count, size, nil
}
