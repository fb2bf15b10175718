package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalFileStore(t *testing.T) {
	root := t.TempDir()
	store := NewLocalFileStore()

	files := map[string]string{
		"a.txt":          "uno",
		"sub/b.MD":       "dos",
		"sub/deep/c.pdf": "%PDF",
		"notes.docx":     "x",
	}
	for name, content := range files {
		if err := store.WriteFile(filepath.Join(root, name), []byte(content)); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
	}

	got, err := store.ListFiles(root, ".txt", ".md", ".pdf")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	want := []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "sub", "b.MD"),
		filepath.Join(root, "sub", "deep", "c.pdf"),
	}
	if len(got) != len(want) {
		t.Fatalf("ListFiles() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListFiles()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	all, err := store.ListFiles(root)
	if err != nil || len(all) != 4 {
		t.Errorf("ListFiles() without filter = %v, %v", all, err)
	}

	count, size, err := store.GetFileStats(root)
	if err != nil {
		t.Fatalf("GetFileStats() error = %v", err)
	}
	if count != 2 || size != int64(len("uno")+len("x")) {
		t.Errorf("GetFileStats() = %d, %d", count, size)
	}

	rc, err := store.ReadFileAsStream(filepath.Join(root, "sub", "b.MD"))
	if err != nil {
		t.Fatalf("ReadFileAsStream() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "dos" {
		t.Errorf("stream content = %q", data)
	}

	if _, err := store.ListFiles(filepath.Join(root, "missing")); !os.IsNotExist(err) {
		t.Errorf("ListFiles(missing) error = %v, want not exist", err)
	}
}
