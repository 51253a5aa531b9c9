package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

// ModelFS builds an in-memory models tree from slash-separated paths to
// SQL text.
func ModelFS(files map[string]string) fstest.MapFS {
	fsys := make(fstest.MapFS, len(files))
	for path, sql := range files {
		fsys[path] = &fstest.MapFile{Data: []byte(sql), Mode: 0o644}
	}
	return fsys
}

// WriteModels writes a models tree below dir and returns dir.
func WriteModels(t testing.TB, dir string, files map[string]string) string {
	t.Helper()
	for path, sql := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(full), err)
		}
		if err := os.WriteFile(full, []byte(sql), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", full, err)
		}
	}
	return dir
}
