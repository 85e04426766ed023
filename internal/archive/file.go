package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileDestination writes the JSONL archive to a local path, atomically via a
// temp file rename.
type FileDestination struct {
	path string
}

// NewFileDestination creates a file destination. Parent directories are
// created on first write.
func NewFileDestination(path string) *FileDestination {
	return &FileDestination{path: path}
}

// Write replaces the archive file with the given payload.
func (d *FileDestination) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".archive-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace archive: %w", err)
	}
	return nil
}
