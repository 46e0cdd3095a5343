package topk

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister rewrites a text file with one locator per line
type FilePersister struct {
	path string
}

// NewFilePersister creates a persister for path
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Path returns the destination file
func (p *FilePersister) Path() string {
	return p.path
}

// Persist writes the entries to a temporary file in the destination directory
// and renames it over the destination, so readers see the old or the new set
// and never a partial one.
func (p *FilePersister) Persist(entries []Entry) error {
	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	w := bufio.NewWriter(tmp)
	for _, e := range entries {
		if _, err := w.WriteString(e.Locator + "\n"); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush entries: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", p.path, err)
	}
	return nil
}
