package ics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another run holds the output lock.
var ErrLocked = errors.New("output is locked by another run")

// WriteFile replaces path with body atomically: the document is written to
// a temp file in the same directory and renamed over path only after a
// successful write and sync. A sibling "<path>.lock" file serializes
// concurrent writers.
func WriteFile(path string, body []byte) error {
	if path == "" {
		return errors.New("write: output path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write: create dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("write: lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("write: %s: %w", path, ErrLocked)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("write: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error; after rename this is a no-op.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("write: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write: rename: %w", err)
	}

	return nil
}
