// Package report holds what the renderers below it share: output helpers
// and the errors they fail with.
package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

var (
	// ErrDirectoryNotCreated is returned when an output directory cannot be created
	ErrDirectoryNotCreated = errors.New("directory could not be created")
	// ErrWriteFailed is returned when a report file cannot be written
	ErrWriteFailed = errors.New("report could not be written")
)

// EnsureDirectory creates dir and its parents
func EnsureDirectory(fs afero.Fs, dir string) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDirectoryNotCreated, dir, err)
	}
	return nil
}

// WriteFile writes data to target, creating the directory it lives in
func WriteFile(fs afero.Fs, target string, data []byte) error {
	if err := EnsureDirectory(fs, filepath.Dir(target)); err != nil {
		return err
	}
	if err := afero.WriteFile(fs, target, data, 0o644); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, target, err)
	}
	return nil
}

// Time returns t, or the current time when t is zero
func Time(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
