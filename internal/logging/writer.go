package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is an io.Writer that appends to a log file and shifts it
// to numbered generations (docsift.log.1, docsift.log.2, ...) when it grows
// past a size limit.
type RotatingWriter struct {
	path        string
	maxSize     int64
	generations int

	mu        sync.Mutex
	file      *os.File
	size      int64
	syncWrite bool
}

// NewRotatingWriter opens path for appending. The file rotates before a
// write would take it past maxSizeMB, and at most maxFiles generations are
// kept. Non-positive limits fall back to 10MB and 5 files.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxFiles <= 0 {
		maxFiles = 5
	}
	w := &RotatingWriter{
		path:        path,
		maxSize:     int64(maxSizeMB) << 20,
		generations: maxFiles,
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// SyncEveryWrite makes each Write fsync the file.
func (w *RotatingWriter) SyncEveryWrite(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.syncWrite = enabled
}

// Write appends p, rotating first if needed. A failed rotation is reported
// on stderr and writing continues to a reopened file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}
	if w.file == nil {
		return 0, os.ErrClosed
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err == nil && w.syncWrite {
		_ = w.file.Sync()
	}
	return n, err
}

// Sync flushes the file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the file. Later writes fail with os.ErrClosed.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

func (w *RotatingWriter) generation(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}

// rotate drops the oldest generation, shifts the others up by one and
// moves the live file to generation 1.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		w.file = nil
	}

	if err := os.Remove(w.generation(w.generations)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to drop oldest log: %w", err)
	}
	for n := w.generations - 1; n >= 1; n-- {
		if err := os.Rename(w.generation(n), w.generation(n+1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to shift log generation %d: %w", n, err)
		}
	}
	if err := os.Rename(w.path, w.generation(1)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	return w.open()
}
