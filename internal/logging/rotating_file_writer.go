package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// RotatingFileWriter appends to a log file and shifts it to path.1, path.2, ...
// once a write would push it past maxSizeBytes.
type RotatingFileWriter struct {
	mu           sync.Mutex
	path         string
	maxSizeBytes int64
	maxBackups   int
	file         *os.File
	size         int64
}

func NewRotatingFileWriter(path string, maxSizeBytes int64, maxBackups int) (*RotatingFileWriter, error) {
	if path == "" {
		return nil, errors.New("log path is required")
	}
	if maxSizeBytes <= 0 {
		return nil, errors.New("maxSizeBytes must be > 0")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	w := &RotatingFileWriter{
		path:         path,
		maxSizeBytes: maxSizeBytes,
		maxBackups:   max(maxBackups, 0),
	}
	if err := w.open(os.O_APPEND); err != nil {
		return nil, err
	}

	if w.size > w.maxSizeBytes {
		if err := w.rotateLocked(); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}

	// An oversized line still goes into an empty file.
	if w.size > 0 && w.size+int64(len(p)) > w.maxSizeBytes {
		if err := w.rotateLocked(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Rotate forces a rotation, e.g. on SIGHUP.
func (w *RotatingFileWriter) Rotate() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return os.ErrClosed
	}
	return w.rotateLocked()
}

func (w *RotatingFileWriter) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingFileWriter) open(mode int) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.size = 0
	if stat, err := f.Stat(); err == nil {
		w.size = stat.Size()
	}
	return nil
}

func (w *RotatingFileWriter) rotateLocked() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return err
		}
		w.file = nil
	}

	var err error
	if w.maxBackups == 0 {
		err = removeIfExists(w.path)
	} else {
		err = shiftBackups(w.path, w.maxBackups)
	}
	if err != nil {
		return err
	}
	return w.open(os.O_TRUNC)
}

func shiftBackups(basePath string, maxBackups int) error {
	if err := removeIfExists(backupPath(basePath, maxBackups)); err != nil {
		return err
	}

	for idx := maxBackups - 1; idx >= 1; idx-- {
		if err := renameIfExists(backupPath(basePath, idx), backupPath(basePath, idx+1)); err != nil {
			return err
		}
	}
	return renameIfExists(basePath, backupPath(basePath, 1))
}

func renameIfExists(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := removeIfExists(dst); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func backupPath(basePath string, idx int) string {
	return fmt.Sprintf("%s.%d", basePath, idx)
}
