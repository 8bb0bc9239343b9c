package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogRotation is a file writer that renames the file aside once it grows past
// maxSize and continues in a fresh file at the same path.
type LogRotation struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	size    int64
	maxSize int64
}

func NewLogRotation(path string, maxSize int64) (*LogRotation, error) {
	lr := &LogRotation{path: path, maxSize: maxSize}
	if err := lr.open(); err != nil {
		return nil, err
	}
	return lr, nil
}

func (lr *LogRotation) Write(p []byte) (int, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.maxSize > 0 && lr.size+int64(len(p)) > lr.maxSize && lr.size > 0 {
		if err := lr.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := lr.file.Write(p)
	lr.size += int64(n)
	return n, err
}

func (lr *LogRotation) Sync() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.file.Sync()
}

func (lr *LogRotation) Close() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.file.Close()
}

func (lr *LogRotation) open() error {
	file, err := os.OpenFile(lr.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open log file %s: %w", lr.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("cannot stat log file %s: %w", lr.path, err)
	}
	lr.file = file
	lr.size = info.Size()
	return nil
}

func (lr *LogRotation) rotate() error {
	if err := lr.file.Close(); err != nil {
		return err
	}

	timestamp := time.Now().Format("20060102-150405.000")
	ext := filepath.Ext(lr.path)
	base := lr.path[:len(lr.path)-len(ext)]
	if err := os.Rename(lr.path, fmt.Sprintf("%s-%s%s", base, timestamp, ext)); err != nil {
		return err
	}
	return lr.open()
}
