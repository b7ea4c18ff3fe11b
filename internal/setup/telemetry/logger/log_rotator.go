package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogRotator is an io.Writer that keeps a log file bounded to roughly maxLines.
// Once twice the limit has been written since the last compaction, the file is
// rewritten with only the most recent maxLines lines.
type LogRotator struct {
	mu       sync.Mutex
	writer   io.Writer
	recent   *RingBuffer
	path     string
	pending  int // lines written since the last compaction
	maxLines int
}

// NewLogRotator wraps writer, which must be the open file at path.
func NewLogRotator(writer io.Writer, maxLines int, path string) *LogRotator {
	return &LogRotator{
		writer:   writer,
		recent:   NewRingBuffer(maxLines),
		path:     path,
		maxLines: maxLines,
	}
}

// Write implements io.Writer.
func (w *LogRotator) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.writer.Write(p)
	if err != nil {
		return n, err
	}

	for line := range strings.SplitSeq(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}

		w.recent.Add(line)
		w.pending++

		if w.pending >= w.maxLines*2 {
			if err := w.compact(); err != nil {
				return n, fmt.Errorf("failed to compact log file: %w", err)
			}

			w.pending = w.recent.Len()
		}
	}

	return n, nil
}

// compact replaces the log file with the buffered tail and reopens it.
func (w *LogRotator) compact() error {
	lines := w.recent.Lines()
	if len(lines) == 0 {
		return nil
	}

	temp, err := os.CreateTemp(filepath.Dir(w.path), "compact-log-")
	if err != nil {
		return err
	}

	tempPath := temp.Name()

	if _, err := temp.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}

	if closer, ok := w.writer.(io.Closer); ok {
		closer.Close()
	}

	// Windows refuses to rename over an existing file
	os.Remove(w.path)

	if err := os.Rename(tempPath, w.path); err != nil {
		return err
	}

	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	w.writer = file

	return nil
}
