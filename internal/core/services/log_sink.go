package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const logSinkName = "job.log"

// LogSink is a job's append-only log file. Appends and truncation are
// serialised so a truncate never interleaves with a partial write.
type LogSink struct {
	path string

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// OpenLogSink creates (or reopens) the sink file inside dir.
func OpenLogSink(dir string) (*LogSink, error) {
	path := filepath.Join(dir, logSinkName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log sink: %w", err)
	}
	return &LogSink{path: path, file: f}, nil
}

func (s *LogSink) Path() string {
	return s.path
}

// Write appends p to the sink.
func (s *LogSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, os.ErrClosed
	}
	return s.file.Write(p)
}

// Truncate empties the sink. Later writes start again at offset zero.
func (s *LogSink) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return os.ErrClosed
	}
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate log sink: %w", err)
	}
	return nil
}

// ReadAll returns the whole current content of the sink.
func (s *LogSink) ReadAll() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log sink: %w", err)
	}
	return data, nil
}

// OpenReader opens an independent read handle on the sink.
func (s *LogSink) OpenReader() (*os.File, error) {
	return os.Open(s.path)
}

// Watch returns a watcher that fires on changes to the sink file.
// The caller owns the watcher and must close it.
func (s *LogSink) Watch() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(s.path); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch log sink: %w", err)
	}
	return w, nil
}

func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
