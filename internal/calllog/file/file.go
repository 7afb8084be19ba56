// Package file implements a call log Sink that appends entries as JSON lines
// to a size-rotated log file.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/websavers/mailcow-provision/internal/calllog"
)

// Config holds the rotation settings for the call log file.
type Config struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Sink writes one JSON object per entry.
type Sink struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// New creates a Sink backed by a lumberjack rotating writer.
func New(cfg Config) *Sink {
	return &Sink{
		w: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}
}

// NewWithWriter creates a Sink that writes to w, used for testing.
func NewWithWriter(w io.WriteCloser) *Sink {
	return &Sink{w: w}
}

// Record appends the entry as a single JSON line.
func (s *Sink) Record(_ context.Context, e *calllog.Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal call log entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("failed to write call log entry: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "file"
}
