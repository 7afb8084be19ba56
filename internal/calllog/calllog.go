// Package calllog defines the module-call log that every lifecycle call is
// reported to, and the interface its backends implement.
package calllog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Entry is one reported lifecycle call: its inputs, the raw panel output and,
// for failures, the error and the stack it was raised from.
type Entry struct {
	ID        string         `json:"id"`
	Time      time.Time      `json:"time"`
	Module    string         `json:"module"`
	Action    string         `json:"action"`
	Request   map[string]any `json:"request"`
	Response  string         `json:"response,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	ErrorCode int            `json:"error_code,omitempty"`
	Trace     string         `json:"trace,omitempty"`
}

// NewEntry returns an entry stamped with a fresh ID and the current time.
func NewEntry(module, action string, request map[string]any) *Entry {
	return &Entry{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Module:  module,
		Action:  action,
		Request: request,
	}
}

// Failed reports whether the call ended in an error.
func (e *Entry) Failed() bool {
	return e.Error != ""
}

// Sink is the interface that call log backends must implement.
type Sink interface {
	// Record persists or forwards one entry.
	Record(ctx context.Context, entry *Entry) error

	// Name returns the human-readable name of this sink.
	Name() string
}

// Multi fans an entry out to several sinks.
type Multi []Sink

// Record forwards the entry to every sink, even when an earlier one fails,
// and returns the joined errors.
func (m Multi) Record(ctx context.Context, entry *Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Name returns the sink name.
func (m Multi) Name() string {
	return "multi"
}
