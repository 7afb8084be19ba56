// Package console implements a call log Sink that prints entries in a
// human-readable format.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/websavers/mailcow-provision/internal/calllog"
)

// previewLimit caps how much of the raw panel response is printed.
const previewLimit = 200

// Sink prints call log entries. Output goes to stderr so that stdout stays
// reserved for the result handed back to the host platform.
type Sink struct {
	writer io.Writer
}

// New creates a console Sink that writes to os.Stderr.
func New() *Sink {
	return &Sink{writer: os.Stderr}
}

// NewWithWriter creates a console Sink that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Sink {
	return &Sink{writer: w}
}

// Record prints the entry. Write failures are ignored; the console is a
// best-effort sink.
func (s *Sink) Record(_ context.Context, e *calllog.Entry) error {
	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("Call: %s.%s (%s)\n", e.Module, e.Action, e.ID))
	b.WriteString(fmt.Sprintf("Time: %s\n", e.Time.Format("2006-01-02 15:04:05 MST")))

	if len(e.Request) > 0 {
		keys := make([]string, 0, len(e.Request))
		for k := range e.Request {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("Request:\n")
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("  %s: %v\n", k, e.Request[k]))
		}
	}

	if e.Response != "" {
		b.WriteString(fmt.Sprintf("Response (%s): %s\n", formatSize(len(e.Response)), preview(e.Response)))
	}

	if e.Failed() {
		b.WriteString(fmt.Sprintf("Error: %s\n", e.Error))
		if e.ErrorKind != "" {
			b.WriteString(fmt.Sprintf("Kind: %s", e.ErrorKind))
			if e.ErrorCode != 0 {
				b.WriteString(fmt.Sprintf(" (code %d)", e.ErrorCode))
			}
			b.WriteString("\n")
		}
		if e.Trace != "" {
			b.WriteString("Trace:\n" + e.Trace + "\n")
		}
	}

	b.WriteString("========================================\n")

	_, _ = fmt.Fprint(s.writer, b.String())
	return nil
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "console"
}

// preview collapses whitespace and truncates the response for display.
func preview(body string) string {
	flat := strings.Join(strings.Fields(body), " ")
	if len(flat) <= previewLimit {
		return flat
	}
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(flat[cut]) {
		cut--
	}
	return flat[:cut] + "..."
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
