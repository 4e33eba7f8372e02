// ABOUTME: Structured audit trail of executed plan steps as JSON lines
// ABOUTME: Fans out to an append-only file and, in verbose mode, a text handler on stderr

package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// Audit is a structured logger plus the file it owns, if any.
type Audit struct {
	*slog.Logger
	closer io.Closer
}

// NewAudit opens path for appending and returns a logger that writes one
// JSON object per record. With verbose set, records are also mirrored to
// stderr in text form. An empty path with verbose unset discards everything.
func NewAudit(path string, verbose bool) (*Audit, error) {
	var handlers []slog.Handler
	a := &Audit{}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating audit log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		a.closer = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	if verbose {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if len(handlers) == 0 {
		a.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		return a, nil
	}
	a.Logger = slog.New(slogmulti.Fanout(handlers...))
	return a, nil
}

// NewAuditWriter builds an audit logger over w, for callers that manage
// the destination themselves.
func NewAuditWriter(w io.Writer) *Audit {
	return &Audit{Logger: slog.New(slogmulti.Fanout(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})))}
}

// Close releases the audit file.
func (a *Audit) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
