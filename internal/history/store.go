// Package history records pipeline and compressor runs in SQLite.
package history

import (
	"context"
	"time"
)

// Run kinds.
const (
	KindConvert  = "convert"
	KindCompress = "compress-images"
	KindLocales  = "locales"
)

// Outcomes.
const (
	OutcomeRegenerated = "regenerated"
	OutcomeUpToDate    = "up_to_date"
	OutcomeFailed      = "failed"
)

// Run is one recorded command run.
type Run struct {
	ID        string
	Kind      string
	StartedAt time.Time
	Duration  time.Duration
	Outcome   string
	Articles  int
	Assets    int
	Skipped   bool
	Error     string
}

// Store persists runs.
type Store interface {
	// Record appends a run.
	Record(ctx context.Context, run Run) error

	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]Run, error)

	// Close releases resources.
	Close() error
}

// NoopStore discards runs. Used when history.path is not configured.
type NoopStore struct{}

func (NoopStore) Record(context.Context, Run) error          { return nil }
func (NoopStore) Recent(context.Context, int) ([]Run, error) { return nil, nil }
func (NoopStore) Close() error                               { return nil }

// Open returns a SQLite store for path, or a NoopStore when path is empty.
func Open(path string) (Store, error) {
	if path == "" {
		return NoopStore{}, nil
	}
	return NewSQLiteStore(path)
}
