// Package store provides durable deduplication of processed DM event ids.
//
// Backends: a JSON state file with atomic-replace writes (the default),
// SQLite, PostgreSQL, and an in-memory store for tests. An event id recorded
// here is never re-delivered while its record is younger than the configured
// max age; records persist across process restarts.
package store

import (
	"errors"
	"strings"
	"time"
)

// ErrPersist is wrapped by any Record failure caused by the underlying
// storage (disk full, database down). Fatal to that Record call only; the
// caller leaves the event eligible for redelivery.
var ErrPersist = errors.New("dedup store persist failed")

// DedupRecord is one processed-event marker.
type DedupRecord struct {
	EventID string    `json:"event_id"`
	SeenAt  time.Time `json:"seen_at"`
}

// DedupStore tracks which inbox events have already been delivered.
type DedupStore interface {
	// Has reports whether eventID has a live record.
	Has(eventID string) (bool, error)

	// Record durably marks eventID as processed before returning.
	Record(eventID string, seenAt time.Time) error

	// Prune removes records older than maxAge and returns how many were
	// dropped.
	Prune(maxAge time.Duration) (int, error)

	// Count returns the number of live records.
	Count() (int, error)

	// Close releases underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the backend location: a file path for the JSON or SQLite
// backends, or a postgres:// DSN.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres", "sqlite" or "file" for a DSN string.
func DetectDSNType(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return "postgres"
	case strings.HasSuffix(dsn, ".db"), strings.HasSuffix(dsn, ".sqlite"), strings.HasSuffix(dsn, ".sqlite3"):
		return "sqlite"
	default:
		return "file"
	}
}

// Open selects and opens a backend based on the DSN shape.
func Open(dsn string) (DedupStore, error) {
	switch DetectDSNType(dsn) {
	case "postgres":
		return NewPostgresStore(WithDSN(dsn))
	case "sqlite":
		return NewSQLiteStore(WithDSN(dsn))
	default:
		return NewFileStore(WithDSN(dsn))
	}
}
