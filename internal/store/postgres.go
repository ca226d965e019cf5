// Package store provides durable deduplication of processed DM event ids.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the maximum number of open connections.
	DefaultMaxOpenConns = 10
	// DefaultConnMaxLifetime is the maximum time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is the PostgreSQL DedupStore backend.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements DedupStore.
var _ DedupStore = (*PostgresStore)(nil)

// NewPostgresStore opens the Postgres database and applies the schema.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("dedup postgres store opened")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Has(eventID string) (bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT event_id FROM processed_events WHERE event_id = $1`, eventID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) Record(eventID string, seenAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO processed_events (event_id, seen_at) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`,
		eventID, seenAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

func (s *PostgresStore) Prune(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UTC()
	res, err := s.db.Exec(`DELETE FROM processed_events WHERE seen_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info("dedup records pruned", "pruned", n)
	}
	return int(n), nil
}

func (s *PostgresStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM processed_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }
