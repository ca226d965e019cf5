// Package store provides durable deduplication of processed DM event ids.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is the SQLite DedupStore backend.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements DedupStore.
var _ DedupStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens the SQLite database at the configured path, creating
// the parent directory and schema when needed.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DSN), DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite ping failed: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("dedup sqlite store opened", "path", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Has(eventID string) (bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT event_id FROM processed_events WHERE event_id = ?`, eventID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) Record(eventID string, seenAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO processed_events (event_id, seen_at) VALUES (?, ?)`,
		eventID, seenAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

func (s *SQLiteStore) Prune(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UTC()
	res, err := s.db.Exec(`DELETE FROM processed_events WHERE seen_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.Info("dedup records pruned", "pruned", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM processed_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
