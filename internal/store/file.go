// Package store provides durable deduplication of processed DM event ids.
//
// This file implements the JSON state-file backend. Every Record rewrites
// the file through a temp file plus atomic rename, so a crash mid-write
// leaves the previous state intact.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Constants for the file store.
const (
	// FileStoreVersion is written into the state file for forward migrations.
	FileStoreVersion = "1"
	// DefaultFilePermissions applies to the state file itself.
	DefaultFilePermissions = 0644
	// DefaultDirPermissions applies to created parent directories.
	DefaultDirPermissions = 0755
)

// fileState is the on-disk shape.
type fileState struct {
	Version     string               `json:"version"`
	LastUpdated time.Time            `json:"last_updated"`
	Processed   map[string]time.Time `json:"processed_ids"`
}

// FileStore is the JSON-file DedupStore backend.
type FileStore struct {
	mu      sync.Mutex
	path    string
	records map[string]time.Time
}

// Compile-time check that FileStore implements DedupStore.
var _ DedupStore = (*FileStore)(nil)

// NewFileStore opens (or creates) the JSON state file at the configured
// path and loads any surviving records.
func NewFileStore(opts ...Option) (*FileStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("file store path not set")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DSN), DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	s := &FileStore{path: cfg.DSN, records: make(map[string]time.Time)}
	if err := s.load(); err != nil {
		return nil, err
	}
	slog.Info("dedup file store loaded", "path", cfg.DSN, "records", len(s.records))
	return s, nil
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		slog.Debug("dedup state file does not exist yet", "path", s.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read dedup state: %w", err)
	}
	var state fileState
	if err := json.Unmarshal(raw, &state); err != nil {
		// A corrupt state file should not brick the bridge; start fresh and
		// accept possible redelivery.
		slog.Error("dedup state file corrupt, starting empty", "path", s.path, "error", err)
		return nil
	}
	for id, seen := range state.Processed {
		s.records[id] = seen
	}
	return nil
}

// flush writes the whole state through a temp file and atomic rename.
// Caller holds s.mu.
func (s *FileStore) flush() error {
	state := fileState{Version: FileStoreVersion, LastUpdated: time.Now().UTC(), Processed: s.records}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, DefaultFilePermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

func (s *FileStore) Has(eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[eventID]
	return ok, nil
}

func (s *FileStore) Record(eventID string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[eventID] = seenAt.UTC()
	if err := s.flush(); err != nil {
		// Roll back the in-memory mark so the event stays eligible.
		delete(s.records, eventID)
		return err
	}
	slog.Debug("dedup record persisted", "event_id", eventID)
	return nil
}

func (s *FileStore) Prune(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for id, seen := range s.records {
		if seen.Before(cutoff) {
			delete(s.records, id)
			pruned++
		}
	}
	if pruned == 0 {
		return 0, nil
	}
	if err := s.flush(); err != nil {
		return 0, err
	}
	slog.Info("dedup records pruned", "pruned", pruned, "remaining", len(s.records))
	return pruned, nil
}

func (s *FileStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *FileStore) Close() error { return nil }
