package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTempSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dedup.db")
	s, err := NewSQLiteStore(WithDSN(path))
	if err != nil {
		t.Fatalf("Failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRecordAndHas(t *testing.T) {
	s := newTempSQLiteStore(t)

	has, err := s.Has("evt-1")
	if err != nil || has {
		t.Fatalf("Has on empty store = (%v, %v), want (false, nil)", has, err)
	}
	if err := s.Record("evt-1", time.Now()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if has, _ := s.Has("evt-1"); !has {
		t.Error("Has after Record should be true")
	}
	// Recording the same id again must not error or duplicate.
	if err := s.Record("evt-1", time.Now()); err != nil {
		t.Errorf("Duplicate Record failed: %v", err)
	}
	if n, _ := s.Count(); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestSQLiteStorePrune(t *testing.T) {
	s := newTempSQLiteStore(t)
	if err := s.Record("old-evt", time.Now().Add(-48*time.Hour)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := s.Record("new-evt", time.Now()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	pruned, err := s.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("Prune removed %d records, want 1", pruned)
	}
	if has, _ := s.Has("new-evt"); !has {
		t.Error("recent record should survive prune")
	}
}

func TestOpenDispatchesSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("Open(%q) returned %T, want *SQLiteStore", path, s)
	}
}
