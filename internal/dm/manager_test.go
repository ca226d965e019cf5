package dm

import (
	"context"
	"testing"
	"time"

	"github.com/LunaSea00/tg-twitter-sync/internal/models"
	"github.com/LunaSea00/tg-twitter-sync/internal/store"
)

type fakeVerifyingClient struct {
	fakeInbox
	verifyErr error
}

func (f *fakeVerifyingClient) VerifyDMAccess(ctx context.Context) (bool, error) {
	if f.verifyErr != nil {
		return false, f.verifyErr
	}
	return true, nil
}

func TestManagerStartAbortsOnAccessDenied(t *testing.T) {
	client := &fakeVerifyingClient{
		verifyErr: &models.APIError{Kind: models.KindPermissionDenied, Op: "list_inbox_events"},
	}
	m := NewManager(client, store.NewInMemoryStore(), &fakeSender{}, 1, time.Minute, time.Hour)

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start must fail when dm access is denied")
	}
	if st := m.Status(); st.State != "stopped" {
		t.Errorf("monitor state = %s, want stopped", st.State)
	}
}

func TestManagerStartContinuesOnIndeterminateCheck(t *testing.T) {
	client := &fakeVerifyingClient{
		verifyErr: &models.APIError{Kind: models.KindVerificationUnknown, Op: "list_inbox_events"},
	}
	m := NewManager(client, store.NewInMemoryStore(), &fakeSender{}, 1, time.Minute, time.Hour)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("indeterminate access check must not abort startup: %v", err)
	}
	m.Stop()
}

func TestManagerPruneUpdatesStore(t *testing.T) {
	client := &fakeVerifyingClient{}
	dedup := store.NewInMemoryStore()
	dedup.Record("old", time.Now().Add(-48*time.Hour))
	dedup.Record("new", time.Now())
	m := NewManager(client, dedup, &fakeSender{}, 1, time.Minute, 24*time.Hour)

	m.Prune()
	if has, _ := dedup.Has("old"); has {
		t.Error("aged record should be pruned")
	}
	if has, _ := dedup.Has("new"); !has {
		t.Error("recent record should survive")
	}
}
