package dm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/LunaSea00/tg-twitter-sync/internal/metrics"
	"github.com/LunaSea00/tg-twitter-sync/internal/models"
	"github.com/LunaSea00/tg-twitter-sync/internal/store"
)

// VerifyingClient extends the inbox capability with the access check the
// manager runs before starting the monitor.
type VerifyingClient interface {
	InboxClient
	VerifyDMAccess(ctx context.Context) (bool, error)
}

// Manager owns the DM mirroring pipeline: it verifies access, starts and
// stops the monitor, and runs dedup maintenance.
type Manager struct {
	client  VerifyingClient
	dedup   store.DedupStore
	monitor *Monitor
	maxAge  time.Duration
}

// NewManager wires a processor, notifier and monitor around the given
// client, dedup store and sender. maxAge bounds how long processed event
// ids are retained.
func NewManager(client VerifyingClient, dedup store.DedupStore, sender Sender, chatID int64, pollInterval, maxAge time.Duration) *Manager {
	notifier := NewNotifier(sender, chatID)
	monitor := NewMonitor(client, dedup, NewProcessor(), notifier, pollInterval)
	return &Manager{
		client:  client,
		dedup:   dedup,
		monitor: monitor,
		maxAge:  maxAge,
	}
}

// Start verifies DM access once, then launches the monitor. A definitive
// access denial aborts startup; an indeterminate check starts the monitor
// anyway and lets the poll loop surface the real answer.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.client.VerifyDMAccess(ctx); err != nil {
		if !models.IsKind(err, models.KindVerificationUnknown) {
			return fmt.Errorf("dm access check: %w", err)
		}
		slog.Warn("dm access check indeterminate, starting monitor anyway", "error", err)
	}
	m.monitor.Start(ctx)
	return nil
}

// Stop gracefully stops the monitor and closes the dedup store.
func (m *Manager) Stop() {
	m.monitor.Stop()
	if err := m.dedup.Close(); err != nil {
		slog.Error("dedup store close failed", "error", err)
	}
}

// Prune removes dedup records older than the retention window and refreshes
// the record-count gauge. Called from the scheduler.
func (m *Manager) Prune() {
	pruned, err := m.dedup.Prune(m.maxAge)
	if err != nil {
		slog.Error("dedup prune failed", "error", err)
		return
	}
	if n, err := m.dedup.Count(); err == nil {
		metrics.DedupRecords.Set(float64(n))
	}
	slog.Info("dedup prune complete", "pruned", pruned, "max_age", m.maxAge)
}

// Status reports the monitor state.
func (m *Manager) Status() Status { return m.monitor.Status() }
