package dm

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/LunaSea00/tg-twitter-sync/internal/metrics"
	"github.com/LunaSea00/tg-twitter-sync/internal/models"
	"github.com/LunaSea00/tg-twitter-sync/internal/store"
)

// State is the monitor lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns the state name for logs and the status endpoint.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// failureEscalation is the consecutive-failure count at which fetch errors
// escalate from warning to error logging. The loop itself never halts.
const failureEscalation = 3

// InboxClient is the slice of the governed client the monitor consumes.
type InboxClient interface {
	ListInboxEvents(ctx context.Context, sinceID string, maxResults int) (models.InboxPage, error)
}

// Monitor polls the inbox for new DM events and hands them through the
// processor and notifier, recording each delivered event in the dedup
// store. Exactly one poll cycle is active at a time.
type Monitor struct {
	client    InboxClient
	dedup     store.DedupStore
	processor *Processor
	notifier  *Notifier

	pollInterval time.Duration
	batchSize    int

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	done      chan struct{}
	failures  int
	lastCheck time.Time
	processed int64
}

// NewMonitor creates a Monitor. pollInterval <= 0 defaults to one minute.
func NewMonitor(client InboxClient, dedup store.DedupStore, processor *Processor, notifier *Notifier, pollInterval time.Duration) *Monitor {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Monitor{
		client:       client,
		dedup:        dedup,
		processor:    processor,
		notifier:     notifier,
		pollInterval: pollInterval,
		batchSize:    models.MaxInboxBatch,
	}
}

// Start launches the poll loop. It is a no-op when the monitor is already
// starting or running, so two overlapping loops can never exist for the
// same instance.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateStarting || m.state == StateRunning {
		slog.Warn("dm monitor already running, ignoring start")
		return
	}
	m.state = StateStarting
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(loopCtx)
	slog.Info("dm monitor starting", "poll_interval", m.pollInterval)
}

// Stop requests graceful termination and waits for it: the in-flight poll
// cycle finishes, no new cycle begins. Observed at the inter-cycle wait
// within one poll interval.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state != StateStarting && m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	m.state = StateStopping
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
	slog.Info("dm monitor stopped")
}

// run is the main loop. One cycle, then the inter-cycle wait, until the
// context is cancelled.
func (m *Monitor) run(ctx context.Context) {
	m.mu.Lock()
	m.state = StateRunning
	m.mu.Unlock()
	metrics.MonitorRunning.Set(1)

	defer func() {
		metrics.MonitorRunning.Set(0)
		m.mu.Lock()
		m.state = StateStopped
		close(m.done)
		m.mu.Unlock()
	}()

	timer := time.NewTimer(0) // first cycle immediately
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		m.cycle(ctx)
		timer.Reset(m.pollInterval)
	}
}

// cycle performs one poll: fetch, dedup-filter, process in ascending
// chronological order, notify, record. Any fetch error is recoverable at
// the cycle level.
func (m *Monitor) cycle(ctx context.Context) {
	m.mu.Lock()
	m.lastCheck = time.Now()
	m.mu.Unlock()

	page, err := m.client.ListInboxEvents(ctx, "", m.batchSize)
	if err != nil {
		metrics.DMFetchErrors.Inc()
		m.mu.Lock()
		m.failures++
		failures := m.failures
		m.mu.Unlock()
		if failures >= failureEscalation {
			slog.Error("inbox fetch failing repeatedly", "consecutive_failures", failures, "error", err)
		} else {
			slog.Warn("inbox fetch failed, will retry next cycle", "error", err)
		}
		return
	}
	m.mu.Lock()
	m.failures = 0
	m.mu.Unlock()

	fresh := make([]models.DMEvent, 0, len(page.Events))
	for _, ev := range page.Events {
		if err := ev.Validate(); err != nil {
			slog.Warn("skipping malformed inbox event", "error", err)
			continue
		}
		seen, err := m.dedup.Has(ev.ID)
		if err != nil {
			slog.Error("dedup lookup failed, skipping event this cycle", "event_id", ev.ID, "error", err)
			continue
		}
		if !seen {
			fresh = append(fresh, ev)
		}
	}
	if len(fresh) == 0 {
		slog.Debug("no new dm events")
		return
	}

	// Oldest first; ties broken by id for a stable order.
	sort.Slice(fresh, func(i, j int) bool {
		if !fresh[i].CreatedAt.Equal(fresh[j].CreatedAt) {
			return fresh[i].CreatedAt.Before(fresh[j].CreatedAt)
		}
		return fresh[i].ID < fresh[j].ID
	})

	slog.Info("processing new dm events", "count", len(fresh))
	for _, ev := range fresh {
		note := m.processor.Process(ev)
		if err := m.notifier.Deliver(ctx, note); err != nil {
			slog.Error("notification delivery failed, event stays eligible", "event_id", ev.ID, "error", err)
			continue
		}
		// Record after delivery: a crash in between redelivers the event on
		// restart, which is preferred over losing it.
		if err := m.dedup.Record(ev.ID, time.Now()); err != nil {
			slog.Error("dedup record failed, event may be redelivered", "event_id", ev.ID, "error", err)
			continue
		}
		metrics.DMEventsProcessed.Inc()
		m.mu.Lock()
		m.processed++
		m.mu.Unlock()
	}
}

// Status describes the monitor for the status endpoint and /status command.
type Status struct {
	State        string    `json:"state"`
	PollInterval string    `json:"poll_interval"`
	Processed    int64     `json:"processed"`
	LastCheck    time.Time `json:"last_check,omitzero"`
}

// Status returns a snapshot of the monitor state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:        m.state.String(),
		PollInterval: m.pollInterval.String(),
		Processed:    m.processed,
		LastCheck:    m.lastCheck,
	}
}
