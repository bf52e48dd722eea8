package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/huskyapply/gateway/internal/telemetry"
)

// Sentinel errors for subscription handling
var (
	ErrConnectionLimit = errors.New("connection limit reached")
	ErrManagerStopped  = errors.New("stream manager is stopped")
	ErrSlowSubscriber  = errors.New("subscriber send buffer overflowed")
)

// Config holds stream manager tunables.
type Config struct {
	// MaxConnections caps live subscriptions across all jobs.
	MaxConnections int
	// HeartbeatInterval is how often keepalive frames go out.
	HeartbeatInterval time.Duration
	// MaxConnectionAge is the point at which the janitor reaps a
	// subscription regardless of activity.
	MaxConnectionAge time.Duration
	// CleanupInterval is how often the janitor runs.
	CleanupInterval time.Duration
	// SendBuffer is the per-subscription frame buffer. A subscriber that
	// falls this far behind is terminated rather than slow the publisher.
	SendBuffer int
}

// ApplyDefaults fills unset fields with the production defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxConnections == 0 {
		c.MaxConnections = 1000
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.MaxConnectionAge == 0 {
		c.MaxConnectionAge = 10 * time.Minute
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = time.Minute
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = 64
	}
}

// Stats is a snapshot of the manager's counters.
type Stats struct {
	Created    int64
	Active     int64
	Removed    int64
	Sent       int64
	Dropped    int64
	Heartbeats int64
}

// Manager owns every live streaming subscription: admission against the
// global cap, per-job fan-out, heartbeats, janitor sweeps of over-age
// connections, and teardown at shutdown. Publishing never blocks on a
// subscriber and never surfaces a subscriber's failure to the caller.
type Manager struct {
	cfg     Config
	log     zerolog.Logger
	metrics *telemetry.Metrics

	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	active  int
	stopped bool

	created    atomic.Int64
	removed    atomic.Int64
	sent       atomic.Int64
	dropped    atomic.Int64
	heartbeats atomic.Int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a stream manager. Call Start to run the heartbeat and
// janitor loops, and Stop to tear everything down.
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		cfg:     cfg,
		log:     log.With().Str("component", "stream").Logger(),
		metrics: telemetry.GetMetrics(),
		subs:    make(map[string]map[*Subscription]struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the background loops.
func (m *Manager) Start() {
	m.wg.Add(2)
	go m.heartbeatLoop()
	go m.cleanupLoop()
	m.log.Info().
		Int("max_connections", m.cfg.MaxConnections).
		Dur("heartbeat_interval", m.cfg.HeartbeatInterval).
		Dur("max_connection_age", m.cfg.MaxConnectionAge).
		Msg("Stream manager started")
}

// Stop halts the loops and terminates every remaining subscription with
// reason completed. Safe to call more than once.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	var all []*Subscription
	for _, set := range m.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	for _, s := range all {
		s.Terminate(ReasonCompleted, nil)
	}
	m.log.Info().Int("connections", len(all)).Msg("Stream manager stopped")
}

// Subscribe registers a new subscription for a job. It refuses with
// ErrConnectionLimit when the global cap is reached, registering nothing,
// so callers can tell the client to retry with backoff.
func (m *Manager) Subscribe(jobID string) (*Subscription, error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrManagerStopped
	}
	if m.active >= m.cfg.MaxConnections {
		active := m.active
		m.mu.Unlock()
		m.metrics.StreamConnectionsRefused.Add(context.Background(), 1)
		m.log.Warn().Str("job_id", jobID).Int("active", active).Msg("Connection limit reached, refusing subscriber")
		return nil, ErrConnectionLimit
	}

	s := &Subscription{
		jobID:     jobID,
		createdAt: time.Now(),
		events:    make(chan Message, m.cfg.SendBuffer),
		done:      make(chan struct{}),
		mgr:       m,
	}
	set, ok := m.subs[jobID]
	if !ok {
		set = make(map[*Subscription]struct{})
		m.subs[jobID] = set
	}
	set[s] = struct{}{}
	m.active++
	active := m.active
	m.mu.Unlock()

	m.created.Add(1)
	m.metrics.StreamConnectionsCreated.Add(context.Background(), 1)
	m.metrics.StreamConnectionsActive.Add(context.Background(), 1)
	m.log.Debug().Str("job_id", jobID).Int("active", active).Msg("Subscriber registered")
	return s, nil
}

// Publish fans one frame out to the job's live subscribers and returns how
// many received it. Sends are non-blocking: a subscriber with a full buffer
// is terminated instead of delaying the rest. No subscribers is a no-op.
func (m *Manager) Publish(jobID string, msg Message) int {
	delivered, overflowed := m.fanout(jobID, msg)
	if delivered > 0 {
		m.sent.Add(int64(delivered))
		m.metrics.StreamMessagesSent.Add(context.Background(), int64(delivered),
			metric.WithAttributes(attribute.String("event", msg.Name)))
	}
	if overflowed > 0 {
		m.dropped.Add(int64(overflowed))
		m.metrics.StreamMessagesDropped.Add(context.Background(), int64(overflowed))
	}
	return delivered
}

// Heartbeat sends a keepalive frame to the job's subscribers. A job with
// no subscribers is a no-op.
func (m *Manager) Heartbeat(jobID string) int {
	delivered, overflowed := m.fanout(jobID, HeartbeatMessage())
	if delivered > 0 {
		m.heartbeats.Add(int64(delivered))
		m.metrics.StreamHeartbeatsSent.Add(context.Background(), int64(delivered))
	}
	if overflowed > 0 {
		m.dropped.Add(int64(overflowed))
		m.metrics.StreamMessagesDropped.Add(context.Background(), int64(overflowed))
	}
	return delivered
}

func (m *Manager) fanout(jobID string, msg Message) (delivered, overflowed int) {
	m.mu.RLock()
	set := m.subs[jobID]
	targets := make([]*Subscription, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.events <- msg:
			delivered++
		default:
			// The client stopped draining; drop the connection, not the
			// frame, so survivors keep their ordering intact.
			overflowed++
			s.Terminate(ReasonError, ErrSlowSubscriber)
		}
	}
	return delivered, overflowed
}

// ActiveConnections returns the current number of live subscriptions.
func (m *Manager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Stats returns a counter snapshot.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()
	return Stats{
		Created:    m.created.Load(),
		Active:     int64(active),
		Removed:    m.removed.Load(),
		Sent:       m.sent.Load(),
		Dropped:    m.dropped.Load(),
		Heartbeats: m.heartbeats.Load(),
	}
}

// remove deregisters a terminated subscription. Only Subscription.Terminate
// calls this, exactly once per subscription.
func (m *Manager) remove(s *Subscription, reason CloseReason, cause error) {
	m.mu.Lock()
	if set, ok := m.subs[s.jobID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(m.subs, s.jobID)
		}
		m.active--
	}
	active := m.active
	m.mu.Unlock()

	m.removed.Add(1)
	m.metrics.StreamConnectionsRemoved.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", string(reason))))
	m.metrics.StreamConnectionsActive.Add(context.Background(), -1)

	evt := m.log.Debug().Str("job_id", s.jobID).Str("reason", string(reason)).Int("active", active)
	if cause != nil {
		evt = evt.Err(cause)
	}
	evt.Msg("Subscriber removed")
}

func (m *Manager) heartbeatLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			for _, jobID := range m.jobIDs() {
				m.Heartbeat(jobID)
			}
		}
	}
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reapStale()
		}
	}
}

func (m *Manager) jobIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	return ids
}

// reapStale terminates subscriptions older than MaxConnectionAge. Clients
// that still care reconnect; clients that lost their stream recover the
// result through the artifact endpoint.
func (m *Manager) reapStale() {
	cutoff := time.Now().Add(-m.cfg.MaxConnectionAge)

	m.mu.RLock()
	var stale []*Subscription
	for _, set := range m.subs {
		for s := range set {
			if s.createdAt.Before(cutoff) {
				stale = append(stale, s)
			}
		}
	}
	m.mu.RUnlock()

	for _, s := range stale {
		s.Terminate(ReasonTimeout, nil)
	}
	if len(stale) > 0 {
		m.log.Info().Int("count", len(stale)).Msg("Reaped stale connections")
	}
}
