package quality

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// failureAlertThreshold is the consecutive-failure count that raises a
// warning for a provider operation. The counter resets on success, so an
// outage alerts once.
const failureAlertThreshold = 5

// defaultStaleTimeoutSec covers four default screening cycles without a
// successful fetch before an operation is considered stale.
const defaultStaleTimeoutSec = 120

// OpStats tracks fetch outcomes for a single provider operation.
type OpStats struct {
	Provider     string    `json:"provider"`
	Op           string    `json:"op"`
	Calls        int64     `json:"calls"`
	Failures     int64     `json:"failures"`
	Consecutive  int64     `json:"consecutive_failures"`
	LastSuccess  time.Time `json:"last_success"`
	LastFailure  time.Time `json:"last_failure"`
	MaxLatencyMs float64   `json:"max_latency_ms"`
	AvgLatencyMs float64   `json:"avg_latency_ms"`
	StartTime    time.Time `json:"start_time"`

	// internal: running sum for avg calculation
	totalLatencyMs float64
	successes      int64
}

// Alert represents a data quality alert for a provider operation.
type Alert struct {
	Level    string    `json:"level"` // warn|critical
	Provider string    `json:"provider"`
	Op       string    `json:"op"`
	Message  string    `json:"message"`
	Ts       time.Time `json:"ts"`
}

// Monitor tracks fetch quality across all upstream providers.
// It detects slow calls, failing operations, and stale providers.
type Monitor struct {
	mu                 sync.RWMutex
	stats              map[string]*OpStats // key: "provider.op"
	alertCh            chan Alert
	latencyThresholdMs int
	staleTimeoutSec    int
}

// NewMonitor creates a new provider quality monitor.
// latencyThresholdMs sets the per-call latency that triggers a warning.
// staleTimeoutSec of 0 or less falls back to the default.
func NewMonitor(latencyThresholdMs, staleTimeoutSec int) *Monitor {
	if staleTimeoutSec <= 0 {
		staleTimeoutSec = defaultStaleTimeoutSec
	}
	return &Monitor{
		stats:              make(map[string]*OpStats),
		alertCh:            make(chan Alert, 256),
		latencyThresholdMs: latencyThresholdMs,
		staleTimeoutSec:    staleTimeoutSec,
	}
}

// opKey returns the canonical key for a provider+operation pair.
func opKey(provider, op string) string {
	return fmt.Sprintf("%s.%s", provider, op)
}

// getOrCreate returns existing stats or initializes new ones for the operation.
// Caller must hold m.mu write lock.
func (m *Monitor) getOrCreate(provider, op string) *OpStats {
	key := opKey(provider, op)
	stats, ok := m.stats[key]
	if !ok {
		stats = &OpStats{
			Provider:  provider,
			Op:        op,
			StartTime: time.Now(),
		}
		m.stats[key] = stats
	}
	return stats
}

// RecordSuccess records a successful fetch and its latency.
func (m *Monitor) RecordSuccess(provider, op string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreate(provider, op)
	stats.Calls++
	stats.Consecutive = 0
	stats.LastSuccess = time.Now()

	latencyMs := float64(latency.Milliseconds())
	if latencyMs < 0 {
		latencyMs = 0
	}

	stats.successes++
	stats.totalLatencyMs += latencyMs
	stats.AvgLatencyMs = stats.totalLatencyMs / float64(stats.successes)

	if latencyMs > stats.MaxLatencyMs {
		stats.MaxLatencyMs = latencyMs
	}

	if m.latencyThresholdMs > 0 && latencyMs > float64(m.latencyThresholdMs) {
		m.emitAlert(Alert{
			Level:    "warn",
			Provider: provider,
			Op:       op,
			Message:  fmt.Sprintf("Fetch latency exceeds threshold: %.1fms > %dms", latencyMs, m.latencyThresholdMs),
			Ts:       time.Now(),
		})
	}
}

// RecordFailure records a failed fetch. Crossing the consecutive-failure
// threshold raises a warning once per outage.
func (m *Monitor) RecordFailure(provider, op string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreate(provider, op)
	stats.Calls++
	stats.Failures++
	stats.Consecutive++
	stats.LastFailure = time.Now()

	if stats.Consecutive == failureAlertThreshold {
		m.emitAlert(Alert{
			Level:    "warn",
			Provider: provider,
			Op:       op,
			Message:  fmt.Sprintf("Operation failing repeatedly (%d consecutive failures)", stats.Consecutive),
			Ts:       time.Now(),
		})
	}
}

// Alerts returns the read-only alert channel.
func (m *Monitor) Alerts() <-chan Alert {
	return m.alertCh
}

// Snapshot returns a copy of all current operation stats.
func (m *Monitor) Snapshot() map[string]OpStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := make(map[string]OpStats, len(m.stats))
	for k, v := range m.stats {
		snap[k] = *v
	}
	return snap
}

// Stale returns the keys of operations with no recent success, for health
// aggregation.
func (m *Monitor) Stale() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stale []string
	now := time.Now()
	for key, stats := range m.stats {
		if m.isStale(stats, now) {
			stale = append(stale, key)
		}
	}
	return stale
}

// Start begins the background goroutine that checks for stale operations
// every 10s. It blocks until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	log.Info().
		Int("latency_threshold_ms", m.latencyThresholdMs).
		Int("stale_timeout_sec", m.staleTimeoutSec).
		Msg("Quality monitor started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Quality monitor stopped")
			return
		case <-ticker.C:
			m.checkStaleOps()
		}
	}
}

// checkStaleOps inspects all tracked operations and emits critical alerts
// for any that has gone without a successful fetch for more than
// staleTimeoutSec.
func (m *Monitor) checkStaleOps() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	for _, stats := range m.stats {
		if !m.isStale(stats, now) {
			continue
		}
		since := stats.LastSuccess
		if since.IsZero() {
			since = stats.StartTime
		}
		m.emitAlert(Alert{
			Level:    "critical",
			Provider: stats.Provider,
			Op:       stats.Op,
			Message:  fmt.Sprintf("Operation stale for >%ds (last success %.1fs ago)", m.staleTimeoutSec, now.Sub(since).Seconds()),
			Ts:       now,
		})
	}
}

// isStale reports whether an operation has gone without a success for the
// stale timeout. Operations that never succeeded are measured from their
// first recorded call.
func (m *Monitor) isStale(stats *OpStats, now time.Time) bool {
	since := stats.LastSuccess
	if since.IsZero() {
		since = stats.StartTime
	}
	return now.Sub(since) > time.Duration(m.staleTimeoutSec)*time.Second
}

// emitAlert sends an alert to the channel without blocking.
// If the channel is full, the alert is dropped and a warning is logged.
func (m *Monitor) emitAlert(alert Alert) {
	select {
	case m.alertCh <- alert:
	default:
		log.Warn().
			Str("provider", alert.Provider).
			Str("op", alert.Op).
			Str("level", alert.Level).
			Str("message", alert.Message).
			Msg("Alert channel full, dropping alert")
	}
}
