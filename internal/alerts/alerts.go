package alerts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Alert dispatch with per-mint deduplication
// ---------------------------------------------------------------------------

// DefaultDedupeTTL is how long a mint stays muted after an alert goes out.
const DefaultDedupeTTL = time.Hour

// Notification carries everything a sender needs to format an alert.
type Notification struct {
	Mint        string  `json:"mint"`
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	Rank        int     `json:"rank"` // 1 = best in cycle
	Composite   float64 `json:"composite"`
	Risk        float64 `json:"risk"`
	Volume1hSOL float64 `json:"volume_1h_sol"`
	Buys1m      int     `json:"buys_1m"`
	Resilient   bool    `json:"resilient"`
	CycleID     string  `json:"cycle_id,omitempty"`
}

// Sender delivers a formatted alert to one destination.
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notification, message string) error
}

// Stats summarizes manager activity.
type Stats struct {
	Sent       int64 `json:"sent"`
	Suppressed int64 `json:"suppressed"`
	Failed     int64 `json:"failed"`
	Tracked    int   `json:"tracked"` // mints inside the dedupe window
}

// Manager fans notifications out to all configured senders. Each mint
// alerts at most once per dedupe window; a mint whose every send failed
// stays unmarked so the next cycle can retry it.
type Manager struct {
	senders []Sender
	ttl     time.Duration

	mu        sync.Mutex
	seen      map[string]time.Time
	lastPrune time.Time

	sent       atomic.Int64
	suppressed atomic.Int64
	failed     atomic.Int64
}

// NewManager creates a manager over the given senders.
// A ttl of 0 or less falls back to DefaultDedupeTTL.
func NewManager(ttl time.Duration, senders ...Sender) *Manager {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &Manager{
		senders:   senders,
		ttl:       ttl,
		seen:      make(map[string]time.Time),
		lastPrune: time.Now(),
	}
}

// Notify dispatches one notification to every sender.
// Returns true if at least one sender accepted it.
func (m *Manager) Notify(ctx context.Context, n Notification) bool {
	if len(m.senders) == 0 {
		return false
	}

	now := time.Now()

	m.mu.Lock()
	m.pruneLocked(now)
	if last, ok := m.seen[n.Mint]; ok && now.Sub(last) < m.ttl {
		m.mu.Unlock()
		m.suppressed.Add(1)
		log.Debug().
			Str("mint", n.Mint).
			Str("symbol", n.Symbol).
			Msg("Alert suppressed, mint already alerted this window")
		return false
	}
	m.mu.Unlock()

	message := formatMessage(n)

	delivered := false
	for _, sender := range m.senders {
		if err := sender.Send(ctx, n, message); err != nil {
			log.Error().Err(err).
				Str("sender", sender.Name()).
				Str("mint", n.Mint).
				Str("symbol", n.Symbol).
				Msg("Failed to send alert")
			continue
		}
		delivered = true
		log.Info().
			Str("sender", sender.Name()).
			Str("symbol", n.Symbol).
			Float64("composite", n.Composite).
			Msg("Alert sent")
	}

	if !delivered {
		m.failed.Add(1)
		return false
	}

	m.mu.Lock()
	m.seen[n.Mint] = now
	m.mu.Unlock()
	m.sent.Add(1)
	return true
}

// SenderNames lists the configured destinations.
func (m *Manager) SenderNames() []string {
	names := make([]string, 0, len(m.senders))
	for _, s := range m.senders {
		names = append(names, s.Name())
	}
	return names
}

// Stats returns a snapshot of manager counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	tracked := len(m.seen)
	m.mu.Unlock()

	return Stats{
		Sent:       m.sent.Load(),
		Suppressed: m.suppressed.Load(),
		Failed:     m.failed.Load(),
		Tracked:    tracked,
	}
}

// pruneLocked drops expired dedupe entries. Caller holds m.mu.
func (m *Manager) pruneLocked(now time.Time) {
	if now.Sub(m.lastPrune) < m.ttl {
		return
	}
	for mint, last := range m.seen {
		if now.Sub(last) >= m.ttl {
			delete(m.seen, mint)
		}
	}
	m.lastPrune = now
}

// formatMessage renders the shared plain-text alert body. Senders that
// support richer formatting build on the Notification fields directly.
func formatMessage(n Notification) string {
	var b strings.Builder

	name := n.Name
	if name == "" {
		name = "Unknown"
	}
	symbol := n.Symbol
	if symbol == "" {
		symbol = "?"
	}

	fmt.Fprintf(&b, "🚨 PULSE #%d: %s (%s)\n", n.Rank, name, symbol)
	fmt.Fprintf(&b, "Mint: %s\n", n.Mint)
	fmt.Fprintf(&b, "Composite: %.2f/10   Risk: %.2f\n", n.Composite, n.Risk)
	fmt.Fprintf(&b, "1h volume: %.0f SOL   Buys/min: %d", n.Volume1hSOL, n.Buys1m)
	if n.Resilient {
		b.WriteString("\nDip-resilient ✅")
	}
	return b.String()
}
