package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pulsescan/pulse/internal/bus"
)

// Entry event types.
const (
	EventCycleStart    = "cycle_start"
	EventFilterReject  = "filter_reject"
	EventTokenScreened = "token_screened"
	EventCycleComplete = "cycle_complete"
	EventAlert         = "alert"
	EventControl       = "control"
)

// Entry represents a single audit trail entry. Every cycle, per-token
// decision, alert and operator action gets recorded as an Entry, creating
// a log for replay and debugging.
type Entry struct {
	CycleID   string    `json:"cycle_id,omitempty"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"ts"`
	Mint      string    `json:"mint,omitempty"`
	Action    string    `json:"action,omitempty"` // for control entries: pause|resume|trigger
	Payload   string    `json:"payload"`          // JSON of the full event
}

// Trail records what the screener did and why. It maintains an in-memory
// buffer (capped at maxBuf) for querying and also publishes every entry to
// the audit topic via the producer.
type Trail struct {
	mu       sync.Mutex
	producer bus.Producer
	entries  []Entry
	maxBuf   int
}

// NewTrail creates a new audit trail.
// maxBuf controls the maximum number of entries kept in the in-memory buffer.
// Once the buffer is full, the oldest entries are discarded (FIFO).
// A maxBuf of 0 means no in-memory buffering (entries are only published).
func NewTrail(producer bus.Producer, maxBuf int) *Trail {
	if maxBuf < 0 {
		maxBuf = 0
	}
	return &Trail{
		producer: producer,
		entries:  make([]Entry, 0, maxBuf),
		maxBuf:   maxBuf,
	}
}

// RecordCycleStarted logs the start of a screening cycle.
func (t *Trail) RecordCycleStarted(cycleID, source string, candidates int) {
	payload := mustMarshal(struct {
		Source     string `json:"source"`
		Candidates int    `json:"candidates"`
	}{Source: source, Candidates: candidates})

	t.record(Entry{
		CycleID:   cycleID,
		EventType: EventCycleStart,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

// RecordFilterReject logs a candidate dropped at the stage-1 momentum gate.
func (t *Trail) RecordFilterReject(cycleID, mint, reason string) {
	payload := mustMarshal(struct {
		Reason string `json:"reason"`
	}{Reason: reason})

	t.record(Entry{
		CycleID:   cycleID,
		EventType: EventFilterReject,
		Timestamp: time.Now(),
		Mint:      mint,
		Payload:   payload,
	})
}

// RecordTokenScreened logs a screened token's final scores and whatever
// enrichment parts degraded along the way.
func (t *Trail) RecordTokenScreened(cycleID, mint string, rank int, composite, risk float64, degraded []string) {
	payload := mustMarshal(struct {
		Rank      int      `json:"rank"`
		Composite float64  `json:"composite"`
		Risk      float64  `json:"risk"`
		Degraded  []string `json:"degraded,omitempty"`
	}{Rank: rank, Composite: composite, Risk: risk, Degraded: degraded})

	t.record(Entry{
		CycleID:   cycleID,
		EventType: EventTokenScreened,
		Timestamp: time.Now(),
		Mint:      mint,
		Payload:   payload,
	})
}

// RecordCycleCompleted logs the outcome of a screening cycle.
func (t *Trail) RecordCycleCompleted(ev bus.CycleCompleted) {
	t.record(Entry{
		CycleID:   ev.CycleID,
		EventType: EventCycleComplete,
		Timestamp: ev.Timestamp,
		Payload:   mustMarshal(ev),
	})
}

// RecordAlert logs a raised alert.
func (t *Trail) RecordAlert(ev bus.AlertRaised) {
	t.record(Entry{
		CycleID:   ev.CycleID,
		EventType: EventAlert,
		Timestamp: ev.Timestamp,
		Mint:      ev.Mint,
		Payload:   mustMarshal(ev),
	})
}

// RecordControl logs an operator action: pause, resume, manual trigger.
func (t *Trail) RecordControl(action, detail string) {
	payload := mustMarshal(struct {
		Detail string `json:"detail,omitempty"`
	}{Detail: detail})

	t.record(Entry{
		EventType: EventControl,
		Timestamp: time.Now(),
		Action:    action,
		Payload:   payload,
	})
}

// Query returns all entries for a given cycle ID.
// Searches the in-memory buffer only.
func (t *Trail) Query(cycleID string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result []Entry
	for _, e := range t.entries {
		if e.CycleID == cycleID {
			result = append(result, e)
		}
	}
	return result
}

// Entries returns a copy of all entries in the in-memory buffer.
func (t *Trail) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]Entry, len(t.entries))
	copy(result, t.entries)
	return result
}

// Len returns the number of entries in the in-memory buffer.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// record adds an entry to the in-memory buffer and publishes it to the bus.
func (t *Trail) record(entry Entry) {
	t.mu.Lock()

	// Add to in-memory buffer with FIFO eviction.
	if t.maxBuf > 0 {
		if len(t.entries) >= t.maxBuf {
			// Shift left: discard oldest entry.
			copy(t.entries, t.entries[1:])
			t.entries[len(t.entries)-1] = entry
		} else {
			t.entries = append(t.entries, entry)
		}
	}

	t.mu.Unlock()

	// Publish to audit topic via producer (outside lock).
	if t.producer != nil {
		key := entry.EventType
		if entry.CycleID != "" {
			key = entry.CycleID
		}
		if err := t.producer.ProduceJSON(context.Background(), bus.TopicAudit, key, entry); err != nil {
			log.Error().Err(err).
				Str("event_type", entry.EventType).
				Str("cycle_id", entry.CycleID).
				Msg("Failed to publish audit entry")
		}
	}
}

// mustMarshal marshals v to JSON, returning "{}" on error.
func mustMarshal(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal audit payload")
		return "{}"
	}
	return string(data)
}
