package bus

import (
	"time"

	"github.com/google/uuid"
)

// Topics carried on the bus.
const (
	TopicResults    = "screener.results"
	TopicCycles     = "screener.cycles"
	TopicAudit      = "screener.audit"
	TopicAlerts     = "screener.alerts"
	TopicHeartbeats = "screener.heartbeats"
)

// BaseEvent contains fields common to all events.
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"ts"`
	SchemaVersion string    `json:"schema_version"`
	Producer      string    `json:"producer"`
	CycleID       string    `json:"cycle_id,omitempty"`
}

// NewBaseEvent creates a new BaseEvent with a generated ID.
func NewBaseEvent(producer, schemaVersion string) BaseEvent {
	return BaseEvent{
		EventID:       uuid.New().String(),
		Timestamp:     time.Now(),
		SchemaVersion: schemaVersion,
		Producer:      producer,
	}
}

// --- Screening Events ---

// TokenScreened is one token's screening result.
type TokenScreened struct {
	BaseEvent
	Mint        string   `json:"mint"`
	Name        string   `json:"name"`
	Symbol      string   `json:"symbol"`
	Composite   float64  `json:"composite"`
	Risk        float64  `json:"risk"`
	Momentum    float64  `json:"momentum"`
	Buys1m      int      `json:"buys_1m"`
	Volume1hSOL float64  `json:"volume_1h_sol"`
	Resilient   bool     `json:"resilient"`
	Degraded    []string `json:"degraded,omitempty"`
	Rank        int      `json:"rank"` // 1 = best of the cycle
}

// CycleCompleted summarizes one screening cycle.
type CycleCompleted struct {
	BaseEvent
	Source       string  `json:"source"` // launchpad|stream|fallback
	Candidates   int     `json:"candidates"`
	PassedFilter int     `json:"passed_filter"`
	Screened     int     `json:"screened"`
	Qualified    int     `json:"qualified"`
	AvgComposite float64 `json:"avg_composite"`
	MaxComposite float64 `json:"max_composite"`
	ElapsedMs    int64   `json:"elapsed_ms"`
}

// AlertRaised mirrors an operator notification onto the bus.
type AlertRaised struct {
	BaseEvent
	Mint      string   `json:"mint"`
	Symbol    string   `json:"symbol"`
	Composite float64  `json:"composite"`
	Risk      float64  `json:"risk"`
	Channels  []string `json:"channels"`
}

// --- Heartbeat ---

// Heartbeat reports component liveness.
type Heartbeat struct {
	BaseEvent
	Component string             `json:"component"`
	Status    string             `json:"status"` // healthy|degraded|unhealthy
	UptimeSec float64            `json:"uptime_seconds"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}
