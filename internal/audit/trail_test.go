package audit

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsescan/pulse/internal/bus"
)

func TestTrail_RecordCycleLifecycle(t *testing.T) {
	producer := bus.NewStubProducer()
	trail := NewTrail(producer, 100)

	trail.RecordCycleStarted("cycle-1", "launchpad", 40)

	completed := bus.CycleCompleted{
		BaseEvent:    bus.NewBaseEvent("test", "1.0"),
		Source:       "launchpad",
		Candidates:   40,
		PassedFilter: 12,
		Screened:     12,
		Qualified:    5,
	}
	completed.CycleID = "cycle-1"
	trail.RecordCycleCompleted(completed)

	require.Equal(t, 2, trail.Len())

	entries := trail.Query("cycle-1")
	require.Len(t, entries, 2)
	assert.Equal(t, EventCycleStart, entries[0].EventType)
	assert.Equal(t, EventCycleComplete, entries[1].EventType)

	var started struct {
		Source     string `json:"source"`
		Candidates int    `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal([]byte(entries[0].Payload), &started))
	assert.Equal(t, "launchpad", started.Source)
	assert.Equal(t, 40, started.Candidates)

	published := producer.ByTopic(bus.TopicAudit)
	require.Len(t, published, 2)
	assert.Equal(t, "cycle-1", published[0].Key)
}

func TestTrail_RecordTokenDecisions(t *testing.T) {
	trail := NewTrail(nil, 10)

	trail.RecordFilterReject("cycle-3", "MintLowBuys", "low_buys")
	trail.RecordTokenScreened("cycle-3", "MintWinner", 1, 7.25, 0.18, []string{"social"})

	entries := trail.Query("cycle-3")
	require.Len(t, entries, 2)

	assert.Equal(t, EventFilterReject, entries[0].EventType)
	assert.Equal(t, "MintLowBuys", entries[0].Mint)

	var reject struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal([]byte(entries[0].Payload), &reject))
	assert.Equal(t, "low_buys", reject.Reason)

	assert.Equal(t, EventTokenScreened, entries[1].EventType)
	assert.Equal(t, "MintWinner", entries[1].Mint)

	var screened struct {
		Rank      int      `json:"rank"`
		Composite float64  `json:"composite"`
		Risk      float64  `json:"risk"`
		Degraded  []string `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal([]byte(entries[1].Payload), &screened))
	assert.Equal(t, 1, screened.Rank)
	assert.Equal(t, 7.25, screened.Composite)
	assert.Equal(t, 0.18, screened.Risk)
	assert.Equal(t, []string{"social"}, screened.Degraded)
}

func TestTrail_RecordAlert(t *testing.T) {
	trail := NewTrail(nil, 10)

	alert := bus.AlertRaised{
		BaseEvent: bus.NewBaseEvent("test", "1.0"),
		Mint:      "So11111111111111111111111111111111111111112",
		Symbol:    "WSOL",
		Composite: 8.4,
		Risk:      0.2,
		Channels:  []string{"telegram"},
	}
	alert.CycleID = "cycle-9"
	trail.RecordAlert(alert)

	entries := trail.Query("cycle-9")
	require.Len(t, entries, 1)
	assert.Equal(t, EventAlert, entries[0].EventType)
	assert.Equal(t, alert.Mint, entries[0].Mint)
}

func TestTrail_RecordControl(t *testing.T) {
	trail := NewTrail(nil, 10)

	trail.RecordControl("pause", "operator request")
	trail.RecordControl("resume", "")

	entries := trail.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, EventControl, entries[0].EventType)
	assert.Equal(t, "pause", entries[0].Action)
	assert.Equal(t, "resume", entries[1].Action)
	assert.Empty(t, entries[0].CycleID)
}

func TestTrail_FIFOEviction(t *testing.T) {
	trail := NewTrail(nil, 3)

	for i := 0; i < 5; i++ {
		trail.RecordControl("trigger", fmt.Sprintf("run %d", i))
	}

	require.Equal(t, 3, trail.Len())

	entries := trail.Entries()
	var first struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal([]byte(entries[0].Payload), &first))
	assert.Equal(t, "run 2", first.Detail)

	var last struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal([]byte(entries[2].Payload), &last))
	assert.Equal(t, "run 4", last.Detail)
}

func TestTrail_ZeroBufferPublishesOnly(t *testing.T) {
	producer := bus.NewStubProducer()
	trail := NewTrail(producer, 0)

	trail.RecordCycleStarted("cycle-7", "stream", 8)

	assert.Equal(t, 0, trail.Len())
	assert.Len(t, producer.ByTopic(bus.TopicAudit), 1)
}

func TestTrail_TimestampsFilled(t *testing.T) {
	trail := NewTrail(nil, 10)

	before := time.Now()
	trail.RecordControl("pause", "")
	after := time.Now()

	entries := trail.Entries()
	require.Len(t, entries, 1)
	ts := entries[0].Timestamp
	assert.False(t, ts.Before(before))
	assert.False(t, ts.After(after))
}
