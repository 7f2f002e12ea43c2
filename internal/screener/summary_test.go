package screener

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pulsescan/pulse/internal/marketdata"
)

func recordWith(composite, risk, volume float64) Record {
	return Record{
		Stats: marketdata.FastStats{Volume1hSOL: volume},
		Score: Score{Composite: composite, Risk: risk},
	}
}

func TestSummarize(t *testing.T) {
	records := []Record{
		recordWith(2.0, 0.8, 100),
		recordWith(3.0, 0.5, 200),
		recordWith(6.9, 0.4, 300),
		recordWith(7.0, 0.2, 400),
		recordWith(9.5, 0.1, 500),
	}

	s := Summarize(records)

	assert.Equal(t, 5, s.TotalTokens)
	assert.InDelta(t, 5.68, s.AvgComposite, 1e-9)
	assert.InDelta(t, 9.5, s.MaxComposite, 1e-9)
	assert.InDelta(t, 1500.0, s.TotalVolume, 1e-9)
	assert.InDelta(t, 300.0, s.AvgVolume, 1e-9)

	// 2.0 is high risk, 3.0 and 6.9 medium, 7.0 and 9.5 low.
	assert.Equal(t, 1, s.HighRiskCount)
	assert.Equal(t, 2, s.MediumRiskCount)
	assert.Equal(t, 2, s.LowRiskCount)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, Summary{}, s)
}
