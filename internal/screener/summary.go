package screener

// ---------------------------------------------------------------------------
// Cycle summary
// Aggregate stats over one batch of screened tokens
// ---------------------------------------------------------------------------

// Summary aggregates one cycle's records.
type Summary struct {
	TotalTokens  int     `json:"total_tokens"`
	AvgComposite float64 `json:"avg_composite"`
	MaxComposite float64 `json:"max_composite"`
	TotalVolume  float64 `json:"total_volume_sol"`
	AvgVolume    float64 `json:"avg_volume_sol"`

	// Composite-score buckets.
	HighRiskCount   int `json:"high_risk_count"`   // composite < 3
	MediumRiskCount int `json:"medium_risk_count"` // 3 <= composite < 7
	LowRiskCount    int `json:"low_risk_count"`    // composite >= 7
}

// Summarize aggregates records into a Summary. Empty input yields a zero
// summary.
func Summarize(records []Record) Summary {
	s := Summary{TotalTokens: len(records)}
	if len(records) == 0 {
		return s
	}

	for _, rec := range records {
		s.AvgComposite += rec.Score.Composite
		if rec.Score.Composite > s.MaxComposite {
			s.MaxComposite = rec.Score.Composite
		}
		s.TotalVolume += rec.Stats.Volume1hSOL

		switch {
		case rec.Score.Composite < 3:
			s.HighRiskCount++
		case rec.Score.Composite < 7:
			s.MediumRiskCount++
		default:
			s.LowRiskCount++
		}
	}

	s.AvgComposite /= float64(len(records))
	s.AvgVolume = s.TotalVolume / float64(len(records))
	return s
}
