package screener

// ---------------------------------------------------------------------------
// Qualification criteria
// Which screened tokens are worth surfacing
// ---------------------------------------------------------------------------

// Criteria decides which records qualify for alerts and filtered result
// views. It never shrinks the ranked set itself.
type Criteria struct {
	MinComposite float64 `yaml:"min_composite"` // 0-10
	MaxRisk      float64 `yaml:"max_risk"`      // 0-1

	// MinVolumeSOL re-checks 1h volume above the stage-1 gate. Zero
	// disables it.
	MinVolumeSOL float64 `yaml:"min_volume_sol"`
}

// DefaultCriteria returns the production thresholds.
func DefaultCriteria() Criteria {
	return Criteria{
		MinComposite: 3.0,
		MaxRisk:      0.7,
		MinVolumeSOL: 1000,
	}
}

// Qualifies reports whether a record clears every threshold.
func (c Criteria) Qualifies(rec Record) bool {
	return rec.Score.Composite >= c.MinComposite &&
		rec.Score.Risk <= c.MaxRisk &&
		rec.Stats.Volume1hSOL >= c.MinVolumeSOL
}

// Apply returns the qualifying records, preserving order.
func (c Criteria) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if c.Qualifies(rec) {
			out = append(out, rec)
		}
	}
	return out
}
