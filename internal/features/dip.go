package features

// DipConfig holds the thresholds for the dip-resilience check.
type DipConfig struct {
	MinDrop     float64 // peak-to-trough drawdown that counts as a real dip
	MinRecovery float64 // bounce off the trough required to call it resilient
}

// DefaultDipConfig returns the production thresholds: a 40% drawdown
// followed by a 20% bounce.
func DefaultDipConfig() DipConfig {
	return DipConfig{
		MinDrop:     0.4,
		MinRecovery: 0.2,
	}
}

const (
	minDipSeriesLen = 10 // raw observations before the check is meaningful
	minDipUsableLen = 5  // positive prices needed after filtering
)

// DipResult carries the verdict and the intermediate ratios for logging.
type DipResult struct {
	Resilient bool    `json:"resilient"`
	Drop      float64 `json:"drop"`     // (max - min) / max over usable prices
	Recovery  float64 `json:"recovery"` // (latest - min) / min, only when the drop qualifies
	Samples   int     `json:"samples"`  // usable (positive) prices in the series
}

// DipDetector flags tokens that absorbed a sharp sell-off and bounced back.
//
// A price series is resilient when it drew down at least MinDrop from its
// peak and the latest price sits at least MinRecovery above the trough.
// Non-positive prices are discarded before any math. A series too short to
// judge (fewer than 10 raw observations, or fewer than 5 usable prices) is
// never resilient.
type DipDetector struct {
	cfg DipConfig
}

// NewDipDetector creates a detector. Zero thresholds fall back to defaults.
func NewDipDetector(cfg DipConfig) *DipDetector {
	def := DefaultDipConfig()
	if cfg.MinDrop == 0 {
		cfg.MinDrop = def.MinDrop
	}
	if cfg.MinRecovery == 0 {
		cfg.MinRecovery = def.MinRecovery
	}
	return &DipDetector{cfg: cfg}
}

// Evaluate runs the check over a chronologically ordered price series.
func (d *DipDetector) Evaluate(prices []float64) DipResult {
	res := DipResult{}
	if len(prices) < minDipSeriesLen {
		return res
	}

	usable := make([]float64, 0, len(prices))
	for _, p := range prices {
		if p > 0 {
			usable = append(usable, p)
		}
	}
	res.Samples = len(usable)
	if len(usable) < minDipUsableLen {
		return res
	}

	maxP, minP := usable[0], usable[0]
	for _, p := range usable[1:] {
		if p > maxP {
			maxP = p
		}
		if p < minP {
			minP = p
		}
	}

	res.Drop = (maxP - minP) / maxP
	if res.Drop < d.cfg.MinDrop {
		return res
	}

	latest := usable[len(usable)-1]
	res.Recovery = (latest - minP) / minP
	res.Resilient = res.Recovery >= d.cfg.MinRecovery
	return res
}

// Resilient returns only the verdict.
func (d *DipDetector) Resilient(prices []float64) bool {
	return d.Evaluate(prices).Resilient
}
