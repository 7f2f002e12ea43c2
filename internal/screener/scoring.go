package screener

// ---------------------------------------------------------------------------
// Composite Scoring Engine
// Momentum 0-4 + Risk Mitigation 0-3 + Social 0-2 + Resilience 0-1
// ---------------------------------------------------------------------------

// ScoreInput contains all enrichment data needed for scoring.
type ScoreInput struct {
	Buys1m          int     `json:"buys_1m"`
	Volume1hSOL     float64 `json:"volume_1h_sol"`
	CreatorHoldings float64 `json:"creator_holdings"`
	LPLocked        float64 `json:"lp_locked"`
	Top10Share      float64 `json:"top10_share"` // summed top-10 holder balances
	PostGrowth1h    float64 `json:"post_growth_1h"`
	TrendGrowth     float64 `json:"trend_growth"`
	Resilient       bool    `json:"resilient"`
}

// Score is the full scoring result for a token.
type Score struct {
	Composite float64        `json:"composite"` // 0-10
	Risk      float64        `json:"risk"`      // 0-1, higher is riskier
	Momentum  float64        `json:"momentum"`  // 0-4
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// ScoreBreakdown shows each dimension's contribution to the composite.
type ScoreBreakdown struct {
	Momentum       float64 `json:"momentum"`        // 0-4
	RiskMitigation float64 `json:"risk_mitigation"` // 0-3
	Social         float64 `json:"social"`          // 0-2
	Resilience     float64 `json:"resilience"`      // 0-1
}

// ScoringConfig configures the scoring engine.
type ScoringConfig struct {
	BuysDivisor   float64 `yaml:"buys_divisor"`   // default 25
	VolumeDivisor float64 `yaml:"volume_divisor"` // default 2000
	SocialDivisor float64 `yaml:"social_divisor"` // default 300
}

// DefaultScoringConfig returns the production divisors.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		BuysDivisor:   25,
		VolumeDivisor: 2000,
		SocialDivisor: 300,
	}
}

// Scorer computes composite, risk and momentum scores.
type Scorer struct {
	config ScoringConfig
}

// NewScorer creates a scorer. Zero divisors fall back to defaults.
func NewScorer(config ScoringConfig) *Scorer {
	def := DefaultScoringConfig()
	if config.BuysDivisor == 0 {
		config.BuysDivisor = def.BuysDivisor
	}
	if config.VolumeDivisor == 0 {
		config.VolumeDivisor = def.VolumeDivisor
	}
	if config.SocialDivisor == 0 {
		config.SocialDivisor = def.SocialDivisor
	}
	return &Scorer{config: config}
}

// Score computes all scores for one token.
func (s *Scorer) Score(input ScoreInput) Score {
	sc := Score{}

	sc.Breakdown.Momentum = s.scoreMomentum(input)
	sc.Breakdown.RiskMitigation = s.scoreRiskMitigation(input)
	sc.Breakdown.Social = s.scoreSocial(input)
	if input.Resilient {
		sc.Breakdown.Resilience = 1.0
	}

	sc.Momentum = sc.Breakdown.Momentum
	sc.Composite = clampComposite(sc.Breakdown.Momentum +
		sc.Breakdown.RiskMitigation +
		sc.Breakdown.Social +
		sc.Breakdown.Resilience)
	sc.Risk = s.scoreRisk(input)

	return sc
}

// scoreMomentum covers buy pressure and volume (0-4).
func (s *Scorer) scoreMomentum(input ScoreInput) float64 {
	score := 0.0
	score += min(float64(input.Buys1m)/s.config.BuysDivisor, 2.0)
	score += min(input.Volume1hSOL/s.config.VolumeDivisor, 2.0)
	return score
}

// scoreRiskMitigation rewards low creator stake, locked LP and loose
// holder concentration (0-3). Holdings are raw balances scaled by 100,
// not true supply fractions.
func (s *Scorer) scoreRiskMitigation(input ScoreInput) float64 {
	score := 0.0
	score += max(0, 1-input.CreatorHoldings*100)
	score += min(input.LPLocked, 1.0)
	score += max(0, (8-input.Top10Share*100)/8)
	return score
}

// scoreSocial covers post and search-interest growth (0-2).
func (s *Scorer) scoreSocial(input ScoreInput) float64 {
	score := 0.0
	score += min(input.PostGrowth1h/s.config.SocialDivisor, 1.0)
	score += min(input.TrendGrowth/s.config.SocialDivisor, 1.0)
	return score
}

// scoreRisk is the inverse view: concentration and unlocked LP raise it (0-1).
func (s *Scorer) scoreRisk(input ScoreInput) float64 {
	risk := 0.0
	risk += min(input.CreatorHoldings*100, 1.0) * 0.4
	risk += min(input.Top10Share*100, 1.0) * 0.3
	risk += (1.0 - min(input.LPLocked, 1.0)) * 0.3
	return risk
}

func clampComposite(v float64) float64 {
	if v > 10 {
		return 10
	}
	if v < 0 {
		return 0
	}
	return v
}
