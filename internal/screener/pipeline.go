package screener

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/pulsescan/pulse/internal/features"
	"github.com/pulsescan/pulse/internal/launchpad"
	"github.com/pulsescan/pulse/internal/marketdata"
	"github.com/pulsescan/pulse/internal/quality"
	"github.com/pulsescan/pulse/internal/social"
)

// ---------------------------------------------------------------------------
// Screening Pipeline
// Stage 1 momentum filter, stage 2 enrichment + scoring
// ---------------------------------------------------------------------------

// PipelineConfig configures the screening pipeline.
type PipelineConfig struct {
	// Stage-1 momentum gate. A candidate needs at least this many buys in
	// the last minute AND this much 1h volume to reach enrichment.
	MinBuysPerMinute int     `yaml:"min_buys_per_minute"`
	MinVolume1hSOL   float64 `yaml:"min_volume_1h_sol"`

	// Ceiling on in-flight provider calls across both stages.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`

	// Per-call timeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Optional whole-cycle deadline. Zero disables it. When it expires,
	// outstanding lookups degrade instead of aborting the cycle.
	CycleDeadline time.Duration `yaml:"cycle_deadline"`

	// Meta cache sizing. Zero values use the cache defaults; DisableMetaCache
	// fetches metadata fresh every cycle.
	MetaCacheTTL     time.Duration `yaml:"meta_cache_ttl"`
	MetaCacheSize    int           `yaml:"meta_cache_size"`
	DisableMetaCache bool          `yaml:"disable_meta_cache"`
}

// DefaultPipelineConfig returns production defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MinBuysPerMinute:      25,
		MinVolume1hSOL:        2000,
		MaxConcurrentRequests: 10,
		RequestTimeout:        30 * time.Second,
	}
}

// Record is one fully screened token.
type Record struct {
	Mint   string                   `json:"mint"`
	Meta   launchpad.TokenMeta      `json:"meta"`
	Stats  marketdata.FastStats     `json:"stats"`
	Supply marketdata.SupplyMetrics `json:"supply"`

	// Top10Share is the summed balance of the ten largest holders.
	Top10Share float64 `json:"top10_share"`

	Dip    features.DipResult `json:"dip"`
	Social social.Signals     `json:"social"`
	Score  Score              `json:"score"`

	// Degraded lists enrichment parts that failed and fell back to zero
	// values: meta, supply, holders, price_history, social.
	Degraded []string `json:"degraded,omitempty"`

	// DiscoveryIndex is the token's position in the candidate batch.
	// Equal composite scores rank by it.
	DiscoveryIndex int       `json:"discovery_index"`
	ScreenedAt     time.Time `json:"screened_at"`
	LatencyMs      int64     `json:"latency_ms"`
}

// FilterReject is a stage-1 drop and its reason.
type FilterReject struct {
	Mint   string `json:"mint"`
	Reason string `json:"reason"` // fetch_failed|low_buys|low_volume
}

// RejectFunc receives every stage-1 drop. Filter lookups run in parallel,
// so implementations must be safe for concurrent use.
type RejectFunc func(mint, reason string)

// Pipeline screens candidate batches: a cheap momentum filter first, then
// concurrent enrichment and scoring for the survivors.
type Pipeline struct {
	config    PipelineConfig
	market    marketdata.Provider
	launch    launchpad.Client
	social    social.Provider
	metaCache *launchpad.MetaCache
	dip       *features.DipDetector
	scorer    *Scorer
	sem       *semaphore.Weighted
	monitor   *quality.Monitor
	onReject  RejectFunc

	// Stats.
	candidatesSeen atomic.Int64
	filterPassed   atomic.Int64
	filterDropped  atomic.Int64
	screened       atomic.Int64
	degradedOps    atomic.Int64
}

// NewPipeline creates a pipeline. The social provider may be nil; the social
// dimension then stays zero.
func NewPipeline(config PipelineConfig, market marketdata.Provider, launch launchpad.Client, socialSrc social.Provider) *Pipeline {
	def := DefaultPipelineConfig()
	if config.MaxConcurrentRequests <= 0 {
		config.MaxConcurrentRequests = def.MaxConcurrentRequests
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = def.RequestTimeout
	}

	var metaCache *launchpad.MetaCache
	if !config.DisableMetaCache {
		metaCache = launchpad.NewMetaCache(config.MetaCacheTTL, config.MetaCacheSize)
	}

	return &Pipeline{
		config:    config,
		market:    market,
		launch:    launch,
		social:    socialSrc,
		metaCache: metaCache,
		dip:       features.NewDipDetector(features.DipConfig{}),
		scorer:    NewScorer(DefaultScoringConfig()),
		sem:       semaphore.NewWeighted(int64(config.MaxConcurrentRequests)),
	}
}

// SetQualityMonitor wires fetch outcome tracking. Call before Run.
func (p *Pipeline) SetQualityMonitor(m *quality.Monitor) {
	p.monitor = m
}

// OnReject wires a callback for stage-1 drops. Call before Run.
func (p *Pipeline) OnReject(fn RejectFunc) {
	p.onReject = fn
}

func (p *Pipeline) reject(mint, reason string) {
	p.filterDropped.Add(1)
	if p.onReject != nil {
		p.onReject(mint, reason)
	}
}

// Run screens one candidate batch and returns records ranked by composite
// score, best first. Ties keep discovery order. Run returns an error only
// when ctx itself is cancelled; an expired cycle deadline degrades the
// remaining lookups instead.
func (p *Pipeline) Run(ctx context.Context, mints []string) ([]Record, error) {
	if len(mints) == 0 {
		return nil, nil
	}

	start := time.Now()
	p.candidatesSeen.Add(int64(len(mints)))

	runCtx := ctx
	if p.config.CycleDeadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.config.CycleDeadline)
		defer cancel()
	}

	// Stage 1: every momentum lookup finishes before any enrichment starts.
	survivors := p.runFilter(runCtx, mints)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := p.runEnrich(runCtx, survivors)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rankByComposite(records)

	log.Info().
		Int("candidates", len(mints)).
		Int("passed_filter", len(survivors)).
		Int("screened", len(records)).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("pipeline: cycle complete")

	return records, nil
}

// rankByComposite orders best-first. The stable sort keeps discovery order
// for equal composites, so re-ranking a ranked set is a no-op.
func rankByComposite(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Score.Composite > records[j].Score.Composite
	})
}

type filterResult struct {
	mint  string
	index int
	stats marketdata.FastStats
}

// runFilter fans the stage-1 momentum lookups out and applies the gate.
// A failed lookup drops the candidate.
func (p *Pipeline) runFilter(ctx context.Context, mints []string) []filterResult {
	results := make([]filterResult, len(mints))
	passed := make([]bool, len(mints))

	var wg sync.WaitGroup
	for i, mint := range mints {
		i, mint := i, mint
		wg.Add(1)
		go func() {
			defer wg.Done()

			stats, err := p.fetchStats(ctx, mint)
			if err != nil {
				p.reject(mint, "fetch_failed")
				log.Warn().
					Err(err).
					Str("mint", truncMint(mint)).
					Msg("pipeline: momentum lookup failed, dropping candidate")
				return
			}
			if stats.Buys1m < p.config.MinBuysPerMinute || stats.Volume1hSOL < p.config.MinVolume1hSOL {
				reason := "low_volume"
				if stats.Buys1m < p.config.MinBuysPerMinute {
					reason = "low_buys"
				}
				p.reject(mint, reason)
				log.Debug().
					Str("mint", truncMint(mint)).
					Int("buys_1m", stats.Buys1m).
					Float64("volume_1h_sol", stats.Volume1hSOL).
					Msg("pipeline: below momentum gate")
				return
			}

			results[i] = filterResult{mint: mint, index: i, stats: stats}
			passed[i] = true
		}()
	}
	wg.Wait()

	out := make([]filterResult, 0, len(mints))
	for i := range results {
		if passed[i] {
			p.filterPassed.Add(1)
			out = append(out, results[i])
		}
	}
	return out
}

// runEnrich fans stage 2 out per survivor. Records land in discovery order
// so the stable sort in Run can break ties on it.
func (p *Pipeline) runEnrich(ctx context.Context, survivors []filterResult) []Record {
	if len(survivors) == 0 {
		return nil
	}

	records := make([]Record, len(survivors))
	var wg sync.WaitGroup
	for i, fr := range survivors {
		i, fr := i, fr
		wg.Add(1)
		go func() {
			defer wg.Done()
			records[i] = p.enrich(ctx, fr)
		}()
	}
	wg.Wait()

	p.screened.Add(int64(len(records)))
	return records
}

// enrich runs the stage-2 lookups for one filter survivor and scores it.
// Each failing lookup degrades its own slice of the record to zero values
// instead of failing the token.
func (p *Pipeline) enrich(ctx context.Context, fr filterResult) Record {
	start := time.Now()

	rec := Record{
		Mint:           fr.mint,
		Stats:          fr.stats,
		DiscoveryIndex: fr.index,
	}

	var mu sync.Mutex
	degrade := func(part string, err error) {
		mu.Lock()
		rec.Degraded = append(rec.Degraded, part)
		mu.Unlock()
		p.degradedOps.Add(1)
		log.Warn().
			Err(err).
			Str("mint", truncMint(fr.mint)).
			Str("part", part).
			Msg("pipeline: enrichment degraded")
	}

	// Metadata first: the social keyword needs name and symbol.
	meta, err := p.fetchMeta(ctx, fr.mint)
	if err != nil {
		degrade("meta", err)
		meta = launchpad.DefaultMeta(fr.mint)
	}
	rec.Meta = meta

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		supply, err := p.fetchSupply(ctx, fr.mint)
		if err != nil {
			degrade("supply", err)
			return
		}
		rec.Supply = supply
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		share, err := p.fetchTop10(ctx, fr.mint)
		if err != nil {
			degrade("holders", err)
			return
		}
		rec.Top10Share = share
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		dip, err := p.fetchDip(ctx, fr.mint)
		if err != nil {
			degrade("price_history", err)
			return
		}
		rec.Dip = dip
	}()

	if p.social != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sig, err := p.fetchSocial(ctx, social.Keyword(meta.Name, meta.Symbol))
			if err != nil {
				degrade("social", err)
				return
			}
			rec.Social = sig
		}()
	}

	wg.Wait()
	sort.Strings(rec.Degraded)

	rec.Score = p.scorer.Score(ScoreInput{
		Buys1m:          rec.Stats.Buys1m,
		Volume1hSOL:     rec.Stats.Volume1hSOL,
		CreatorHoldings: rec.Supply.CreatorHoldings,
		LPLocked:        rec.Supply.LPLocked,
		Top10Share:      rec.Top10Share,
		PostGrowth1h:    rec.Social.PostGrowth1h,
		TrendGrowth:     rec.Social.TrendGrowth,
		Resilient:       rec.Dip.Resilient,
	})
	rec.ScreenedAt = time.Now()
	rec.LatencyMs = time.Since(start).Milliseconds()

	return rec
}

// ---------------------------------------------------------------------------
// Slot-bounded lookups
// ---------------------------------------------------------------------------

// observe reports a provider call outcome to the quality monitor, if wired.
func (p *Pipeline) observe(provider, op string, start time.Time, err error) {
	if p.monitor == nil {
		return
	}
	if err != nil {
		p.monitor.RecordFailure(provider, op)
		return
	}
	p.monitor.RecordSuccess(provider, op, time.Since(start))
}

func (p *Pipeline) fetchStats(ctx context.Context, mint string) (marketdata.FastStats, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return marketdata.FastStats{}, err
	}
	defer p.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	stats, err := p.market.FastStats(callCtx, mint)
	p.observe("marketdata", "fast_stats", start, err)
	return stats, err
}

func (p *Pipeline) fetchMeta(ctx context.Context, mint string) (launchpad.TokenMeta, error) {
	// A cache hit costs no slot.
	if p.metaCache != nil {
		if meta, ok := p.metaCache.Get(mint); ok {
			return meta, nil
		}
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return launchpad.TokenMeta{}, err
	}
	defer p.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	meta, err := p.launch.Meta(callCtx, mint)
	p.observe("launchpad", "meta", start, err)
	if err != nil {
		return launchpad.TokenMeta{}, err
	}
	if p.metaCache != nil {
		p.metaCache.Put(mint, meta)
	}
	return meta, nil
}

func (p *Pipeline) fetchSupply(ctx context.Context, mint string) (marketdata.SupplyMetrics, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return marketdata.SupplyMetrics{}, err
	}
	defer p.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	supply, err := p.market.Supply(callCtx, mint)
	p.observe("marketdata", "supply", start, err)
	return supply, err
}

func (p *Pipeline) fetchTop10(ctx context.Context, mint string) (float64, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer p.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	holders, err := p.market.TopHolders(callCtx, mint)
	p.observe("marketdata", "holders", start, err)
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, h := range holders {
		total += h.Amount
	}
	return total, nil
}

func (p *Pipeline) fetchDip(ctx context.Context, mint string) (features.DipResult, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return features.DipResult{}, err
	}
	defer p.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	points, err := p.market.PriceHistory(callCtx, mint)
	p.observe("marketdata", "price_history", start, err)
	if err != nil {
		return features.DipResult{}, err
	}

	prices := make([]float64, len(points))
	for i, pt := range points {
		prices[i] = pt.Price
	}
	return p.dip.Evaluate(prices), nil
}

func (p *Pipeline) fetchSocial(ctx context.Context, keyword string) (social.Signals, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return social.Signals{}, err
	}
	defer p.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	sig, err := p.social.Growth(callCtx, keyword)
	p.observe("social", "signals", start, err)
	return sig, err
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// PipelineStats returns cumulative pipeline statistics.
type PipelineStats struct {
	CandidatesSeen int64                `json:"candidates_seen"`
	FilterPassed   int64                `json:"filter_passed"`
	FilterDropped  int64                `json:"filter_dropped"`
	Screened       int64                `json:"screened"`
	DegradedOps    int64                `json:"degraded_ops"`
	MetaCache      launchpad.CacheStats `json:"meta_cache"`
}

func (p *Pipeline) Stats() PipelineStats {
	stats := PipelineStats{
		CandidatesSeen: p.candidatesSeen.Load(),
		FilterPassed:   p.filterPassed.Load(),
		FilterDropped:  p.filterDropped.Load(),
		Screened:       p.screened.Load(),
		DegradedOps:    p.degradedOps.Load(),
	}
	if p.metaCache != nil {
		stats.MetaCache = p.metaCache.Stats()
	}
	return stats
}

func truncMint(mint string) string {
	if len(mint) > 8 {
		return mint[:8]
	}
	return mint
}
