package screener

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsescan/pulse/internal/launchpad"
	"github.com/pulsescan/pulse/internal/marketdata"
	"github.com/pulsescan/pulse/internal/quality"
	"github.com/pulsescan/pulse/internal/social"
)

// rejectRecorder collects stage-1 drops from concurrent filter goroutines.
type rejectRecorder struct {
	mu      sync.Mutex
	reasons map[string]string
}

func newRejectRecorder() *rejectRecorder {
	return &rejectRecorder{reasons: make(map[string]string)}
}

func (r *rejectRecorder) note(mint, reason string) {
	r.mu.Lock()
	r.reasons[mint] = reason
	r.mu.Unlock()
}

// hotToken passes the default momentum gate with room to spare.
func hotToken() marketdata.StubToken {
	tok := marketdata.StubToken{
		Stats:  marketdata.FastStats{Buys1m: 50, Volume1hSOL: 4000},
		Supply: marketdata.SupplyMetrics{CreatorHoldings: 0.004, LPLocked: 0.5},
	}
	for j := 0; j < 10; j++ {
		tok.Holders = append(tok.Holders, marketdata.HolderBalance{
			Address: "Holder",
			Amount:  0.004,
		})
	}
	for j := 0; j < 10; j++ {
		tok.Prices = append(tok.Prices, marketdata.PricePoint{Price: 10})
	}
	return tok
}

func TestPipeline_EndToEnd(t *testing.T) {
	mints := []string{"Mint0", "Mint1", "Mint2", "Mint3"}
	market := marketdata.NewSeededStubProvider(mints)
	launch := launchpad.NewSeededStubClient(mints)
	socialStub := social.NewStubProvider()

	p := NewPipeline(DefaultPipelineConfig(), market, launch, socialStub)

	records, err := p.Run(context.Background(), mints)
	require.NoError(t, err)

	// Mint0 (15 buys) falls below the 25-buy gate, the rest survive.
	require.Len(t, records, 3)

	// Mint3 has the strongest momentum plus the resilience point, Mint1
	// beats Mint2 on resilience despite weaker momentum.
	assert.Equal(t, "Mint3", records[0].Mint)
	assert.Equal(t, "Mint1", records[1].Mint)
	assert.Equal(t, "Mint2", records[2].Mint)

	assert.InDelta(t, 6.45, records[0].Score.Composite, 1e-9)
	assert.InDelta(t, 4.9, records[1].Score.Composite, 1e-9)
	assert.InDelta(t, 4.675, records[2].Score.Composite, 1e-9)

	assert.True(t, records[0].Dip.Resilient)
	assert.False(t, records[2].Dip.Resilient)

	assert.Equal(t, "Stub Token D", records[0].Meta.Name)
	assert.Empty(t, records[0].Degraded)
	assert.Equal(t, 3, records[0].DiscoveryIndex)

	stats := p.Stats()
	assert.Equal(t, int64(4), stats.CandidatesSeen)
	assert.Equal(t, int64(3), stats.FilterPassed)
	assert.Equal(t, int64(1), stats.FilterDropped)
	assert.Equal(t, int64(3), stats.Screened)
	assert.Equal(t, int64(0), stats.DegradedOps)
}

func TestPipeline_MomentumGateIsInclusive(t *testing.T) {
	market := marketdata.NewStubProvider()
	market.AddToken("AtThreshold", marketdata.StubToken{
		Stats: marketdata.FastStats{Buys1m: 25, Volume1hSOL: 2000},
	})
	market.AddToken("WeakBuys", marketdata.StubToken{
		Stats: marketdata.FastStats{Buys1m: 24, Volume1hSOL: 5000},
	})
	market.AddToken("WeakVolume", marketdata.StubToken{
		Stats: marketdata.FastStats{Buys1m: 100, Volume1hSOL: 1999},
	})

	p := NewPipeline(DefaultPipelineConfig(), market, launchpad.NewStubClient(), nil)
	rec := newRejectRecorder()
	p.OnReject(rec.note)

	records, err := p.Run(context.Background(), []string{"AtThreshold", "WeakBuys", "WeakVolume"})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "AtThreshold", records[0].Mint)
	assert.Equal(t, map[string]string{
		"WeakBuys":   "low_buys",
		"WeakVolume": "low_volume",
	}, rec.reasons)
}

func TestPipeline_GateIsMonotonic(t *testing.T) {
	// Starting from the exact gate, raising either axis alone never turns a
	// passing candidate into a failing one.
	passing := []marketdata.FastStats{
		{Buys1m: 25, Volume1hSOL: 2000},
		{Buys1m: 26, Volume1hSOL: 2000},
		{Buys1m: 2500, Volume1hSOL: 2000},
		{Buys1m: 25, Volume1hSOL: 2001},
		{Buys1m: 25, Volume1hSOL: 2e6},
	}

	for _, stats := range passing {
		market := marketdata.NewStubProvider()
		tok := hotToken()
		tok.Stats = stats
		market.AddToken("MintA", tok)

		p := NewPipeline(DefaultPipelineConfig(), market, launchpad.NewStubClient(), nil)
		records, err := p.Run(context.Background(), []string{"MintA"})
		require.NoError(t, err)
		assert.Len(t, records, 1, "buys=%d vol=%.0f must pass", stats.Buys1m, stats.Volume1hSOL)
	}
}

func TestPipeline_FilterFailsClosed(t *testing.T) {
	mints := []string{"MintA", "MintB"}
	market := marketdata.NewStubProvider()
	for _, mint := range mints {
		market.AddToken(mint, hotToken())
	}
	market.SetError("fast_stats", "MintA", marketdata.TransientFailure("fast_stats"))

	p := NewPipeline(DefaultPipelineConfig(), market, launchpad.NewStubClient(), nil)
	rec := newRejectRecorder()
	p.OnReject(rec.note)

	records, err := p.Run(context.Background(), mints)
	require.NoError(t, err)

	// An unreadable candidate is dropped, never enriched on guesswork.
	require.Len(t, records, 1)
	assert.Equal(t, "MintB", records[0].Mint)
	assert.Equal(t, int64(1), p.Stats().FilterDropped)
	assert.Equal(t, map[string]string{"MintA": "fetch_failed"}, rec.reasons)
}

func TestPipeline_DegradationIsolatesParts(t *testing.T) {
	mints := []string{"MintA", "MintB"}
	market := marketdata.NewStubProvider()
	for _, mint := range mints {
		market.AddToken(mint, hotToken())
	}
	market.SetError("supply", "MintA", marketdata.TransientFailure("supply"))

	p := NewPipeline(DefaultPipelineConfig(), market, launchpad.NewStubClient(), nil)

	records, err := p.Run(context.Background(), mints)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byMint := map[string]Record{}
	for _, rec := range records {
		byMint[rec.Mint] = rec
	}

	// MintA scores with zeroed supply: the creator dimension earns its
	// full point while the LP point is lost.
	degraded := byMint["MintA"]
	assert.Equal(t, []string{"supply"}, degraded.Degraded)
	assert.Equal(t, 0.0, degraded.Supply.CreatorHoldings)
	assert.InDelta(t, 5.5, degraded.Score.Composite, 1e-9)
	assert.InDelta(t, 0.6, degraded.Score.Risk, 1e-9)

	// MintB is untouched.
	healthy := byMint["MintB"]
	assert.Empty(t, healthy.Degraded)
	assert.InDelta(t, 5.6, healthy.Score.Composite, 1e-9)
	assert.InDelta(t, 0.61, healthy.Score.Risk, 1e-9)
}

func TestPipeline_ConcurrencyDiscipline(t *testing.T) {
	mints := make([]string, 12)
	market := marketdata.NewStubProvider()
	for i := range mints {
		mints[i] = "Mint" + string(rune('A'+i))
		market.AddToken(mints[i], hotToken())
	}
	market.SetDelay(10 * time.Millisecond)

	config := DefaultPipelineConfig()
	config.MaxConcurrentRequests = 3

	p := NewPipeline(config, market, launchpad.NewStubClient(), nil)

	records, err := p.Run(context.Background(), mints)
	require.NoError(t, err)
	require.Len(t, records, 12)

	assert.LessOrEqual(t, market.MaxInFlight(), int64(3))
	assert.Equal(t, int64(0), market.BarrierViolations())
}

func TestPipeline_TieBreakKeepsDiscoveryOrder(t *testing.T) {
	mints := []string{"MintC", "MintA", "MintB"}
	market := marketdata.NewStubProvider()
	for _, mint := range mints {
		market.AddToken(mint, hotToken())
	}

	p := NewPipeline(DefaultPipelineConfig(), market, launchpad.NewStubClient(), nil)

	records, err := p.Run(context.Background(), mints)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Identical composites rank by discovery order, not mint name.
	for i, rec := range records {
		assert.Equal(t, mints[i], rec.Mint)
		assert.Equal(t, i, rec.DiscoveryIndex)
	}
}

func TestRankByComposite_Idempotent(t *testing.T) {
	records := []Record{
		{Mint: "MintA", DiscoveryIndex: 0, Score: Score{Composite: 4.0}},
		{Mint: "MintB", DiscoveryIndex: 1, Score: Score{Composite: 7.5}},
		{Mint: "MintC", DiscoveryIndex: 2, Score: Score{Composite: 4.0}},
		{Mint: "MintD", DiscoveryIndex: 3, Score: Score{Composite: 9.1}},
	}

	rankByComposite(records)
	first := make([]string, len(records))
	for i, rec := range records {
		first[i] = rec.Mint
	}
	assert.Equal(t, []string{"MintD", "MintB", "MintA", "MintC"}, first)

	// Ranking an already-ranked set leaves it untouched, ties included.
	rankByComposite(records)
	for i, rec := range records {
		assert.Equal(t, first[i], rec.Mint)
	}
}

func TestPipeline_CycleDeadlineDegrades(t *testing.T) {
	mints := []string{"MintA", "MintB"}
	market := marketdata.NewStubProvider()
	for _, mint := range mints {
		market.AddToken(mint, hotToken())
	}
	market.SetEnrichDelay(500 * time.Millisecond)

	config := DefaultPipelineConfig()
	config.CycleDeadline = 100 * time.Millisecond

	p := NewPipeline(config, market, launchpad.NewStubClient(), nil)

	records, err := p.Run(context.Background(), mints)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// The deadline fires mid-enrichment: every market lookup degrades but
	// the cycle still produces momentum-scored records.
	for _, rec := range records {
		assert.Equal(t, []string{"holders", "price_history", "supply"}, rec.Degraded)
		assert.InDelta(t, 6.0, rec.Score.Composite, 1e-9)
		assert.InDelta(t, 0.3, rec.Score.Risk, 1e-9)
	}
	assert.Equal(t, int64(6), p.Stats().DegradedOps)
}

func TestPipeline_ParentCancelAborts(t *testing.T) {
	market := marketdata.NewStubProvider()
	market.AddToken("MintA", hotToken())

	p := NewPipeline(DefaultPipelineConfig(), market, launchpad.NewStubClient(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := p.Run(ctx, []string{"MintA"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, records)
}

func TestPipeline_MetaCacheAvoidsRefetch(t *testing.T) {
	market := marketdata.NewStubProvider()
	market.AddToken("MintA", hotToken())
	launch := launchpad.NewStubClient()
	launch.AddMeta(launchpad.TokenMeta{Mint: "MintA", Name: "Alpha", Symbol: "ALPHA"})

	p := NewPipeline(DefaultPipelineConfig(), market, launch, nil)

	for i := 0; i < 3; i++ {
		records, err := p.Run(context.Background(), []string{"MintA"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "Alpha", records[0].Meta.Name)
	}

	assert.Equal(t, int64(1), launch.MetaCalls())
	assert.Equal(t, int64(2), p.Stats().MetaCache.Hits)
}

func TestPipeline_MetaCacheDisabled(t *testing.T) {
	market := marketdata.NewStubProvider()
	market.AddToken("MintA", hotToken())
	launch := launchpad.NewStubClient()
	launch.AddMeta(launchpad.TokenMeta{Mint: "MintA", Name: "Alpha", Symbol: "ALPHA"})

	cfg := DefaultPipelineConfig()
	cfg.DisableMetaCache = true
	p := NewPipeline(cfg, market, launch, nil)

	for i := 0; i < 3; i++ {
		records, err := p.Run(context.Background(), []string{"MintA"})
		require.NoError(t, err)
		require.Len(t, records, 1)
	}

	assert.Equal(t, int64(3), launch.MetaCalls())
	assert.Equal(t, launchpad.CacheStats{}, p.Stats().MetaCache)
}

func TestPipeline_SocialSignalsScored(t *testing.T) {
	market := marketdata.NewStubProvider()
	market.AddToken("MintA", hotToken())
	launch := launchpad.NewStubClient()
	launch.AddMeta(launchpad.TokenMeta{Mint: "MintA", Name: "Foo Coin", Symbol: "FOO"})

	socialStub := social.NewStubProvider()
	socialStub.SetSignals("FOO", social.Signals{PostGrowth1h: 150, TrendGrowth: 600})

	p := NewPipeline(DefaultPipelineConfig(), market, launch, socialStub)

	records, err := p.Run(context.Background(), []string{"MintA"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, 150.0, rec.Social.PostGrowth1h)
	assert.Equal(t, 600.0, rec.Social.TrendGrowth)

	// 4.0 momentum + 1.6 mitigation + 1.5 social.
	assert.InDelta(t, 7.1, rec.Score.Composite, 1e-9)
	assert.InDelta(t, 1.5, rec.Score.Breakdown.Social, 1e-9)
}

func TestPipeline_MetaFailureUsesPlaceholder(t *testing.T) {
	market := marketdata.NewStubProvider()
	market.AddToken("MintA", hotToken())
	launch := launchpad.NewStubClient()
	launch.SetFailMeta("MintA", true)

	p := NewPipeline(DefaultPipelineConfig(), market, launch, nil)

	records, err := p.Run(context.Background(), []string{"MintA"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "Unknown", rec.Meta.Name)
	assert.Equal(t, "UNKNOWN", rec.Meta.Symbol)
	assert.Equal(t, []string{"meta"}, rec.Degraded)
}

func TestPipeline_EmptyBatch(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig(), marketdata.NewStubProvider(), launchpad.NewStubClient(), nil)

	records, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestPipeline_QualityMonitorSeesFetches(t *testing.T) {
	market := marketdata.NewStubProvider()
	market.AddToken("MintA", hotToken())
	market.SetOpError("supply", assert.AnError)
	launch := launchpad.NewStubClient()
	launch.AddMeta(launchpad.TokenMeta{Mint: "MintA", Name: "Tok", Symbol: "TOK"})

	p := NewPipeline(DefaultPipelineConfig(), market, launch, nil)
	mon := quality.NewMonitor(0, 0)
	p.SetQualityMonitor(mon)

	_, err := p.Run(context.Background(), []string{"MintA"})
	require.NoError(t, err)

	snap := mon.Snapshot()
	assert.Equal(t, int64(1), snap["marketdata.fast_stats"].Calls)
	assert.Equal(t, int64(0), snap["marketdata.fast_stats"].Failures)
	assert.Equal(t, int64(1), snap["marketdata.supply"].Failures)
	assert.Equal(t, int64(1), snap["launchpad.meta"].Calls)
	assert.Equal(t, int64(1), snap["marketdata.holders"].Calls)
	assert.Equal(t, int64(1), snap["marketdata.price_history"].Calls)
}
