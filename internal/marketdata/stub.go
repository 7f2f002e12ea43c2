package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulsescan/pulse/internal/fetch"
)

// ---------------------------------------------------------------------------
// Stub provider (for testing and development)
// ---------------------------------------------------------------------------

// StubToken is the canned market data the stub serves for one mint.
type StubToken struct {
	Stats   FastStats
	Supply  SupplyMetrics
	Holders []HolderBalance
	Prices  []PricePoint
}

// StubProvider is a deterministic in-memory Provider. Unknown mints return
// zero values rather than errors; failures are injected per operation.
// It also records in-flight call counts so tests can assert concurrency
// behavior.
type StubProvider struct {
	mu     sync.RWMutex
	tokens map[string]StubToken
	errors map[string]error // keyed "op:mint", "*" matches any mint

	delay       time.Duration // applied to every call
	enrichDelay time.Duration // overrides delay for enrichment calls

	fastStatsCalls    atomic.Int64
	supplyCalls       atomic.Int64
	topHoldersCalls   atomic.Int64
	priceHistoryCalls atomic.Int64

	inFlight    atomic.Int64
	maxInFlight atomic.Int64

	// Stage-discipline tracking: enrichment calls arriving while a
	// FastStats call is still active count as violations.
	fastActive        atomic.Int64
	barrierViolations atomic.Int64
}

// NewStubProvider creates an empty stub provider.
func NewStubProvider() *StubProvider {
	return &StubProvider{
		tokens: make(map[string]StubToken),
		errors: make(map[string]error),
	}
}

// NewSeededStubProvider creates a stub pre-loaded with varied data for the
// given mints: momentum ramps up with the index, odd indexes get a
// dip-and-recover price series.
func NewSeededStubProvider(mints []string) *StubProvider {
	s := NewStubProvider()
	now := time.Now().UTC()

	for i, mint := range mints {
		tok := StubToken{
			Stats: FastStats{
				Buys1m:      15 + i*10,
				Volume1hSOL: 1200 + float64(i)*900,
			},
			Supply: SupplyMetrics{
				CreatorHoldings: 0.001 * float64(i),
				LPLocked:        0.3 + 0.15*float64(i),
			},
		}

		for j := 0; j < 10; j++ {
			tok.Holders = append(tok.Holders, HolderBalance{
				Address: fmt.Sprintf("StubHolder%d%d", i, j),
				Amount:  0.003 + 0.001*float64(i),
			})
		}

		series := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10}
		if i%2 == 1 {
			series = []float64{10, 10, 10, 10, 10, 6, 6, 6, 6, 7.5}
		}
		for j, p := range series {
			tok.Prices = append(tok.Prices, PricePoint{
				Time:  now.Add(-priceLookback + time.Duration(j)*time.Minute),
				Price: p,
			})
		}

		s.AddToken(mint, tok)
	}
	return s
}

// AddToken registers canned data for a mint.
func (s *StubProvider) AddToken(mint string, tok StubToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[mint] = tok
}

// SetError makes one operation fail for one mint.
// Ops: fast_stats, supply, top_holders, price_history.
func (s *StubProvider) SetError(op, mint string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[op+":"+mint] = err
}

// SetOpError makes one operation fail for every mint.
func (s *StubProvider) SetOpError(op string, err error) {
	s.SetError(op, "*", err)
}

// SetDelay makes every call sleep before responding.
func (s *StubProvider) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// SetEnrichDelay makes only enrichment calls sleep before responding.
func (s *StubProvider) SetEnrichDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrichDelay = d
}

// ErrStubFailure is the default injected failure.
var ErrStubFailure = errors.New("stub: simulated upstream failure")

// TransientFailure wraps ErrStubFailure the way a real adapter would.
func TransientFailure(op string) error {
	return fetch.Transient("stub."+op, ErrStubFailure)
}

func (s *StubProvider) FastStats(ctx context.Context, mint string) (FastStats, error) {
	s.fastStatsCalls.Add(1)
	s.fastActive.Add(1)
	defer s.fastActive.Add(-1)
	s.enter()
	defer s.exit()

	if err := s.sleep(ctx, s.callDelay(false)); err != nil {
		return FastStats{}, err
	}
	if err := s.failure("fast_stats", mint); err != nil {
		return FastStats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[mint].Stats, nil
}

func (s *StubProvider) Supply(ctx context.Context, mint string) (SupplyMetrics, error) {
	s.supplyCalls.Add(1)
	s.observeBarrier()
	s.enter()
	defer s.exit()

	if err := s.sleep(ctx, s.callDelay(true)); err != nil {
		return SupplyMetrics{}, err
	}
	if err := s.failure("supply", mint); err != nil {
		return SupplyMetrics{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[mint].Supply, nil
}

func (s *StubProvider) TopHolders(ctx context.Context, mint string) ([]HolderBalance, error) {
	s.topHoldersCalls.Add(1)
	s.observeBarrier()
	s.enter()
	defer s.exit()

	if err := s.sleep(ctx, s.callDelay(true)); err != nil {
		return nil, err
	}
	if err := s.failure("top_holders", mint); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[mint].Holders, nil
}

func (s *StubProvider) PriceHistory(ctx context.Context, mint string) ([]PricePoint, error) {
	s.priceHistoryCalls.Add(1)
	s.observeBarrier()
	s.enter()
	defer s.exit()

	if err := s.sleep(ctx, s.callDelay(true)); err != nil {
		return nil, err
	}
	if err := s.failure("price_history", mint); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[mint].Prices, nil
}

// CallCount returns how many times an operation was invoked.
func (s *StubProvider) CallCount(op string) int64 {
	switch op {
	case "fast_stats":
		return s.fastStatsCalls.Load()
	case "supply":
		return s.supplyCalls.Load()
	case "top_holders":
		return s.topHoldersCalls.Load()
	case "price_history":
		return s.priceHistoryCalls.Load()
	}
	return 0
}

// MaxInFlight returns the highest number of concurrently active calls seen.
func (s *StubProvider) MaxInFlight() int64 {
	return s.maxInFlight.Load()
}

// BarrierViolations returns how many enrichment calls overlapped an active
// FastStats call.
func (s *StubProvider) BarrierViolations() int64 {
	return s.barrierViolations.Load()
}

func (s *StubProvider) enter() {
	cur := s.inFlight.Add(1)
	for {
		max := s.maxInFlight.Load()
		if cur <= max || s.maxInFlight.CompareAndSwap(max, cur) {
			return
		}
	}
}

func (s *StubProvider) exit() {
	s.inFlight.Add(-1)
}

func (s *StubProvider) observeBarrier() {
	if s.fastActive.Load() > 0 {
		s.barrierViolations.Add(1)
	}
}

func (s *StubProvider) callDelay(enrich bool) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if enrich && s.enrichDelay > 0 {
		return s.enrichDelay
	}
	return s.delay
}

func (s *StubProvider) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *StubProvider) failure(op, mint string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.errors[op+":"+mint]; err != nil {
		return err
	}
	return s.errors[op+":*"]
}
