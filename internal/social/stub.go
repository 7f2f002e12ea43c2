package social

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Stub provider (for testing and development)
// ---------------------------------------------------------------------------

// StubProvider is a deterministic in-memory Provider.
type StubProvider struct {
	mu      sync.RWMutex
	signals map[string]Signals
	err     error
	delay   time.Duration

	calls atomic.Int64
}

// NewStubProvider creates an empty stub provider.
func NewStubProvider() *StubProvider {
	return &StubProvider{signals: make(map[string]Signals)}
}

// NewSeededStubProvider creates a stub with synthetic growth for the given
// keywords, ramping up with the index.
func NewSeededStubProvider(keywords []string) *StubProvider {
	s := NewStubProvider()
	for i, kw := range keywords {
		s.SetSignals(kw, Signals{
			PostGrowth1h: 60 * float64(i+1),
			TrendGrowth:  90 * float64(i+1),
		})
	}
	return s
}

// SetSignals registers the signals returned for a keyword.
func (s *StubProvider) SetSignals(keyword string, sig Signals) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[keyword] = sig
}

// SetErr makes every lookup fail.
func (s *StubProvider) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// SetDelay makes every lookup sleep before responding.
func (s *StubProvider) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *StubProvider) Growth(ctx context.Context, keyword string) (Signals, error) {
	s.calls.Add(1)

	s.mu.RLock()
	delay, err := s.delay, s.err
	s.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Signals{}, ctx.Err()
		}
	}
	if err != nil {
		return Signals{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signals[keyword], nil
}

// Calls returns how many times Growth was invoked.
func (s *StubProvider) Calls() int64 {
	return s.calls.Load()
}
