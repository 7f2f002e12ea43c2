package launchpad

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pulsescan/pulse/internal/fetch"
)

// ---------------------------------------------------------------------------
// Stub client (for testing and development)
// ---------------------------------------------------------------------------

// ErrStubUnavailable is the default injected failure.
var ErrStubUnavailable = errors.New("stub: launchpad unavailable")

// StubClient is a deterministic in-memory Client.
type StubClient struct {
	mu         sync.RWMutex
	candidates []string
	metas      map[string]TokenMeta

	failCandidates bool
	failMeta       map[string]bool

	candidatesCalls atomic.Int64
	metaCalls       atomic.Int64
}

// NewStubClient creates an empty stub client.
func NewStubClient() *StubClient {
	return &StubClient{
		metas:    make(map[string]TokenMeta),
		failMeta: make(map[string]bool),
	}
}

// NewSeededStubClient creates a stub serving the given mints with generated
// metadata.
func NewSeededStubClient(mints []string) *StubClient {
	s := NewStubClient()
	s.SetCandidates(mints)
	for i, mint := range mints {
		s.AddMeta(TokenMeta{
			Mint:   mint,
			Name:   "Stub Token " + string(rune('A'+i%26)),
			Symbol: "STB" + string(rune('A'+i%26)),
		})
	}
	return s
}

// SetCandidates sets the list Candidates returns.
func (s *StubClient) SetCandidates(mints []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append([]string(nil), mints...)
}

// AddMeta registers metadata for a mint.
func (s *StubClient) AddMeta(meta TokenMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas[meta.Mint] = meta
}

// SetFailCandidates makes Candidates fail.
func (s *StubClient) SetFailCandidates(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCandidates = fail
}

// SetFailMeta makes Meta fail for one mint.
func (s *StubClient) SetFailMeta(mint string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMeta[mint] = fail
}

func (s *StubClient) Candidates(_ context.Context, limit int) ([]string, error) {
	s.candidatesCalls.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failCandidates {
		return nil, fetch.Transient("stub.candidates", ErrStubUnavailable)
	}

	mints := s.candidates
	if limit > 0 && len(mints) > limit {
		mints = mints[:limit]
	}
	return append([]string(nil), mints...), nil
}

func (s *StubClient) Meta(_ context.Context, mint string) (TokenMeta, error) {
	s.metaCalls.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failMeta[mint] {
		return TokenMeta{}, fetch.Transient("stub.meta", ErrStubUnavailable)
	}

	if meta, ok := s.metas[mint]; ok {
		return meta, nil
	}
	return DefaultMeta(mint), nil
}

// CandidatesCalls returns how many times Candidates was invoked.
func (s *StubClient) CandidatesCalls() int64 {
	return s.candidatesCalls.Load()
}

// MetaCalls returns how many times Meta was invoked.
func (s *StubClient) MetaCalls() int64 {
	return s.metaCalls.Load()
}
