package social

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsescan/pulse/internal/fetch"
)

type fakeTrends struct {
	series []float64
	err    error
	calls  int
}

func (f *fakeTrends) InterestOverTime(_ context.Context, _ string) ([]float64, error) {
	f.calls++
	return f.series, f.err
}

type fakePosts struct {
	count int
	err   error
	calls int
}

func (f *fakePosts) RecentCount(_ context.Context, _ string) (int, error) {
	f.calls++
	return f.count, f.err
}

func TestService_Growth(t *testing.T) {
	trends := &fakeTrends{series: []float64{10, 20, 30, 40, 50, 80}}
	posts := &fakePosts{count: 25}
	svc := NewService(trends, posts)

	sig, err := svc.Growth(context.Background(), "PCAT")
	require.NoError(t, err)

	// mean 38.33, latest 80: growth truncates to 41.
	assert.Equal(t, 41.0, sig.TrendGrowth)
	assert.Equal(t, 25.0, sig.PostGrowth1h)
}

func TestService_NegativeTrendFlooredAtZero(t *testing.T) {
	trends := &fakeTrends{series: []float64{80, 50, 20}}
	svc := NewService(trends, nil)

	sig, err := svc.Growth(context.Background(), "PCAT")
	require.NoError(t, err)
	assert.Zero(t, sig.TrendGrowth, "fading interest reads as zero growth")
}

func TestService_EmptyKeywordSkipsLookups(t *testing.T) {
	trends := &fakeTrends{series: []float64{1, 2, 3}}
	posts := &fakePosts{count: 9}
	svc := NewService(trends, posts)

	sig, err := svc.Growth(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, sig)
	assert.Zero(t, trends.calls)
	assert.Zero(t, posts.calls)
}

func TestService_OneSourceFailingZeroesOnlyItsHalf(t *testing.T) {
	trends := &fakeTrends{err: errors.New("blocked")}
	posts := &fakePosts{count: 12}
	svc := NewService(trends, posts)

	sig, err := svc.Growth(context.Background(), "PCAT")
	require.NoError(t, err, "partial failure is not an error")
	assert.Zero(t, sig.TrendGrowth)
	assert.Equal(t, 12.0, sig.PostGrowth1h)
}

func TestService_AllSourcesFailingIsTransient(t *testing.T) {
	trends := &fakeTrends{err: errors.New("blocked")}
	posts := &fakePosts{err: errors.New("timeout")}
	svc := NewService(trends, posts)

	sig, err := svc.Growth(context.Background(), "PCAT")
	require.Error(t, err)
	assert.Zero(t, sig)
	assert.True(t, fetch.IsTransient(err))
	assert.Contains(t, err.Error(), "blocked")
	assert.Contains(t, err.Error(), "timeout")
}

func TestService_SingleConfiguredSourceFailing(t *testing.T) {
	posts := &fakePosts{err: errors.New("timeout")}
	svc := NewService(nil, posts)

	_, err := svc.Growth(context.Background(), "PCAT")
	assert.True(t, fetch.IsTransient(err))
}

func TestService_NoSourcesConfigured(t *testing.T) {
	svc := NewService(nil, nil)

	sig, err := svc.Growth(context.Background(), "PCAT")
	require.NoError(t, err)
	assert.Zero(t, sig)
}

func TestKeyword(t *testing.T) {
	tests := []struct {
		label  string
		name   string
		symbol string
		want   string
	}{
		{"known symbol wins", "Pulse Cat", "PCAT", "PCAT"},
		{"unknown symbol falls back to name", "Pulse Cat", "UNKNOWN", "Pulse Cat"},
		{"blank symbol falls back to name", "Pulse Cat", "", "Pulse Cat"},
		{"fully degraded metadata", "Unknown", "UNKNOWN", "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, Keyword(tt.name, tt.symbol))
		})
	}
}

func TestTrendGrowth(t *testing.T) {
	assert.Zero(t, trendGrowth(nil))
	assert.Zero(t, trendGrowth([]float64{50}), "single reading equals its own mean")
	assert.Equal(t, 45.0, trendGrowth([]float64{10, 100}), "latest 100 minus mean 55")
}
