package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsescan/pulse/internal/fetch"
)

func newTestBitqueryClient(t *testing.T, resolver CreatorResolver, handler http.HandlerFunc) *BitqueryClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewBitqueryClient(BitqueryConfig{
		Endpoint:     server.URL,
		APIKey:       "test-key",
		Timeout:      5 * time.Second,
		RateLimitRPS: 100,
	}, resolver)
}

func TestBitquery_FastStats(t *testing.T) {
	var gotAPIKey string
	var gotVars map[string]any

	client := newTestBitqueryClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("X-Api-Key")
		var req graphQLRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotVars = req.Variables

		w.Write([]byte(`{"data": {
			"buys": {"DEXTrades": [{"count": "37"}]},
			"vol1h": {"DEXTradeByTokens": [{"volume": "2500000000.9"}]}
		}}`))
	})

	stats, err := client.FastStats(context.Background(), "MintA")
	require.NoError(t, err)

	assert.Equal(t, 37, stats.Buys1m)
	assert.Equal(t, 2.5, stats.Volume1hSOL, "lamports truncated to whole units before scaling")
	assert.Equal(t, "test-key", gotAPIKey)
	assert.Equal(t, "MintA", gotVars["mint"])
	assert.NotEmpty(t, gotVars["since1m"])
	assert.NotEmpty(t, gotVars["since1h"])
}

func TestBitquery_FastStatsEmptyResult(t *testing.T) {
	client := newTestBitqueryClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {
			"buys": {"DEXTrades": []},
			"vol1h": {"DEXTradeByTokens": []}
		}}`))
	})

	stats, err := client.FastStats(context.Background(), "MintA")
	require.NoError(t, err)
	assert.Zero(t, stats.Buys1m)
	assert.Zero(t, stats.Volume1hSOL)
}

func TestBitquery_SupplyWithCreator(t *testing.T) {
	resolver := func(_ context.Context, _ string) (string, error) {
		return "CreatorWallet111", nil
	}

	var gotVars map[string]any
	client := newTestBitqueryClient(t, resolver, func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotVars = req.Variables

		w.Write([]byte(`{"data": {
			"devHold": {"BalanceUpdates": [{"BalanceUpdate": {"balance": "0.004"}}]},
			"lpLocked": {"BalanceUpdates": [{"BalanceUpdate": {"balance": "0.5"}}]}
		}}`))
	})

	supply, err := client.Supply(context.Background(), "MintA")
	require.NoError(t, err)

	assert.Equal(t, 0.004, supply.CreatorHoldings)
	assert.Equal(t, 0.5, supply.LPLocked)
	assert.Equal(t, "CreatorWallet111", gotVars["creator"])
	assert.Equal(t, lpLockerOwner, gotVars["locker"])
}

func TestBitquery_SupplyWithoutResolver(t *testing.T) {
	var gotQuery string
	client := newTestBitqueryClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotQuery = req.Query

		w.Write([]byte(`{"data": {
			"lpLocked": {"BalanceUpdates": [{"BalanceUpdate": {"balance": "0.8"}}]}
		}}`))
	})

	supply, err := client.Supply(context.Background(), "MintA")
	require.NoError(t, err)

	assert.Zero(t, supply.CreatorHoldings)
	assert.Equal(t, 0.8, supply.LPLocked)
	assert.NotContains(t, gotQuery, "$creator")
}

func TestBitquery_SupplyResolverFailureDegradesToZero(t *testing.T) {
	resolver := func(_ context.Context, _ string) (string, error) {
		return "", errors.New("lookup failed")
	}

	client := newTestBitqueryClient(t, resolver, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"lpLocked": {"BalanceUpdates": []}}}`))
	})

	supply, err := client.Supply(context.Background(), "MintA")
	require.NoError(t, err)
	assert.Zero(t, supply.CreatorHoldings)
	assert.Zero(t, supply.LPLocked)
}

func TestBitquery_TopHolders(t *testing.T) {
	client := newTestBitqueryClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"Solana": {"TokenHolders": [
			{"Balance": {"Amount": "0.02"}, "Account": {"Address": "WhaleOne"}},
			{"Balance": {"Amount": "0.01"}, "Account": {"Address": "WhaleTwo"}},
			{"Balance": {"Amount": null}, "Account": {"Address": "WhaleThree"}}
		]}}}`))
	})

	holders, err := client.TopHolders(context.Background(), "MintA")
	require.NoError(t, err)
	require.Len(t, holders, 3)

	assert.Equal(t, HolderBalance{Address: "WhaleOne", Amount: 0.02}, holders[0])
	assert.Equal(t, HolderBalance{Address: "WhaleTwo", Amount: 0.01}, holders[1])
	assert.Zero(t, holders[2].Amount, "null balance reads as zero")
}

func TestBitquery_PriceHistory(t *testing.T) {
	var gotVars map[string]any
	client := newTestBitqueryClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotVars = req.Variables

		w.Write([]byte(`{"data": {"Solana": {"DEXTrades": [
			{"Block": {"Time": "2025-01-02T10:00:00Z"}, "Trade": {"Price": "0.0005"}},
			{"Block": {"Time": "2025-01-02T10:01:00Z"}, "Trade": {"Price": null}},
			{"Block": {"Time": "2025-01-02T10:02:00Z"}, "Trade": {"Price": "0.0007"}}
		]}}}`))
	})

	points, err := client.PriceHistory(context.Background(), "MintA")
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, 0.0005, points[0].Price)
	assert.Zero(t, points[1].Price, "null price reads as zero")
	assert.Equal(t, 0.0007, points[2].Price)
	assert.True(t, points[0].Time.Before(points[2].Time))
	assert.NotEmpty(t, gotVars["since"])
}

func TestBitquery_RetryOnServerError(t *testing.T) {
	callCount := 0
	client := newTestBitqueryClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount == 1 {
			w.WriteHeader(500)
			w.Write([]byte("internal error"))
			return
		}
		w.Write([]byte(`{"data": {"Solana": {"TokenHolders": []}}}`))
	})

	_, err := client.TopHolders(context.Background(), "MintA")
	assert.NoError(t, err)
	assert.Equal(t, 2, callCount, "should retry once after failure")
}

func TestBitquery_GraphQLErrorIsTransient(t *testing.T) {
	callCount := 0
	client := newTestBitqueryClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Write([]byte(`{"errors": [{"message": "account blocked"}]}`))
	})

	_, err := client.TopHolders(context.Background(), "MintA")
	require.Error(t, err)

	assert.True(t, fetch.IsTransient(err))
	assert.Equal(t, "bitquery.top_holders", fetch.Op(err))
	assert.Contains(t, err.Error(), "account blocked")
	assert.Equal(t, maxRetries+1, callCount)
}

func TestBitquery_RateLimited(t *testing.T) {
	client := newTestBitqueryClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
	})

	_, err := client.TopHolders(context.Background(), "MintA")
	require.Error(t, err)

	stats := client.Stats()
	assert.GreaterOrEqual(t, stats.RateLimited, int64(1))
	assert.False(t, stats.CircuitOpen, "429s must not trip the breaker")
}

func TestBitquery_CircuitBreaker(t *testing.T) {
	callCount := 0
	client := newTestBitqueryClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(500)
	})

	// Two failed calls of (maxRetries+1) attempts each push consecutive
	// errors past the threshold.
	_, err := client.TopHolders(context.Background(), "MintA")
	require.Error(t, err)
	_, err = client.TopHolders(context.Background(), "MintA")
	require.Error(t, err)

	assert.True(t, client.Stats().CircuitOpen)

	before := callCount
	_, err = client.TopHolders(context.Background(), "MintA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, before, callCount, "open breaker fails fast without hitting the API")
}

func TestBitquery_ContextCancellation(t *testing.T) {
	client := newTestBitqueryClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.FastStats(ctx, "MintA")
	assert.Error(t, err)
}
