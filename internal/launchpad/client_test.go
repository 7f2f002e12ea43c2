package launchpad

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsescan/pulse/internal/fetch"
)

func newTestPumpFunClient(t *testing.T, handler http.HandlerFunc) *PumpFunClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewPumpFunClient(PumpFunConfig{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
}

func TestPumpFun_Candidates(t *testing.T) {
	client := newTestPumpFunClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins", r.URL.Path)
		w.Write([]byte(`{"coins": [
			{"mintAddress": "MintA"},
			{"mintAddress": ""},
			{"mintAddress": "MintB"},
			{"name": "no mint field"}
		]}`))
	})

	mints, err := client.Candidates(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"MintA", "MintB"}, mints, "blank mints are skipped")
}

func TestPumpFun_CandidatesCappedAtLimit(t *testing.T) {
	client := newTestPumpFunClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"coins": [`)
		for i := 0; i < 80; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"mintAddress": "Mint%d"}`, i)
		}
		fmt.Fprint(w, `]}`)
	})

	mints, err := client.Candidates(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, mints, 50)
	assert.Equal(t, "Mint0", mints[0])
}

func TestPumpFun_Meta(t *testing.T) {
	client := newTestPumpFunClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/MintA", r.URL.Path)
		w.Write([]byte(`{
			"name": "Pulse Cat",
			"symbol": "PCAT",
			"description": "a cat",
			"image": "https://img.example/pcat.png",
			"twitter": "https://x.com/pcat",
			"creator": "CreatorWallet111"
		}`))
	})

	meta, err := client.Meta(context.Background(), "MintA")
	require.NoError(t, err)

	assert.Equal(t, "MintA", meta.Mint)
	assert.Equal(t, "Pulse Cat", meta.Name)
	assert.Equal(t, "PCAT", meta.Symbol)
	assert.Equal(t, "https://x.com/pcat", meta.Twitter)
	assert.Equal(t, "CreatorWallet111", meta.Creator)
}

func TestPumpFun_MetaDefaultsMissingFields(t *testing.T) {
	client := newTestPumpFunClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"description": "anonymous token"}`))
	})

	meta, err := client.Meta(context.Background(), "MintA")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", meta.Name)
	assert.Equal(t, "UNKNOWN", meta.Symbol)
}

func TestPumpFun_RetryOnServerError(t *testing.T) {
	callCount := 0
	client := newTestPumpFunClient(t, func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount == 1 {
			w.WriteHeader(500)
			return
		}
		w.Write([]byte(`{"coins": []}`))
	})

	_, err := client.Candidates(context.Background(), 10)
	assert.NoError(t, err)
	assert.Equal(t, 2, callCount, "should retry once after failure")
}

func TestPumpFun_FailureIsTransient(t *testing.T) {
	client := newTestPumpFunClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	})

	_, err := client.Meta(context.Background(), "MintA")
	require.Error(t, err)
	assert.True(t, fetch.IsTransient(err))
	assert.Equal(t, "pumpfun.meta", fetch.Op(err))

	stats := client.Stats()
	assert.GreaterOrEqual(t, stats.ErrorCount, int64(1))
}

func TestDefaultMeta(t *testing.T) {
	meta := DefaultMeta("MintA")
	assert.Equal(t, "MintA", meta.Mint)
	assert.Equal(t, "Unknown", meta.Name)
	assert.Equal(t, "UNKNOWN", meta.Symbol)
}

func TestSampleMints(t *testing.T) {
	mints := SampleMints()
	assert.Len(t, mints, 5)
	for _, mint := range mints {
		assert.NotEmpty(t, mint)
	}
}
