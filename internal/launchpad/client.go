package launchpad

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pulsescan/pulse/internal/fetch"
)

// ---------------------------------------------------------------------------
// pump.fun launchpad client
// Candidate discovery + token metadata
// ---------------------------------------------------------------------------

const (
	defaultBaseURL = "https://pump.fun/api"

	maxRetries   = 2
	retryBackoff = 500 * time.Millisecond

	// DefaultCandidateLimit caps how many fresh listings one cycle pulls.
	DefaultCandidateLimit = 50
)

// TokenMeta is the launchpad-side identity of a token.
type TokenMeta struct {
	Mint        string `json:"mint"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description,omitempty"`
	ImageURI    string `json:"image,omitempty"`
	Website     string `json:"website,omitempty"`
	Twitter     string `json:"twitter,omitempty"`
	Telegram    string `json:"telegram,omitempty"`
	Creator     string `json:"creator,omitempty"`
}

// DefaultMeta is the placeholder identity used when metadata is unavailable.
func DefaultMeta(mint string) TokenMeta {
	return TokenMeta{Mint: mint, Name: "Unknown", Symbol: "UNKNOWN"}
}

// Client discovers fresh listings and resolves token metadata.
type Client interface {
	// Candidates returns the newest listed mints, capped at limit.
	Candidates(ctx context.Context, limit int) ([]string, error)

	// Meta resolves name, symbol and socials for a mint.
	Meta(ctx context.Context, mint string) (TokenMeta, error)
}

// PumpFunConfig configures the REST client.
type PumpFunConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultPumpFunConfig returns production defaults.
func DefaultPumpFunConfig() PumpFunConfig {
	return PumpFunConfig{
		BaseURL: defaultBaseURL,
		Timeout: 30 * time.Second,
	}
}

// PumpFunClient is the real pump.fun REST client.
type PumpFunClient struct {
	cfg        PumpFunConfig
	httpClient *http.Client

	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// NewPumpFunClient creates a client. Zero config fields fall back to defaults.
func NewPumpFunClient(cfg PumpFunConfig) *PumpFunClient {
	def := DefaultPumpFunConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &PumpFunClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Candidates fetches the newest listed mints.
func (c *PumpFunClient) Candidates(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	body, err := c.get(ctx, "candidates", c.cfg.BaseURL+"/coins")
	if err != nil {
		return nil, fetch.Transient("pumpfun.candidates", err)
	}

	var data struct {
		Coins []struct {
			MintAddress string `json:"mintAddress"`
		} `json:"coins"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fetch.Transient("pumpfun.candidates", fmt.Errorf("parse coins: %w", err))
	}

	mints := make([]string, 0, limit)
	for _, coin := range data.Coins {
		if coin.MintAddress == "" {
			continue
		}
		mints = append(mints, coin.MintAddress)
		if len(mints) >= limit {
			break
		}
	}

	log.Debug().Int("count", len(mints)).Msg("pumpfun: candidates fetched")
	return mints, nil
}

// Meta fetches token metadata. Missing name and symbol fall back to the
// Unknown/UNKNOWN placeholders.
func (c *PumpFunClient) Meta(ctx context.Context, mint string) (TokenMeta, error) {
	body, err := c.get(ctx, "meta", c.cfg.BaseURL+"/coins/"+mint)
	if err != nil {
		return TokenMeta{}, fetch.Transient("pumpfun.meta", err)
	}

	var data struct {
		Name        string `json:"name"`
		Symbol      string `json:"symbol"`
		Description string `json:"description"`
		Image       string `json:"image"`
		Website     string `json:"website"`
		Twitter     string `json:"twitter"`
		Telegram    string `json:"telegram"`
		Creator     string `json:"creator"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return TokenMeta{}, fetch.Transient("pumpfun.meta", fmt.Errorf("parse coin: %w", err))
	}

	meta := TokenMeta{
		Mint:        mint,
		Name:        data.Name,
		Symbol:      data.Symbol,
		Description: data.Description,
		ImageURI:    data.Image,
		Website:     data.Website,
		Twitter:     data.Twitter,
		Telegram:    data.Telegram,
		Creator:     data.Creator,
	}
	if meta.Name == "" {
		meta.Name = "Unknown"
	}
	if meta.Symbol == "" {
		meta.Symbol = "UNKNOWN"
	}
	return meta, nil
}

// get performs one GET with retries and returns the response body.
func (c *PumpFunClient) get(ctx context.Context, op, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoff * time.Duration(1<<uint(attempt-1))):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, fmt.Errorf("pumpfun: create %s request: %w", op, err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("pumpfun: %s HTTP error: %w", op, err)
			c.errorCount.Add(1)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("pumpfun: read %s response: %w", op, err)
			c.errorCount.Add(1)
			continue
		}

		if resp.StatusCode != 200 {
			lastErr = fmt.Errorf("pumpfun: %s HTTP %d", op, resp.StatusCode)
			c.errorCount.Add(1)
			continue
		}

		c.requestCount.Add(1)
		return body, nil
	}

	return nil, fmt.Errorf("pumpfun: %s failed after %d attempts: %w", op, maxRetries+1, lastErr)
}

// ClientStats returns pump.fun client stats.
type ClientStats struct {
	RequestCount int64 `json:"request_count"`
	ErrorCount   int64 `json:"error_count"`
}

func (c *PumpFunClient) Stats() ClientStats {
	return ClientStats{
		RequestCount: c.requestCount.Load(),
		ErrorCount:   c.errorCount.Load(),
	}
}
