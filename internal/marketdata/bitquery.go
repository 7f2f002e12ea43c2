package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/pulsescan/pulse/internal/fetch"
)

// ---------------------------------------------------------------------------
// Bitquery EAP GraphQL client
// Momentum, supply, holders, price history
// https://docs.bitquery.io/docs/blockchain/Solana/
// ---------------------------------------------------------------------------

const (
	defaultBitqueryEndpoint = "https://streaming.bitquery.io/graphql"

	maxRetries   = 2
	retryBackoff = 500 * time.Millisecond

	// Lookback window for the dip-resilience price series.
	priceLookback = 10 * time.Minute
)

// lpLockerOwner is the token-account owner treated as locked liquidity.
// Balances parked under it cannot be pulled by the deployer.
const lpLockerOwner = "BesTLFfCP9tAuUDWnqPdtDXZRu5xK6XD8TrABXGBECuf"

const fastStatsQuery = `
query FastStats($mint: String!, $since1m: DateTime!, $since1h: DateTime!) {
  buys: Solana {
    DEXTrades(
      where: {
        Trade: {
          Side: {Type: {is: "buy"}},
          Currency: {MintAddress: {is: $mint}},
          Dex: {ProtocolName: {is: "pump"}}
        },
        Block: {Time: {since: $since1m}}
      }
    ) {
      count
    }
  }
  vol1h: Solana {
    DEXTradeByTokens(
      where: {
        Trade: {
          Currency: {MintAddress: {is: $mint}},
          Dex: {ProtocolName: {is: "pump"}}
        },
        Block: {Time: {since: $since1h}}
      }
    ) {
      volume: sum(of: Trade_Amount)
    }
  }
}`

const supplyQuery = `
query SupplySide($token: String!, $creator: String!, $locker: String!) {
  devHold: Solana {
    BalanceUpdates(
      where: {
        BalanceUpdate: {
          Currency: {MintAddress: {is: $token}},
          Account: {Owner: {is: $creator}}
        }
      }
    ) {
      BalanceUpdate {
        balance: PostBalance(maximum: Block_Slot)
      }
    }
  }
  lpLocked: Solana {
    BalanceUpdates(
      where: {
        BalanceUpdate: {
          Currency: {MintAddress: {is: $token}},
          Account: {Token: {Owner: {is: $locker}}}
        }
      }
    ) {
      BalanceUpdate {
        balance: PostBalance(maximum: Block_Slot)
      }
    }
  }
}`

// supplyQueryNoCreator is the fallback when the deployer wallet is unknown.
// Creator holdings then read as zero.
const supplyQueryNoCreator = `
query SupplySide($token: String!, $locker: String!) {
  lpLocked: Solana {
    BalanceUpdates(
      where: {
        BalanceUpdate: {
          Currency: {MintAddress: {is: $token}},
          Account: {Token: {Owner: {is: $locker}}}
        }
      }
    ) {
      BalanceUpdate {
        balance: PostBalance(maximum: Block_Slot)
      }
    }
  }
}`

const topHoldersQuery = `
query TopHolders($token: String!) {
  Solana {
    TokenHolders(
      where: {Token: {MintAddress: {is: $token}}}
      limit: 10
      orderBy: {descending: Balance_Amount}
    ) {
      Balance {
        Amount
      }
      Account {
        Address
      }
    }
  }
}`

const priceHistoryQuery = `
query PriceHistory($token: String!, $since: DateTime!) {
  Solana {
    DEXTrades(
      where: {
        Trade: {
          Currency: {MintAddress: {is: $token}},
          Dex: {ProtocolName: {is: "raydium"}}
        },
        Block: {Time: {since: $since}}
      }
      orderBy: {ascending: Block_Time}
    ) {
      Block {
        Time
      }
      Trade {
        Price
      }
    }
  }
}`

// CreatorResolver returns the deployer wallet for a mint. Optional: when nil
// or failing, the supply query skips the creator side and holdings read zero.
type CreatorResolver func(ctx context.Context, mint string) (string, error)

// BitqueryConfig configures the GraphQL client.
type BitqueryConfig struct {
	Endpoint     string
	APIKey       string
	Timeout      time.Duration
	RateLimitRPS float64
}

// DefaultBitqueryConfig returns production defaults.
func DefaultBitqueryConfig() BitqueryConfig {
	return BitqueryConfig{
		Endpoint:     defaultBitqueryEndpoint,
		Timeout:      30 * time.Second,
		RateLimitRPS: 5,
	}
}

// BitqueryClient is the real Bitquery GraphQL client.
type BitqueryClient struct {
	cfg            BitqueryConfig
	httpClient     *http.Client
	limiter        *rate.Limiter
	resolveCreator CreatorResolver

	requestCount   atomic.Int64
	errorCount     atomic.Int64
	rateLimitCount atomic.Int64
	totalLatencyMs atomic.Int64

	// Circuit breaker.
	consecutiveErrors atomic.Int64
	circuitOpen       atomic.Bool
}

// NewBitqueryClient creates a client. Zero config fields fall back to defaults.
func NewBitqueryClient(cfg BitqueryConfig, resolver CreatorResolver) *BitqueryClient {
	def := DefaultBitqueryConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = def.RateLimitRPS
	}
	burst := int(cfg.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}
	return &BitqueryClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst),
		resolveCreator: resolver,
	}
}

// FastStats fetches buys-per-minute and 1h volume for the stage-1 filter.
func (c *BitqueryClient) FastStats(ctx context.Context, mint string) (FastStats, error) {
	now := time.Now().UTC()
	vars := map[string]any{
		"mint":    mint,
		"since1m": now.Add(-1 * time.Minute).Format(time.RFC3339),
		"since1h": now.Add(-1 * time.Hour).Format(time.RFC3339),
	}

	var data struct {
		Buys struct {
			DEXTrades []struct {
				Count decimal.NullDecimal `json:"count"`
			} `json:"DEXTrades"`
		} `json:"buys"`
		Vol1h struct {
			DEXTradeByTokens []struct {
				Volume decimal.NullDecimal `json:"volume"`
			} `json:"DEXTradeByTokens"`
		} `json:"vol1h"`
	}

	if err := c.query(ctx, "fast_stats", fastStatsQuery, vars, &data); err != nil {
		return FastStats{}, fetch.Transient("bitquery.fast_stats", err)
	}

	out := FastStats{}
	if len(data.Buys.DEXTrades) > 0 && data.Buys.DEXTrades[0].Count.Valid {
		out.Buys1m = int(data.Buys.DEXTrades[0].Count.Decimal.IntPart())
	}
	if len(data.Vol1h.DEXTradeByTokens) > 0 && data.Vol1h.DEXTradeByTokens[0].Volume.Valid {
		// Lamports to SOL, truncating sub-lamport dust first.
		out.Volume1hSOL = float64(data.Vol1h.DEXTradeByTokens[0].Volume.Decimal.IntPart()) / 1e9
	}

	log.Debug().
		Str("mint", truncMint(mint)).
		Int("buys_1m", out.Buys1m).
		Float64("vol_1h_sol", out.Volume1hSOL).
		Msg("bitquery: fast stats")

	return out, nil
}

// Supply fetches creator and LP-locker balances.
func (c *BitqueryClient) Supply(ctx context.Context, mint string) (SupplyMetrics, error) {
	query := supplyQueryNoCreator
	vars := map[string]any{"token": mint, "locker": lpLockerOwner}

	if c.resolveCreator != nil {
		creator, err := c.resolveCreator(ctx, mint)
		switch {
		case err != nil:
			log.Debug().Str("mint", truncMint(mint)).Err(err).
				Msg("bitquery: creator lookup failed, skipping dev holdings")
		case creator != "":
			query = supplyQuery
			vars["creator"] = creator
		}
	}

	var data struct {
		DevHold struct {
			BalanceUpdates []struct {
				BalanceUpdate struct {
					Balance decimal.NullDecimal `json:"balance"`
				} `json:"BalanceUpdate"`
			} `json:"BalanceUpdates"`
		} `json:"devHold"`
		LPLocked struct {
			BalanceUpdates []struct {
				BalanceUpdate struct {
					Balance decimal.NullDecimal `json:"balance"`
				} `json:"BalanceUpdate"`
			} `json:"BalanceUpdates"`
		} `json:"lpLocked"`
	}

	if err := c.query(ctx, "supply", query, vars, &data); err != nil {
		return SupplyMetrics{}, fetch.Transient("bitquery.supply", err)
	}

	out := SupplyMetrics{}
	if len(data.DevHold.BalanceUpdates) > 0 {
		out.CreatorHoldings = nullFloat(data.DevHold.BalanceUpdates[0].BalanceUpdate.Balance)
	}
	if len(data.LPLocked.BalanceUpdates) > 0 {
		out.LPLocked = nullFloat(data.LPLocked.BalanceUpdates[0].BalanceUpdate.Balance)
	}
	return out, nil
}

// TopHolders fetches the ten largest holders of the mint.
func (c *BitqueryClient) TopHolders(ctx context.Context, mint string) ([]HolderBalance, error) {
	var data struct {
		Solana struct {
			TokenHolders []struct {
				Balance struct {
					Amount decimal.NullDecimal `json:"Amount"`
				} `json:"Balance"`
				Account struct {
					Address string `json:"Address"`
				} `json:"Account"`
			} `json:"TokenHolders"`
		} `json:"Solana"`
	}

	if err := c.query(ctx, "top_holders", topHoldersQuery, map[string]any{"token": mint}, &data); err != nil {
		return nil, fetch.Transient("bitquery.top_holders", err)
	}

	holders := make([]HolderBalance, 0, len(data.Solana.TokenHolders))
	for _, h := range data.Solana.TokenHolders {
		holders = append(holders, HolderBalance{
			Address: h.Account.Address,
			Amount:  nullFloat(h.Balance.Amount),
		})
	}
	return holders, nil
}

// PriceHistory fetches Raydium trade prices over the lookback window,
// oldest first.
func (c *BitqueryClient) PriceHistory(ctx context.Context, mint string) ([]PricePoint, error) {
	since := time.Now().UTC().Add(-priceLookback).Format(time.RFC3339)

	var data struct {
		Solana struct {
			DEXTrades []struct {
				Block struct {
					Time time.Time `json:"Time"`
				} `json:"Block"`
				Trade struct {
					Price decimal.NullDecimal `json:"Price"`
				} `json:"Trade"`
			} `json:"DEXTrades"`
		} `json:"Solana"`
	}

	vars := map[string]any{"token": mint, "since": since}
	if err := c.query(ctx, "price_history", priceHistoryQuery, vars, &data); err != nil {
		return nil, fetch.Transient("bitquery.price_history", err)
	}

	points := make([]PricePoint, 0, len(data.Solana.DEXTrades))
	for _, t := range data.Solana.DEXTrades {
		points = append(points, PricePoint{
			Time:  t.Block.Time,
			Price: nullFloat(t.Trade.Price),
		})
	}

	log.Debug().
		Str("mint", truncMint(mint)).
		Int("trades", len(points)).
		Msg("bitquery: price history")

	return points, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// query POSTs one GraphQL request and decodes the data envelope into out.
func (c *BitqueryClient) query(ctx context.Context, op, query string, variables map[string]any, out any) error {
	if c.circuitOpen.Load() {
		return fmt.Errorf("bitquery: circuit breaker open")
	}

	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("bitquery: marshal %s request: %w", op, err)
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoff * time.Duration(1<<uint(attempt-1))):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("bitquery: create %s request: %w", op, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Api-Key", c.cfg.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("bitquery: %s HTTP error: %w", op, err)
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("bitquery: read %s response: %w", op, err)
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		if resp.StatusCode == 429 {
			lastErr = fmt.Errorf("bitquery: rate limited (429)")
			c.errorCount.Add(1)
			c.rateLimitCount.Add(1)
			continue
		}

		if resp.StatusCode != 200 {
			lastErr = fmt.Errorf("bitquery: %s HTTP %d: %s", op, resp.StatusCode, string(body))
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		var envelope struct {
			Data   json.RawMessage `json:"data"`
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return fmt.Errorf("bitquery: parse %s response: %w", op, err)
		}

		if len(envelope.Errors) > 0 {
			lastErr = fmt.Errorf("bitquery: %s graphql error: %s", op, envelope.Errors[0].Message)
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("bitquery: parse %s data: %w", op, err)
		}

		c.resetErrors()
		c.requestCount.Add(1)
		c.totalLatencyMs.Add(time.Since(start).Milliseconds())
		return nil
	}

	return fmt.Errorf("bitquery: %s failed after %d attempts: %w", op, maxRetries+1, lastErr)
}

// recordError increments consecutive errors and opens the circuit breaker.
func (c *BitqueryClient) recordError() {
	count := c.consecutiveErrors.Add(1)
	if count >= 5 {
		if c.circuitOpen.CompareAndSwap(false, true) {
			log.Error().Int64("errors", count).Msg("bitquery: CIRCUIT BREAKER OPEN")
			go func() {
				time.Sleep(30 * time.Second)
				c.circuitOpen.Store(false)
				c.consecutiveErrors.Store(0)
				log.Info().Msg("bitquery: circuit breaker reset")
			}()
		}
	}
}

// resetErrors resets the consecutive error counter.
func (c *BitqueryClient) resetErrors() {
	c.consecutiveErrors.Store(0)
}

// ClientStats returns Bitquery client stats.
type ClientStats struct {
	RequestCount int64 `json:"request_count"`
	ErrorCount   int64 `json:"error_count"`
	RateLimited  int64 `json:"rate_limited"`
	AvgLatencyMs int64 `json:"avg_latency_ms"`
	CircuitOpen  bool  `json:"circuit_open"`
}

func (c *BitqueryClient) Stats() ClientStats {
	requests := c.requestCount.Load()
	avg := int64(0)
	if requests > 0 {
		avg = c.totalLatencyMs.Load() / requests
	}
	return ClientStats{
		RequestCount: requests,
		ErrorCount:   c.errorCount.Load(),
		RateLimited:  c.rateLimitCount.Load(),
		AvgLatencyMs: avg,
		CircuitOpen:  c.circuitOpen.Load(),
	}
}

func nullFloat(d decimal.NullDecimal) float64 {
	if !d.Valid {
		return 0
	}
	return d.Decimal.InexactFloat64()
}

func truncMint(mint string) string {
	if len(mint) > 8 {
		return mint[:8]
	}
	return mint
}
