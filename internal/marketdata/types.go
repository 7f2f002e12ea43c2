package marketdata

import (
	"context"
	"time"
)

// FastStats is the stage-1 momentum snapshot for a mint.
type FastStats struct {
	Buys1m      int     `json:"buys_1m"`       // pump.fun buy trades in the last minute
	Volume1hSOL float64 `json:"volume_1h_sol"` // 1h traded volume, lamports scaled to SOL
}

// SupplyMetrics carries raw post-balances straight off the chain, not
// fractions. The scorer decides how to interpret them.
type SupplyMetrics struct {
	CreatorHoldings float64 `json:"creator_holdings"` // deployer wallet balance of the mint
	LPLocked        float64 `json:"lp_locked"`        // balance held by the LP locker vault
}

// HolderBalance is one entry of the top-holder leaderboard.
type HolderBalance struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// PricePoint is a single trade price observation.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// Provider fetches on-chain market data for a mint. Implementations must be
// safe for concurrent use and honor ctx cancellation on every call.
type Provider interface {
	// FastStats returns the cheap momentum numbers used by the first-pass
	// filter: buys in the last minute and SOL volume over the last hour.
	FastStats(ctx context.Context, mint string) (FastStats, error)

	// Supply returns creator and LP-locker balances for the mint.
	Supply(ctx context.Context, mint string) (SupplyMetrics, error)

	// TopHolders returns the ten largest holders, descending by balance.
	TopHolders(ctx context.Context, mint string) ([]HolderBalance, error)

	// PriceHistory returns recent trade prices in chronological order.
	PriceHistory(ctx context.Context, mint string) ([]PricePoint, error)
}
