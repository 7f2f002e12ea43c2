package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pulsescan/pulse/internal/fetch"
)

// ---------------------------------------------------------------------------
// Social signals
// Search interest and post volume around a token keyword
// ---------------------------------------------------------------------------

// Signals are the social-side growth numbers for a token keyword.
type Signals struct {
	PostGrowth1h float64 `json:"post_growth_1h"` // posts mentioning the keyword in the last hour
	TrendGrowth  float64 `json:"trend_growth"`   // search interest: latest reading minus the hour's mean
}

// Provider resolves social growth for a keyword.
type Provider interface {
	Growth(ctx context.Context, keyword string) (Signals, error)
}

// Keyword picks the search term for a token: the symbol when known,
// otherwise the name.
func Keyword(name, symbol string) string {
	if symbol != "" && symbol != "UNKNOWN" {
		return symbol
	}
	return name
}

// Service combines the configured sources into one growth lookup.
// A nil source is simply skipped; its signal stays zero. One failing source
// zeroes only its own half. The lookup errors only when every configured
// source failed.
type Service struct {
	trends TrendSource
	posts  PostSource
}

// NewService creates a social service over the given sources, either of
// which may be nil.
func NewService(trends TrendSource, posts PostSource) *Service {
	return &Service{trends: trends, posts: posts}
}

func (s *Service) Growth(ctx context.Context, keyword string) (Signals, error) {
	if keyword == "" {
		return Signals{}, nil
	}

	var sig Signals
	var errs []error
	configured := 0

	if s.trends != nil {
		configured++
		series, err := s.trends.InterestOverTime(ctx, keyword)
		if err != nil {
			log.Debug().Str("keyword", keyword).Err(err).Msg("social: trends lookup failed")
			errs = append(errs, fmt.Errorf("trends: %w", err))
		} else {
			sig.TrendGrowth = trendGrowth(series)
		}
	}

	if s.posts != nil {
		configured++
		count, err := s.posts.RecentCount(ctx, keyword)
		if err != nil {
			log.Debug().Str("keyword", keyword).Err(err).Msg("social: post count failed")
			errs = append(errs, fmt.Errorf("posts: %w", err))
		} else {
			sig.PostGrowth1h = float64(count)
		}
	}

	if configured > 0 && len(errs) == configured {
		return Signals{}, fetch.Transient("social.growth", errors.Join(errs...))
	}
	return sig, nil
}

// trendGrowth is the latest interest reading minus the series mean,
// truncated to an integer and floored at zero.
func trendGrowth(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range series {
		sum += v
	}
	mean := sum / float64(len(series))

	growth := series[len(series)-1] - mean
	if growth < 0 {
		return 0
	}
	return float64(int64(growth))
}
