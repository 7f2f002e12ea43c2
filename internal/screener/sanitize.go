package screener

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Candidate Sanitizer
// Fast mint validation, zero external API calls
// ---------------------------------------------------------------------------

const (
	minMintLen = 32
	maxMintLen = 44
	mintKeyLen = 32 // decoded ed25519 public key size
)

// SanitizeResult is the outcome of validating one candidate mint.
type SanitizeResult struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"` // drop reason if !Passed
	Filter string `json:"filter,omitempty"` // which filter caught it
}

// Sanitizer validates candidate mint addresses before enrichment.
type Sanitizer struct {
	totalChecked atomic.Int64
	totalPassed  atomic.Int64
	totalDropped atomic.Int64
	filterCounts sync.Map // filter name -> *atomic.Int64
}

// NewSanitizer creates a new candidate sanitizer.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// Check runs all validation filters on one mint address.
func (s *Sanitizer) Check(mint string) SanitizeResult {
	s.totalChecked.Add(1)

	if r := s.checkLength(mint); !r.Passed {
		s.recordDrop(r.Filter, mint, r.Reason)
		return r
	}

	if r := s.checkEncoding(mint); !r.Passed {
		s.recordDrop(r.Filter, mint, r.Reason)
		return r
	}

	s.totalPassed.Add(1)
	return SanitizeResult{Passed: true}
}

// Sanitize validates a candidate batch, deduplicating within the batch.
// The first occurrence wins and survivors keep their original order.
func (s *Sanitizer) Sanitize(mints []string) []string {
	seen := make(map[string]bool, len(mints))
	out := make([]string, 0, len(mints))

	for _, mint := range mints {
		if seen[mint] {
			s.totalChecked.Add(1)
			s.recordDrop("duplicate", mint, "duplicate within batch")
			continue
		}
		if r := s.Check(mint); !r.Passed {
			continue
		}
		seen[mint] = true
		out = append(out, mint)
	}

	return out
}

// ---------------------------------------------------------------------------
// Filter implementations
// ---------------------------------------------------------------------------

func (s *Sanitizer) checkLength(mint string) SanitizeResult {
	if len(mint) < minMintLen || len(mint) > maxMintLen {
		return SanitizeResult{
			Passed: false,
			Reason: fmt.Sprintf("address length %d outside %d-%d", len(mint), minMintLen, maxMintLen),
			Filter: "length",
		}
	}
	return SanitizeResult{Passed: true}
}

func (s *Sanitizer) checkEncoding(mint string) SanitizeResult {
	raw, err := base58.Decode(mint)
	if err != nil {
		return SanitizeResult{
			Passed: false,
			Reason: "not valid base58: " + err.Error(),
			Filter: "encoding",
		}
	}
	if len(raw) != mintKeyLen {
		return SanitizeResult{
			Passed: false,
			Reason: fmt.Sprintf("decodes to %d bytes, want %d", len(raw), mintKeyLen),
			Filter: "encoding",
		}
	}
	return SanitizeResult{Passed: true}
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

func (s *Sanitizer) recordDrop(filterName, mint, reason string) {
	s.totalDropped.Add(1)
	val, _ := s.filterCounts.LoadOrStore(filterName, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
	log.Debug().
		Str("filter", filterName).
		Str("mint", mint).
		Str("reason", reason).
		Msg("sanitizer: candidate dropped")
}

// SanitizerStats returns sanitizer statistics.
type SanitizerStats struct {
	TotalChecked int64            `json:"total_checked"`
	TotalPassed  int64            `json:"total_passed"`
	TotalDropped int64            `json:"total_dropped"`
	PassRate     float64          `json:"pass_rate_pct"`
	FilterCounts map[string]int64 `json:"filter_counts"`
}

func (s *Sanitizer) Stats() SanitizerStats {
	checked := s.totalChecked.Load()
	passed := s.totalPassed.Load()
	passRate := 0.0
	if checked > 0 {
		passRate = float64(passed) / float64(checked) * 100
	}

	counts := make(map[string]int64)
	s.filterCounts.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	return SanitizerStats{
		TotalChecked: checked,
		TotalPassed:  passed,
		TotalDropped: s.totalDropped.Load(),
		PassRate:     passRate,
		FilterCounts: counts,
	}
}
