package screener

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	wsolMint = "So11111111111111111111111111111111111111112"
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

func TestSanitizer_PassesValidMints(t *testing.T) {
	s := NewSanitizer()

	out := s.Sanitize([]string{usdcMint, wsolMint, bonkMint})
	assert.Equal(t, []string{usdcMint, wsolMint, bonkMint}, out)

	stats := s.Stats()
	assert.Equal(t, int64(3), stats.TotalChecked)
	assert.Equal(t, int64(3), stats.TotalPassed)
	assert.Equal(t, int64(0), stats.TotalDropped)
}

func TestSanitizer_DropsBadAddresses(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name   string
		mint   string
		filter string
	}{
		{"empty", "", "length"},
		{"too short", "abc", "length"},
		{"too long", strings.Repeat("A", 50), "length"},
		{"invalid base58 chars", strings.Repeat("0", 40), "encoding"},
		{"decodes too long", strings.Repeat("1", 33), "encoding"},
		{"decodes too short", strings.Repeat("2", 32), "encoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.Check(tt.mint)
			assert.False(t, result.Passed, "expected drop for %q", tt.mint)
			assert.Equal(t, tt.filter, result.Filter)
			assert.NotEmpty(t, result.Reason)
		})
	}
}

func TestSanitizer_DedupesWithinBatch(t *testing.T) {
	s := NewSanitizer()

	out := s.Sanitize([]string{usdcMint, wsolMint, usdcMint, usdcMint})
	assert.Equal(t, []string{usdcMint, wsolMint}, out)

	stats := s.Stats()
	assert.Equal(t, int64(4), stats.TotalChecked)
	assert.Equal(t, int64(2), stats.TotalPassed)
	assert.Equal(t, int64(2), stats.TotalDropped)
	assert.Equal(t, int64(2), stats.FilterCounts["duplicate"])
}

func TestSanitizer_BatchKeepsOrder(t *testing.T) {
	s := NewSanitizer()

	out := s.Sanitize([]string{bonkMint, "junk", usdcMint})
	assert.Equal(t, []string{bonkMint, usdcMint}, out)
}

func TestSanitizer_Stats(t *testing.T) {
	s := NewSanitizer()

	s.Check(usdcMint)
	s.Check("junk")

	stats := s.Stats()
	assert.Equal(t, int64(2), stats.TotalChecked)
	assert.Equal(t, int64(1), stats.TotalPassed)
	assert.Equal(t, int64(1), stats.TotalDropped)
	assert.Equal(t, 50.0, stats.PassRate)
	assert.Equal(t, int64(1), stats.FilterCounts["length"])
}
