package committee

import (
	"context"

	"binaryengine/internal/domain"
)

// candlestickBullish and candlestickBearish are the pattern names the
// upstream detector is expected to emit; anything else is treated as "no
// pattern" and the agent Skips.
const (
	candlestickBullish = "bullish_engulfing"
	candlestickBearish = "bearish_engulfing"
)

// Candlestick votes on a small set of named reversal/continuation patterns
// precomputed onto the snapshot. Optional.
type Candlestick struct{}

func NewCandlestick() *Candlestick { return &Candlestick{} }

func (c *Candlestick) Name() string { return "candlestick" }

func (c *Candlestick) Analyze(_ context.Context, snap domain.MarketSnapshot) (domain.Vote, error) {
	switch snap.CandlestickPattern {
	case candlestickBullish:
		return domain.Vote{Direction: domain.Up, Confidence: 0.6, Quality: 0.6,
			Details: map[string]any{"pattern": snap.CandlestickPattern}}, nil
	case candlestickBearish:
		return domain.Vote{Direction: domain.Down, Confidence: 0.6, Quality: 0.6,
			Details: map[string]any{"pattern": snap.CandlestickPattern}}, nil
	default:
		return domain.Vote{Direction: domain.Skip}, nil
	}
}

var _ Agent = (*Candlestick)(nil)
