package committee

import (
	"context"

	"binaryengine/internal/domain"
)

// Sentiment defaults, per the open-question decision recorded in
// the design : the contrarian thresholds are configuration, exposed as
// sentiment_extreme_high / sentiment_extreme_low, not hardcoded contracts.
const (
	DefaultSentimentExtremeHigh = 0.70
	DefaultSentimentExtremeLow  = 0.20
	sentimentNeutralBandHigh    = 0.70
	sentimentNeutralBandLow     = 0.30
)

// Sentiment is the contrarian agent: it fades extreme one-sided pricing.
type Sentiment struct {
	extremeHigh float64
	extremeLow  float64
}

func NewSentiment(extremeHigh, extremeLow float64) *Sentiment {
	if extremeHigh <= 0 {
		extremeHigh = DefaultSentimentExtremeHigh
	}
	if extremeLow <= 0 {
		extremeLow = DefaultSentimentExtremeLow
	}
	return &Sentiment{extremeHigh: extremeHigh, extremeLow: extremeLow}
}

func (s *Sentiment) Name() string { return "sentiment" }

func (s *Sentiment) Analyze(_ context.Context, snap domain.MarketSnapshot) (domain.Vote, error) {
	up, down := snap.UpAsk, snap.DownAsk

	switch {
	case up >= s.extremeHigh && down <= s.extremeLow:
		return s.vote(domain.Down, up, down), nil
	case down >= s.extremeHigh && up <= s.extremeLow:
		return s.vote(domain.Up, up, down), nil
	case up > sentimentNeutralBandLow && up < sentimentNeutralBandHigh:
		return domain.Vote{Direction: domain.Neutral, Confidence: 0, Quality: 1.0}, nil
	default:
		return domain.Vote{Direction: domain.Skip}, nil
	}
}

func (s *Sentiment) vote(direction domain.Direction, up, down float64) domain.Vote {
	extremePrice := up
	if direction == domain.Up {
		extremePrice = down
	}
	extremity := clamp((extremePrice-s.extremeHigh)/(1-s.extremeHigh), 0, 1)

	entryPrice := down
	if direction == domain.Up {
		entryPrice = up
	}
	cheapBonus := clamp(1-entryPrice, 0, 1)

	confidence := clamp(0.7*extremity+0.3*cheapBonus, 0, 1)
	return domain.Vote{
		Direction:  direction,
		Confidence: confidence,
		Quality:    1.0,
		Details: map[string]any{
			"extremity": extremity,
		},
	}
}

var _ Agent = (*Sentiment)(nil)
