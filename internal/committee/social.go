package committee

import (
	"context"

	"binaryengine/internal/domain"
)

// socialSentimentThreshold is the minimum magnitude a social score must
// reach before the agent follows it directionally.
const socialSentimentThreshold = 0.3

// Social votes with the prevailing social-feed sentiment when it is
// strong enough to clear noise. Optional.
type Social struct{}

func NewSocial() *Social { return &Social{} }

func (s *Social) Name() string { return "social" }

func (s *Social) Analyze(_ context.Context, snap domain.MarketSnapshot) (domain.Vote, error) {
	if snap.SocialSentiment == nil {
		return domain.Vote{Direction: domain.Skip}, nil
	}
	score := *snap.SocialSentiment
	if absf(score) < socialSentimentThreshold {
		return domain.Vote{Direction: domain.Skip}, nil
	}
	direction := domain.Down
	if score > 0 {
		direction = domain.Up
	}
	confidence := clamp((absf(score)-socialSentimentThreshold)/(1-socialSentimentThreshold), 0, 1)
	return domain.Vote{
		Direction:  direction,
		Confidence: confidence,
		Quality:    0.5,
		Details:    map[string]any{"sentiment": score},
	}, nil
}

var _ Agent = (*Social)(nil)
