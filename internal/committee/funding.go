package committee

import (
	"context"

	"binaryengine/internal/domain"
)

// fundingRateThreshold is the absolute funding rate above which crowded
// positioning is treated as a contrarian signal: persistently positive
// funding means longs are paying shorts, which tends to unwind.
const fundingRateThreshold = 0.0005

// Funding is a contrarian agent on perpetual funding-rate extremes: it
// fades crowded positioning rather than following it. Optional.
type Funding struct{}

func NewFunding() *Funding { return &Funding{} }

func (f *Funding) Name() string { return "funding" }

func (f *Funding) Analyze(_ context.Context, snap domain.MarketSnapshot) (domain.Vote, error) {
	if snap.FundingRate == nil {
		return domain.Vote{Direction: domain.Skip}, nil
	}
	rate := *snap.FundingRate
	if absf(rate) < fundingRateThreshold {
		return domain.Vote{Direction: domain.Skip}, nil
	}
	// Positive funding: longs crowded, pay shorts -> fade to Down.
	direction := domain.Up
	if rate > 0 {
		direction = domain.Down
	}
	confidence := clamp(absf(rate)/(fundingRateThreshold*4), 0, 1)
	return domain.Vote{
		Direction:  direction,
		Confidence: confidence,
		Quality:    0.7,
		Details:    map[string]any{"funding_rate": rate},
	}, nil
}

var _ Agent = (*Funding)(nil)
