package committee

import (
	"context"

	"binaryengine/internal/domain"
	"binaryengine/internal/indicators"
)

// Regime thresholds separate calm drift from sideways chop from volatility,
// tuned against the same 20-sample return window the price feed maintains.
const (
	regimeMomentumMean = 0.0015
	regimeVolatileVar  = 0.00005
)

// Regime never picks a direction. It tags the market state from the mean
// and variance of recent inter-epoch returns so the aggregator can modulate
// every other agent's weight. Grounded on this codebase's
// pkg/market/indicators mean/variance helpers, generalised into a
// four-state classifier.
type Regime struct{}

func NewRegime() *Regime { return &Regime{} }

func (r *Regime) Name() string { return "regime" }

func (r *Regime) Analyze(_ context.Context, snap domain.MarketSnapshot) (domain.Vote, error) {
	returns := interEpochReturns(snap.RecentOutcomes)
	tag := domain.RegimeSideways
	if len(returns) >= 2 {
		mean, variance := indicators.MeanVariance(returns)
		switch {
		case variance >= regimeVolatileVar:
			tag = domain.RegimeVolatile
		case mean >= regimeMomentumMean:
			tag = domain.RegimeBullMomentum
		case mean <= -regimeMomentumMean:
			tag = domain.RegimeBearMomentum
		default:
			tag = domain.RegimeSideways
		}
	}

	return domain.Vote{
		Direction: domain.Neutral,
		Quality:   1.0,
		Details: map[string]any{
			"regime": string(tag),
		},
	}, nil
}

// interEpochReturns maps the Up/Down sequence of resolved outcomes to a
// signed +1/-1 series, a coarse proxy for directional drift when raw price
// history isn't carried on the snapshot itself.
func interEpochReturns(outcomes []domain.EpochOutcome) []float64 {
	out := make([]float64, 0, len(outcomes))
	for _, o := range outcomes {
		switch o.Direction {
		case domain.Up:
			out = append(out, 1)
		case domain.Down:
			out = append(out, -1)
		}
	}
	return out
}

var _ Agent = (*Regime)(nil)
