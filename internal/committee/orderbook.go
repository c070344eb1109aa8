package committee

import (
	"context"

	"binaryengine/internal/domain"
)

// orderbookImbalanceThreshold is the minimum |imbalance| before the agent
// treats depth skew as signal rather than noise.
const orderbookImbalanceThreshold = 0.15

// OrderBook votes directionally off bid/ask depth imbalance when the
// snapshot carries one; otherwise it Skips. Optional.
type OrderBook struct{}

func NewOrderBook() *OrderBook { return &OrderBook{} }

func (o *OrderBook) Name() string { return "orderbook" }

func (o *OrderBook) Analyze(_ context.Context, snap domain.MarketSnapshot) (domain.Vote, error) {
	if snap.OrderBookImbalance == nil {
		return domain.Vote{Direction: domain.Skip}, nil
	}
	imbalance := *snap.OrderBookImbalance
	if absf(imbalance) < orderbookImbalanceThreshold {
		return domain.Vote{Direction: domain.Skip}, nil
	}
	direction := domain.Down
	if imbalance > 0 {
		direction = domain.Up
	}
	confidence := clamp((absf(imbalance)-orderbookImbalanceThreshold)/(1-orderbookImbalanceThreshold), 0, 1)
	return domain.Vote{
		Direction:  direction,
		Confidence: confidence,
		Quality:    0.8,
		Details:    map[string]any{"imbalance": imbalance},
	}, nil
}

var _ Agent = (*OrderBook)(nil)
