// Package pricefeed abstracts multi-exchange mid-price observation.
// Grounded on pkg/market.MarketDataProvider interface and
// functional-options HyperliquidProvider construction, generalised from a
// single exchange to a confluence-of-exchanges feed.
package pricefeed

import (
	"context"

	"binaryengine/internal/domain"
)

// Feed observes mid prices for a crypto across 2-3 independent exchanges
// plus a rolling 20-sample history per exchange.
type Feed interface {
	// Prices returns the latest mid price per exchange for crypto. Fewer
	// than 2 entries means downstream confluence-requiring agents must
	// Skip.
	Prices(ctx context.Context, crypto domain.Crypto) (map[string]float64, error)

	// History returns up to the last 20 mid-price samples for exchange,
	// oldest first, used for short-horizon return and RSI computation.
	History(ctx context.Context, crypto domain.Crypto, exchange string) ([]float64, error)
}

const HistoryWindow = 20
