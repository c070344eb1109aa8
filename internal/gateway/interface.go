// Package gateway abstracts the binary-options CLOB venue: discovering
// active markets, placing and reading back positions, and redeeming
// resolved winners. It is an external-collaborator boundary — only the
// contract is fixed, not the wire protocol behind it.
package gateway

import (
	"context"
	"time"

	"binaryengine/internal/domain"
)

// Market is one active 15-minute binary market for a crypto.
type Market struct {
	Crypto      domain.Crypto
	UpTokenID   string
	DownTokenID string
	UpAsk       float64
	DownAsk     float64
	Epoch       int64
	SecondsLeft int
}

// OrderError categorises a rejected or failed order placement.
type OrderError struct {
	Category string // "rate_limited", "insufficient_liquidity", "rejected", "timeout"
	Message  string
}

func (e *OrderError) Error() string { return e.Category + ": " + e.Message }

// Gateway is the market-gateway contract: discover markets, place orders,
// read back positions, redeem winners. Every method takes an explicit
// context deadline; implementations must never block indefinitely and must
// run through a breaker.Endpoint.
type Gateway interface {
	// ListActiveMarkets returns the current 15-minute binary markets for
	// the four supported cryptos.
	ListActiveMarkets(ctx context.Context) ([]Market, error)

	// PlaceOrder submits a best-effort market order for sizeUSD dollars of
	// the given token. It returns the filled position or a categorised
	// error.
	PlaceOrder(ctx context.Context, tokenID string, sizeUSD float64) (*domain.Position, error)

	// ReadPositions returns the authoritative list of open positions, used
	// for reconciliation against the trading-state store.
	ReadPositions(ctx context.Context) ([]domain.Position, error)

	// Redeem converts a resolved winning position into settlement
	// currency and returns the credited amount.
	Redeem(ctx context.Context, position domain.Position) (float64, error)

	// GetCashBalance reads the settlement-chain cash balance.
	GetCashBalance(ctx context.Context) (float64, error)
}

// Clock abstracts time.Now for deterministic tests of epoch-boundary logic.
type Clock func() time.Time
