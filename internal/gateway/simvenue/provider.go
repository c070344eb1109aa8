// Package simvenue is an in-memory, deterministic gateway.Gateway used by
// the engine's own tests and by operators running the shadow orchestrator
// against fixture data. It is grounded on this codebase's
// pkg/exchange/sim.Provider mutex-guarded paper-trading simulator, adapted
// from leveraged perp positions to binary-market shares settled at $1 or $0.
package simvenue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"binaryengine/internal/domain"
	"binaryengine/internal/gateway"
)

// Provider is a paper-trading binary-market venue.
type Provider struct {
	mu sync.Mutex

	cash      float64
	nextToken int
	markets   map[domain.Crypto]gateway.Market
	positions map[string]domain.Position // keyed by TokenID
	resolved  map[int64]domain.Direction // epoch -> resolved direction, set by tests
}

// New constructs a simulator seeded with the given starting cash balance.
func New(startingCash float64) *Provider {
	return &Provider{
		cash:      startingCash,
		nextToken: 1,
		markets:   make(map[domain.Crypto]gateway.Market),
		positions: make(map[string]domain.Position),
		resolved:  make(map[int64]domain.Direction),
	}
}

// SetMarket seeds or updates the active market for a crypto; test helper.
func (p *Provider) SetMarket(m gateway.Market) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markets[m.Crypto] = m
}

// ResolveEpoch records the realised direction for an epoch so Redeem can be
// exercised deterministically in tests.
func (p *Provider) ResolveEpoch(epoch int64, direction domain.Direction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved[epoch] = direction
}

func (p *Provider) ListActiveMarkets(ctx context.Context) ([]gateway.Market, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]gateway.Market, 0, len(p.markets))
	for _, c := range domain.Cryptos {
		if m, ok := p.markets[c]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (p *Provider) PlaceOrder(ctx context.Context, tokenID string, sizeUSD float64) (*domain.Position, error) {
	if sizeUSD <= 0 {
		return nil, &gateway.OrderError{Category: "rejected", Message: "size must be positive"}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	crypto, direction, price, epoch, ok := p.lookupTokenLocked(tokenID)
	if !ok {
		return nil, &gateway.OrderError{Category: "rejected", Message: fmt.Sprintf("unknown token %q", tokenID)}
	}
	if price <= 0 || price >= 1 {
		return nil, &gateway.OrderError{Category: "insufficient_liquidity", Message: "no ask available"}
	}
	if sizeUSD > p.cash {
		return nil, &gateway.OrderError{Category: "insufficient_liquidity", Message: "exceeds available cash"}
	}

	shares := sizeUSD / price
	p.cash -= sizeUSD
	pos := domain.Position{
		Crypto:     crypto,
		Direction:  direction,
		Shares:     shares,
		EntryPrice: price,
		Epoch:      epoch,
		TokenID:    fmt.Sprintf("pos-%d", p.nextToken),
		OpenedAt:   time.Now(),
	}
	p.nextToken++
	p.positions[pos.TokenID] = pos
	return &pos, nil
}

func (p *Provider) lookupTokenLocked(tokenID string) (domain.Crypto, domain.Direction, float64, int64, bool) {
	for _, m := range p.markets {
		switch tokenID {
		case m.UpTokenID:
			return m.Crypto, domain.Up, m.UpAsk, m.Epoch, true
		case m.DownTokenID:
			return m.Crypto, domain.Down, m.DownAsk, m.Epoch, true
		}
	}
	return "", "", 0, 0, false
}

func (p *Provider) ReadPositions(ctx context.Context) ([]domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out, nil
}

func (p *Provider) Redeem(ctx context.Context, position domain.Position) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	direction, ok := p.resolved[position.Epoch]
	if !ok {
		return 0, &gateway.OrderError{Category: "rejected", Message: "epoch not yet resolved"}
	}
	delete(p.positions, position.TokenID)
	if direction != position.Direction {
		return 0, nil
	}
	payout := position.Shares * 1.0
	p.cash += payout
	return payout, nil
}

func (p *Provider) GetCashBalance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash, nil
}

var _ gateway.Gateway = (*Provider)(nil)
