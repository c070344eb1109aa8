// Package fixturefeed is a deterministic, in-memory pricefeed.Feed used by
// tests and the shadow orchestrator's own fixture-driven suite. Grounded on
// pkg/exchange/sim.Provider style of a mutex-guarded,
// test-seeded in-memory provider.
package fixturefeed

import (
	"context"
	"sync"

	"binaryengine/internal/domain"
	"binaryengine/internal/pricefeed"
)

// Feed is a seedable fixture implementation of pricefeed.Feed.
type Feed struct {
	mu      sync.Mutex
	mids    map[domain.Crypto]map[string]float64
	history map[domain.Crypto]map[string][]float64
}

// New constructs an empty fixture feed; seed it with Set/Push before use.
func New() *Feed {
	return &Feed{
		mids:    make(map[domain.Crypto]map[string]float64),
		history: make(map[domain.Crypto]map[string][]float64),
	}
}

// Set assigns the current mid price for crypto on exchange and appends it
// to that exchange's rolling history, capped at pricefeed.HistoryWindow.
func (f *Feed) Set(crypto domain.Crypto, exchange string, mid float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mids[crypto] == nil {
		f.mids[crypto] = make(map[string]float64)
	}
	f.mids[crypto][exchange] = mid

	if f.history[crypto] == nil {
		f.history[crypto] = make(map[string][]float64)
	}
	hist := append(f.history[crypto][exchange], mid)
	if len(hist) > pricefeed.HistoryWindow {
		hist = hist[len(hist)-pricefeed.HistoryWindow:]
	}
	f.history[crypto][exchange] = hist
}

func (f *Feed) Prices(ctx context.Context, crypto domain.Crypto) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]float64, len(f.mids[crypto]))
	for ex, mid := range f.mids[crypto] {
		out[ex] = mid
	}
	return out, nil
}

func (f *Feed) History(ctx context.Context, crypto domain.Crypto, exchange string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hist := f.history[crypto][exchange]
	out := make([]float64, len(hist))
	copy(out, hist)
	return out, nil
}

var _ pricefeed.Feed = (*Feed)(nil)
