// Package httpfeed is the production pricefeed.Feed: a confluence of
// independent exchange HTTP endpoints, each guarded by its own
// breaker.Endpoint so one exchange's outage never blocks the others.
// Grounded on pkg/market.HyperliquidProvider functional
// options and its defaultRequestTimeout idiom.
package httpfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"binaryengine/internal/breaker"
	"binaryengine/internal/domain"
	"binaryengine/internal/pricefeed"
)

const defaultRequestTimeout = 8 * time.Second

// ExchangeEndpoint is one configured exchange's mid-price HTTP endpoint.
type ExchangeEndpoint struct {
	Name    string
	BaseURL string // must accept a crypto symbol path/query parameter
}

// Feed polls each configured exchange independently and keeps a rolling
// history per exchange.
type Feed struct {
	httpClient *http.Client
	endpoints  []ExchangeEndpoint
	breakers   map[string]*breaker.Endpoint

	mu      sync.Mutex
	history map[domain.Crypto]map[string][]float64
}

// New constructs a multi-exchange feed.
func New(endpoints []ExchangeEndpoint, breakerCfg breaker.Settings) *Feed {
	f := &Feed{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		endpoints:  endpoints,
		breakers:   make(map[string]*breaker.Endpoint, len(endpoints)),
		history:    make(map[domain.Crypto]map[string][]float64),
	}
	for _, ep := range endpoints {
		f.breakers[ep.Name] = breaker.NewEndpoint("pricefeed."+ep.Name, breakerCfg)
	}
	return f
}

func (f *Feed) Prices(ctx context.Context, crypto domain.Crypto) (map[string]float64, error) {
	out := make(map[string]float64)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, ep := range f.endpoints {
		ep := ep
		wg.Add(1)
		go func() {
			defer wg.Done()
			mid, err := f.fetchOne(ctx, ep, crypto)
			if err != nil {
				logx.WithContext(ctx).Errorf("pricefeed[%s/%s]: %v", ep.Name, crypto, err)
				return
			}
			mu.Lock()
			out[ep.Name] = mid
			f.recordHistory(crypto, ep.Name, mid)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out, nil
}

func (f *Feed) fetchOne(ctx context.Context, ep ExchangeEndpoint, crypto domain.Crypto) (float64, error) {
	var mid float64
	err := f.breakers[ep.Name].Do(ctx, func(ctx context.Context) error {
		url := fmt.Sprintf("%s?symbol=%s", ep.BaseURL, crypto)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("httpfeed: transient status %d", resp.StatusCode)
		}
		var payload struct {
			Mid float64 `json:"mid"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return err
		}
		mid = payload.Mid
		return nil
	})
	return mid, err
}

func (f *Feed) recordHistory(crypto domain.Crypto, exchange string, mid float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.history[crypto] == nil {
		f.history[crypto] = make(map[string][]float64)
	}
	hist := append(f.history[crypto][exchange], mid)
	if len(hist) > pricefeed.HistoryWindow {
		hist = hist[len(hist)-pricefeed.HistoryWindow:]
	}
	f.history[crypto][exchange] = hist
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
