// Package httpvenue is the production gateway.Gateway: a JSON-over-HTTP
// client against the binary-options CLOB venue, guarded end-to-end by
// breaker.Endpoint instances per logical call. Grounded on this codebase's
// pkg/exchange/hyperliquid.Client functional-options construction and
// signed-request shape, generalised from a leveraged-perp venue to a
// binary-market venue and from direct HTTP calls to breaker-wrapped ones.
package httpvenue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"binaryengine/internal/breaker"
	"binaryengine/internal/domain"
	"binaryengine/internal/gateway"
)

const defaultHTTPTimeout = 5 * time.Second

// Client is the production market gateway.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	passphrase string
	walletAddr string
	privateKey string

	httpClient *http.Client

	listBreaker   *breaker.Endpoint
	placeBreaker  *breaker.Endpoint
	readBreaker   *breaker.Endpoint
	redeemBreaker *breaker.Endpoint
	balanceBreaker *breaker.Endpoint
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// Credentials bundles the venue credentials sourced from the environment;
// never logged.
type Credentials struct {
	WalletAddress string
	PrivateKey    string
	APIKey        string
	APISecret     string
	Passphrase    string
}

// New constructs a venue client against baseURL with the given credentials
// and per-endpoint breaker settings.
func New(baseURL string, creds Credentials, breakerCfg breaker.Settings, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     creds.APIKey,
		apiSecret:  creds.APISecret,
		passphrase: creds.Passphrase,
		walletAddr: creds.WalletAddress,
		privateKey: creds.PrivateKey,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},

		listBreaker:    breaker.NewEndpoint("gateway.list_markets", breakerCfg),
		placeBreaker:   breaker.NewEndpoint("gateway.place_order", breakerCfg),
		readBreaker:    breaker.NewEndpoint("gateway.read_positions", breakerCfg),
		redeemBreaker:  breaker.NewEndpoint("gateway.redeem", breakerCfg),
		balanceBreaker: breaker.NewEndpoint("gateway.cash_balance", breakerCfg),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListActiveMarkets(ctx context.Context) ([]gateway.Market, error) {
	var markets []gateway.Market
	err := c.listBreaker.Do(ctx, func(ctx context.Context) error {
		var resp struct {
			Markets []gateway.Market `json:"markets"`
		}
		if err := c.getJSON(ctx, "/markets/active", &resp); err != nil {
			return err
		}
		markets = resp.Markets
		return nil
	})
	return markets, err
}

func (c *Client) PlaceOrder(ctx context.Context, tokenID string, sizeUSD float64) (*domain.Position, error) {
	var position *domain.Position
	err := c.placeBreaker.Do(ctx, func(ctx context.Context) error {
		body := map[string]any{
			"token_id": tokenID,
			"size_usd": sizeUSD,
			"side":     "buy",
			"type":     "market",
		}
		var resp struct {
			Position domain.Position `json:"position"`
			Rejected *struct {
				Category string `json:"category"`
				Message  string `json:"message"`
			} `json:"rejected,omitempty"`
		}
		if err := c.postJSON(ctx, "/orders", body, &resp); err != nil {
			return err
		}
		if resp.Rejected != nil {
			return &gateway.OrderError{Category: resp.Rejected.Category, Message: resp.Rejected.Message}
		}
		position = &resp.Position
		return nil
	})
	return position, err
}

func (c *Client) ReadPositions(ctx context.Context) ([]domain.Position, error) {
	var positions []domain.Position
	err := c.readBreaker.Do(ctx, func(ctx context.Context) error {
		var resp struct {
			Positions []domain.Position `json:"positions"`
		}
		if err := c.getJSON(ctx, "/positions", &resp); err != nil {
			return err
		}
		positions = resp.Positions
		return nil
	})
	return positions, err
}

func (c *Client) Redeem(ctx context.Context, position domain.Position) (float64, error) {
	var amount float64
	err := c.redeemBreaker.Do(ctx, func(ctx context.Context) error {
		body := map[string]any{"token_id": position.TokenID}
		var resp struct {
			SettledAmount float64 `json:"settled_amount"`
		}
		if err := c.postJSON(ctx, "/redeem", body, &resp); err != nil {
			return err
		}
		amount = resp.SettledAmount
		return nil
	})
	return amount, err
}

func (c *Client) GetCashBalance(ctx context.Context) (float64, error) {
	var balance float64
	err := c.balanceBreaker.Do(ctx, func(ctx context.Context) error {
		var resp struct {
			Balance float64 `json:"balance"`
		}
		if err := c.getJSON(ctx, "/balance", &resp); err != nil {
			return err
		}
		balance = resp.Balance
		return nil
	})
	return balance, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.sign(req)
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req)
	return c.do(req, out)
}

// sign attaches the venue's API-key headers. The actual request-signing
// scheme is a wire-protocol detail left unspecified by the gateway
// contract.
func (c *Client) sign(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.passphrase != "" {
		req.Header.Set("X-API-Passphrase", c.passphrase)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpvenue: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpvenue: read body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("httpvenue: transient status %d: %s", resp.StatusCode, string(data))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &gateway.OrderError{Category: "rejected", Message: string(data)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

var _ gateway.Gateway = (*Client)(nil)
