// Package breaker combines exponential-backoff retry with a per-endpoint
// circuit breaker, the policy every external call the market gateway,
// price feed, and settlement chain make is required to carry.
//
// The retry half is LLM retry-handler shape generalised past
// LLM-specific status codes to plain transport/context errors. The breaker
// half wraps github.com/sony/gobreaker, the shape used for exchange/LLM/DB
// calls in the sibling cryptofunk example, trimmed of its Prometheus wiring
// since this module has no metrics-exposition component.
package breaker

import (
	"context"
	"errors"
	"math"
	"net"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/zeromicro/go-zero/core/logx"

	"binaryengine/internal/engineerr"
)

// RetryConfig controls the exponential-backoff loop that runs underneath
// each circuit breaker.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 3 * time.Second
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2.0
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Settings configures one named endpoint's breaker.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker open.
	FailureThreshold uint32
	// Cooldown is the base open-state duration; it doubles on each
	// repeated trip up to CooldownCap.
	Cooldown    time.Duration
	CooldownCap time.Duration
	Retry       RetryConfig
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.CooldownCap <= 0 {
		s.CooldownCap = 5 * time.Minute
	}
	s.Retry = s.Retry.withDefaults()
	return s
}

// Endpoint guards one logical external call (e.g. "gateway.place_order",
// "pricefeed.binance") with retry-then-breaker semantics.
type Endpoint struct {
	name string
	cfg  Settings

	mu      sync.Mutex
	trips   int
	breaker *gobreaker.CircuitBreaker
}

// NewEndpoint constructs a breaker-guarded endpoint. The cooldown escalates
// on repeated trips, so the breaker itself is rebuilt lazily inside Do
// whenever the previous instance opens.
func NewEndpoint(name string, cfg Settings) *Endpoint {
	cfg = cfg.withDefaults()
	e := &Endpoint{name: name, cfg: cfg}
	e.breaker = e.newBreaker(cfg.Cooldown)
	return e
}

func (e *Endpoint) newBreaker(cooldown time.Duration) *gobreaker.CircuitBreaker {
	name := e.name
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= e.cfg.FailureThreshold
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			logx.Infof("breaker[%s]: %s -> %s", name, from, to)
		},
	})
}

// Do executes fn through the retry loop and then the circuit breaker. When
// the breaker is open, Do returns an engineerr.VenueTransient without
// invoking fn. A successful call resets the escalating-cooldown counter.
func (e *Endpoint) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := e.breaker.Execute(func() (any, error) {
		return nil, e.retry(ctx, fn)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return engineerr.VenueTransient(e.name, err)
		}
		return err
	}
	e.mu.Lock()
	e.trips = 0
	e.mu.Unlock()
	return nil
}

func (e *Endpoint) retry(ctx context.Context, fn func(context.Context) error) error {
	var attempt int
	backoff := e.cfg.Retry.InitialBackoff

	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !shouldRetry(err) || attempt >= e.cfg.Retry.MaxRetries {
			e.onFailure()
			return err
		}
		attempt++

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			e.onFailure()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		backoff = time.Duration(math.Min(
			float64(e.cfg.Retry.MaxBackoff),
			float64(backoff)*e.cfg.Retry.Multiplier,
		))
	}
}

// onFailure escalates the next open-state cooldown, capped, each time the
// underlying call exhausts its retries.
func (e *Endpoint) onFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trips++
	next := time.Duration(float64(e.cfg.Cooldown) * math.Pow(2, float64(e.trips-1)))
	if next > e.cfg.CooldownCap {
		next = e.cfg.CooldownCap
	}
	e.breaker = e.newBreaker(next)
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, engineerr.ErrVenueReject) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	// Anything explicitly tagged transient by the caller is retried;
	// everything else is treated as a terminal business-logic error.
	return errors.Is(err, engineerr.ErrVenueTransient)
}
