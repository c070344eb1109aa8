package committee

import (
	"context"
	"sync"

	"binaryengine/internal/domain"
)

// ConfluenceThreshold is the default minimum same-sign return, across at
// least 2 of 3 exchanges, required before the Technical agent picks a
// direction at all.
const ConfluenceThreshold = 0.002

// Technical votes Up or Down on cross-exchange return confluence, RSI
// alignment, and entry-price value. It is a pure function of the snapshot
// plus the bounded per-exchange "last seen mid" history it alone owns, as
// required by the committee's no-shared-state rule. Grounded on
// pkg/market/indicators RSI usage, generalised from a single-exchange
// momentum check to the multi-exchange confluence rule this domain needs.
type Technical struct {
	confluence float64

	mu       sync.Mutex
	lastMids map[domain.Crypto]map[string]float64
}

func NewTechnical() *Technical {
	return &Technical{
		confluence: ConfluenceThreshold,
		lastMids:   make(map[domain.Crypto]map[string]float64),
	}
}

func (t *Technical) Name() string { return "technical" }

func (t *Technical) Analyze(_ context.Context, snap domain.MarketSnapshot) (domain.Vote, error) {
	returns := t.computeReturns(snap)
	if len(returns) < 2 {
		return domain.Vote{Direction: domain.Skip}, nil
	}

	net := 0
	for _, r := range returns {
		if absf(r) >= t.confluence {
			net += signOf(r)
		}
	}
	sign := signOf(float64(net))
	var agree int
	var sumMag float64
	for _, r := range returns {
		if sign != 0 && signOf(r) == sign && absf(r) >= t.confluence {
			agree++
			sumMag += absf(r)
		}
	}
	if agree < 2 || sign == 0 {
		return domain.Vote{Direction: domain.Skip}, nil
	}
	avgMag := sumMag / float64(agree)
	if avgMag < t.confluence {
		return domain.Vote{Direction: domain.Skip}, nil
	}

	direction := domain.Down
	if sign > 0 {
		direction = domain.Up
	}

	agreementScore := float64(agree) / float64(len(returns))
	magnitudeScore := clamp(avgMag/(t.confluence*5), 0, 1)

	rsi := snap.RSI14
	rsiScore := 0.5
	switch direction {
	case domain.Up:
		if rsi >= 70 {
			rsiScore = clamp(1-(rsi-70)/30, 0, 1)
		} else {
			rsiScore = clamp(rsi/70, 0, 1)
		}
	case domain.Down:
		if rsi <= 30 {
			rsiScore = clamp(1-(30-rsi)/30, 0, 1)
		} else {
			rsiScore = clamp((100-rsi)/70, 0, 1)
		}
	}

	entryPrice := snap.UpAsk
	if direction == domain.Down {
		entryPrice = snap.DownAsk
	}
	entryScore := clamp(1-entryPrice, 0, 1)

	confidence := 0.35*agreementScore + 0.25*magnitudeScore + 0.25*rsiScore + 0.15*entryScore
	confidence = clamp(confidence, 0, 1)

	if streakContradicts(snap.RecentOutcomes, direction) {
		confidence *= 0.5
	}

	return domain.Vote{
		Direction:  direction,
		Confidence: confidence,
		Quality:    1.0,
		Details: map[string]any{
			"agreement": agreementScore,
			"magnitude": avgMag,
			"rsi14":     rsi,
		},
	}, nil
}

// computeReturns derives each exchange's return since the last snapshot this
// agent saw for this crypto, updating its internal history as it goes.
func (t *Technical) computeReturns(snap domain.MarketSnapshot) []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	prior := t.lastMids[snap.Crypto]
	if prior == nil {
		prior = make(map[string]float64)
	}
	returns := make([]float64, 0, len(snap.ExchangeMids))
	next := make(map[string]float64, len(snap.ExchangeMids))
	for _, ep := range snap.ExchangeMids {
		next[ep.Exchange] = ep.Mid
		if prev, ok := prior[ep.Exchange]; ok && prev != 0 {
			returns = append(returns, (ep.Mid-prev)/prev)
		}
	}
	t.lastMids[snap.Crypto] = next
	return returns
}

// streakContradicts reports whether the last 3+ resolved outcomes share one
// direction and this vote contradicts it.
func streakContradicts(recent []domain.EpochOutcome, direction domain.Direction) bool {
	if len(recent) < 3 {
		return false
	}
	tail := recent
	if len(tail) > 5 {
		tail = tail[len(tail)-5:]
	}
	streak := 1
	last := tail[len(tail)-1].Direction
	for i := len(tail) - 2; i >= 0; i-- {
		if tail[i].Direction == last {
			streak++
		} else {
			break
		}
	}
	if streak < 3 {
		return false
	}
	wantOpposite := domain.Down
	if last == domain.Down {
		wantOpposite = domain.Up
	}
	return direction == wantOpposite
}

func signOf(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

var _ Agent = (*Technical)(nil)
