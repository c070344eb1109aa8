// Package guardian implements the single veto-and-sizing sink: every
// aggregate decision passes through here before a position is ever placed.
// Grounded on pkg/executor risk checks, generalised from per-symbol
// leverage limits to the binary-market veto/sizing rules this
// domain needs.
package guardian

import (
	"fmt"

	"binaryengine/internal/domain"
)

// PositionTier is one (balance ceiling, fraction) pair in the tiered sizer.
type PositionTier struct {
	BalanceCeiling float64 // negative (-1) for the open-ended top tier
	Fraction       float64
}

// DefaultTiers is the documented default sizing table.
func DefaultTiers() []PositionTier {
	return []PositionTier{
		{BalanceCeiling: 30, Fraction: 0.15},
		{BalanceCeiling: 75, Fraction: 0.10},
		{BalanceCeiling: 150, Fraction: 0.07},
		{BalanceCeiling: -1, Fraction: 0.05}, // -1 sentinel: "no ceiling"
	}
}

// Limits is the subset of configuration the veto checks need.
type Limits struct {
	MaxDrawdownPct            float64 // default 0.30
	DailyLossLimit            float64 // 0 means "derive from day-start balance" as min($50, 20%)
	MaxPositionsSameDirection int     // default 3
	MaxPositionsTotal         int     // default 4
	MaxConsecutiveLosses      int     // default 10
	MinBet                    float64 // default 1.10
	MaxBet                    float64 // default 15
	Tiers                     []PositionTier
}

// DefaultLimits returns the documented production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxDrawdownPct:            0.30,
		MaxPositionsSameDirection: 3,
		MaxPositionsTotal:         4,
		MaxConsecutiveLosses:      10,
		MinBet:                    1.10,
		MaxBet:                    15,
		Tiers:                     DefaultTiers(),
	}
}

// ModeFactor returns the mode sizing multiplier.
func ModeFactor(mode domain.Mode) float64 {
	switch mode {
	case domain.ModeNormal:
		return 1.00
	case domain.ModeConservative:
		return 0.80
	case domain.ModeDefensive:
		return 0.65
	case domain.ModeRecovery:
		return 0.50
	default:
		return 0
	}
}

// Review is the guardian's verdict for one aggregate decision.
type Review struct {
	Approved  bool
	VetoClass string // "", "negative-balance", "halted", "drawdown", "daily-loss", "duplicate-position", "position-limit", "consecutive-losses"
	VetoMsg   string
}

// CheckVetoes runs every veto predicate against the current state
// and open positions for the decision's crypto/direction. Any failure is a
// veto; the first one found is reported (callers that need every failing
// predicate should call each check directly instead).
func CheckVetoes(state domain.TradingState, openPositions []domain.Position, decision domain.AggregateDecision, limits Limits) Review {
	// Invariant 1: current_balance must never be negative. The state store
	// already forces a halt the moment a write would go negative, but this
	// is the last gate before an order is placed, so it's checked again here.
	if state.CurrentBalance < 0 {
		return Review{VetoClass: "negative-balance", VetoMsg: fmt.Sprintf("current balance %.2f is negative", state.CurrentBalance)}
	}

	if state.Mode == domain.ModeHalted {
		return Review{VetoClass: "halted", VetoMsg: "mode=halted: " + state.HaltReason}
	}

	if state.PeakBalance > 0 {
		drawdown := (state.PeakBalance - state.CurrentBalance) / state.PeakBalance
		if drawdown >= limits.MaxDrawdownPct {
			return Review{VetoClass: "drawdown", VetoMsg: fmt.Sprintf("drawdown %.4f >= %.4f", drawdown, limits.MaxDrawdownPct)}
		}
	}

	loss := -state.DailyPnL
	if loss > 0 {
		lossLimit := limits.DailyLossLimit
		if lossLimit <= 0 {
			lossLimit = 50
			if derived := 0.20 * state.DailyStartBalance; derived > 0 && derived < lossLimit {
				lossLimit = derived
			}
		}
		if lossLimit > 0 && loss >= lossLimit {
			return Review{VetoClass: "daily-loss", VetoMsg: fmt.Sprintf("daily loss %.2f >= limit %.2f", loss, lossLimit)}
		}
	}

	sameCrypto, sameDirection, total := 0, 0, len(openPositions)
	for _, p := range openPositions {
		if p.Crypto == decision.Crypto {
			sameCrypto++
		}
		if p.Direction == decision.Direction {
			sameDirection++
		}
	}
	if sameCrypto > 0 {
		return Review{VetoClass: "duplicate-position", VetoMsg: "already open in " + string(decision.Crypto)}
	}
	if sameDirection >= limits.MaxPositionsSameDirection || total >= limits.MaxPositionsTotal {
		return Review{VetoClass: "position-limit", VetoMsg: fmt.Sprintf("same-direction=%d total=%d", sameDirection, total)}
	}

	if state.ConsecutiveLosses >= limits.MaxConsecutiveLosses {
		return Review{VetoClass: "consecutive-losses", VetoMsg: fmt.Sprintf("consecutive losses %d >= %d", state.ConsecutiveLosses, limits.MaxConsecutiveLosses)}
	}

	return Review{Approved: true}
}

// tierFraction finds the first tier whose BalanceCeiling covers balance; a
// ceiling of -1 matches unconditionally (the open-ended top tier).
func tierFraction(balance float64, tiers []PositionTier) float64 {
	for _, tier := range tiers {
		if tier.BalanceCeiling < 0 || balance < tier.BalanceCeiling {
			return tier.Fraction
		}
	}
	if len(tiers) > 0 {
		return tiers[len(tiers)-1].Fraction
	}
	return 0
}

// Size computes the tiered position size for an approved decision. Returns 0
// when the computed size falls below limits.MinBet (the trade is
// suppressed, not clamped up).
func Size(balance float64, mode domain.Mode, score float64, limits Limits) float64 {
	fraction := tierFraction(balance, limits.Tiers)
	size := balance * fraction * ModeFactor(mode)

	scoreFactor := 0.7 + 0.3*min1(score)
	size *= scoreFactor

	if size > limits.MaxBet {
		size = limits.MaxBet
	}
	if size < limits.MinBet {
		return 0
	}
	return size
}

// KellySize computes the optional fractional-Kelly size, used by shadow
// strategies that opt into it. f is the Kelly fraction of balance to stake.
func KellySize(balance, score, entry float64, limits Limits) float64 {
	if entry <= 0 || entry >= 1 {
		return 0
	}
	b := (1 - entry) / entry
	f := (score*b - (1 - score)) / b
	if f < 0 {
		f = 0
	}
	f *= 0.25

	size := balance * f
	if size > limits.MaxBet {
		size = limits.MaxBet
	}
	if size < limits.MinBet {
		return 0
	}
	return size
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}
