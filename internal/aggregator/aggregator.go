// Package aggregator implements the fan-in of a committee's vote vector into
// one aggregate decision: weighting, regime/adaptive multipliers,
// directional scoring, and the consensus/confidence/agreement gates.
// Grounded on pkg/manager.Manager scoring/decision helpers,
// generalised from a single-signal decision into a weighted multi-agent one.
package aggregator

import (
	"sort"

	"binaryengine/internal/domain"
)

const epsilon = 1e-9

// maxWeight bounds any single agent's effective weight after the regime and
// adaptive multipliers are applied.
const maxWeight = 2.0

// Thresholds mirrors the aggregator-facing slice of configuration: the
// three consensus gates. Each ShadowStrategy carries its own, so these are
// passed in rather than read from a package default.
type Thresholds struct {
	ConsensusThreshold float64 // default 0.65
	MinConfidence      float64 // default 0.50
	MinAgreement       float64 // default 0.50
}

// DefaultThresholds returns the design's documented production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{ConsensusThreshold: 0.65, MinConfidence: 0.50, MinAgreement: 0.50}
}

// RegimeMultiplier returns the default regime-based weight multiplier for an
// agent, classified momentum-style or contrarian-style by name.
func RegimeMultiplier(regime domain.RegimeTag, agentName string) float64 {
	momentum := isMomentumAgent(agentName)
	contrarian := isContrarianAgent(agentName)

	switch regime {
	case domain.RegimeBullMomentum, domain.RegimeBearMomentum:
		if momentum {
			return 1.3
		}
		if contrarian {
			return 0.7
		}
	case domain.RegimeSideways:
		if momentum {
			return 0.9
		}
		if contrarian {
			return 1.4
		}
	case domain.RegimeVolatile:
		if momentum || contrarian {
			return 0.8
		}
	}
	return 1.0
}

func isMomentumAgent(name string) bool {
	switch name {
	case "technical", "orderbook", "candlestick":
		return true
	default:
		return false
	}
}

func isContrarianAgent(name string) bool {
	switch name {
	case "sentiment", "funding":
		return true
	default:
		return false
	}
}

// AdaptiveMultiplier implements `clamp(0.5, 1.5, 0.5 + 2.5*(accuracy-0.5))`
// with the documented "default 1.0 until 20 outcomes exist" cold-start rule.
func AdaptiveMultiplier(accuracy float64, sampleCount int) float64 {
	if sampleCount < 20 {
		return 1.0
	}
	v := 0.5 + 2.5*(accuracy-0.5)
	if v < 0.5 {
		return 0.5
	}
	if v > 1.5 {
		return 1.5
	}
	return v
}

// AccuracyLookup returns an agent's rolling accuracy and the number of
// resolved outcomes it's based on (over a window of up to the last 50).
type AccuracyLookup func(agentName string) (accuracy float64, sampleCount int)

// Aggregate runs the 8-step procedure  over one snapshot's votes.
func Aggregate(crypto domain.Crypto, epoch int64, votes []domain.Vote, regime domain.RegimeTag, weights map[string]float64, accuracy AccuracyLookup, thresholds Thresholds) domain.AggregateDecision {
	decision := domain.AggregateDecision{Crypto: crypto, Epoch: epoch}

	sorted := append([]domain.Vote(nil), votes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Agent < sorted[j].Agent })
	decision.Votes = sorted

	nonSkip := make([]domain.Vote, 0, len(sorted))
	for _, v := range sorted {
		if v.Direction != domain.Skip {
			nonSkip = append(nonSkip, v)
		}
	}
	if len(nonSkip) == 0 {
		decision.Direction = domain.None
		decision.Reason = "no signal"
		return decision
	}

	scores := map[domain.Direction]float64{domain.Up: 0, domain.Down: 0, domain.Neutral: 0}
	votesByDirection := map[domain.Direction][]domain.Vote{}

	for _, v := range nonSkip {
		base := 1.0
		if weights != nil {
			if b, ok := weights[v.Agent]; ok {
				base = b
			}
		}
		regimeMult := RegimeMultiplier(regime, v.Agent)
		adaptiveMult := 1.0
		if accuracy != nil {
			acc, n := accuracy(v.Agent)
			adaptiveMult = AdaptiveMultiplier(acc, n)
		}
		w := base * regimeMult * adaptiveMult
		if w > maxWeight {
			w = maxWeight
		}
		if w < 0 {
			w = 0
		}

		d := v.Direction
		if _, ok := scores[d]; !ok {
			scores[d] = 0
		}
		scores[d] += v.Confidence * v.Quality * w
		votesByDirection[d] = append(votesByDirection[d], v)
	}

	winner, tie := pickWinner(scores)
	if tie {
		decision.Direction = domain.None
		decision.Reason = "deadlock"
		return decision
	}
	if winner == domain.Neutral {
		decision.Direction = domain.None
		decision.Reason = "neutral-winner"
		return decision
	}

	total := scores[domain.Up] + scores[domain.Down] + scores[domain.Neutral] + epsilon
	score := scores[winner] / total
	agreement := float64(len(votesByDirection[winner])) / float64(len(nonSkip))

	maxConfidence := 0.0
	for _, v := range votesByDirection[winner] {
		if v.Confidence > maxConfidence {
			maxConfidence = v.Confidence
		}
	}

	decision.Score = score
	decision.Agreement = agreement

	gates := thresholds
	if gates.ConsensusThreshold <= 0 {
		gates = DefaultThresholds()
	}

	switch {
	case score < gates.ConsensusThreshold:
		decision.Direction = domain.None
		decision.Reason = "below-consensus-threshold"
	case maxConfidence < gates.MinConfidence:
		decision.Direction = domain.None
		decision.Reason = "below-min-confidence"
	case agreement < gates.MinAgreement:
		decision.Direction = domain.None
		decision.Reason = "agreement-floor"
	default:
		decision.Direction = winner
	}

	return decision
}

// pickWinner finds the direction with the largest score among Up/Down/
// Neutral. A tie between Up and Down (at or above Neutral's score) is a
// deadlock edge cases.
func pickWinner(scores map[domain.Direction]float64) (direction domain.Direction, tie bool) {
	up, down, neutral := scores[domain.Up], scores[domain.Down], scores[domain.Neutral]

	if up == down && up >= neutral && up > 0 {
		return "", true
	}

	best := domain.Neutral
	bestScore := neutral
	if up > bestScore {
		best, bestScore = domain.Up, up
	}
	if down > bestScore {
		best, bestScore = domain.Down, down
	}
	return best, false
}
