// Package shadow runs every enabled ShadowStrategy against the same live
// snapshot the production aggregator sees, without touching real funds.
// Grounded on pkg/manager.Manager per-trader iteration
// (each registered trader runs its own config against shared market data),
// generalised from live capital to virtual balances.
package shadow

import (
	"sort"
	"sync"

	"binaryengine/internal/aggregator"
	"binaryengine/internal/domain"
	"binaryengine/internal/guardian"
)

// Recorder persists one shadow decision and, later, one resolved shadow
// outcome. Implementations must upsert on (strategy, crypto, epoch) and
// tolerate duplicate resolution without mutating balance twice.
type Recorder interface {
	RecordDecision(domain.ShadowDecision) error
	RecordOutcome(outcome domain.Outcome) (inserted bool, err error)
}

// Orchestrator runs the configured strategies sequentially per snapshot, per
// "no cross-strategy shared mutable state" rule.
type Orchestrator struct {
	strategies []domain.ShadowStrategy
	recorder   Recorder

	mu       sync.Mutex
	balances map[string]float64
	pending  map[pendingKey]pendingShadow
}

type pendingKey struct {
	strategy string
	crypto   domain.Crypto
	epoch    int64
}

type pendingShadow struct {
	decision domain.AggregateDecision
	entry    float64
	size     float64
	won      func(outcomeDirection domain.Direction) bool
}

// New constructs an orchestrator seeding every strategy's virtual balance
// from its configured starting value.
func New(strategies []domain.ShadowStrategy, recorder Recorder) *Orchestrator {
	balances := make(map[string]float64, len(strategies))
	for _, s := range strategies {
		balances[s.Name] = s.VirtualBalance
	}
	return &Orchestrator{
		strategies: strategies,
		recorder:   recorder,
		balances:   balances,
		pending:    make(map[pendingKey]pendingShadow),
	}
}

// RunSnapshot evaluates every enabled strategy's own aggregator pass against
// the shared snapshot's votes, sized by that strategy's own sizer, and
// records one decision row per strategy.
func (o *Orchestrator) RunSnapshot(snap domain.MarketSnapshot, votes []domain.Vote) []domain.ShadowDecision {
	decisions := make([]domain.ShadowDecision, 0, len(o.strategies))
	for _, strategy := range o.strategies {
		filtered := filterVotes(votes, strategy.AgentsEnabled)
		thresholds := aggregator.Thresholds{
			ConsensusThreshold: strategy.ConsensusThreshold,
			MinConfidence:      strategy.MinConfidence,
			MinAgreement:       strategy.MinAgreement,
		}
		decision := aggregator.Aggregate(snap.Crypto, snap.Epoch, filtered, snap.Regime, strategy.AgentWeights, nil, thresholds)

		wouldPlace := false
		entryPrice := 0.0
		size := 0.0

		if decision.Direction == domain.Up || decision.Direction == domain.Down {
			entryPrice = snap.UpAsk
			if decision.Direction == domain.Down {
				entryPrice = snap.DownAsk
			}
			if strategy.MaxEntryPrice <= 0 || entryPrice <= strategy.MaxEntryPrice {
				o.mu.Lock()
				balance := o.balances[strategy.Name]
				o.mu.Unlock()

				limits := guardian.DefaultLimits()
				if strategy.Kelly {
					size = guardian.KellySize(balance, decision.Score, entryPrice, limits)
				} else {
					size = guardian.Size(balance, snap.Mode, decision.Score, limits)
				}
				wouldPlace = size > 0
			}
		}

		sd := domain.ShadowDecision{
			SnapshotEpoch: snap.Epoch,
			Strategy:      strategy.Name,
			Crypto:        snap.Crypto,
			Decision:      decision,
			WouldPlace:    wouldPlace,
			EntryPrice:    entryPrice,
			Size:          size,
		}
		decisions = append(decisions, sd)
		if o.recorder != nil {
			_ = o.recorder.RecordDecision(sd)
		}

		if wouldPlace {
			direction := decision.Direction
			o.mu.Lock()
			o.pending[pendingKey{strategy: strategy.Name, crypto: snap.Crypto, epoch: snap.Epoch}] = pendingShadow{
				decision: decision, entry: entryPrice, size: size,
				won: func(resolved domain.Direction) bool { return resolved == direction },
			}
			o.mu.Unlock()
		}
	}

	sort.Slice(decisions, func(i, j int) bool { return decisions[i].Strategy < decisions[j].Strategy })
	return decisions
}

// ResolveEpoch settles every strategy's pending virtual position for one
// (crypto, epoch) against the real resolved direction, updates virtual
// balances, and records exactly one outcome row per strategy — idempotent
// under repeated resolution and invariant 5.
func (o *Orchestrator) ResolveEpoch(crypto domain.Crypto, epoch int64, resolved domain.Direction) {
	strategyNames := make([]string, 0, len(o.strategies))
	for _, s := range o.strategies {
		strategyNames = append(strategyNames, s.Name)
	}
	sort.Strings(strategyNames)

	for _, name := range strategyNames {
		key := pendingKey{strategy: name, crypto: crypto, epoch: epoch}
		o.mu.Lock()
		pending, ok := o.pending[key]
		if ok {
			delete(o.pending, key)
		}
		o.mu.Unlock()
		if !ok {
			continue
		}

		won := pending.won(resolved)
		pnl := -pending.size
		if won {
			pnl = pending.size/pending.entry - pending.size
		}

		o.mu.Lock()
		o.balances[name] += pnl
		o.mu.Unlock()

		outcome := domain.Outcome{
			Strategy:            name,
			Crypto:              crypto,
			Epoch:               epoch,
			ResolvedDirection:   resolved,
			RealisedPnL:         pnl,
			PredictedDirection:  pending.decision.Direction,
			PredictedConfidence: pending.decision.Score,
		}
		if o.recorder != nil {
			if _, err := o.recorder.RecordOutcome(outcome); err != nil {
				continue
			}
		}
	}
}

// Balance returns a strategy's current virtual balance.
func (o *Orchestrator) Balance(strategy string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.balances[strategy]
}

func filterVotes(votes []domain.Vote, enabled map[string]bool) []domain.Vote {
	if enabled == nil {
		return votes
	}
	out := make([]domain.Vote, 0, len(votes))
	for _, v := range votes {
		if enabled[v.Agent] {
			out = append(out, v)
		}
	}
	return out
}
