// Package scheduler runs the engine's main loop: one tick scans every
// active market, builds a snapshot, fans it through the committee and
// aggregator, runs the guardian, places an order if approved, and tracks
// open positions through to resolution. A slower tick rolls the trading day
// at midnight. Grounded on cmd/cron's signal.NotifyContext-driven
// ticker loop and pkg/manager.Manager.RunTradingLoop's per-cycle structure,
// generalised from a fixed 1-second poll to a multi-interval scan/epoch/
// midnight schedule.
package scheduler

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"binaryengine/internal/aggregator"
	"binaryengine/internal/committee"
	"binaryengine/internal/domain"
	"binaryengine/internal/gateway"
	"binaryengine/internal/guardian"
	"binaryengine/internal/indicators"
	"binaryengine/internal/pricefeed"
	"binaryengine/internal/shadow"
	"binaryengine/internal/statestore"
)

// Recorder is the subset of the ledger the scheduler depends on, narrowed so
// tests can supply an in-memory double. RecentOutcomes seeds a crypto's
// contradiction-streak history the first time it's seen after a process
// restart, since the scheduler's own in-memory history map always starts
// empty.
type Recorder interface {
	RecordDecision(ctx context.Context, strategy string, decision domain.AggregateDecision) error
	RecordOutcome(ctx context.Context, outcome domain.Outcome) (bool, error)
	RecentOutcomes(ctx context.Context, crypto domain.Crypto, n int) ([]domain.EpochOutcome, error)
}

// AccuracyStore supplies each agent's rolling accuracy and sample count for
// the aggregator's adaptive multiplier. A store with no history for an
// agent should return (0.5, 0) so AdaptiveMultiplier stays at 1.0.
type AccuracyStore interface {
	Accuracy(agentName string) (accuracy float64, sampleCount int)
}

// Config bundles the tunables a Scheduler needs beyond its collaborators.
type Config struct {
	ScanInterval     time.Duration // how often ListActiveMarkets is polled, default 2s
	CycleBudget      time.Duration // per-symbol per-cycle timeout, default 10s
	AgentDegradeFor  time.Duration // passed through to committee.NewRegistry
	Strategy         string        // ledger key for the production strategy row
	AgentsEnabled    map[string]bool
	AgentWeights     map[string]float64
	Thresholds       aggregator.Thresholds
	Limits           guardian.Limits
	RecentOutcomesN  int // how many past outcomes RecentOutcomes carries, default 5

	// HaltSentinelPath is checked once a minute while halted; its presence
	// is the operator's manual confirmation to resume trading. Empty
	// disables the check — halted mode then only clears via a direct
	// Store.Unhalt call.
	HaltSentinelPath string
}

func (c Config) withDefaults() Config {
	if c.ScanInterval <= 0 {
		c.ScanInterval = 2 * time.Second
	}
	if c.CycleBudget <= 0 {
		c.CycleBudget = 10 * time.Second
	}
	if c.AgentDegradeFor <= 0 {
		c.AgentDegradeFor = 5 * time.Minute
	}
	if c.Strategy == "" {
		c.Strategy = "production"
	}
	if c.RecentOutcomesN <= 0 {
		c.RecentOutcomesN = 5
	}
	return c
}

// Scheduler owns the engine's event loop: it never places an order or
// touches state directly, it only wires together the collaborators that do.
type Scheduler struct {
	cfg Config

	gateway  gateway.Gateway
	feed     pricefeed.Feed
	registry *committee.Registry
	state    *statestore.Store
	recorder Recorder
	accuracy AccuracyStore
	shadowed *shadow.Orchestrator

	mu               sync.Mutex
	history          map[domain.Crypto][]domain.EpochOutcome
	seeded           map[domain.Crypto]bool  // whether history[crypto] has been seeded from the ledger this run
	seen             map[pendingKey]struct{} // epochs already decided this run, to avoid re-deciding mid-epoch
	pendingDecisions map[pendingKey]pendingDecision // placed orders awaiting resolution
}

type pendingKey struct {
	crypto domain.Crypto
	epoch  int64
}

// pendingDecision carries the direction and confidence a cycle placed an
// order for, so resolvePosition can report accurate predicted/confidence
// fields on the eventual Outcome instead of reconstructing them from the
// position alone.
type pendingDecision struct {
	direction  domain.Direction
	confidence float64
}

func New(cfg Config, gw gateway.Gateway, feed pricefeed.Feed, registry *committee.Registry, state *statestore.Store, recorder Recorder, accuracy AccuracyStore, shadowed *shadow.Orchestrator) *Scheduler {
	return &Scheduler{
		cfg:              cfg.withDefaults(),
		gateway:          gw,
		feed:             feed,
		registry:         registry,
		state:            state,
		recorder:         recorder,
		accuracy:         accuracy,
		shadowed:         shadowed,
		history:          make(map[domain.Crypto][]domain.EpochOutcome),
		seeded:           make(map[domain.Crypto]bool),
		seen:             make(map[pendingKey]struct{}),
		pendingDecisions: make(map[pendingKey]pendingDecision),
	}
}

// ensureHistorySeeded populates s.history[crypto] from the ledger the first
// time a crypto is scanned in this run. A failed or empty fetch is not
// retried mid-run (marked seeded regardless) so every cycle doesn't pay a
// ledger round trip once the in-process history takes over via ResolveEpoch.
func (s *Scheduler) ensureHistorySeeded(ctx context.Context, crypto domain.Crypto) {
	s.mu.Lock()
	already := s.seeded[crypto]
	s.mu.Unlock()
	if already || s.recorder == nil {
		return
	}

	past, err := s.recorder.RecentOutcomes(ctx, crypto, s.cfg.RecentOutcomesN)
	if err != nil {
		logx.WithContext(ctx).Errorf("scheduler: seed history crypto=%s: %v", crypto, err)
	}

	s.mu.Lock()
	if len(s.history[crypto]) == 0 && len(past) > 0 {
		// past is newest-first; history is appended oldest-first by
		// ResolveEpoch, so reverse it to keep the slice's ordering
		// invariant consistent regardless of source.
		seededHistory := make([]domain.EpochOutcome, len(past))
		for i, o := range past {
			seededHistory[len(past)-1-i] = o
		}
		s.history[crypto] = seededHistory
	}
	s.seeded[crypto] = true
	s.mu.Unlock()
}

// epochDuration is the fixed binary-market window every Epoch boundary is
// measured against.
const epochDuration = 15 * time.Minute

// settlementGraceDelay is how long Run waits past a detected epoch boundary
// before attempting resolution, giving the venue time to settle the market.
const settlementGraceDelay = 60 * time.Second

// resolveCheckInterval is how often Run polls open positions for epochs
// that have crossed their boundary plus settlementGraceDelay.
const resolveCheckInterval = 15 * time.Second

// Run blocks until ctx is cancelled, scanning for markets on cfg.ScanInterval,
// polling for resolvable epochs on resolveCheckInterval, and rolling the
// trading day once every tick that crosses local midnight.
func (s *Scheduler) Run(ctx context.Context) error {
	logx.WithContext(ctx).Infof("scheduler: starting scan_interval=%s strategy=%s", s.cfg.ScanInterval, s.cfg.Strategy)

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	resolveTicker := time.NewTicker(resolveCheckInterval)
	defer resolveTicker.Stop()

	dayTicker := time.NewTicker(time.Minute)
	defer dayTicker.Stop()

	lastRolledDay := time.Now().YearDay()

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			logx.WithContext(ctx).Infof("scheduler: stopping: %v", ctx.Err())
			return nil
		case <-dayTicker.C:
			now := time.Now()
			if now.YearDay() != lastRolledDay {
				if _, err := s.state.RollDay(now); err != nil {
					logx.WithContext(ctx).Errorf("scheduler: roll day failed: %v", err)
				} else {
					logx.WithContext(ctx).Infof("scheduler: trading day rolled at %s", now.Format(time.RFC3339))
				}
				lastRolledDay = now.YearDay()
			}
			s.checkHaltSentinel(ctx)
			s.checkReconciliation(ctx)
		case <-resolveTicker.C:
			s.checkResolutions(ctx)
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce scans every active market and runs one decision cycle per market,
// each bounded by cfg.CycleBudget.
func (s *Scheduler) runOnce(ctx context.Context) {
	markets, err := s.gateway.ListActiveMarkets(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("scheduler: list active markets: %v", err)
		return
	}

	for _, m := range markets {
		key := pendingKey{crypto: m.Crypto, epoch: m.Epoch}
		s.mu.Lock()
		_, already := s.seen[key]
		s.mu.Unlock()
		if already {
			continue
		}

		cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleBudget)
		s.runCycle(cycleCtx, m)
		cancel()

		s.mu.Lock()
		s.seen[key] = struct{}{}
		s.mu.Unlock()
	}
}

// runCycle executes one full decision cycle for a single market: build
// snapshot, run the committee, aggregate, run the guardian, place the order
// if approved, mirror through the shadow orchestrator, and record the
// decision.
func (s *Scheduler) runCycle(ctx context.Context, m gateway.Market) {
	start := time.Now()
	snap, err := s.buildSnapshot(ctx, m)
	if err != nil {
		logx.WithContext(ctx).Errorf("scheduler: build snapshot crypto=%s epoch=%d: %v", m.Crypto, m.Epoch, err)
		return
	}

	names := s.registry.Enabled(s.cfg.AgentsEnabled)
	votes := s.registry.RunAll(ctx, names, snap)

	// The regime agent never votes a direction; it only tags the market
	// state in its own vote details, which nothing else extracted until
	// now — leaving every downstream regime-weighted multiplier dead.
	snap.Regime = regimeFromVotes(votes)

	decision := aggregator.Aggregate(snap.Crypto, snap.Epoch, votes, snap.Regime, s.cfg.AgentWeights, s.accuracy.Accuracy, s.cfg.Thresholds)

	if s.shadowed != nil {
		s.shadowed.RunSnapshot(snap, votes)
	}

	review := guardian.Review{Approved: false}
	if decision.Direction == domain.Up || decision.Direction == domain.Down {
		state := s.state.Snapshot()
		review = guardian.CheckVetoes(state, snap.OpenPositions, decision, s.cfg.Limits)
		if review.Approved {
			size := guardian.Size(state.CurrentBalance, state.Mode, decision.Score, s.cfg.Limits)
			if size > 0 {
				s.placeOrder(ctx, m, decision, size)
			} else {
				decision.Vetoed = true
				decision.VetoReason = append(decision.VetoReason, "size-suppressed-below-min-bet")
			}
		} else {
			decision.Vetoed = true
			decision.VetoReason = append(decision.VetoReason, review.VetoClass)
		}
	}

	if s.recorder != nil {
		if err := s.recorder.RecordDecision(ctx, s.cfg.Strategy, decision); err != nil {
			logx.WithContext(ctx).Errorf("scheduler: record decision crypto=%s epoch=%d: %v", snap.Crypto, snap.Epoch, err)
		}
	}

	logx.WithContext(ctx).Infof("scheduler: cycle crypto=%s epoch=%d direction=%s score=%.3f vetoed=%t duration=%s",
		snap.Crypto, snap.Epoch, decision.Direction, decision.Score, decision.Vetoed, time.Since(start))
}

// regimeFromVotes extracts the regime agent's classification from its own
// vote details — the only place the tag is computed — so the aggregator's
// regime-based weight modulation actually receives it instead of always
// seeing domain.RegimeUnknown.
func regimeFromVotes(votes []domain.Vote) domain.RegimeTag {
	for _, v := range votes {
		if v.Agent != "regime" {
			continue
		}
		if tag, ok := v.Details["regime"].(string); ok {
			return domain.RegimeTag(tag)
		}
	}
	return domain.RegimeUnknown
}

// checkHaltSentinel clears halted mode once the operator drops the
// configured sentinel file, then removes it so the next halt starts clean.
func (s *Scheduler) checkHaltSentinel(ctx context.Context) {
	if s.cfg.HaltSentinelPath == "" {
		return
	}
	if s.state.Snapshot().Mode != domain.ModeHalted {
		return
	}
	if _, err := os.Stat(s.cfg.HaltSentinelPath); err != nil {
		return
	}
	if _, err := s.state.Unhalt(); err != nil {
		logx.WithContext(ctx).Errorf("scheduler: unhalt: %v", err)
		return
	}
	if err := os.Remove(s.cfg.HaltSentinelPath); err != nil {
		logx.WithContext(ctx).Errorf("scheduler: remove halt sentinel: %v", err)
	}
	logx.WithContext(ctx).Infof("scheduler: resumed from halt via sentinel %s", s.cfg.HaltSentinelPath)
}

// checkReconciliation compares the state store's notion of cash against the
// venue's reported balance once a minute, catching drift from a missed
// fill, a manual venue-side adjustment, or a bug in position accounting.
func (s *Scheduler) checkReconciliation(ctx context.Context) {
	balance, err := s.gateway.GetCashBalance(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("scheduler: reconciliation balance fetch: %v", err)
		return
	}
	if err := s.state.Reconcile(balance); err != nil {
		logx.WithContext(ctx).Errorf("scheduler: reconciliation: %v", err)
	}
}

func (s *Scheduler) placeOrder(ctx context.Context, m gateway.Market, decision domain.AggregateDecision, sizeUSD float64) {
	tokenID := m.UpTokenID
	if decision.Direction == domain.Down {
		tokenID = m.DownTokenID
	}

	position, err := s.gateway.PlaceOrder(ctx, tokenID, sizeUSD)
	if err != nil {
		logx.WithContext(ctx).Errorf("scheduler: place order crypto=%s direction=%s size=%.2f: %v", m.Crypto, decision.Direction, sizeUSD, err)
		return
	}
	logx.WithContext(ctx).Infof("scheduler: placed order crypto=%s direction=%s size=%.2f entry=%.4f", m.Crypto, decision.Direction, sizeUSD, position.EntryPrice)

	s.mu.Lock()
	s.pendingDecisions[pendingKey{crypto: m.Crypto, epoch: m.Epoch}] = pendingDecision{direction: decision.Direction, confidence: decision.Score}
	s.mu.Unlock()
}

// ResolveEpoch is called once a market's outcome is known; it records the
// outcome, settles any shadow positions for the same (crypto, epoch), and
// updates the state store's win/loss streak.
func (s *Scheduler) ResolveEpoch(ctx context.Context, crypto domain.Crypto, epoch int64, resolved domain.Direction, predicted domain.Direction, predictedConfidence, realisedPnL float64) {
	outcome := domain.Outcome{
		Strategy:            s.cfg.Strategy,
		Crypto:              crypto,
		Epoch:               epoch,
		ResolvedDirection:   resolved,
		RealisedPnL:         realisedPnL,
		PredictedDirection:  predicted,
		PredictedConfidence: predictedConfidence,
		ResolvedAt:          time.Now(),
	}

	if s.recorder != nil {
		if _, err := s.recorder.RecordOutcome(ctx, outcome); err != nil {
			logx.WithContext(ctx).Errorf("scheduler: record outcome crypto=%s epoch=%d: %v", crypto, epoch, err)
		}
	}

	if s.shadowed != nil {
		s.shadowed.ResolveEpoch(crypto, epoch, resolved)
	}

	s.mu.Lock()
	h := append(s.history[crypto], domain.EpochOutcome{Epoch: epoch, Direction: resolved})
	if len(h) > s.cfg.RecentOutcomesN {
		h = h[len(h)-s.cfg.RecentOutcomesN:]
	}
	s.history[crypto] = h
	s.mu.Unlock()

	if predicted == resolved {
		if _, err := s.state.RecordOutcome(true, ""); err != nil {
			logx.WithContext(ctx).Errorf("scheduler: record win: %v", err)
		}
	} else if predicted == domain.Up || predicted == domain.Down {
		if _, err := s.state.RecordOutcome(false, "loss"); err != nil {
			logx.WithContext(ctx).Errorf("scheduler: record loss: %v", err)
		}
	}
}

// checkResolutions reads back open positions and redeems every one whose
// epoch closed at least settlementGraceDelay ago. This is the production
// driver of ResolveEpoch: without it, redemption and outcome recording never
// happen outside tests.
func (s *Scheduler) checkResolutions(ctx context.Context) {
	positions, err := s.gateway.ReadPositions(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("scheduler: read positions for resolution: %v", err)
		return
	}

	now := time.Now()
	for _, p := range positions {
		epochEnd := time.Unix(p.Epoch, 0).Add(epochDuration)
		if now.Before(epochEnd.Add(settlementGraceDelay)) {
			continue
		}
		s.resolvePosition(ctx, p)
	}
}

// resolvePosition redeems one closed position and folds the result into the
// outcome ledger and the state store's cash balance. A Redeem error is
// treated as "not settled on the venue yet" and retried on a later tick,
// since the gateway exposes no separate "is this epoch resolved" query.
// A zero credited amount is a loss (the venue settles winning shares at $1
// each and losing shares at $0), never a partial fill, so it's enough to
// tell resolved direction from the position's own direction.
func (s *Scheduler) resolvePosition(ctx context.Context, p domain.Position) {
	credited, err := s.gateway.Redeem(ctx, p)
	if err != nil {
		logx.WithContext(ctx).Infof("scheduler: redeem not yet settled crypto=%s epoch=%d: %v", p.Crypto, p.Epoch, err)
		return
	}

	resolved := p.Direction
	if credited == 0 {
		resolved = opposite(p.Direction)
	}

	cost := p.Shares * p.EntryPrice
	netPnL := credited - cost
	if netPnL >= 0 {
		// The only path, besides a manual reset, that may raise peak balance.
		if _, err := s.state.ApplyCashIncrease(netPnL); err != nil {
			logx.WithContext(ctx).Errorf("scheduler: apply redemption credit crypto=%s epoch=%d: %v", p.Crypto, p.Epoch, err)
		}
	} else if _, err := s.state.ApplyCashDecrease(-netPnL); err != nil {
		logx.WithContext(ctx).Errorf("scheduler: apply realised loss crypto=%s epoch=%d: %v", p.Crypto, p.Epoch, err)
	}

	key := pendingKey{crypto: p.Crypto, epoch: p.Epoch}
	s.mu.Lock()
	predicted, ok := s.pendingDecisions[key]
	delete(s.pendingDecisions, key)
	s.mu.Unlock()
	if !ok {
		// No record of the decision that opened this position (process
		// restart between placement and resolution): fall back to the
		// position's own direction with no confidence reading.
		predicted = pendingDecision{direction: p.Direction}
	}

	s.ResolveEpoch(ctx, p.Crypto, p.Epoch, resolved, predicted.direction, predicted.confidence, netPnL)
}

// opposite returns the other binary direction; only ever called with Up or
// Down, both of which a placed position's Direction is restricted to.
func opposite(d domain.Direction) domain.Direction {
	if d == domain.Up {
		return domain.Down
	}
	return domain.Up
}

// buildSnapshot assembles the immutable per-cycle record the committee
// observes, pulling mids from the price feed and RSI from the indicators
// package over the primary exchange's history.
func (s *Scheduler) buildSnapshot(ctx context.Context, m gateway.Market) (domain.MarketSnapshot, error) {
	s.ensureHistorySeeded(ctx, m.Crypto)

	mids, err := s.feed.Prices(ctx, m.Crypto)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}

	exchangeMids := make([]gatewayPrice, 0, len(mids))
	for ex, mid := range mids {
		exchangeMids = append(exchangeMids, gatewayPrice{exchange: ex, mid: mid})
	}
	sort.Slice(exchangeMids, func(i, j int) bool { return exchangeMids[i].exchange < exchangeMids[j].exchange })

	domainMids := make([]domain.ExchangePrice, len(exchangeMids))
	now := time.Now()
	for i, p := range exchangeMids {
		domainMids[i] = domain.ExchangePrice{Exchange: p.exchange, Mid: p.mid, AsOf: now}
	}

	var rsi float64
	if len(exchangeMids) > 0 {
		history, histErr := s.feed.History(ctx, m.Crypto, exchangeMids[0].exchange)
		if histErr == nil {
			rsi = indicators.Latest(history, 14)
		}
	}

	state := s.state.Snapshot()
	openPositions, err := s.gateway.ReadPositions(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("scheduler: read positions: %v", err)
		openPositions = nil
	}

	s.mu.Lock()
	recent := append([]domain.EpochOutcome(nil), s.history[m.Crypto]...)
	s.mu.Unlock()
	sort.Slice(recent, func(i, j int) bool { return recent[i].Epoch > recent[j].Epoch })

	return domain.MarketSnapshot{
		Crypto:           m.Crypto,
		Epoch:            m.Epoch,
		SecondsIntoEpoch: 900 - m.SecondsLeft,
		UpAsk:            m.UpAsk,
		DownAsk:          m.DownAsk,
		Balance:          state.CurrentBalance,
		OpenPositions:    openPositions,
		RSI14:            rsi,
		ExchangeMids:     domainMids,
		RecentOutcomes:   recent,
		Mode:             state.Mode,
		BuiltAt:          now,
	}, nil
}

type gatewayPrice struct {
	exchange string
	mid      float64
}
