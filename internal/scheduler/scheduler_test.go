package scheduler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"binaryengine/internal/aggregator"
	"binaryengine/internal/committee"
	"binaryengine/internal/domain"
	"binaryengine/internal/gateway"
	"binaryengine/internal/guardian"
	"binaryengine/internal/statestore"
)

type fakeGateway struct {
	markets      []gateway.Market
	placed       []domain.Position
	positions    []domain.Position
	redeemErr    error
	redeemPayout float64
}

func (g *fakeGateway) ListActiveMarkets(context.Context) ([]gateway.Market, error) { return g.markets, nil }
func (g *fakeGateway) PlaceOrder(ctx context.Context, tokenID string, sizeUSD float64) (*domain.Position, error) {
	p := domain.Position{TokenID: tokenID, Shares: sizeUSD, EntryPrice: 0.5, OpenedAt: time.Now()}
	g.placed = append(g.placed, p)
	return &p, nil
}
func (g *fakeGateway) ReadPositions(context.Context) ([]domain.Position, error) { return g.positions, nil }
func (g *fakeGateway) GetCashBalance(context.Context) (float64, error)          { return 500, nil }

func (g *fakeGateway) Redeem(ctx context.Context, p domain.Position) (float64, error) {
	if g.redeemErr != nil {
		return 0, g.redeemErr
	}
	return g.redeemPayout, nil
}

type fakeFeed struct{}

func (f *fakeFeed) Prices(ctx context.Context, crypto domain.Crypto) (map[string]float64, error) {
	return map[string]float64{"binance": 100.1, "coinbase": 100.3}, nil
}
func (f *fakeFeed) History(ctx context.Context, crypto domain.Crypto, exchange string) ([]float64, error) {
	return []float64{100, 100.5, 101, 100.8, 101.2}, nil
}

type alwaysUpAgent struct{}

func (alwaysUpAgent) Name() string { return "technical" }
func (alwaysUpAgent) Analyze(context.Context, domain.MarketSnapshot) (domain.Vote, error) {
	return domain.Vote{Direction: domain.Up, Confidence: 0.9, Quality: 1.0}, nil
}

type fakeRecorder struct {
	decisions []domain.AggregateDecision
	outcomes  []domain.Outcome
}

func (r *fakeRecorder) RecordDecision(ctx context.Context, strategy string, d domain.AggregateDecision) error {
	r.decisions = append(r.decisions, d)
	return nil
}
func (r *fakeRecorder) RecordOutcome(ctx context.Context, o domain.Outcome) (bool, error) {
	r.outcomes = append(r.outcomes, o)
	return true, nil
}
func (r *fakeRecorder) RecentOutcomes(ctx context.Context, crypto domain.Crypto, n int) ([]domain.EpochOutcome, error) {
	return nil, nil
}

type zeroAccuracy struct{}

func (zeroAccuracy) Accuracy(string) (float64, int) { return 0.5, 0 }

func newTestStore(t *testing.T) *statestore.Store {
	path := t.TempDir() + "/state.json"
	store, err := statestore.Open(path, statestore.DefaultThresholds(), func() (float64, error) { return 200, nil })
	require.NoError(t, err)
	return store
}

func TestScheduler_RunCycle_PlacesOrderOnApproval(t *testing.T) {
	gw := &fakeGateway{markets: []gateway.Market{{Crypto: domain.BTC, UpTokenID: "up", DownTokenID: "down", UpAsk: 0.45, DownAsk: 0.55, Epoch: 1000, SecondsLeft: 900}}}
	registry := committee.NewRegistry(time.Minute)
	registry.Register("technical", func() committee.Agent { return alwaysUpAgent{} })

	recorder := &fakeRecorder{}
	store := newTestStore(t)

	sched := New(Config{
		ScanInterval: time.Hour,
		CycleBudget:  time.Second,
		Thresholds:   aggregator.DefaultThresholds(),
		Limits:       guardian.DefaultLimits(),
	}, gw, &fakeFeed{}, registry, store, recorder, zeroAccuracy{}, nil)

	sched.runOnce(context.Background())

	require.Len(t, recorder.decisions, 1)
	require.Equal(t, domain.Up, recorder.decisions[0].Direction)
	require.Len(t, gw.placed, 1)
	require.Equal(t, "up", gw.placed[0].TokenID)
}

func TestScheduler_RunOnce_SkipsAlreadySeenEpoch(t *testing.T) {
	gw := &fakeGateway{markets: []gateway.Market{{Crypto: domain.ETH, UpTokenID: "up", DownTokenID: "down", Epoch: 5, SecondsLeft: 900}}}
	registry := committee.NewRegistry(time.Minute)
	registry.Register("technical", func() committee.Agent { return alwaysUpAgent{} })
	recorder := &fakeRecorder{}
	store := newTestStore(t)

	sched := New(Config{ScanInterval: time.Hour, Thresholds: aggregator.DefaultThresholds(), Limits: guardian.DefaultLimits()}, gw, &fakeFeed{}, registry, store, recorder, zeroAccuracy{}, nil)

	sched.runOnce(context.Background())
	sched.runOnce(context.Background())

	require.Len(t, recorder.decisions, 1, "second scan of the same epoch must not re-decide")
}

func TestScheduler_ResolveEpoch_RecordsOutcomeAndStreak(t *testing.T) {
	gw := &fakeGateway{}
	registry := committee.NewRegistry(time.Minute)
	recorder := &fakeRecorder{}
	store := newTestStore(t)

	sched := New(Config{Thresholds: aggregator.DefaultThresholds(), Limits: guardian.DefaultLimits()}, gw, &fakeFeed{}, registry, store, recorder, zeroAccuracy{}, nil)

	sched.ResolveEpoch(context.Background(), domain.BTC, 42, domain.Up, domain.Up, 0.8, 4.5)

	require.Len(t, recorder.outcomes, 1)
	require.Equal(t, domain.Up, recorder.outcomes[0].ResolvedDirection)
	require.Equal(t, 1, store.Snapshot().ConsecutiveWins)
}

func TestScheduler_CheckHaltSentinel_ResumesAndRemovesFile(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Update(func(state domain.TradingState) domain.TradingState {
		state.Mode = domain.ModeHalted
		state.HaltReason = "drawdown"
		return state
	})
	require.NoError(t, err)

	sentinel := t.TempDir() + "/resume"
	require.NoError(t, os.WriteFile(sentinel, []byte("ok"), 0o600))

	registry := committee.NewRegistry(time.Minute)
	sched := New(Config{HaltSentinelPath: sentinel, Thresholds: aggregator.DefaultThresholds(), Limits: guardian.DefaultLimits()},
		&fakeGateway{}, &fakeFeed{}, registry, store, &fakeRecorder{}, zeroAccuracy{}, nil)

	sched.checkHaltSentinel(context.Background())

	require.Equal(t, domain.ModeNormal, store.Snapshot().Mode)
	_, statErr := os.Stat(sentinel)
	require.True(t, os.IsNotExist(statErr), "sentinel file should be removed after resuming")
}

func TestScheduler_CheckReconciliation_PullsInVenueBalance(t *testing.T) {
	gw := &fakeGateway{}
	registry := committee.NewRegistry(time.Minute)
	store := newTestStore(t)

	sched := New(Config{Thresholds: aggregator.DefaultThresholds(), Limits: guardian.DefaultLimits()},
		gw, &fakeFeed{}, registry, store, &fakeRecorder{}, zeroAccuracy{}, nil)

	sched.checkReconciliation(context.Background())

	require.Equal(t, 500.0, store.Snapshot().CurrentBalance, "reconciliation should converge state balance toward the venue's reported cash")
}

func TestRegimeFromVotes_ExtractsTagFromRegimeAgentDetails(t *testing.T) {
	votes := []domain.Vote{
		{Agent: "technical", Direction: domain.Up},
		{Agent: "regime", Details: map[string]any{"regime": string(domain.RegimeBullMomentum)}},
	}
	require.Equal(t, domain.RegimeBullMomentum, regimeFromVotes(votes))
}

func TestRegimeFromVotes_UnknownWhenNoRegimeAgentVoted(t *testing.T) {
	votes := []domain.Vote{{Agent: "technical", Direction: domain.Up}}
	require.Equal(t, domain.RegimeUnknown, regimeFromVotes(votes))
}

func TestScheduler_CheckResolutions_SkipsPositionsStillInGraceDelay(t *testing.T) {
	gw := &fakeGateway{
		positions: []domain.Position{
			{Crypto: domain.BTC, Direction: domain.Up, Shares: 10, EntryPrice: 0.5, Epoch: time.Now().Unix(), TokenID: "up"},
		},
	}
	registry := committee.NewRegistry(time.Minute)
	recorder := &fakeRecorder{}
	store := newTestStore(t)

	sched := New(Config{Thresholds: aggregator.DefaultThresholds(), Limits: guardian.DefaultLimits()}, gw, &fakeFeed{}, registry, store, recorder, zeroAccuracy{}, nil)

	sched.checkResolutions(context.Background())

	require.Empty(t, recorder.outcomes, "a position whose epoch hasn't cleared the settlement grace delay must not resolve yet")
}

func TestScheduler_CheckResolutions_ResolvesWinningPositionAndRaisesPeak(t *testing.T) {
	closedEpoch := time.Now().Add(-epochDuration - settlementGraceDelay - time.Second).Unix()
	gw := &fakeGateway{
		positions: []domain.Position{
			{Crypto: domain.BTC, Direction: domain.Up, Shares: 10, EntryPrice: 0.5, Epoch: closedEpoch, TokenID: "up"},
		},
		redeemPayout: 10, // venue pays $1/share on a win
	}
	registry := committee.NewRegistry(time.Minute)
	recorder := &fakeRecorder{}
	store := newTestStore(t)
	before := store.Snapshot()

	sched := New(Config{Thresholds: aggregator.DefaultThresholds(), Limits: guardian.DefaultLimits()}, gw, &fakeFeed{}, registry, store, recorder, zeroAccuracy{}, nil)
	sched.mu.Lock()
	sched.pendingDecisions[pendingKey{crypto: domain.BTC, epoch: closedEpoch}] = pendingDecision{direction: domain.Up, confidence: 0.8}
	sched.mu.Unlock()

	sched.checkResolutions(context.Background())

	require.Len(t, recorder.outcomes, 1)
	require.Equal(t, domain.Up, recorder.outcomes[0].ResolvedDirection)
	require.Equal(t, 0.8, recorder.outcomes[0].PredictedConfidence)

	after := store.Snapshot()
	require.Equal(t, before.CurrentBalance+5, after.CurrentBalance, "net pnl on a win is credited minus cost")
	require.Equal(t, after.CurrentBalance, after.PeakBalance, "a win must raise peak balance in lockstep")

	sched.mu.Lock()
	_, stillPending := sched.pendingDecisions[pendingKey{crypto: domain.BTC, epoch: closedEpoch}]
	sched.mu.Unlock()
	require.False(t, stillPending, "resolved position must be removed from the pending-decision map")
}

func TestScheduler_CheckResolutions_ResolvesLosingPositionWithoutRaisingPeak(t *testing.T) {
	closedEpoch := time.Now().Add(-epochDuration - settlementGraceDelay - time.Second).Unix()
	gw := &fakeGateway{
		positions: []domain.Position{
			{Crypto: domain.ETH, Direction: domain.Down, Shares: 10, EntryPrice: 0.5, Epoch: closedEpoch, TokenID: "down"},
		},
		redeemPayout: 0, // losing shares settle at $0
	}
	registry := committee.NewRegistry(time.Minute)
	recorder := &fakeRecorder{}
	store := newTestStore(t)
	before := store.Snapshot()

	sched := New(Config{Thresholds: aggregator.DefaultThresholds(), Limits: guardian.DefaultLimits()}, gw, &fakeFeed{}, registry, store, recorder, zeroAccuracy{}, nil)

	sched.checkResolutions(context.Background())

	require.Len(t, recorder.outcomes, 1)
	require.Equal(t, domain.Up, recorder.outcomes[0].ResolvedDirection, "a zero credit on a Down position resolves to the opposite direction")
	require.Equal(t, domain.Down, recorder.outcomes[0].PredictedDirection, "missing pending-decision entry falls back to the position's own direction")

	after := store.Snapshot()
	require.Equal(t, before.CurrentBalance-5, after.CurrentBalance, "the full cost is debited on a loss")
	require.Equal(t, before.PeakBalance, after.PeakBalance, "a loss must never raise peak balance")
}

func TestScheduler_CheckResolutions_RetriesWhenRedeemErrors(t *testing.T) {
	closedEpoch := time.Now().Add(-epochDuration - settlementGraceDelay - time.Second).Unix()
	gw := &fakeGateway{
		positions: []domain.Position{
			{Crypto: domain.BTC, Direction: domain.Up, Shares: 10, EntryPrice: 0.5, Epoch: closedEpoch, TokenID: "up"},
		},
		redeemErr: context.DeadlineExceeded,
	}
	registry := committee.NewRegistry(time.Minute)
	recorder := &fakeRecorder{}
	store := newTestStore(t)

	sched := New(Config{Thresholds: aggregator.DefaultThresholds(), Limits: guardian.DefaultLimits()}, gw, &fakeFeed{}, registry, store, recorder, zeroAccuracy{}, nil)

	sched.checkResolutions(context.Background())

	require.Empty(t, recorder.outcomes, "a Redeem error means not-yet-settled; it must not be recorded as an outcome")
}

func TestScheduler_CheckHaltSentinel_NoopWhenNotHalted(t *testing.T) {
	store := newTestStore(t)
	sentinel := t.TempDir() + "/resume"
	require.NoError(t, os.WriteFile(sentinel, []byte("ok"), 0o600))

	registry := committee.NewRegistry(time.Minute)
	sched := New(Config{HaltSentinelPath: sentinel, Thresholds: aggregator.DefaultThresholds(), Limits: guardian.DefaultLimits()},
		&fakeGateway{}, &fakeFeed{}, registry, store, &fakeRecorder{}, zeroAccuracy{}, nil)

	sched.checkHaltSentinel(context.Background())

	_, statErr := os.Stat(sentinel)
	require.NoError(t, statErr, "sentinel file should be left alone when not halted")
}
