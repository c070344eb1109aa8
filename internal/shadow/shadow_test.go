package shadow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"binaryengine/internal/domain"
)

type fakeRecorder struct {
	decisions []domain.ShadowDecision
	outcomes  map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{outcomes: make(map[string]int)}
}

func (f *fakeRecorder) RecordDecision(d domain.ShadowDecision) error {
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeRecorder) RecordOutcome(o domain.Outcome) (bool, error) {
	key := o.Strategy + "|" + string(o.Crypto) + "|" + itoa(o.Epoch)
	if f.outcomes[key] > 0 {
		f.outcomes[key]++
		return false, nil
	}
	f.outcomes[key] = 1
	return true, nil
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func baseSnapshot() domain.MarketSnapshot {
	return domain.MarketSnapshot{Crypto: domain.BTC, Epoch: 100, UpAsk: 0.42, DownAsk: 0.58, Mode: domain.ModeNormal}
}

func baseVotes() []domain.Vote {
	return []domain.Vote{
		{Agent: "technical", Direction: domain.Up, Confidence: 0.70, Quality: 1.0},
		{Agent: "sentiment", Direction: domain.Neutral, Quality: 1.0},
	}
}

func TestShadow_Scenario6Divergence(t *testing.T) {
	strategies := []domain.ShadowStrategy{
		{Name: "tight", ConsensusThreshold: 0.80, MinConfidence: 0.5, MinAgreement: 0.5, VirtualBalance: 100},
		{Name: "loose", ConsensusThreshold: 0.55, MinConfidence: 0.5, MinAgreement: 0.5, VirtualBalance: 100},
	}
	orch := New(strategies, newFakeRecorder())
	decisions := orch.RunSnapshot(baseSnapshot(), baseVotes())

	require.Len(t, decisions, 2)
	byName := map[string]domain.ShadowDecision{}
	for _, d := range decisions {
		byName[d.Strategy] = d
	}
	require.False(t, byName["tight"].WouldPlace)
	require.True(t, byName["loose"].WouldPlace)
	require.Equal(t, byName["loose"].Decision.Direction, domain.Up)
}

func TestShadow_Scenario5ResolutionIdempotency(t *testing.T) {
	recorder := newFakeRecorder()
	strategies := []domain.ShadowStrategy{
		{Name: "loose", ConsensusThreshold: 0.55, MinConfidence: 0.5, MinAgreement: 0.5, VirtualBalance: 100},
	}
	orch := New(strategies, recorder)
	orch.RunSnapshot(baseSnapshot(), baseVotes())

	orch.ResolveEpoch(domain.BTC, 100, domain.Up)
	balanceAfterFirst := orch.Balance("loose")
	orch.ResolveEpoch(domain.BTC, 100, domain.Up)
	balanceAfterSecond := orch.Balance("loose")

	require.Equal(t, balanceAfterFirst, balanceAfterSecond, "second resolution must not mutate balance")
	require.Equal(t, 1, recorder.outcomes["loose|BTC|100"])
}
