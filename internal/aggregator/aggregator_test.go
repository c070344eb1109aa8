package aggregator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"binaryengine/internal/domain"
)

func TestAggregate_Scenario1HappyPath(t *testing.T) {
	votes := []domain.Vote{
		{Agent: "technical", Direction: domain.Up, Confidence: 0.70, Quality: 1.0},
		{Agent: "sentiment", Direction: domain.Neutral, Confidence: 0, Quality: 1.0},
		{Agent: "guardian", Direction: domain.Skip},
	}
	decision := Aggregate(domain.BTC, 1, votes, domain.RegimeSideways, nil, nil, DefaultThresholds())
	require.Equal(t, domain.Up, decision.Direction)
	require.InDelta(t, 0.5, decision.Agreement, 1e-9)
	require.Greater(t, decision.Score, DefaultThresholds().ConsensusThreshold)
}

func TestAggregate_Scenario2AgreementFloor(t *testing.T) {
	votes := []domain.Vote{
		{Agent: "sentiment", Direction: domain.Up, Confidence: 0.95, Quality: 1.0},
		{Agent: "technical", Direction: domain.Skip},
		{Agent: "regime", Direction: domain.Neutral, Quality: 1.0},
		{Agent: "orderbook", Direction: domain.Down, Confidence: 0.1, Quality: 1.0},
	}
	decision := Aggregate(domain.ETH, 2, votes, domain.RegimeUnknown, nil, nil, DefaultThresholds())
	require.Equal(t, domain.None, decision.Direction)
	require.Equal(t, "agreement-floor", decision.Reason)
	require.InDelta(t, 1.0/3.0, decision.Agreement, 1e-9)
}

func TestAggregate_Deadlock(t *testing.T) {
	votes := []domain.Vote{
		{Agent: "a", Direction: domain.Up, Confidence: 0.8, Quality: 1.0},
		{Agent: "b", Direction: domain.Down, Confidence: 0.8, Quality: 1.0},
	}
	decision := Aggregate(domain.SOL, 3, votes, domain.RegimeUnknown, nil, nil, DefaultThresholds())
	require.Equal(t, domain.None, decision.Direction)
	require.Equal(t, "deadlock", decision.Reason)
}

func TestAggregate_AllSkipIsNoSignal(t *testing.T) {
	votes := []domain.Vote{{Agent: "a", Direction: domain.Skip}}
	decision := Aggregate(domain.XRP, 4, votes, domain.RegimeUnknown, nil, nil, DefaultThresholds())
	require.Equal(t, domain.None, decision.Direction)
	require.Equal(t, "no signal", decision.Reason)
}

func TestAdaptiveMultiplier_ColdStart(t *testing.T) {
	require.Equal(t, 1.0, AdaptiveMultiplier(0.9, 10))
}

func TestAdaptiveMultiplier_Clamped(t *testing.T) {
	require.InDelta(t, 1.5, AdaptiveMultiplier(0.99, 50), 1e-9)
	require.InDelta(t, 0.5, AdaptiveMultiplier(0.0, 50), 1e-9)
}
