package guardian

import (
	"testing"

	"github.com/stretchr/testify/require"

	"binaryengine/internal/domain"
)

func TestCheckVetoes_Scenario3ExactDrawdownHalts(t *testing.T) {
	state := domain.TradingState{PeakBalance: 300, CurrentBalance: 210, Mode: domain.ModeNormal}
	review := CheckVetoes(state, nil, domain.AggregateDecision{Crypto: domain.BTC, Direction: domain.Up}, DefaultLimits())
	require.False(t, review.Approved)
	require.Equal(t, "drawdown", review.VetoClass)
}

func TestCheckVetoes_JustUnderDrawdownPasses(t *testing.T) {
	state := domain.TradingState{PeakBalance: 300, CurrentBalance: 210.30, Mode: domain.ModeNormal}
	review := CheckVetoes(state, nil, domain.AggregateDecision{Crypto: domain.BTC, Direction: domain.Up}, DefaultLimits())
	require.True(t, review.Approved)
}

func TestCheckVetoes_DuplicatePosition(t *testing.T) {
	state := domain.TradingState{PeakBalance: 100, CurrentBalance: 100}
	open := []domain.Position{{Crypto: domain.BTC, Direction: domain.Down}}
	review := CheckVetoes(state, open, domain.AggregateDecision{Crypto: domain.BTC, Direction: domain.Up}, DefaultLimits())
	require.False(t, review.Approved)
	require.Equal(t, "duplicate-position", review.VetoClass)
}

func TestCheckVetoes_NegativeBalanceVetoesBeforeAnyOtherCheck(t *testing.T) {
	state := domain.TradingState{PeakBalance: 100, CurrentBalance: -0.01, Mode: domain.ModeNormal}
	review := CheckVetoes(state, nil, domain.AggregateDecision{Crypto: domain.BTC, Direction: domain.Up}, DefaultLimits())
	require.False(t, review.Approved)
	require.Equal(t, "negative-balance", review.VetoClass)
}

func TestCheckVetoes_HaltedMode(t *testing.T) {
	state := domain.TradingState{Mode: domain.ModeHalted, HaltReason: "drawdown-30%"}
	review := CheckVetoes(state, nil, domain.AggregateDecision{Crypto: domain.BTC}, DefaultLimits())
	require.False(t, review.Approved)
	require.Equal(t, "halted", review.VetoClass)
}

func TestSize_Scenario1(t *testing.T) {
	size := Size(200, domain.ModeNormal, 0.66, DefaultLimits())
	require.InDelta(t, 9.0, size, 0.5)
}

func TestSize_BelowMinBetIsSuppressed(t *testing.T) {
	size := Size(5, domain.ModeRecovery, 0.5, DefaultLimits())
	require.Zero(t, size)
}

func TestSize_ClampedToMaxBet(t *testing.T) {
	size := Size(10000, domain.ModeNormal, 1.0, DefaultLimits())
	require.Equal(t, DefaultLimits().MaxBet, size)
}
