package committee

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"binaryengine/internal/domain"
)

func TestTechnical_SkipsWithoutHistoryThenVotesUpOnConfluence(t *testing.T) {
	agent := NewTechnical()
	ctx := context.Background()

	snap := domain.MarketSnapshot{
		Crypto: domain.BTC,
		ExchangeMids: []domain.ExchangePrice{
			{Exchange: "binance", Mid: 95000},
			{Exchange: "kraken", Mid: 95010},
			{Exchange: "coinbase", Mid: 95005},
		},
	}
	vote, err := agent.Analyze(ctx, snap)
	require.NoError(t, err)
	require.Equal(t, domain.Skip, vote.Direction)

	snap2 := snap
	snap2.ExchangeMids = []domain.ExchangePrice{
		{Exchange: "binance", Mid: 95500},
		{Exchange: "kraken", Mid: 95510},
		{Exchange: "coinbase", Mid: 95505},
	}
	snap2.UpAsk, snap2.DownAsk = 0.42, 0.58
	snap2.RSI14 = 55

	vote, err = agent.Analyze(ctx, snap2)
	require.NoError(t, err)
	require.Equal(t, domain.Up, vote.Direction)
	require.InDelta(t, 0.70, vote.Confidence, 0.08)
}

func TestTechnical_Scenario1ExchangeAvailable(t *testing.T) {
	agent := NewTechnical()
	ctx := context.Background()
	snap := domain.MarketSnapshot{
		Crypto: domain.BTC,
		ExchangeMids: []domain.ExchangePrice{
			{Exchange: "binance", Mid: 95000, AsOf: time.Now()},
		},
	}
	vote, err := agent.Analyze(ctx, snap)
	require.NoError(t, err)
	require.Equal(t, domain.Skip, vote.Direction)
}

func TestTechnical_StreakHalvesContradiction(t *testing.T) {
	agent := NewTechnical()
	ctx := context.Background()
	base := []domain.ExchangePrice{
		{Exchange: "binance", Mid: 95000},
		{Exchange: "kraken", Mid: 95000},
		{Exchange: "coinbase", Mid: 95000},
	}
	_, err := agent.Analyze(ctx, domain.MarketSnapshot{Crypto: domain.BTC, ExchangeMids: base})
	require.NoError(t, err)

	risingMids := []domain.ExchangePrice{
		{Exchange: "binance", Mid: 95500},
		{Exchange: "kraken", Mid: 95510},
		{Exchange: "coinbase", Mid: 95505},
	}
	recent := []domain.EpochOutcome{
		{Epoch: 1, Direction: domain.Down},
		{Epoch: 2, Direction: domain.Down},
		{Epoch: 3, Direction: domain.Down},
	}
	vote, err := agent.Analyze(ctx, domain.MarketSnapshot{
		Crypto: domain.BTC, ExchangeMids: risingMids, RSI14: 55, RecentOutcomes: recent,
	})
	require.NoError(t, err)
	require.Equal(t, domain.Up, vote.Direction)
	// Unhalved blend ≈ 0.829; the contradicting Down streak halves it.
	require.InDelta(t, 0.4147, vote.Confidence, 0.005)
}
