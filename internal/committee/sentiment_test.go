package committee

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"binaryengine/internal/domain"
)

func TestSentiment_ExtremePricingVotesContrarian(t *testing.T) {
	agent := NewSentiment(0, 0)
	vote, err := agent.Analyze(context.Background(), domain.MarketSnapshot{UpAsk: 0.04, DownAsk: 0.96})
	require.NoError(t, err)
	require.Equal(t, domain.Up, vote.Direction)
	require.Greater(t, vote.Confidence, 0.8)
}

func TestSentiment_NeutralBand(t *testing.T) {
	agent := NewSentiment(0, 0)
	vote, err := agent.Analyze(context.Background(), domain.MarketSnapshot{UpAsk: 0.42, DownAsk: 0.58})
	require.NoError(t, err)
	require.Equal(t, domain.Neutral, vote.Direction)
}
