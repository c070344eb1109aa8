//go:build integration
// +build integration

package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "binaryengine/internal/config"
	"binaryengine/internal/domain"
	"binaryengine/internal/ledger"
	"binaryengine/internal/svc"
)

func newIntegrationServiceContext(t *testing.T) *svc.ServiceContext {
	t.Helper()
	cfg := appconfig.MustLoad()
	return svc.NewServiceContext(*cfg)
}

func TestLedger_RecordDecisionAndOutcome_RoundTrip(t *testing.T) {
	svcCtx := newIntegrationServiceContext(t)
	if svcCtx.Ledger == nil {
		t.Skip("postgres not configured (Ledger nil)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	epoch := time.Now().UnixNano()
	strategy := fmt.Sprintf("integration-%d", epoch)

	decision := domain.AggregateDecision{
		Crypto:    domain.BTC,
		Epoch:     epoch,
		Direction: domain.Up,
		Score:     0.8,
		Agreement: 0.75,
		Votes: []domain.Vote{
			{Agent: "technical", Direction: domain.Up, Confidence: 0.9, Quality: 0.8},
			{Agent: "sentiment", Direction: domain.Up, Confidence: 0.6, Quality: 0.5},
		},
	}
	require.NoError(t, svcCtx.Ledger.RecordDecision(ctx, strategy, decision))

	outcome := domain.Outcome{
		Strategy:            strategy,
		Crypto:              domain.BTC,
		Epoch:               epoch,
		ResolvedDirection:    domain.Up,
		RealisedPnL:          1.35,
		PredictedDirection:   domain.Up,
		PredictedConfidence:  0.8,
		ResolvedAt:           time.Now(),
	}
	inserted, err := svcCtx.Ledger.RecordOutcome(ctx, outcome)
	require.NoError(t, err)
	assert.True(t, inserted, "first outcome write should insert, not update")

	// Recording the same (strategy, crypto, epoch) outcome twice must not
	// duplicate the row.
	insertedAgain, err := svcCtx.Ledger.RecordOutcome(ctx, outcome)
	require.NoError(t, err)
	assert.False(t, insertedAgain, "duplicate outcome write should not insert a second row")

	recent, err := svcCtx.Ledger.RecentOutcomes(ctx, domain.BTC, 50)
	require.NoError(t, err)
	found := false
	for _, o := range recent {
		if o.Epoch == epoch {
			found = true
			break
		}
	}
	assert.True(t, found, "recorded outcome should appear in RecentOutcomes")

	accuracy, samples := svcCtx.Ledger.Accuracy("technical")
	assert.GreaterOrEqual(t, samples, 1, "agent accuracy sample count should include this outcome")
	assert.GreaterOrEqual(t, accuracy, 0.0)
	assert.LessOrEqual(t, accuracy, 1.0)
}

func TestLedger_ShadowRecorder_RecordsDecision(t *testing.T) {
	svcCtx := newIntegrationServiceContext(t)
	if svcCtx.Ledger == nil {
		t.Skip("postgres not configured (Ledger nil)")
	}

	recorder := ledger.NewShadowRecorder(svcCtx.Ledger)

	epoch := time.Now().UnixNano()
	decision := domain.ShadowDecision{
		SnapshotEpoch: epoch,
		Strategy:      fmt.Sprintf("shadow-integration-%d", epoch),
		Crypto:        domain.ETH,
		Decision:      domain.AggregateDecision{Crypto: domain.ETH, Epoch: epoch, Direction: domain.Up},
		WouldPlace:    true,
		EntryPrice:    0.42,
		Size:          5,
	}
	require.NoError(t, recorder.RecordDecision(decision))
}
