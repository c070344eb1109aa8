package committee

import (
	"context"

	"binaryengine/internal/domain"
)

// GuardianVote is the veto-only committee member. It never contributes a
// direction: the aggregator drops its Skip vote before scoring, and the
// veto decision itself is enforced downstream by the guardian package
// against the trading state and open positions, not by this agent, which
// only has the immutable snapshot to work from. Its presence in the
// committee keeps the veto visible in the vote trace per the snapshot's
// mode field.
type GuardianVote struct{}

func NewGuardianVote() *GuardianVote { return &GuardianVote{} }

func (g *GuardianVote) Name() string { return "guardian" }

func (g *GuardianVote) Analyze(_ context.Context, snap domain.MarketSnapshot) (domain.Vote, error) {
	return domain.Vote{
		Direction: domain.Skip,
		Quality:   1.0,
		Details: map[string]any{
			"mode": string(snap.Mode),
		},
	}, nil
}

var _ Agent = (*GuardianVote)(nil)
