package ledger

import (
	"context"

	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/logx"

	"binaryengine/internal/domain"
)

// ShadowRecorder adapts *Ledger to shadow.Recorder: the shadow orchestrator
// calls its Recorder synchronously inside one snapshot's evaluation, so
// unlike the scheduler's Recorder (which threads a per-cycle context
// through), these two methods own a background context internally.
type ShadowRecorder struct {
	ledger *Ledger
}

// NewShadowRecorder wraps ledger for use as the shadow orchestrator's
// Recorder.
func NewShadowRecorder(ledger *Ledger) *ShadowRecorder {
	return &ShadowRecorder{ledger: ledger}
}

// RecordDecision upserts one shadow strategy's decision row into the same
// decisions table production decisions use, keyed by (strategy, crypto,
// epoch) like every other row there; strategy names are namespaced by the
// caller (the shadow orchestrator uses the strategy's own configured name,
// distinct from the scheduler's production strategy key).
func (r *ShadowRecorder) RecordDecision(d domain.ShadowDecision) error {
	ctx := context.Background()
	statement := `
INSERT INTO decisions (strategy, crypto, epoch, direction, score, agreement, vetoed, veto_reason, reason, would_place, entry_price, size, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
ON CONFLICT (strategy, crypto, epoch) DO UPDATE SET
    direction   = EXCLUDED.direction,
    score       = EXCLUDED.score,
    agreement   = EXCLUDED.agreement,
    vetoed      = EXCLUDED.vetoed,
    veto_reason = EXCLUDED.veto_reason,
    reason      = EXCLUDED.reason,
    would_place = EXCLUDED.would_place,
    entry_price = EXCLUDED.entry_price,
    size        = EXCLUDED.size;
`
	_, err := r.ledger.conn.ExecCtx(ctx, statement,
		d.Strategy, string(d.Crypto), d.SnapshotEpoch, string(d.Decision.Direction),
		d.Decision.Score, d.Decision.Agreement, d.Decision.Vetoed, pq.Array(d.Decision.VetoReason), d.Decision.Reason,
		d.WouldPlace, d.EntryPrice, d.Size,
	)
	if err != nil {
		wrapped := r.ledger.handleWriteFailure(ctx, "record_shadow_decision", err, spoolEntry{Kind: spoolKindShadowDecision, ShadowDecision: &d})
		logx.WithContext(ctx).Errorf("ledger: shadow decision strategy=%s crypto=%s epoch=%d: %v", d.Strategy, d.Crypto, d.SnapshotEpoch, wrapped)
		return wrapped
	}

	for _, v := range d.Decision.Votes {
		if voteErr := r.ledger.recordVote(ctx, d.Strategy, d.Crypto, d.SnapshotEpoch, v); voteErr != nil {
			logx.WithContext(ctx).Errorf("ledger: shadow vote agent=%s: %v", v.Agent, voteErr)
		}
	}
	return nil
}

// RecordOutcome delegates to the shared Ledger.RecordOutcome: outcomes are
// strategy-scoped the same way for production and shadow rows alike.
func (r *ShadowRecorder) RecordOutcome(outcome domain.Outcome) (bool, error) {
	return r.ledger.RecordOutcome(context.Background(), outcome)
}

var _ interface {
	RecordDecision(domain.ShadowDecision) error
	RecordOutcome(domain.Outcome) (bool, error)
} = (*ShadowRecorder)(nil)
