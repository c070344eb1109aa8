// Package ledger is the durable, queryable outcome store: decisions,
// outcomes, and per-agent votes, with a read-through cache for hot queries
// and a spool for writes that fail after retries. Grounded on this codebase's
// internal/persistence/engine.Service upsert idiom (ON CONFLICT ... DO
// UPDATE over sqlx.SqlConn) and internal/repo.DBRepo's cache-then-fallback
// read pattern.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	enginecache "binaryengine/internal/cache"
	"binaryengine/internal/domain"
	"binaryengine/internal/engineerr"
)

const uniqueViolationCode = "23505"

// Ledger is the durable store. Reads go through the optional read-through
// cache layer first (internal/cache's key/TTL builders); writes always go
// straight to Postgres.
type Ledger struct {
	conn  sqlx.SqlConn
	cache cache.Cache // may be nil: caching is optional
	spool *Spool
	ttl   enginecache.TTLSet
}

// New constructs a Ledger. ttl configures the read-through cache's tiers;
// the zero value disables caching entirely (every TTL resolves to 0, which
// setCache treats as "don't cache").
func New(conn sqlx.SqlConn, c cache.Cache, spool *Spool, ttl enginecache.TTLSet) *Ledger {
	return &Ledger{conn: conn, cache: c, spool: spool, ttl: ttl}
}

// getCache reads key into v, following internal/repo.DBRepo's
// cache-then-fallback idiom: a nil cache or a not-found error both report
// a clean miss, never an error the caller needs to special-case.
func (l *Ledger) getCache(ctx context.Context, key string, v interface{}) bool {
	if l.cache == nil {
		return false
	}
	if err := l.cache.GetCtx(ctx, key, v); err != nil {
		if !l.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("ledger: cache get %s: %v", key, err)
		}
		return false
	}
	return true
}

func (l *Ledger) setCache(ctx context.Context, key string, ttl time.Duration, v interface{}) {
	if l.cache == nil || ttl <= 0 {
		return
	}
	if err := l.cache.SetWithExpireCtx(ctx, key, v, ttl); err != nil {
		logx.WithContext(ctx).Errorf("ledger: cache set %s: %v", key, err)
	}
}

// RecordDecision inserts one aggregate-decision row plus its vote trace,
// upserted on (strategy, crypto, epoch).
func (l *Ledger) RecordDecision(ctx context.Context, strategy string, decision domain.AggregateDecision) error {
	statement := `
INSERT INTO decisions (strategy, crypto, epoch, direction, score, agreement, vetoed, veto_reason, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
ON CONFLICT (strategy, crypto, epoch) DO UPDATE SET
    direction = EXCLUDED.direction,
    score = EXCLUDED.score,
    agreement = EXCLUDED.agreement,
    vetoed = EXCLUDED.vetoed,
    veto_reason = EXCLUDED.veto_reason,
    reason = EXCLUDED.reason;
`
	_, err := l.conn.ExecCtx(ctx, statement,
		strategy, string(decision.Crypto), decision.Epoch, string(decision.Direction),
		decision.Score, decision.Agreement, decision.Vetoed, pq.Array(decision.VetoReason), decision.Reason,
	)
	if err != nil {
		return l.handleWriteFailure(ctx, "record_decision", err, spoolEntry{Kind: spoolKindDecision, Strategy: strategy, Decision: &decision})
	}

	for _, v := range decision.Votes {
		voteErr := l.recordVote(ctx, strategy, decision.Crypto, decision.Epoch, v)
		if voteErr != nil {
			logx.WithContext(ctx).Errorf("ledger: record vote agent=%s: %v", v.Agent, voteErr)
		}
	}
	return nil
}

func (l *Ledger) recordVote(ctx context.Context, strategy string, crypto domain.Crypto, epoch int64, vote domain.Vote) error {
	statement := `
INSERT INTO agent_votes (strategy, crypto, epoch, agent_name, direction, confidence, quality)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (strategy, crypto, epoch, agent_name) DO UPDATE SET
    direction = EXCLUDED.direction,
    confidence = EXCLUDED.confidence,
    quality = EXCLUDED.quality;
`
	_, err := l.conn.ExecCtx(ctx, statement, strategy, string(crypto), epoch, vote.Agent, string(vote.Direction), vote.Confidence, vote.Quality)
	return err
}

// RecordOutcome upserts one outcome row keyed by (strategy, crypto, epoch).
// Returns inserted=false when the row already existed (invariant 5:
// idempotent under repeated resolution).
func (l *Ledger) RecordOutcome(ctx context.Context, outcome domain.Outcome) (inserted bool, err error) {
	found, lookupErr := l.lookupOutcome(ctx, outcome.Strategy, outcome.Crypto, outcome.Epoch)
	if lookupErr == nil && found {
		logx.WithContext(ctx).Infof("ledger: outcome already resolved strategy=%s crypto=%s epoch=%d", outcome.Strategy, outcome.Crypto, outcome.Epoch)
		return false, nil
	}

	statement := `
INSERT INTO outcomes (strategy, crypto, epoch, resolved_direction, realised_pnl, predicted_direction, predicted_confidence, resolved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (strategy, crypto, epoch) DO NOTHING;
`
	result, execErr := l.conn.ExecCtx(ctx, statement,
		outcome.Strategy, string(outcome.Crypto), outcome.Epoch, string(outcome.ResolvedDirection),
		outcome.RealisedPnL, string(outcome.PredictedDirection), outcome.PredictedConfidence,
	)
	if execErr != nil {
		if isUniqueViolation(execErr) {
			return false, nil
		}
		return false, l.handleWriteFailure(ctx, "record_outcome", execErr, spoolEntry{Kind: spoolKindOutcome, Outcome: &outcome})
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		if perfErr := l.updatePerformance(ctx, outcome); perfErr != nil {
			logx.WithContext(ctx).Errorf("ledger: update performance strategy=%s crypto=%s epoch=%d: %v", outcome.Strategy, outcome.Crypto, outcome.Epoch, perfErr)
		}
	}
	return rows > 0, nil
}

func (l *Ledger) lookupOutcome(ctx context.Context, strategy string, crypto domain.Crypto, epoch int64) (bool, error) {
	var count int
	err := l.conn.QueryRowCtx(ctx, &count,
		`SELECT COUNT(*) FROM outcomes WHERE strategy = $1 AND crypto = $2 AND epoch = $3`,
		strategy, string(crypto), epoch)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	return count > 0, nil
}

// handleWriteFailure does not retry the failed write: it escalates to
// CRITICAL at once and spools the write for later replay, LedgerWriteError
// class.
func (l *Ledger) handleWriteFailure(ctx context.Context, op string, err error, entry spoolEntry) error {
	wrapped := engineerr.LedgerWrite(op, err)
	logx.WithContext(ctx).Errorf("LEDGER WRITE CRITICAL: %v", wrapped)
	if l.spool != nil {
		entry.Op = op
		entry.At = time.Now()
		if spoolErr := l.spool.Enqueue(entry); spoolErr != nil {
			logx.WithContext(ctx).Errorf("ledger: spool enqueue failed op=%s: %v", op, spoolErr)
		}
	}
	return wrapped
}

// ReplaySpool re-applies every queued write from the spool. Entries that
// fail again are left in place for the next replay attempt.
func (l *Ledger) ReplaySpool(ctx context.Context) error {
	if l.spool == nil {
		return nil
	}
	return l.spool.Replay(func(entry spoolEntry) error {
		switch entry.Kind {
		case spoolKindDecision:
			if entry.Decision == nil {
				return nil
			}
			return l.recordDecisionDirect(ctx, entry.Strategy, *entry.Decision)
		case spoolKindOutcome:
			if entry.Outcome == nil {
				return nil
			}
			_, err := l.RecordOutcome(ctx, *entry.Outcome)
			return err
		case spoolKindShadowDecision:
			if entry.ShadowDecision == nil {
				return nil
			}
			return NewShadowRecorder(l).RecordDecision(*entry.ShadowDecision)
		default:
			return nil
		}
	})
}

// recordDecisionDirect performs the insert without re-spooling on failure,
// since ReplaySpool already owns retry sequencing.
func (l *Ledger) recordDecisionDirect(ctx context.Context, strategy string, decision domain.AggregateDecision) error {
	statement := `
INSERT INTO decisions (strategy, crypto, epoch, direction, score, agreement, vetoed, veto_reason, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
ON CONFLICT (strategy, crypto, epoch) DO UPDATE SET
    direction = EXCLUDED.direction,
    score = EXCLUDED.score,
    agreement = EXCLUDED.agreement;
`
	_, err := l.conn.ExecCtx(ctx, statement,
		strategy, string(decision.Crypto), decision.Epoch, string(decision.Direction),
		decision.Score, decision.Agreement, decision.Vetoed, pq.Array(decision.VetoReason), decision.Reason,
	)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	return false
}
