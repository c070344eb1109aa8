package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/zeromicro/go-zero/core/logx"

	enginecache "binaryengine/internal/cache"
	"binaryengine/internal/domain"
)

// updatePerformance folds one resolved epoch into every agent's running
// correct/total counters, by joining the votes already recorded for this
// (strategy, crypto, epoch) against the just-resolved direction. Votes with
// Direction == Skip never count toward either side.
func (l *Ledger) updatePerformance(ctx context.Context, outcome domain.Outcome) error {
	var votes []struct {
		AgentName string `db:"agent_name"`
		Direction string `db:"direction"`
	}
	queryErr := l.conn.QueryRowsCtx(ctx, &votes,
		`SELECT agent_name, direction FROM agent_votes WHERE strategy = $1 AND crypto = $2 AND epoch = $3`,
		outcome.Strategy, string(outcome.Crypto), outcome.Epoch)
	if queryErr != nil {
		if errors.Is(queryErr, sql.ErrNoRows) {
			return nil
		}
		return queryErr
	}

	for _, v := range votes {
		if domain.Direction(v.Direction) == domain.Skip {
			continue
		}
		correct := domain.Direction(v.Direction) == outcome.ResolvedDirection
		if err := l.upsertPerformance(ctx, v.AgentName, correct); err != nil {
			return err
		}
		if l.cache != nil {
			key := enginecache.AgentAccuracyKey(v.AgentName)
			if err := l.cache.DelCtx(ctx, key); err != nil && !l.cache.IsNotFound(err) {
				logx.WithContext(ctx).Errorf("ledger: invalidate accuracy cache %s: %v", key, err)
			}
		}
	}
	if l.cache != nil {
		key := enginecache.RecentOutcomesKey(string(outcome.Crypto))
		if err := l.cache.DelCtx(ctx, key); err != nil && !l.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("ledger: invalidate recent-outcomes cache %s: %v", key, err)
		}
	}
	return nil
}

func (l *Ledger) upsertPerformance(ctx context.Context, agentName string, wasCorrect bool) error {
	correctDelta := 0
	if wasCorrect {
		correctDelta = 1
	}
	statement := `
INSERT INTO performance (agent_name, correct, total)
VALUES ($1, $2, 1)
ON CONFLICT (agent_name) DO UPDATE SET
    correct = performance.correct + EXCLUDED.correct,
    total = performance.total + 1;
`
	_, err := l.conn.ExecCtx(ctx, statement, agentName, correctDelta)
	return err
}

// accuracyCacheEntry is the cached payload for AgentAccuracyKey.
type accuracyCacheEntry struct {
	Accuracy    float64 `json:"accuracy"`
	SampleCount int     `json:"sample_count"`
}

// Accuracy satisfies scheduler.AccuracyStore (and the aggregator's
// AccuracyLookup signature) by reading the agent's last 50 non-Skip votes
// that have a resolved outcome, through the
// read-through cache described in internal/cache.AgentAccuracyKey. An agent
// with no rows yet returns (0.5, 0), keeping the aggregator's adaptive
// multiplier neutral until enough history accrues. Called once per agent
// per cycle by the aggregator, so this is the ledger's hottest read path.
func (l *Ledger) Accuracy(agentName string) (accuracy float64, sampleCount int) {
	ctx := context.Background()
	key := enginecache.AgentAccuracyKey(agentName)

	var cached accuracyCacheEntry
	if l.getCache(ctx, key, &cached) {
		return cached.Accuracy, cached.SampleCount
	}

	var row struct {
		Correct int `db:"correct"`
		Total   int `db:"total"`
	}
	err := l.conn.QueryRowCtx(ctx, &row,
		`SELECT COUNT(*) FILTER (WHERE correct) AS correct, COUNT(*) AS total FROM (
    SELECT v.direction = o.resolved_direction AS correct
    FROM agent_votes v
    JOIN outcomes o ON o.strategy = v.strategy AND o.crypto = v.crypto AND o.epoch = v.epoch
    WHERE v.agent_name = $1 AND v.direction <> 'skip'
    ORDER BY o.resolved_at DESC, o.id DESC
    LIMIT 50
) recent`, agentName)
	if err != nil || row.Total == 0 {
		// A (0.5, 0) default is never cached: caching "no history yet" would
		// keep a freshly-registered agent neutral past the TTL window even
		// after its first outcome resolves and updatePerformance invalidates
		// a key that was never set.
		return 0.5, 0
	}

	accuracy = float64(row.Correct) / float64(row.Total)
	sampleCount = row.Total
	l.setCache(ctx, key, enginecache.AgentAccuracyTTL(l.ttl), accuracyCacheEntry{Accuracy: accuracy, SampleCount: sampleCount})
	return accuracy, sampleCount
}

// RecentOutcomes returns the last n resolved outcomes for crypto, newest
// first, through the same read-through cache. Used by the scheduler to
// seed domain.MarketSnapshot.RecentOutcomes on first use per crypto after a
// restart, since the scheduler's own in-process history map starts empty.
func (l *Ledger) RecentOutcomes(ctx context.Context, crypto domain.Crypto, n int) ([]domain.EpochOutcome, error) {
	key := enginecache.RecentOutcomesKey(string(crypto))

	var cached []domain.EpochOutcome
	if l.getCache(ctx, key, &cached) {
		return truncateOutcomes(cached, n), nil
	}

	var rows []struct {
		Epoch     int64  `db:"epoch"`
		Direction string `db:"resolved_direction"`
	}
	err := l.conn.QueryRowsCtx(ctx, &rows,
		`SELECT epoch, resolved_direction FROM outcomes WHERE crypto = $1 ORDER BY epoch DESC LIMIT $2`,
		string(crypto), enginecache.RecentOutcomesFetchLimit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]domain.EpochOutcome, len(rows))
	for i, r := range rows {
		out[i] = domain.EpochOutcome{Epoch: r.Epoch, Direction: domain.Direction(r.Direction)}
	}
	l.setCache(ctx, key, enginecache.RecentOutcomesTTL(l.ttl), out)
	return truncateOutcomes(out, n), nil
}

func truncateOutcomes(outcomes []domain.EpochOutcome, n int) []domain.EpochOutcome {
	if n <= 0 || len(outcomes) <= n {
		return outcomes
	}
	return outcomes[:n]
}
