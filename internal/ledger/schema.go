package ledger

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// Migrate creates the outcome ledger's schema if it doesn't already exist:
// strategies, decisions, outcomes, agent_votes, performance, with the
// (strategy, crypto, epoch) uniqueness and (strategy, resolved_at)/
// (agent_name) indices §4.9 requires at minimum. Grounded on the sibling
// koshedutech-binance-trading-app repo's RunXMigration idiom (a named
// method running an ordered CREATE-TABLE-IF-NOT-EXISTS/CREATE-INDEX-IF-NOT-
// EXISTS slice over the same connection the rest of the package uses).
func Migrate(ctx context.Context, conn sqlx.SqlConn) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS strategies (
			name            VARCHAR(64) PRIMARY KEY,
			is_production   BOOLEAN NOT NULL DEFAULT FALSE,
			virtual_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id           BIGSERIAL PRIMARY KEY,
			strategy     VARCHAR(64) NOT NULL,
			crypto       VARCHAR(8) NOT NULL,
			epoch        BIGINT NOT NULL,
			direction    VARCHAR(8) NOT NULL,
			score        DOUBLE PRECISION NOT NULL DEFAULT 0,
			agreement    DOUBLE PRECISION NOT NULL DEFAULT 0,
			vetoed       BOOLEAN NOT NULL DEFAULT FALSE,
			veto_reason  TEXT[],
			reason       TEXT NOT NULL DEFAULT '',
			would_place  BOOLEAN NOT NULL DEFAULT FALSE,
			entry_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
			size         DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (strategy, crypto, epoch)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_strategy_created ON decisions(strategy, created_at)`,

		`CREATE TABLE IF NOT EXISTS outcomes (
			id                   BIGSERIAL PRIMARY KEY,
			strategy             VARCHAR(64) NOT NULL,
			crypto               VARCHAR(8) NOT NULL,
			epoch                BIGINT NOT NULL,
			resolved_direction   VARCHAR(8) NOT NULL,
			realised_pnl         DOUBLE PRECISION NOT NULL DEFAULT 0,
			predicted_direction  VARCHAR(8) NOT NULL,
			predicted_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			resolved_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (strategy, crypto, epoch)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_strategy_resolved ON outcomes(strategy, resolved_at)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_crypto_epoch ON outcomes(crypto, epoch DESC)`,

		`CREATE TABLE IF NOT EXISTS agent_votes (
			id         BIGSERIAL PRIMARY KEY,
			strategy   VARCHAR(64) NOT NULL,
			crypto     VARCHAR(8) NOT NULL,
			epoch      BIGINT NOT NULL,
			agent_name VARCHAR(64) NOT NULL,
			direction  VARCHAR(8) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			quality    DOUBLE PRECISION NOT NULL DEFAULT 0,
			UNIQUE (strategy, crypto, epoch, agent_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_votes_agent_name ON agent_votes(agent_name)`,

		`CREATE TABLE IF NOT EXISTS performance (
			agent_name VARCHAR(64) PRIMARY KEY,
			correct    BIGINT NOT NULL DEFAULT 0,
			total      BIGINT NOT NULL DEFAULT 0
		)`,
	}

	for _, statement := range statements {
		if _, err := conn.ExecCtx(ctx, statement); err != nil {
			logx.WithContext(ctx).Errorf("ledger: migration failed: %v", err)
			return err
		}
	}
	return nil
}
