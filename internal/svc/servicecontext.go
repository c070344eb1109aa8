// Package svc wires every collaborator the scheduler depends on from one
// loaded config.Config: the market gateway, price feed, agent committee,
// trading-state store, outcome ledger, shadow orchestrator, and the optional
// settlement-chain client. Grounded on this codebase's own
// internal/svc.NewServiceContext: one constructor, fatal on any
// misconfiguration, optional sub-collaborators gated on whether their config
// section was actually provided.
package svc

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	enginecache "binaryengine/internal/cache"
	"binaryengine/internal/committee"
	"binaryengine/internal/config"
	"binaryengine/internal/domain"
	"binaryengine/internal/engineerr"
	"binaryengine/internal/gateway"
	"binaryengine/internal/gateway/httpvenue"
	"binaryengine/internal/gateway/simvenue"
	"binaryengine/internal/ledger"
	"binaryengine/internal/mlclient"
	"binaryengine/internal/pricefeed"
	"binaryengine/internal/pricefeed/fixturefeed"
	"binaryengine/internal/pricefeed/httpfeed"
	"binaryengine/internal/scheduler"
	"binaryengine/internal/settlement"
	"binaryengine/internal/shadow"
	"binaryengine/internal/statestore"
)

// ServiceContext bundles everything cmd/engine needs to build and run a
// Scheduler.
type ServiceContext struct {
	Config config.Config

	Gateway   gateway.Gateway
	PriceFeed pricefeed.Feed
	Committee *committee.Registry
	State     *statestore.Store
	Ledger    *ledger.Ledger
	Shadow    *shadow.Orchestrator
	Scheduler *scheduler.Scheduler

	// DBConn and Cache are nil when no Postgres DSN is configured (test
	// environments run entirely off the in-memory fakes and a disk-backed
	// state file).
	DBConn sqlx.SqlConn
	Cache  cache.Cache

	// Settlement is nil unless both env vars SettlementConf names resolve
	// to non-empty values. It is not in the scheduler's dependency graph —
	// cmd/engine runs it as an independent periodic on-chain balance audit.
	Settlement *settlement.Client
}

// NewServiceContext builds every collaborator from c and returns a
// ServiceContext ready for a Scheduler to run. It is fatal (log.Fatalf) on
// any misconfiguration that would otherwise surface as a nil-pointer panic
// deep in a background goroutine.
func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{Config: c}

	svc.Gateway = buildGateway(c)
	svc.PriceFeed = buildPriceFeed(c)

	if c.Postgres.DataSource != "" {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DataSource)
		svc.DBConn = conn
		svc.Cache = cache.NewConn(c.Cache)

		if err := ledger.Migrate(context.Background(), conn); err != nil {
			log.Fatalf("svc: ledger migration: %v", err)
		}

		spool, err := ledger.NewSpool(c.LedgerSpoolDir)
		if err != nil {
			log.Fatalf("svc: ledger spool: %v", err)
		}
		svc.Ledger = ledger.New(conn, svc.Cache, spool, enginecache.NewTTLSet(c.TTL))

		if replayErr := svc.Ledger.ReplaySpool(context.Background()); replayErr != nil {
			logFatalOrWarn(c, "svc: ledger spool replay: %v", replayErr)
		}
	} else if !c.IsTestEnv() {
		log.Fatalf("svc: postgres.dataSource is required outside the test environment")
	}

	statePath := c.DataPath + "/state.json"
	store, err := statestore.Open(statePath, statestore.DefaultThresholds(), func() (float64, error) {
		return svc.Gateway.GetCashBalance(context.Background())
	})
	if err != nil {
		log.Printf("svc: open state store: %v", err)
		os.Exit(engineerr.ExitCode(err))
	}
	svc.State = store

	svc.Committee = committee.NewRegistry(5 * time.Minute)
	committee.RegisterDefaults(svc.Committee, buildPredictor(c), c.SentimentExtremeHigh, c.SentimentExtremeLow)

	if recorder := shadowRecorder(svc.Ledger); recorder != nil && len(c.ShadowStrategyList()) > 0 {
		svc.Shadow = shadow.New(c.ShadowStrategyList(), recorder)
	}

	svc.Settlement = buildSettlement(c)

	var recorder scheduler.Recorder = noopRecorder{}
	var accuracy scheduler.AccuracyStore = noopAccuracy{}
	if svc.Ledger != nil {
		recorder = svc.Ledger
		accuracy = svc.Ledger
	}

	svc.Scheduler = scheduler.New(scheduler.Config{
		ScanInterval:     time.Duration(c.ScanIntervalSeconds) * time.Second,
		CycleBudget:      time.Duration(c.CycleBudgetSeconds) * time.Second,
		Strategy:         "production",
		AgentsEnabled:    c.AgentsEnabled,
		AgentWeights:     c.AgentWeights,
		Thresholds:       c.Thresholds(),
		Limits:           c.GuardianLimits(),
		HaltSentinelPath: c.HaltSentinelPath,
	}, svc.Gateway, svc.PriceFeed, svc.Committee, svc.State, recorder, accuracy, svc.Shadow)

	return svc
}

func buildGateway(c config.Config) gateway.Gateway {
	if c.IsTestEnv() || c.GatewayBaseURL == "" {
		return simvenue.New(200)
	}
	creds := httpvenue.Credentials{
		WalletAddress: os.Getenv(c.Credentials.VenueWalletAddressEnv),
		PrivateKey:    os.Getenv(c.Credentials.VenuePrivateKeyEnv),
		APIKey:        os.Getenv(c.Credentials.VenueAPIKeyEnv),
		APISecret:     os.Getenv(c.Credentials.VenueAPISecretEnv),
		Passphrase:    os.Getenv(c.Credentials.VenuePassphraseEnv),
	}
	return httpvenue.New(c.GatewayBaseURL, creds, c.GatewayBreaker())
}

func buildPriceFeed(c config.Config) pricefeed.Feed {
	if c.IsTestEnv() || len(c.PriceFeedExchanges) == 0 {
		return fixturefeed.New()
	}
	return httpfeed.New(c.PriceFeedEndpoints(), c.GatewayBreaker())
}

func buildPredictor(c config.Config) mlclient.Predictor {
	apiKey := os.Getenv(c.Credentials.OpenAIAPIKeyEnv)
	if c.IsTestEnv() || apiKey == "" {
		return mlclient.Stub{ProbabilityUp: 0.5, ModelConfidence: 0}
	}
	return mlclient.NewOpenAIPredictor(apiKey, c.OpenAIModel, c.GatewayBreaker())
}

// buildSettlement constructs the on-chain audit client. Absent RPC/key/
// contract configuration (the common case outside prod) it returns nil;
// cmd/engine skips the audit goroutine entirely in that case.
func buildSettlement(c config.Config) *settlement.Client {
	rpcURL := os.Getenv(c.Settlement.RPCURLEnv)
	privateKey := os.Getenv(c.Settlement.PrivateKeyEnv)
	if rpcURL == "" || privateKey == "" || c.Settlement.USDCContract == "" {
		return nil
	}
	client, err := settlement.New(rpcURL, common.HexToAddress(c.Settlement.USDCContract), privateKey, c.Settlement.ChainID, c.GatewayBreaker())
	if err != nil {
		logFatalOrWarn(c, "svc: settlement client: %v", err)
		return nil
	}
	return client
}

func shadowRecorder(l *ledger.Ledger) shadow.Recorder {
	if l == nil {
		return nil
	}
	return ledger.NewShadowRecorder(l)
}

// logFatalOrWarn is fatal in prod/dev (a broken durable dependency at
// startup should stop the process per exit code 4) but only warns in the
// test environment, where Postgres and a settlement RPC are routinely
// absent.
func logFatalOrWarn(c config.Config, format string, args ...any) {
	if c.IsTestEnv() {
		log.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
	os.Exit(4)
}

// noopRecorder backs the scheduler when no ledger is configured (test
// environment with no Postgres DSN): decisions and outcomes are simply not
// persisted, and history is never seeded from storage.
type noopRecorder struct{}

func (noopRecorder) RecordDecision(context.Context, string, domain.AggregateDecision) error {
	return nil
}
func (noopRecorder) RecordOutcome(context.Context, domain.Outcome) (bool, error) { return true, nil }
func (noopRecorder) RecentOutcomes(context.Context, domain.Crypto, int) ([]domain.EpochOutcome, error) {
	return nil, nil
}

// noopAccuracy backs the aggregator's adaptive multiplier when no ledger is
// configured: every agent reports the neutral (0.5, 0) pair.
type noopAccuracy struct{}

func (noopAccuracy) Accuracy(string) (float64, int) { return 0.5, 0 }
