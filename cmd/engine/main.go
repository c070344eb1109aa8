// Command engine runs the 15-minute binary-market autonomous trading loop:
// load config, wire every collaborator via svc.ServiceContext, and run the
// scheduler until a shutdown signal arrives. Grounded on the teacher's
// cmd/cron monitor (signal.NotifyContext shutdown, bounded grace period)
// generalised from a fixed-interval monitor loop to the scheduler's own
// multi-ticker Run loop.
package main

import (
	"context"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeromicro/go-zero/core/logx"

	"binaryengine/internal/cli"
	"binaryengine/internal/config"
	"binaryengine/internal/engineerr"
	"binaryengine/internal/svc"
)

const shutdownGrace = 10 * time.Second

const settlementAuditInterval = 15 * time.Minute

func main() {
	cfg, err := config.Load(config.ConfigFile())
	if err != nil {
		log.Printf("[main] config error: %v", err)
		os.Exit(engineerr.ExitCode(err))
	}

	logx.MustSetup(cfg.Log)
	defer logx.Close()

	cli.LogConfigSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serviceCtx := svc.NewServiceContext(*cfg)

	if serviceCtx.Settlement != nil {
		go runSettlementAudit(ctx, serviceCtx)
	}

	runErr := serviceCtx.Scheduler.Run(ctx)
	if runErr != nil {
		logx.Errorf("engine: scheduler stopped with error: %v", runErr)
		os.Exit(engineerr.ExitCode(runErr))
	}

	logx.Info("engine: shutdown complete")
}

// runSettlementAudit periodically cross-checks the venue's reported cash
// balance against the on-chain USDC balance, logging any divergence; it
// never mutates trading state, it only surfaces a discrepancy for an
// operator to investigate.
func runSettlementAudit(ctx context.Context, sc *svc.ServiceContext) {
	ticker := time.NewTicker(settlementAuditInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			auditOnce(ctx, sc)
		}
	}
}

func auditOnce(ctx context.Context, sc *svc.ServiceContext) {
	auditCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	venueCash, err := sc.Gateway.GetCashBalance(auditCtx)
	if err != nil {
		logx.WithContext(auditCtx).Errorf("settlement audit: venue balance: %v", err)
		return
	}
	wallet := os.Getenv(sc.Config.Credentials.VenueWalletAddressEnv)
	if wallet == "" {
		logx.WithContext(auditCtx).Infof("settlement audit: venue_cash=%.2f (no wallet address, on-chain check skipped)", venueCash)
		return
	}
	chainCash, err := sc.Settlement.USDCBalance(auditCtx, common.HexToAddress(wallet))
	if err != nil {
		logx.WithContext(auditCtx).Errorf("settlement audit: on-chain balance: %v", err)
		return
	}
	if math.Abs(venueCash-chainCash) > 0.01 {
		logx.WithContext(auditCtx).Errorf("settlement audit: divergence venue_cash=%.2f chain_usdc=%.2f", venueCash, chainCash)
		return
	}
	logx.WithContext(auditCtx).Infof("settlement audit: venue_cash=%.2f chain_usdc=%.2f", venueCash, chainCash)
}
