// Package cli formats a human-readable startup summary of the loaded
// configuration, grounded on the teacher's internal/cli.ConfigSummaryLines:
// one line per major section, "configured"/"not configured" for anything
// secret-backed so credentials never appear in the log.
package cli

import (
	"fmt"
	"os"

	"github.com/zeromicro/go-zero/core/logx"

	"binaryengine/internal/config"
)

// ConfigSummaryLines returns human readable lines describing the loaded
// engine config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Data path: %s", cfg.DataPath),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DataSource != "")),
		fmt.Sprintf("Cache TTL (short/medium/long): %ds / %ds / %ds", cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long),
		fmt.Sprintf("Scan interval: %ds, cycle budget: %ds", cfg.ScanIntervalSeconds, cfg.CycleBudgetSeconds),
		fmt.Sprintf("Consensus threshold: %.2f, min confidence: %.2f, min agreement: %.2f", cfg.ConsensusThreshold, cfg.MinConfidence, cfg.MinAgreement),
		fmt.Sprintf("Max drawdown: %.0f%%, daily loss limit: %.2f, max positions: %d", cfg.MaxDrawdownPct*100, cfg.DailyLossLimit, cfg.MaxPositionsTotal),
		fmt.Sprintf("Gateway base URL: %s", presence(cfg.GatewayBaseURL != "")),
		fmt.Sprintf("Price feed exchanges: %d configured", len(cfg.PriceFeedExchanges)),
		fmt.Sprintf("Shadow strategies: %s", sectionPresence(cfg.ShadowStrategies.File != "" || cfg.ShadowStrategies.Value != nil)),
		fmt.Sprintf("Venue credentials: %s", presence(os.Getenv(cfg.Credentials.VenueAPIKeyEnv) != "")),
		fmt.Sprintf("OpenAI predictor: %s (model %s)", presence(os.Getenv(cfg.Credentials.OpenAIAPIKeyEnv) != ""), cfg.OpenAIModel),
		fmt.Sprintf("Settlement chain: %s", presence(cfg.Settlement.USDCContract != "" && os.Getenv(cfg.Settlement.RPCURLEnv) != "")),
		fmt.Sprintf("Halt sentinel path: %s", cfg.HaltSentinelPath),
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sectionPresence(ok bool) string {
	if ok {
		return "configured"
	}
	return "none"
}
