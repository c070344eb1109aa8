// Package cache builds the Redis key/TTL vocabulary the outcome ledger's
// read-through cache layer uses in front of its hot queries (per-agent
// accuracy, recent per-crypto outcomes). Grounded on the teacher's own
// internal/cache key-builder/TTL-tier idiom, trimmed from the teacher's
// price/positions/trades/leaderboard key surface (none of which has an
// analogue in this domain) down to the two read paths the outcome ledger
// actually serves.
package cache

import (
	"strings"
	"time"

	"binaryengine/internal/config"
)

// Namespace is the Redis key prefix for this engine.
const Namespace = "binaryengine"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// AgentAccuracyKey caches one agent's rolling (accuracy, sample_count) pair,
// the value the aggregator's adaptive multiplier reads on every cycle.
func AgentAccuracyKey(agentName string) string {
	return formatKey("agent", "accuracy", agentName)
}

// AgentAccuracyTTL is short: performance rows change on every resolved
// epoch (every 15 minutes at most), but a stale read only skews the
// adaptive multiplier slightly rather than causing incorrect behaviour.
func AgentAccuracyTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// RecentOutcomesKey caches the last-K resolved outcomes for one crypto,
// the value MarketSnapshot.RecentOutcomes is built from each scan cycle.
func RecentOutcomesKey(crypto string) string {
	return formatKey("outcomes", "recent", crypto)
}

// RecentOutcomesTTL mirrors the scan interval: a snapshot refreshed every
// few seconds doesn't need a longer-lived cache entry than that.
func RecentOutcomesTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLShort)
}

// RecentOutcomesFetchLimit bounds how many rows the ledger pulls per
// crypto when (re)populating RecentOutcomesKey's cache entry; K=5 per the
// spec's "last K epoch outcomes" plus headroom for callers requesting more.
const RecentOutcomesFetchLimit = 20
