// Package config loads the engine's YAML configuration: scan cadence,
// consensus gates, guardian limits, agent weights, shadow strategies, and
// the storage/cache/breaker settings every other package depends on.
// Grounded on internal/config.Config's rest.RestConf embedding and
// confkit.Section hydration pattern, trimmed of the per-module
// (LLM/executor/manager/exchange/market) sections this domain doesn't have
// and replaced with the trading-engine's own option set.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/rest"

	"binaryengine/internal/aggregator"
	"binaryengine/internal/breaker"
	"binaryengine/internal/domain"
	"binaryengine/internal/engineerr"
	"binaryengine/internal/guardian"
	"binaryengine/internal/pricefeed/httpfeed"
	"binaryengine/pkg/confkit"
)

// CacheTTL mirrors the teacher's read-through cache tier durations.
type CacheTTL struct {
	Short  int `json:",default=10"` // seconds
	Medium int `json:",default=60"`
	Long   int `json:",default=300"`
}

// PostgresConf configures the outcome ledger's connection pool.
type PostgresConf struct {
	DataSource  string        `json:",optional"`
	MaxOpen     int           `json:",default=10"`
	MaxIdle     int           `json:",default=5"`
	MaxLifetime time.Duration `json:",default=5m"`
}

// SettlementConf configures the on-chain USDC settlement client. RPCURLEnv
// and PrivateKeyEnv name the environment variables holding those values;
// the values themselves never appear in YAML.
type SettlementConf struct {
	RPCURLEnv     string `json:",default=SETTLEMENT_RPC_URL"`
	USDCContract  string `json:",optional"`
	PrivateKeyEnv string `json:",default=SETTLEMENT_PRIVATE_KEY"` // env var holding the hex key; never the key itself
	ChainID       int64  `json:",default=1"`
}

// CredentialsConf names the environment variables the venue gateway and ML
// predictor credentials are read from; as with SettlementConf.PrivateKeyEnv,
// only the variable names live in YAML, never the secret values.
type CredentialsConf struct {
	VenueWalletAddressEnv string `json:",default=VENUE_WALLET_ADDRESS"`
	VenuePrivateKeyEnv    string `json:",default=VENUE_PRIVATE_KEY"`
	VenueAPIKeyEnv        string `json:",default=VENUE_API_KEY"`
	VenueAPISecretEnv     string `json:",default=VENUE_API_SECRET"`
	VenuePassphraseEnv    string `json:",default=VENUE_PASSPHRASE"`
	OpenAIAPIKeyEnv       string `json:",default=OPENAI_API_KEY"`
}

// ExchangeEndpointConf is the YAML shape of one price-feed exchange
// endpoint, adapted into a pricefeed/httpfeed.ExchangeEndpoint.
type ExchangeEndpointConf struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
}

// ShadowStrategyConfig is the YAML shape of one shadow committee
// configuration, hydrated into a domain.ShadowStrategy.
type ShadowStrategyConfig struct {
	Name               string             `json:"name"`
	ConsensusThreshold float64            `json:"consensus_threshold,optional"`
	MinConfidence      float64            `json:"min_confidence,optional"`
	MinAgreement       float64            `json:"min_agreement,optional"`
	AgentsEnabled      map[string]bool    `json:"agents_enabled,optional"`
	AgentWeights       map[string]float64 `json:"agent_weights,optional"`
	MaxEntryPrice      float64            `json:"max_entry_price,optional"`
	Kelly              bool               `json:"kelly,optional"`
	VirtualBalance     float64            `json:"virtual_balance,optional"`
}

// ShadowSection is the hydrated shadow-strategies YAML section.
type ShadowSection = confkit.Section[[]ShadowStrategyConfig]

// PositionTierConfig is the YAML shape of one guardian.PositionTier entry.
type PositionTierConfig struct {
	BalanceCeiling float64 `json:"balance_ceiling"`
	Fraction       float64 `json:"fraction"`
}

// Config is the engine's top-level configuration, loaded via conf.Load
// with environment-variable expansion.
type Config struct {
	rest.RestConf

	// Env is the running environment: test | dev | prod.
	Env      string          `json:",default=test"`
	DataPath string          `json:",default=./data"`
	Postgres PostgresConf    `json:",optional"`
	Cache    cache.CacheConf `json:",optional"`
	TTL      CacheTTL        `json:",optional"`

	ScanIntervalSeconds int `json:",default=2"`
	CycleBudgetSeconds  int `json:",default=10"`

	ConsensusThreshold float64 `json:",default=0.65"`
	MinConfidence      float64 `json:",default=0.50"`
	MinAgreement       float64 `json:",default=0.50"`
	MaxEntryPrice      float64 `json:",default=0.30"`

	SentimentExtremeHigh float64 `json:",default=0.70"`
	SentimentExtremeLow  float64 `json:",default=0.20"`

	MaxDrawdownPct            float64 `json:",default=0.30"`
	DailyLossLimit            float64 `json:",optional"`
	MaxPositionsTotal         int     `json:",default=4"`
	MaxPositionsSameDirection int     `json:",default=3"`
	MaxConsecutiveLosses      int     `json:",default=10"`
	MinBet                    float64              `json:",default=1.10"`
	MaxBet                    float64              `json:",default=15"`
	PositionTiers             []PositionTierConfig `json:",optional"`

	AgentsEnabled map[string]bool    `json:",optional"`
	AgentWeights  map[string]float64 `json:",optional"`

	ShadowStrategies ShadowSection `json:",optional"`

	HaltSentinelPath string `json:",default=./data/halt"`

	GatewayBreakerThreshold int `json:",default=5"`
	GatewayBreakerCooldownS int `json:",default=30"`

	LedgerSpoolDir string `json:",default=./data/ledger-spool"`

	OpenAIModel string `json:",default=gpt-4o-mini"`

	Settlement  SettlementConf  `json:",optional"`
	Credentials CredentialsConf `json:",optional"`

	GatewayBaseURL     string                 `json:",optional"`
	PriceFeedExchanges []ExchangeEndpointConf `json:",optional"`

	mainPath string
	baseDir  string
}

const defaultConfigRelativePath = "etc/engine.yaml"

var configFileFlag = flag.String("f", defaultConfigRelativePath, "the config file")

func init() {
	confkit.LoadDotenvOnce()
}

// ConfigFile resolves the -f flag to an absolute path, searching upward
// from the working directory and executable location when the flag value
// is relative and not found in the current directory.
func ConfigFile() string {
	candidate := defaultConfigRelativePath
	if configFileFlag != nil {
		if trimmed := strings.TrimSpace(*configFileFlag); trimmed != "" {
			candidate = trimmed
		}
	}
	if resolved, ok := resolveConfigPath(candidate); ok {
		return resolved
	}
	return candidate
}

// OverrideConfigFile lets tests point the -f flag at a fixture path.
func OverrideConfigFile(path string) (restore func()) {
	prev := ConfigFile()
	if configFileFlag != nil {
		*configFileFlag = path
	}
	return func() {
		if configFileFlag != nil {
			*configFileFlag = prev
		}
	}
}

func (c *Config) IsTestEnv() bool {
	return c.Env == "test" || c.Env == ""
}

func resolveConfigPath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if filepath.IsAbs(path) {
		if fileExists(path) {
			return path, true
		}
		return "", false
	}

	startDirs := make([]string, 0, 2)
	if cwd, err := os.Getwd(); err == nil {
		startDirs = append(startDirs, cwd)
	}
	if exePath, err := os.Executable(); err == nil {
		startDirs = append(startDirs, filepath.Dir(exePath))
	}

	seen := make(map[string]struct{}, len(startDirs))
	for _, dir := range startDirs {
		dir = filepath.Clean(dir)
		if dir == "" {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		if resolved, ok := searchUpwards(dir, path); ok {
			return resolved, true
		}
	}
	return "", false
}

func searchUpwards(start, rel string) (string, bool) {
	dir := filepath.Clean(start)
	for {
		candidate := filepath.Join(dir, rel)
		if fileExists(candidate) {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func MustLoad() *Config {
	cfg, err := Load(ConfigFile())
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	confkit.LoadDotenvOnce()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w: %w", path, engineerr.ErrConfig, err)
	}

	var cfg Config
	if err := conf.Load(absPath, &cfg, conf.UseEnv()); err != nil {
		return nil, fmt.Errorf("load config %s: %w: %w", absPath, engineerr.ErrConfig, err)
	}

	cfg.mainPath = absPath
	cfg.baseDir = filepath.Dir(absPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", engineerr.ErrConfig, err)
	}
	if err := cfg.hydrateSections(); err != nil {
		return nil, fmt.Errorf("%w: %w", engineerr.ErrConfig, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "", "test", "dev", "prod":
		if strings.TrimSpace(c.Env) == "" {
			c.Env = "test"
		}
	default:
		return errors.New("config: env must be one of test|dev|prod")
	}
	if strings.TrimSpace(c.DataPath) == "" {
		return errors.New("config: dataPath is required")
	}
	if c.ConsensusThreshold <= 0 || c.ConsensusThreshold > 1 {
		return errors.New("config: consensusThreshold must be in (0,1]")
	}
	return nil
}

func (c *Config) hydrateSections() error {
	if err := c.ShadowStrategies.Hydrate(c.baseDir, loadShadowStrategies); err != nil {
		return fmt.Errorf("load shadow strategies: %w", err)
	}
	return nil
}

func loadShadowStrategies(path string) (*[]ShadowStrategyConfig, error) {
	var strategies []ShadowStrategyConfig
	if err := conf.Load(path, &strategies, conf.UseEnv()); err != nil {
		return nil, err
	}
	return &strategies, nil
}

func (c *Config) MainPath() string { return c.mainPath }
func (c *Config) BaseDir() string  { return c.baseDir }

// Thresholds adapts the flat YAML fields to aggregator.Thresholds.
func (c *Config) Thresholds() aggregator.Thresholds {
	return aggregator.Thresholds{
		ConsensusThreshold: c.ConsensusThreshold,
		MinConfidence:      c.MinConfidence,
		MinAgreement:       c.MinAgreement,
	}
}

// GuardianLimits adapts the flat YAML fields (and position tier table) to
// guardian.Limits.
func (c *Config) GuardianLimits() guardian.Limits {
	tiers := guardian.DefaultTiers()
	if len(c.PositionTiers) > 0 {
		tiers = make([]guardian.PositionTier, len(c.PositionTiers))
		for i, t := range c.PositionTiers {
			tiers[i] = guardian.PositionTier{BalanceCeiling: t.BalanceCeiling, Fraction: t.Fraction}
		}
	}
	return guardian.Limits{
		MaxDrawdownPct:            c.MaxDrawdownPct,
		DailyLossLimit:            c.DailyLossLimit,
		MaxPositionsSameDirection: c.MaxPositionsSameDirection,
		MaxPositionsTotal:         c.MaxPositionsTotal,
		MaxConsecutiveLosses:      c.MaxConsecutiveLosses,
		MinBet:                    c.MinBet,
		MaxBet:                    c.MaxBet,
		Tiers:                     tiers,
	}
}

// GatewayBreaker adapts the YAML breaker fields to breaker.Settings.
func (c *Config) GatewayBreaker() breaker.Settings {
	return breaker.Settings{
		FailureThreshold: uint32(c.GatewayBreakerThreshold),
		Cooldown:         time.Duration(c.GatewayBreakerCooldownS) * time.Second,
		CooldownCap:      5 * time.Minute,
	}
}

// PriceFeedEndpoints adapts the configured exchange list into the shape
// pricefeed/httpfeed.New expects.
func (c *Config) PriceFeedEndpoints() []httpfeed.ExchangeEndpoint {
	out := make([]httpfeed.ExchangeEndpoint, len(c.PriceFeedExchanges))
	for i, e := range c.PriceFeedExchanges {
		out[i] = httpfeed.ExchangeEndpoint{Name: e.Name, BaseURL: e.BaseURL}
	}
	return out
}

// ShadowStrategyList converts the hydrated YAML strategies to
// domain.ShadowStrategy, skipping hydration entirely (nil slice) when
// ShadowStrategies has no file configured.
func (c *Config) ShadowStrategyList() []domain.ShadowStrategy {
	if c.ShadowStrategies.Value == nil {
		return nil
	}
	out := make([]domain.ShadowStrategy, 0, len(*c.ShadowStrategies.Value))
	for _, s := range *c.ShadowStrategies.Value {
		out = append(out, domain.ShadowStrategy{
			Name:               s.Name,
			ConsensusThreshold: s.ConsensusThreshold,
			MinConfidence:      s.MinConfidence,
			MinAgreement:       s.MinAgreement,
			AgentsEnabled:      s.AgentsEnabled,
			AgentWeights:       s.AgentWeights,
			MaxEntryPrice:      s.MaxEntryPrice,
			Kelly:              s.Kelly,
			VirtualBalance:     s.VirtualBalance,
		})
	}
	return out
}
