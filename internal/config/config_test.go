package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate_RequiresDataPath(t *testing.T) {
	cfg := &Config{ConsensusThreshold: 0.65}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when DataPath is empty")
	}
}

func TestValidate_RejectsBadEnv(t *testing.T) {
	cfg := &Config{Env: "staging", DataPath: "./data", ConsensusThreshold: 0.65}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unrecognised env")
	}
}

func TestValidate_RejectsBadConsensusThreshold(t *testing.T) {
	cfg := &Config{DataPath: "./data", ConsensusThreshold: 1.5}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range consensus threshold")
	}
}

func TestValidate_DefaultsEmptyEnvToTest(t *testing.T) {
	cfg := &Config{DataPath: "./data", ConsensusThreshold: 0.65}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Env != "test" {
		t.Fatalf("Env = %q, want test", cfg.Env)
	}
	if !cfg.IsTestEnv() {
		t.Fatal("IsTestEnv() should be true after defaulting")
	}
}

func TestGuardianLimits_UsesDefaultTiersWhenUnset(t *testing.T) {
	cfg := &Config{MaxDrawdownPct: 0.30, MaxPositionsTotal: 4, MaxPositionsSameDirection: 3, MaxConsecutiveLosses: 10, MinBet: 1.10, MaxBet: 15}
	limits := cfg.GuardianLimits()
	if len(limits.Tiers) != 4 {
		t.Fatalf("expected 4 default tiers, got %d", len(limits.Tiers))
	}
}

func TestGuardianLimits_UsesConfiguredTiers(t *testing.T) {
	cfg := &Config{PositionTiers: []PositionTierConfig{{BalanceCeiling: 50, Fraction: 0.2}}}
	limits := cfg.GuardianLimits()
	if len(limits.Tiers) != 1 || limits.Tiers[0].Fraction != 0.2 {
		t.Fatalf("expected configured tier to be used, got %+v", limits.Tiers)
	}
}

func TestThresholds_AdaptsFlatFields(t *testing.T) {
	cfg := &Config{ConsensusThreshold: 0.7, MinConfidence: 0.55, MinAgreement: 0.6}
	th := cfg.Thresholds()
	if th.ConsensusThreshold != 0.7 || th.MinConfidence != 0.55 || th.MinAgreement != 0.6 {
		t.Fatalf("Thresholds() = %+v, unexpected", th)
	}
}

func TestHydrateSections_LoadsShadowStrategies(t *testing.T) {
	dir := t.TempDir()
	shadowYAML := []byte(`
- name: aggressive
  consensus_threshold: 0.55
  kelly: true
  virtual_balance: 200
- name: conservative
  consensus_threshold: 0.75
  virtual_balance: 200
`)
	shadowPath := filepath.Join(dir, "shadow.yaml")
	if err := os.WriteFile(shadowPath, shadowYAML, 0o600); err != nil {
		t.Fatalf("write shadow.yaml: %v", err)
	}

	cfg := &Config{
		DataPath:           "./data",
		ConsensusThreshold: 0.65,
		baseDir:            dir,
		ShadowStrategies:   ShadowSection{File: "shadow.yaml"},
	}

	if err := cfg.hydrateSections(); err != nil {
		t.Fatalf("hydrateSections: %v", err)
	}

	strategies := cfg.ShadowStrategyList()
	if len(strategies) != 2 {
		t.Fatalf("expected 2 shadow strategies, got %d", len(strategies))
	}
	if strategies[0].Name != "aggressive" || !strategies[0].Kelly {
		t.Fatalf("strategy[0] = %+v, unexpected", strategies[0])
	}
}

func TestShadowStrategyList_NilWhenNotConfigured(t *testing.T) {
	cfg := &Config{}
	if got := cfg.ShadowStrategyList(); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
