package svc_test

import (
	"testing"

	"binaryengine/internal/config"
)

// TestIsTestEnv verifies the environment detection logic the rest of the
// service context's wiring branches on (e.g. which price feed/gateway
// implementation to construct).
func TestIsTestEnv(t *testing.T) {
	tests := []struct {
		env      string
		expected bool
	}{
		{"test", true},
		{"", true}, // empty defaults to test
		{"dev", false},
		{"prod", false},
	}

	for _, tt := range tests {
		t.Run("env="+tt.env, func(t *testing.T) {
			cfg := config.Config{
				Env:                tt.env,
				DataPath:           "./data",
				ConsensusThreshold: 0.65,
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if got := cfg.IsTestEnv(); got != tt.expected {
				t.Errorf("IsTestEnv() for env=%q: expected %v, got %v (normalized to %q)",
					tt.env, tt.expected, got, cfg.Env)
			}
		})
	}
}
