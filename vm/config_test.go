package vm

import (
	"strings"
	"testing"
)

func TestLoadLimitsOverridesOnlyGivenFields(t *testing.T) {
	limits, err := LoadLimits(strings.NewReader("max_call_depth = 64\n"))
	if err != nil {
		t.Fatalf("LoadLimits error: %v", err)
	}
	if limits.MaxCallDepth != 64 {
		t.Errorf("MaxCallDepth = %d, want 64", limits.MaxCallDepth)
	}
	def := DefaultLimits()
	if limits.MaxStackDepth != def.MaxStackDepth {
		t.Errorf("MaxStackDepth = %d, want default %d", limits.MaxStackDepth, def.MaxStackDepth)
	}
}

func TestLoadLimitsRejectsBadToml(t *testing.T) {
	if _, err := LoadLimits(strings.NewReader("max_call_depth = [")); err == nil {
		t.Fatal("expected a TOML decode error")
	}
}
