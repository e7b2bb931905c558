package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestFromYAMLOverrides(t *testing.T) {
	cfg, err := FromYAML([]byte("routing:\n  door_penalty: 5\n  bearing_wall_penalty: 20\nlighting:\n  target_lux: 400\n"))
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}
	if cfg.Routing.DoorPenalty != 5 {
		t.Fatalf("door penalty = %v, want 5", cfg.Routing.DoorPenalty)
	}
	if cfg.Lighting.TargetLux != 400 {
		t.Fatalf("target lux = %v, want 400", cfg.Lighting.TargetLux)
	}
	// untouched keys keep defaults
	if cfg.Lighting.EfficacyLmPerW != 110 {
		t.Fatalf("efficacy = %v, want default 110", cfg.Lighting.EfficacyLmPerW)
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yml")
	if err := os.WriteFile(path, []byte("engine:\n  stage_timeout_seconds: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if cfg.Engine.StageTimeoutSeconds != 7 {
		t.Fatalf("stage timeout = %d, want 7", cfg.Engine.StageTimeoutSeconds)
	}

	if _, err := FromFile(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejectsInvertedPenalties(t *testing.T) {
	cfg := Default()
	cfg.Routing.BearingWallPenalty = 1
	cfg.Routing.DoorPenalty = 5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for bearing wall penalty below door penalty")
	}
}

func TestValidateRejectsBadFactors(t *testing.T) {
	cfg := Default()
	cfg.Lighting.MaintenanceFactor = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero maintenance factor")
	}
}

func TestSkipRoomType(t *testing.T) {
	cfg := Default()
	if !cfg.SkipRoomType("corridor") {
		t.Fatal("corridor should be skipped by default")
	}
	if cfg.SkipRoomType("office") {
		t.Fatal("office should not be skipped")
	}
}
