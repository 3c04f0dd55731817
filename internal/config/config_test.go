package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.Capture.FPS != DefaultFPS {
		t.Errorf("Capture.FPS = %v, want %v", cfg.Capture.FPS, DefaultFPS)
	}
	if cfg.Detection.SSIMThreshold != 0.92 {
		t.Errorf("Detection.SSIMThreshold = %v, want 0.92", cfg.Detection.SSIMThreshold)
	}
	if cfg.Gate.MinOcrChars != 20 {
		t.Errorf("Gate.MinOcrChars = %v, want 20", cfg.Gate.MinOcrChars)
	}
	if cfg.Relay.MaxQueueSize != 100 {
		t.Errorf("Relay.MaxQueueSize = %v, want 100", cfg.Relay.MaxQueueSize)
	}
	if cfg.Regions.GridSize != 16 {
		t.Errorf("Regions.GridSize = %v, want 16", cfg.Regions.GridSize)
	}
	if cfg.TextDetection.MinSize != [2]int{32, 16} {
		t.Errorf("TextDetection.MinSize = %v, want [32 16]", cfg.TextDetection.MinSize)
	}
	if cfg.Semantic.MaxHistory != 30 {
		t.Errorf("Semantic.MaxHistory = %v, want 30", cfg.Semantic.MaxHistory)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gate.CooldownMs != Default().Gate.CooldownMs {
		t.Errorf("expected default cooldown, got %v", cfg.Gate.CooldownMs)
	}
}

func TestLoadMalformedFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Detection.MinArea != Default().Detection.MinArea {
		t.Errorf("expected default MinArea on malformed file, got %v", cfg.Detection.MinArea)
	}
}

func TestLoadMergesOverridesAndPreservesUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.json")
	body := `{
		"gate": {"minOcrChars": 40},
		"relay": {"url": "wss://example.test/relay"},
		"futureSection": {"someNewKnob": true}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gate.MinOcrChars != 40 {
		t.Errorf("Gate.MinOcrChars = %v, want 40 (override)", cfg.Gate.MinOcrChars)
	}
	if cfg.Gate.CooldownMs != Default().Gate.CooldownMs {
		t.Errorf("Gate.CooldownMs should stay default when not overridden, got %v", cfg.Gate.CooldownMs)
	}
	if cfg.Relay.URL != "wss://example.test/relay" {
		t.Errorf("Relay.URL = %q, want override", cfg.Relay.URL)
	}
	if cfg.Relay.MaxQueueSize != Default().Relay.MaxQueueSize {
		t.Errorf("Relay.MaxQueueSize should stay default, got %v", cfg.Relay.MaxQueueSize)
	}
	if _, ok := cfg.Extra["futureSection"]; !ok {
		t.Error("unrecognized top-level section should survive in Extra")
	}
}

func TestLoadControlFile(t *testing.T) {
	if cf := LoadControl(""); !cf.Enabled {
		t.Error("empty path should default to enabled")
	}

	path := filepath.Join(t.TempDir(), "missing-control.json")
	if cf := LoadControl(path); !cf.Enabled {
		t.Error("missing control file should default to enabled")
	}

	malformed := filepath.Join(t.TempDir(), "bad-control.json")
	os.WriteFile(malformed, []byte("not json"), 0o644)
	if cf := LoadControl(malformed); !cf.Enabled {
		t.Error("malformed control file should default to enabled")
	}

	disabled := filepath.Join(t.TempDir(), "disabled-control.json")
	os.WriteFile(disabled, []byte(`{"enabled": false}`), 0o644)
	if cf := LoadControl(disabled); cf.Enabled {
		t.Error("control file with enabled=false should report disabled")
	}
}
