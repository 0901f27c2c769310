package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ClicksPerPoint != 1 {
		t.Fatalf("expected 1 click per point, got %d", cfg.ClicksPerPoint)
	}
	if cfg.PixelWaitTimeout != 300*time.Second {
		t.Fatalf("unexpected pixel wait timeout: %v", cfg.PixelWaitTimeout)
	}
	if cfg.PixelCheckInterval != time.Second {
		t.Fatalf("unexpected pixel check interval: %v", cfg.PixelCheckInterval)
	}
	if !cfg.FailSafeEnabled || cfg.FailSafeCorner != 5 {
		t.Fatalf("unexpected fail-safe defaults: %v corner=%d", cfg.FailSafeEnabled, cfg.FailSafeCorner)
	}
	if cfg.DefaultMinConfidence != 0.8 {
		t.Fatalf("unexpected min confidence: %v", cfg.DefaultMinConfidence)
	}
	if !cfg.RequireAllMarkers || cfg.MinMarkersRequired != 2 {
		t.Fatalf("unexpected marker policy defaults")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `log_level: debug
clicks_per_point: 2
pixel_check_interval: 250ms
scan_reverse: true
max_total_clicks: 500
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.LogLevel)
	}
	if cfg.ClicksPerPoint != 2 {
		t.Fatalf("expected 2 clicks per point, got %d", cfg.ClicksPerPoint)
	}
	if cfg.PixelCheckInterval != 250*time.Millisecond {
		t.Fatalf("unexpected interval: %v", cfg.PixelCheckInterval)
	}
	if !cfg.ScanReverse {
		t.Fatalf("expected scan_reverse true")
	}
	if cfg.MaxTotalClicks != 500 {
		t.Fatalf("unexpected click cap: %d", cfg.MaxTotalClicks)
	}
	if cfg.PostClickDelay != 50*time.Millisecond {
		t.Fatalf("defaults should survive partial files, got %v", cfg.PostClickDelay)
	}
	if cfg.DataDir == "" {
		t.Fatalf("expected data dir to be resolved")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}
