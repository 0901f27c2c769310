package cli

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/fenrik/clickseq/internal/config"
)

func TestCheckPrerequisites(t *testing.T) {
	if runtime.GOOS != "linux" {
		result := checkPrerequisites()
		if result.status != "done" {
			t.Errorf("expected status 'done' on %s, got %q", runtime.GOOS, result.status)
		}
		return
	}

	origDisplay := os.Getenv("DISPLAY")
	origWayland := os.Getenv("WAYLAND_DISPLAY")
	defer func() {
		os.Setenv("DISPLAY", origDisplay)
		os.Setenv("WAYLAND_DISPLAY", origWayland)
	}()

	t.Run("x11 display", func(t *testing.T) {
		os.Setenv("DISPLAY", ":0")
		os.Unsetenv("WAYLAND_DISPLAY")

		result := checkPrerequisites()
		if result.status != "done" {
			t.Errorf("expected status 'done', got %q: %s", result.status, result.message)
		}
		if !strings.Contains(result.message, ":0") {
			t.Errorf("expected message to mention the display, got: %s", result.message)
		}
	})

	t.Run("wayland display", func(t *testing.T) {
		os.Unsetenv("DISPLAY")
		os.Setenv("WAYLAND_DISPLAY", "wayland-1")

		result := checkPrerequisites()
		if result.status != "done" {
			t.Errorf("expected status 'done', got %q: %s", result.status, result.message)
		}
	})

	t.Run("headless", func(t *testing.T) {
		os.Unsetenv("DISPLAY")
		os.Unsetenv("WAYLAND_DISPLAY")

		result := checkPrerequisites()
		if result.status != "failed" {
			t.Errorf("expected status 'failed', got %q: %s", result.status, result.message)
		}
	})
}

func TestCreateConfigFile(t *testing.T) {
	tempDir := t.TempDir()

	// Override the config dir function
	originalFunc := configDirFunc
	configDirFunc = func() string {
		return tempDir
	}
	defer func() {
		configDirFunc = originalFunc
	}()

	originalForce := initForce
	initForce = true
	defer func() {
		initForce = originalForce
	}()

	result := createConfigFile()

	if result.status != "done" {
		t.Errorf("expected status 'done', got %q: %s", result.status, result.message)
	}

	configPath := filepath.Join(tempDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Errorf("config file was not created at %s", configPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	if !strings.Contains(string(content), "clickseq Configuration File") {
		t.Error("config file doesn't contain expected header")
	}
	if !strings.Contains(string(content), "failsafe_enabled: true") {
		t.Error("config file doesn't contain expected default")
	}
}

func TestCreateConfigFile_ExistingNoForce(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
		t.Fatalf("failed to create existing config: %v", err)
	}

	originalFunc := configDirFunc
	configDirFunc = func() string {
		return tempDir
	}
	defer func() {
		configDirFunc = originalFunc
	}()

	// No force, should skip
	originalForce := initForce
	initForce = false
	defer func() {
		initForce = originalForce
	}()

	result := createConfigFile()

	if result.status != "skipped" {
		t.Errorf("expected status 'skipped', got %q: %s", result.status, result.message)
	}

	// Verify original file unchanged
	content, _ := os.ReadFile(configPath)
	if string(content) != "existing" {
		t.Error("existing config was modified")
	}
}

func TestCreateDataDirs(t *testing.T) {
	tempDir := t.TempDir()

	result := createDataDirs(tempDir)
	if result.status != "done" {
		t.Fatalf("expected status 'done', got %q: %s", result.status, result.message)
	}

	for _, sub := range []string{"sequences", "scans", "templates", "glyphs"} {
		if info, err := os.Stat(filepath.Join(tempDir, sub)); err != nil || !info.IsDir() {
			t.Errorf("expected %s directory to exist", sub)
		}
	}
}

func TestDefaultConfigDir(t *testing.T) {
	// Test with XDG_CONFIG_HOME set
	originalXDG := os.Getenv("XDG_CONFIG_HOME")
	defer os.Setenv("XDG_CONFIG_HOME", originalXDG)

	os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	dir := defaultConfigDir()
	if dir != "/custom/config/clickseq" {
		t.Errorf("expected /custom/config/clickseq, got %s", dir)
	}

	// Test without XDG_CONFIG_HOME
	os.Unsetenv("XDG_CONFIG_HOME")
	dir = defaultConfigDir()
	homeDir, _ := os.UserHomeDir()
	expected := filepath.Join(homeDir, ".config", "clickseq")
	if dir != expected {
		t.Errorf("expected %s, got %s", expected, dir)
	}
}

func TestConfigTemplate(t *testing.T) {
	if !strings.HasPrefix(configTemplate, "# clickseq Configuration File") {
		t.Error("config template doesn't have expected header")
	}

	// Check essential keys exist
	keys := []string{
		"data_dir:",
		"log_level:",
		"clicks_per_point:",
		"failsafe_enabled:",
		"pixel_wait_timeout:",
		"number_min_confidence:",
		"marker_tolerance:",
		"item_click_delay:",
		"hotkeys_enabled:",
	}

	for _, key := range keys {
		if !strings.Contains(configTemplate, key) {
			t.Errorf("config template missing key: %s", key)
		}
	}
}

func TestConfigTemplate_LoadsCleanly(t *testing.T) {
	// The template must parse, and since it spells out the defaults it must
	// load back as the default config.
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}

	def := config.DefaultConfig()
	if cfg.LogLevel != def.LogLevel {
		t.Errorf("log_level = %q, want %q", cfg.LogLevel, def.LogLevel)
	}
	if cfg.FailSafeCorner != def.FailSafeCorner {
		t.Errorf("failsafe_corner = %d, want %d", cfg.FailSafeCorner, def.FailSafeCorner)
	}
	if cfg.PixelWaitTimeout != 300*time.Second {
		t.Errorf("pixel_wait_timeout = %v, want %v", cfg.PixelWaitTimeout, 300*time.Second)
	}
	if !cfg.HotkeysEnabled {
		t.Error("hotkeys_enabled should default to true")
	}
}

func TestInitResult_Structure(t *testing.T) {
	results := []initResult{
		{name: "Step 1", status: "done", message: "OK"},
		{name: "Step 2", status: "skipped", message: "Already exists"},
		{name: "Step 3", status: "failed", message: "Something went wrong"},
	}

	for i, r := range results {
		if r.name == "" {
			t.Errorf("result %d has empty name", i)
		}
		if r.status == "" {
			t.Errorf("result %d has empty status", i)
		}
	}

	validStatuses := map[string]bool{"done": true, "skipped": true, "failed": true}
	for i, r := range results {
		if !validStatuses[r.status] {
			t.Errorf("result %d has invalid status: %s", i, r.status)
		}
	}
}
