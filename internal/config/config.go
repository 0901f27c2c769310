// Package config loads engine configuration from defaults, an optional YAML
// file, and CLICKSEQ_* environment overrides. The resulting Config is treated
// as immutable: it is resolved once at startup and passed by value into
// constructors.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the engine and its collaborators read.
type Config struct {
	// DataDir is the root for sequences, library files, templates and the
	// run database. Empty selects the platform default.
	DataDir string `mapstructure:"data_dir"`

	// LogLevel is the zerolog level name.
	LogLevel string `mapstructure:"log_level"`

	// Input pacing.
	ClicksPerPoint int           `mapstructure:"clicks_per_point"`
	ClickMoveDelay time.Duration `mapstructure:"click_move_delay"`
	PostClickDelay time.Duration `mapstructure:"post_click_delay"`

	// ClicksPerSecond rate-limits injected clicks. Zero disables the
	// limiter; ClickBurst is the bucket size when it is on.
	ClicksPerSecond float64 `mapstructure:"clicks_per_second"`
	ClickBurst      int     `mapstructure:"click_burst"`

	// MaxTotalClicks aborts the run once this many clicks were injected.
	// Zero disables the cap.
	MaxTotalClicks int64 `mapstructure:"max_total_clicks"`

	// Fail-safe: moving the pointer into the top-left corner of this size
	// stops the run before the next blocking operation.
	FailSafeEnabled bool `mapstructure:"failsafe_enabled"`
	FailSafeCorner  int  `mapstructure:"failsafe_corner"`

	// Trigger polling.
	PixelWaitTolerance float64       `mapstructure:"pixel_wait_tolerance"`
	PixelWaitTimeout   time.Duration `mapstructure:"pixel_wait_timeout"`
	PixelCheckInterval time.Duration `mapstructure:"pixel_check_interval"`
	NumberWaitTimeout  time.Duration `mapstructure:"number_wait_timeout"`
	ScanWaitTimeout    time.Duration `mapstructure:"scan_wait_timeout"`
	PauseCheckInterval time.Duration `mapstructure:"pause_check_interval"`

	// Number reading.
	NumberMinConfidence float64 `mapstructure:"number_min_confidence"`
	NumberInkTolerance  float64 `mapstructure:"number_ink_tolerance"`

	// Item scanning.
	MarkerTolerance      float64       `mapstructure:"marker_tolerance"`
	ScanReverse          bool          `mapstructure:"scan_reverse"`
	ScanSlotDelay        time.Duration `mapstructure:"scan_slot_delay"`
	ItemClickDelay       time.Duration `mapstructure:"item_click_delay"`
	RequireAllMarkers    bool          `mapstructure:"require_all_markers"`
	MinMarkersRequired   int           `mapstructure:"min_markers_required"`
	DefaultMinConfidence float64       `mapstructure:"default_min_confidence"`
	DefaultConfirmDelay  time.Duration `mapstructure:"default_confirm_delay"`

	// Hotkeys toggles the global control hotkeys during runs.
	HotkeysEnabled bool `mapstructure:"hotkeys_enabled"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:             "info",
		ClicksPerPoint:       1,
		ClickMoveDelay:       10 * time.Millisecond,
		PostClickDelay:       50 * time.Millisecond,
		ClicksPerSecond:      0,
		ClickBurst:           5,
		MaxTotalClicks:       0,
		FailSafeEnabled:      true,
		FailSafeCorner:       5,
		PixelWaitTolerance:   10,
		PixelWaitTimeout:     300 * time.Second,
		PixelCheckInterval:   time.Second,
		NumberWaitTimeout:    300 * time.Second,
		ScanWaitTimeout:      300 * time.Second,
		PauseCheckInterval:   500 * time.Millisecond,
		NumberMinConfidence:  0.8,
		NumberInkTolerance:   50,
		MarkerTolerance:      0,
		ScanReverse:          false,
		ScanSlotDelay:        100 * time.Millisecond,
		ItemClickDelay:       time.Second,
		RequireAllMarkers:    true,
		MinMarkersRequired:   2,
		DefaultMinConfidence: 0.8,
		DefaultConfirmDelay:  500 * time.Millisecond,
		HotkeysEnabled:       true,
	}
}

// Load resolves configuration from defaults, the config file (explicit path,
// or config.yaml in the data dir), and CLICKSEQ_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CLICKSEQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, dir := range configDirs() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	return cfg, nil
}

// DefaultDataDir returns ~/.config/clickseq, falling back to the working
// directory when the home directory cannot be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clickseq"
	}
	return filepath.Join(home, ".config", "clickseq")
}

func configDirs() []string {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "clickseq"))
	}
	return dirs
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("clicks_per_point", def.ClicksPerPoint)
	v.SetDefault("click_move_delay", def.ClickMoveDelay)
	v.SetDefault("post_click_delay", def.PostClickDelay)
	v.SetDefault("clicks_per_second", def.ClicksPerSecond)
	v.SetDefault("click_burst", def.ClickBurst)
	v.SetDefault("max_total_clicks", def.MaxTotalClicks)
	v.SetDefault("failsafe_enabled", def.FailSafeEnabled)
	v.SetDefault("failsafe_corner", def.FailSafeCorner)
	v.SetDefault("pixel_wait_tolerance", def.PixelWaitTolerance)
	v.SetDefault("pixel_wait_timeout", def.PixelWaitTimeout)
	v.SetDefault("pixel_check_interval", def.PixelCheckInterval)
	v.SetDefault("number_wait_timeout", def.NumberWaitTimeout)
	v.SetDefault("scan_wait_timeout", def.ScanWaitTimeout)
	v.SetDefault("pause_check_interval", def.PauseCheckInterval)
	v.SetDefault("number_min_confidence", def.NumberMinConfidence)
	v.SetDefault("number_ink_tolerance", def.NumberInkTolerance)
	v.SetDefault("marker_tolerance", def.MarkerTolerance)
	v.SetDefault("scan_reverse", def.ScanReverse)
	v.SetDefault("scan_slot_delay", def.ScanSlotDelay)
	v.SetDefault("item_click_delay", def.ItemClickDelay)
	v.SetDefault("require_all_markers", def.RequireAllMarkers)
	v.SetDefault("min_markers_required", def.MinMarkersRequired)
	v.SetDefault("default_min_confidence", def.DefaultMinConfidence)
	v.SetDefault("default_confirm_delay", def.DefaultConfirmDelay)
	v.SetDefault("hotkeys_enabled", def.HotkeysEnabled)
}
