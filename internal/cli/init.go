// Package cli provides first-run setup.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

var initForce bool

// configDirFunc resolves the config directory. Tests override it.
var configDirFunc = defaultConfigDir

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up the config file and data directories",
	Long: `Check prerequisites, write a starter config file, and create the data
directories for sequences, point libraries, scan configs, templates, and
glyphs.`,
	Example: `  clickseq init
  clickseq init --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		results := []initResult{
			checkPrerequisites(),
			createConfigFile(),
			createDataDirs(GetConfig().DataDir),
		}

		if IsJSONOutput() || IsJSONLOutput() {
			steps := make([]InitStep, 0, len(results))
			for _, r := range results {
				steps = append(steps, InitStep{Name: r.name, Status: r.status, Message: r.message})
			}
			return WriteOutput(os.Stdout, steps)
		}

		headers := []string{"STEP", "STATUS", "MESSAGE"}
		rows := make([][]string, 0, len(results))
		failed := false
		for _, r := range results {
			if r.status == "failed" {
				failed = true
			}
			rows = append(rows, []string{r.name, formatInitStatus(r.status), r.message})
		}
		if err := writeTable(os.Stdout, headers, rows); err != nil {
			return err
		}

		if failed {
			return fmt.Errorf("init did not complete; fix the failed steps and rerun")
		}

		fmt.Println("\nNext steps:")
		fmt.Println("  clickseq sequences init my-first   scaffold a sequence")
		fmt.Println("  clickseq points add inbox --here   capture a click point")
		fmt.Println("  clickseq run my-first              start it")
		return nil
	},
}

// initResult is one row in the init report.
type initResult struct {
	name    string
	status  string // done, skipped, failed
	message string
}

// InitStep is the payload returned by `clickseq init` in JSON mode.
type InitStep struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// checkPrerequisites verifies the environment can inject input at all. On
// Linux that means a running display server; elsewhere the session is
// assumed graphical.
func checkPrerequisites() initResult {
	if runtime.GOOS != "linux" {
		return initResult{
			name:    "Display",
			status:  "done",
			message: fmt.Sprintf("graphical session assumed on %s", runtime.GOOS),
		}
	}

	if display := os.Getenv("DISPLAY"); display != "" {
		return initResult{name: "Display", status: "done", message: "X11 display " + display}
	}
	if wayland := os.Getenv("WAYLAND_DISPLAY"); wayland != "" {
		return initResult{name: "Display", status: "done", message: "Wayland display " + wayland}
	}
	return initResult{
		name:    "Display",
		status:  "failed",
		message: "no DISPLAY or WAYLAND_DISPLAY set; pointer injection needs a graphical session",
	}
}

// createConfigFile writes the starter config, skipping an existing file
// unless --force was given.
func createConfigFile() initResult {
	dir := configDirFunc()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return initResult{name: "Config file", status: "failed", message: err.Error()}
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil && !initForce {
		return initResult{
			name:    "Config file",
			status:  "skipped",
			message: fmt.Sprintf("%s already exists (use --force to overwrite)", path),
		}
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
		return initResult{name: "Config file", status: "failed", message: err.Error()}
	}
	return initResult{name: "Config file", status: "done", message: "wrote " + path}
}

// createDataDirs creates the data directory tree the other commands read.
func createDataDirs(dataDir string) initResult {
	subdirs := []string{"sequences", "scans", "templates", "glyphs"}
	for _, sub := range subdirs {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return initResult{name: "Data directories", status: "failed", message: err.Error()}
		}
	}
	return initResult{
		name:    "Data directories",
		status:  "done",
		message: fmt.Sprintf("%s (%s)", dataDir, strings.Join(subdirs, ", ")),
	}
}

// defaultConfigDir returns the platform config directory for clickseq,
// honoring XDG_CONFIG_HOME.
func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "clickseq")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clickseq"
	}
	return filepath.Join(home, ".config", "clickseq")
}

func formatInitStatus(status string) string {
	switch status {
	case "done":
		return colorize(status, colorGreen)
	case "skipped":
		return colorize(status, colorYellow)
	default:
		return colorize(status, colorRed)
	}
}

// configTemplate is the starter config written by `clickseq init`. The values
// match the built-in defaults, so editing a line is the only step needed to
// change a setting.
const configTemplate = `# clickseq Configuration File
#
# Loaded from this file, then overridden by CLICKSEQ_* environment
# variables (CLICKSEQ_LOG_LEVEL=debug, CLICKSEQ_FAILSAFE_ENABLED=false, ...).
# Durations accept Go syntax: 500ms, 2s, 5m.

# Where sequences, point libraries, scan configs, templates, glyphs, and the
# run database live. Empty selects ~/.config/clickseq.
data_dir: ""

# Logging: trace, debug, info, warn, error.
log_level: info

# Input pacing.
clicks_per_point: 1
click_move_delay: 10ms
post_click_delay: 50ms

# Click rate limiting. clicks_per_second 0 disables the limiter;
# max_total_clicks 0 disables the per-run cap.
clicks_per_second: 0
click_burst: 5
max_total_clicks: 0

# Fail-safe: slamming the pointer into the top-left corner stops the run.
failsafe_enabled: true
failsafe_corner: 5

# Trigger polling.
pixel_wait_tolerance: 10
pixel_wait_timeout: 300s
pixel_check_interval: 1s
number_wait_timeout: 300s
scan_wait_timeout: 300s
pause_check_interval: 500ms

# On-screen number reading.
number_min_confidence: 0.8
number_ink_tolerance: 50

# Item scanning.
marker_tolerance: 0
scan_reverse: false
scan_slot_delay: 100ms
item_click_delay: 1s
require_all_markers: true
min_markers_required: 2
default_min_confidence: 0.8
default_confirm_delay: 500ms

# Global control hotkeys during runs (ctrl+alt+p pause, ctrl+alt+x stop, ...).
hotkeys_enabled: true
`
