// Package cli implements the clickseq command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fenrik/clickseq/internal/config"
	"github.com/fenrik/clickseq/internal/db"
	"github.com/fenrik/clickseq/internal/library"
	"github.com/fenrik/clickseq/internal/logging"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var (
	cfgFile        string
	dataDirFlag    string
	logLevelFlag   string
	jsonOutput     bool
	jsonlOutput    bool
	noProgress     bool
	nonInteractive bool
	assumeYes      bool

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "clickseq",
	Short: "Scripted click and key sequences gated by what is on screen",
	Long: `clickseq executes timed mouse and keyboard sequences whose steps wait on
pixel colors, item scans, and numbers read off the screen.

Sequences, points, item profiles, slots, and scan configurations live as
YAML files in the data directory (default ~/.config/clickseq).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dataDirFlag != "" {
			cfg.DataDir = dataDirFlag
		}
		if logLevelFlag != "" {
			cfg.LogLevel = logLevelFlag
		}
		appConfig = cfg

		logging.Setup(cfg.LogLevel, hasTTY() && !IsJSONOutput() && !IsJSONLOutput())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.yaml in the data dir)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default: ~/.config/clickseq)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVar(&jsonlOutput, "jsonl", false, "machine-readable JSON Lines output")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "suppress progress notes on stderr")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; fail where input would be required")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "assume yes for confirmation prompts")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var preflight *PreflightError
		if errors.As(err, &preflight) {
			fmt.Fprintln(os.Stderr, preflight.Error())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// GetConfig returns the configuration resolved for this invocation. Before
// PersistentPreRunE has run (tests call helpers directly) it falls back to
// the defaults.
func GetConfig() *config.Config {
	if appConfig == nil {
		appConfig = config.DefaultConfig()
	}
	return appConfig
}

// PreflightError is a user-actionable failure detected before any work
// happened. Execute prints it without the generic error prefix.
type PreflightError struct {
	Message  string
	Hint     string
	NextStep string
}

func (e *PreflightError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}
	if e.NextStep != "" {
		b.WriteString("\n  next: ")
		b.WriteString(e.NextStep)
	}
	return b.String()
}

// openDatabase opens the run-history database in the data dir and applies
// pending migrations. Callers own the returned handle.
func openDatabase() (*db.DB, error) {
	cfg := GetConfig()
	database, err := db.Open(filepath.Join(cfg.DataDir, "clickseq.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := database.MigrateUp(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return database, nil
}

// openLibrary loads points, slots, items, and scans from the data dir.
func openLibrary() (*library.Library, error) {
	cfg := GetConfig()
	lib, err := library.Open(cfg.DataDir, library.DefaultsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("load library: %w", err)
	}
	return lib, nil
}
