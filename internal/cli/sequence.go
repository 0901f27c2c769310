// Package cli provides sequence management commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fenrik/clickseq/internal/models"
	"github.com/fenrik/clickseq/internal/sequences"
)

var sequencesInitForce bool

func init() {
	rootCmd.AddCommand(sequencesCmd)
	sequencesCmd.AddCommand(sequencesListCmd)
	sequencesCmd.AddCommand(sequencesShowCmd)
	sequencesCmd.AddCommand(sequencesInitCmd)

	sequencesInitCmd.Flags().BoolVar(&sequencesInitForce, "force", false, "overwrite an existing sequence file")
}

var sequencesCmd = &cobra.Command{
	Use:     "sequences",
	Aliases: []string{"seq"},
	Short:   "Manage sequences",
	Long:    "List, inspect, and scaffold sequence definitions.",
}

var sequencesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available sequences",
	Long:  "List sequences from the data dir, the user config dir, the system dir, and the builtins.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		seqs, err := sequences.LoadAll(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("load sequences: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, seqs)
		}

		if len(seqs) == 0 {
			fmt.Fprintln(os.Stdout, "No sequences found. Create one with `clickseq sequences init <name>`.")
			return nil
		}

		dirs := sequences.SearchPaths(cfg.DataDir)
		rows := make([][]string, 0, len(seqs))
		for _, seq := range seqs {
			rows = append(rows, []string{
				seq.Name,
				sequenceSourceLabel(seq.Source, dirs),
				formatCycles(seq.Cycles),
				fmt.Sprintf("%d", len(seq.Loops)),
				fmt.Sprintf("%d", countSteps(seq)),
				orDash(seq.Description),
			})
		}
		return writeTable(os.Stdout, []string{"NAME", "SOURCE", "CYCLES", "LOOPS", "STEPS", "DESCRIPTION"}, rows)
	},
}

var sequencesShowCmd = &cobra.Command{
	Use:   "show <sequence>",
	Short: "Show a sequence step by step",
	Long:  "Render a sequence's phases and steps, resolved the way the engine will run them.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		seq, err := resolveSequence(cfg.DataDir, args[0])
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, seq)
		}

		label := sequenceSourceLabel(seq.Source, sequences.SearchPaths(cfg.DataDir))
		fmt.Fprintf(os.Stdout, "source: %s (%s)\n\n", label, seq.Source)
		fmt.Fprintln(os.Stdout, sequences.Describe(seq))
		return nil
	},
}

var sequencesInitCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Scaffold a new sequence file",
	Long:  "Write a starter sequence into the data dir's sequences directory.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		name, err := normalizeSequenceName(args[0])
		if err != nil {
			return err
		}

		dir := filepath.Join(cfg.DataDir, "sequences")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sequences dir: %w", err)
		}

		path := filepath.Join(dir, name+".yaml")
		if _, err := os.Stat(path); err == nil && !sequencesInitForce {
			return fmt.Errorf("sequence file %s already exists (use --force to overwrite)", path)
		}

		if err := os.WriteFile(path, []byte(sequenceTemplate(name)), 0o644); err != nil {
			return fmt.Errorf("write sequence file: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, map[string]any{"name": name, "path": path})
		}

		fmt.Fprintf(os.Stdout, "Created %s\n", path)
		fmt.Fprintf(os.Stdout, "Edit it, then check it with `clickseq sequences show %s`.\n", name)
		return nil
	},
}

// resolveSequence looks a sequence up by path or exact name, falling back
// to a case-insensitive name match.
func resolveSequence(dataDir, arg string) (*models.Sequence, error) {
	seq, err := sequences.Find(dataDir, arg)
	if err == nil {
		return seq, nil
	}
	if all, loadErr := sequences.LoadAll(dataDir); loadErr == nil {
		if match := findSequenceByName(all, arg); match != nil {
			return match, nil
		}
	}
	return nil, err
}

// findSequenceByName returns the sequence whose name matches, ignoring case.
// Partial matches do not count.
func findSequenceByName(items []*models.Sequence, name string) *models.Sequence {
	for _, seq := range items {
		if strings.EqualFold(seq.Name, name) {
			return seq
		}
	}
	return nil
}

// normalizeSequenceName validates a sequence name for use as a file name.
func normalizeSequenceName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("sequence name is required")
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("sequence name must not contain path separators: %q", name)
	}
	if strings.Contains(name, "..") {
		return "", fmt.Errorf("sequence name must not contain '..': %q", name)
	}
	return name, nil
}

// sequenceSourceLabel classifies where a sequence was loaded from. dirs is
// the search path in precedence order: data dir, user config, system.
func sequenceSourceLabel(source string, dirs []string) string {
	if source == "builtin" {
		return "builtin"
	}
	labels := []string{"data", "user", "system"}
	for i, dir := range dirs {
		if i >= len(labels) {
			break
		}
		if dir != "" && strings.HasPrefix(source, dir+string(filepath.Separator)) {
			return labels[i]
		}
	}
	return "file"
}

func countSteps(seq *models.Sequence) int {
	total := len(seq.Start.Steps) + len(seq.End.Steps)
	for _, loop := range seq.Loops {
		total += len(loop.Steps)
	}
	return total
}

func formatCycles(cycles int) string {
	if cycles == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", cycles)
}

func sequenceTemplate(name string) string {
	return fmt.Sprintf(`# %s: edit the steps, then check with: clickseq sequences show %s
name: %s
description: ""

# How many times the start + loop phases repeat. 0 runs until stopped.
cycles: 1

start:
  - type: click
    point: p1
    wait:
      duration: 500ms

loops:
  - name: main
    repetitions: 1
    steps:
      - type: wait
        wait:
          min: 1s
          max: 2s

end: []
`, name, name, name)
}
