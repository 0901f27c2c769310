// Package cli provides run history commands.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenrik/clickseq/internal/db"
	"github.com/fenrik/clickseq/internal/models"
)

// pruneBatchSize caps how many rows a single prune statement deletes so a
// large backlog never holds the write lock for long.
const pruneBatchSize = 500

var (
	historyListSequence string
	historyListStatus   string
	historyListSince    string
	historyListLimit    int

	historyShowEvents int

	historyExportSequence string
	historyExportSince    string

	historyPruneOlderThan string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyPruneCmd)

	historyListCmd.Flags().StringVar(&historyListSequence, "sequence", "", "filter by sequence name")
	historyListCmd.Flags().StringVar(&historyListStatus, "status", "", "filter by status (running, completed, stopped, failed)")
	historyListCmd.Flags().StringVar(&historyListSince, "since", "", "only runs started after this time (duration like 24h or 7d, or a timestamp)")
	historyListCmd.Flags().IntVar(&historyListLimit, "limit", 20, "maximum runs to list")

	historyShowCmd.Flags().IntVar(&historyShowEvents, "events", 50, "maximum events to include")

	historyExportCmd.Flags().StringVar(&historyExportSequence, "sequence", "", "filter by sequence name")
	historyExportCmd.Flags().StringVar(&historyExportSince, "since", "", "only runs and events after this time")

	historyPruneCmd.Flags().StringVar(&historyPruneOlderThan, "older-than", "", "delete runs and events older than this (duration like 72h or 7d)")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past runs",
	Long:  "List, inspect, export, and prune recorded runs and their events.",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	Example: `  clickseq history list
  clickseq history list --sequence harvest --status failed
  clickseq history list --since 7d --limit 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		query := models.RunQuery{Limit: historyListLimit}
		if historyListSequence != "" {
			query.SequenceName = &historyListSequence
		}
		if historyListStatus != "" {
			status, err := parseRunStatus(historyListStatus)
			if err != nil {
				return err
			}
			query.Status = &status
		}
		since, err := ParseSince(historyListSince)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
		query.Since = since

		runs, err := db.NewRunRepository(database).Query(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to query runs: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, runs)
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded. Start one with 'clickseq run <sequence>'.")
			return nil
		}

		headers := []string{"ID", "SEQUENCE", "STATUS", "STARTED", "ELAPSED", "CYCLES", "CLICKS", "ITEMS", "TIMEOUTS"}
		rows := make([][]string, 0, len(runs))
		for _, run := range runs {
			rows = append(rows, []string{
				shortID(run.ID),
				run.SequenceName,
				formatRunStatus(run.Status),
				formatRunTime(run.StartedAt),
				formatRunElapsed(run),
				strconv.Itoa(run.CyclesCompleted),
				strconv.FormatInt(run.Clicks, 10),
				strconv.FormatInt(run.ItemsClicked, 10),
				strconv.FormatInt(run.TriggerTimeouts, 10),
			})
		}
		return writeTable(os.Stdout, headers, rows)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run>",
	Short: "Show one run with its events",
	Long:  "Show the stored counters for one run plus its recorded events. The run may be given as a full ID or a unique prefix.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		runRepo := db.NewRunRepository(database)
		eventRepo := db.NewEventRepository(database)

		run, err := resolveRun(ctx, runRepo, args[0])
		if err != nil {
			return err
		}

		events, err := eventRepo.ListByEntity(ctx, models.EntityTypeRun, run.ID, historyShowEvents)
		if err != nil {
			return fmt.Errorf("failed to list events for run %s: %w", shortID(run.ID), err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, RunDetail{Run: run, Events: events})
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintf(writer, "Run:\t%s\n", run.ID)
		fmt.Fprintf(writer, "Sequence:\t%s\n", run.SequenceName)
		fmt.Fprintf(writer, "Status:\t%s\n", formatRunStatus(run.Status))
		fmt.Fprintf(writer, "Started:\t%s\n", formatRunTime(run.StartedAt))
		if !run.EndedAt.IsZero() {
			fmt.Fprintf(writer, "Ended:\t%s\n", formatRunTime(run.EndedAt))
		}
		fmt.Fprintf(writer, "Elapsed:\t%s\n", formatRunElapsed(run))
		fmt.Fprintf(writer, "Cycles:\t%d\n", run.CyclesCompleted)
		fmt.Fprintf(writer, "Clicks:\t%d\n", run.Clicks)
		fmt.Fprintf(writer, "Items clicked:\t%d\n", run.ItemsClicked)
		fmt.Fprintf(writer, "Keys pressed:\t%d\n", run.KeysPressed)
		fmt.Fprintf(writer, "Trigger timeouts:\t%d\n", run.TriggerTimeouts)
		fmt.Fprintf(writer, "Restarts:\t%d\n", run.Restarts)
		if run.Error != "" {
			fmt.Fprintf(writer, "Error:\t%s\n", run.Error)
		}
		if err := writer.Flush(); err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Println("\nNo events recorded for this run.")
			return nil
		}

		fmt.Println()
		headers := []string{"TIME", "TYPE", "DETAIL"}
		rows := make([][]string, 0, len(events))
		for _, event := range events {
			rows = append(rows, []string{
				event.Timestamp.Local().Format("15:04:05"),
				formatEventType(event.Type),
				orDash(compactPayload(event.Payload)),
			})
		}
		return writeTable(os.Stdout, headers, rows)
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export runs and events",
	Long:  "Export run history for automation or reporting: an aggregate summary, the matching runs, and their events.",
	Example: `  clickseq history export --json > history.json
  clickseq history export --since 7d --sequence harvest --jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		runRepo := db.NewRunRepository(database)
		eventRepo := db.NewEventRepository(database)

		since, err := ParseSince(historyExportSince)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}

		var sequenceName *string
		if historyExportSequence != "" {
			sequenceName = &historyExportSequence
		}

		summary, err := runRepo.Summarize(ctx, sequenceName, since, nil)
		if err != nil {
			return fmt.Errorf("failed to summarize runs: %w", err)
		}

		runQuery := models.RunQuery{SequenceName: sequenceName, Since: since, Limit: exportRunLimit}
		runs, err := runRepo.Query(ctx, runQuery)
		if err != nil {
			return fmt.Errorf("failed to query runs: %w", err)
		}

		events, err := collectEvents(ctx, eventRepo, since, runs, sequenceName != nil)
		if err != nil {
			return err
		}

		export := HistoryExport{Summary: summary, Runs: runs, Events: events}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, export)
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintf(writer, "Runs:\t%d\n", summary.Runs)
		fmt.Fprintf(writer, "Completed:\t%d\n", summary.Completed)
		fmt.Fprintf(writer, "Cycles:\t%d\n", summary.CyclesCompleted)
		fmt.Fprintf(writer, "Clicks:\t%d\n", summary.Clicks)
		fmt.Fprintf(writer, "Items clicked:\t%d\n", summary.ItemsClicked)
		fmt.Fprintf(writer, "Keys pressed:\t%d\n", summary.KeysPressed)
		fmt.Fprintf(writer, "Trigger timeouts:\t%d\n", summary.TriggerTimeouts)
		fmt.Fprintf(writer, "Events:\t%d\n", len(events))
		if err := writer.Flush(); err != nil {
			return err
		}

		fmt.Println("Use --json or --jsonl for full export output.")
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old runs and events",
	Long:  "Delete runs and events older than a cutoff. Deletion happens in batches so large histories do not block other commands.",
	Example: `  clickseq history prune --older-than 30d
  clickseq history prune --older-than 72h --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if historyPruneOlderThan == "" {
			return fmt.Errorf("the --older-than flag is required (for example --older-than 30d)")
		}
		age, err := parseDurationWithDays(historyPruneOlderThan)
		if err != nil {
			return fmt.Errorf("invalid --older-than: %w", err)
		}
		if age <= 0 {
			return fmt.Errorf("invalid --older-than: %q is not a positive duration", historyPruneOlderThan)
		}
		before := time.Now().Add(-age)

		if !confirm(fmt.Sprintf("Delete all runs and events older than %s", historyPruneOlderThan)) {
			fmt.Println("Aborted.")
			return nil
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		runRepo := db.NewRunRepository(database)
		eventRepo := db.NewEventRepository(database)

		runsDeleted, err := pruneInBatches(func() (int64, error) {
			return runRepo.DeleteOlderThan(ctx, before, pruneBatchSize)
		})
		if err != nil {
			return fmt.Errorf("failed to prune runs: %w", err)
		}

		eventsDeleted, err := pruneInBatches(func() (int64, error) {
			return eventRepo.DeleteOlderThan(ctx, before, pruneBatchSize)
		})
		if err != nil {
			return fmt.Errorf("failed to prune events: %w", err)
		}

		result := PruneResult{RunsDeleted: runsDeleted, EventsDeleted: eventsDeleted, Before: before}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, result)
		}

		fmt.Printf("Deleted %d runs and %d events older than %s.\n", runsDeleted, eventsDeleted, historyPruneOlderThan)
		return nil
	},
}

// RunDetail is the payload returned by `clickseq history show`.
type RunDetail struct {
	Run    *models.RunRecord `json:"run"`
	Events []*models.Event   `json:"events"`
}

// HistoryExport is the payload returned by `clickseq history export`.
type HistoryExport struct {
	Summary *models.RunSummary  `json:"summary"`
	Runs    []*models.RunRecord `json:"runs"`
	Events  []*models.Event     `json:"events"`
}

// PruneResult is the payload returned by `clickseq history prune`.
type PruneResult struct {
	RunsDeleted   int64     `json:"runs_deleted"`
	EventsDeleted int64     `json:"events_deleted"`
	Before        time.Time `json:"before"`
}

// exportRunLimit bounds how many runs a single export includes.
const exportRunLimit = 10000

// resolveRun fetches a run by full ID, falling back to unique-prefix lookup
// over recent history.
func resolveRun(ctx context.Context, repo *db.RunRepository, arg string) (*models.RunRecord, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	run, err := repo.Get(ctx, arg)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, db.ErrRunNotFound) {
		return nil, fmt.Errorf("failed to load run %s: %w", arg, err)
	}

	candidates, err := repo.Query(ctx, models.RunQuery{Limit: 200})
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	var matches []*models.RunRecord
	for _, candidate := range candidates {
		if strings.HasPrefix(candidate.ID, arg) {
			matches = append(matches, candidate)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no run found matching %q", arg)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("run prefix %q is ambiguous (%d matches); use a longer prefix", arg, len(matches))
	}
}

// collectEvents pages through the event log for an export. When the run set
// was filtered by sequence the events are fetched per run instead, so the
// export never mixes in unrelated runs.
func collectEvents(ctx context.Context, repo *db.EventRepository, since *time.Time, runs []*models.RunRecord, perRun bool) ([]*models.Event, error) {
	if perRun {
		var events []*models.Event
		for _, run := range runs {
			runEvents, err := repo.ListByEntity(ctx, models.EntityTypeRun, run.ID, exportRunLimit)
			if err != nil {
				return nil, fmt.Errorf("failed to list events for run %s: %w", shortID(run.ID), err)
			}
			events = append(events, runEvents...)
		}
		return events, nil
	}

	var (
		events []*models.Event
		cursor string
	)
	for {
		page, err := repo.Query(ctx, db.EventQuery{Since: since, Cursor: cursor, Limit: pruneBatchSize})
		if err != nil {
			return nil, fmt.Errorf("failed to query events: %w", err)
		}
		events = append(events, page.Events...)
		if page.NextCursor == "" {
			return events, nil
		}
		cursor = page.NextCursor
	}
}

// pruneInBatches repeats a batched delete until it comes up short of the
// batch size, returning the total rows removed.
func pruneInBatches(deleteBatch func() (int64, error)) (int64, error) {
	var total int64
	for {
		n, err := deleteBatch()
		if err != nil {
			return total, err
		}
		total += n
		if n < pruneBatchSize {
			return total, nil
		}
	}
}

func parseRunStatus(value string) (models.RunStatus, error) {
	switch models.RunStatus(strings.ToLower(strings.TrimSpace(value))) {
	case models.RunStatusRunning:
		return models.RunStatusRunning, nil
	case models.RunStatusCompleted:
		return models.RunStatusCompleted, nil
	case models.RunStatusStopped:
		return models.RunStatusStopped, nil
	case models.RunStatusFailed:
		return models.RunStatusFailed, nil
	default:
		return "", fmt.Errorf("invalid status %q (want running, completed, stopped, or failed)", value)
	}
}

func formatRunTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatRunElapsed(run *models.RunRecord) string {
	if run.EndedAt.IsZero() {
		return "-"
	}
	return run.EndedAt.Sub(run.StartedAt).Truncate(time.Second).String()
}

// compactPayload renders an event payload as a single JSON line.
func compactPayload(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return string(payload)
	}
	return buf.String()
}
