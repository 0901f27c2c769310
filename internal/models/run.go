package models

import (
	"time"
)

// RunStatus is the terminal (or current) state of a sequence run.
type RunStatus string

const (
	// RunStatusRunning marks a run still in progress.
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted marks a run that finished every cycle.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusStopped marks a run ended by a stop signal or the fail-safe.
	RunStatusStopped RunStatus = "stopped"

	// RunStatusFailed marks a run ended by a fatal error.
	RunStatusFailed RunStatus = "failed"
)

// RunStats are the counters a run accumulates. The worker owns the live
// copy; everyone else sees snapshots.
type RunStats struct {
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// Elapsed is the wall time spent so far.
	Elapsed time.Duration `json:"elapsed"`

	// CyclesCompleted counts fully finished cycles.
	CyclesCompleted int `json:"cycles_completed"`

	// Clicks counts logical clicks performed.
	Clicks int64 `json:"clicks"`

	// ItemsClicked counts scan hits that were clicked.
	ItemsClicked int64 `json:"items_clicked"`

	// KeysPressed counts injected key presses.
	KeysPressed int64 `json:"keys_pressed"`

	// TriggerTimeouts counts waits that timed out.
	TriggerTimeouts int64 `json:"trigger_timeouts"`

	// Restarts counts cycle resets, from fallbacks or the restart signal.
	Restarts int64 `json:"restarts"`
}

// RunRecord is one persisted sequence run.
type RunRecord struct {
	// ID is the unique identifier for the run.
	ID string `json:"id"`

	// SequenceName is the sequence that was executed.
	SequenceName string `json:"sequence_name"`

	// Status is the run's final (or current) status.
	Status RunStatus `json:"status"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// EndedAt is when the run finished. Zero while running.
	EndedAt time.Time `json:"ended_at,omitempty"`

	// CyclesCompleted, Clicks, ItemsClicked, KeysPressed, TriggerTimeouts,
	// and Restarts mirror the final RunStats counters.
	CyclesCompleted int   `json:"cycles_completed"`
	Clicks          int64 `json:"clicks"`
	ItemsClicked    int64 `json:"items_clicked"`
	KeysPressed     int64 `json:"keys_pressed"`
	TriggerTimeouts int64 `json:"trigger_timeouts"`
	Restarts        int64 `json:"restarts"`

	// Error holds the fatal error message for failed runs.
	Error string `json:"error,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ApplyStats copies the counters from a stats snapshot onto the record.
func (r *RunRecord) ApplyStats(stats RunStats) {
	r.CyclesCompleted = stats.CyclesCompleted
	r.Clicks = stats.Clicks
	r.ItemsClicked = stats.ItemsClicked
	r.KeysPressed = stats.KeysPressed
	r.TriggerTimeouts = stats.TriggerTimeouts
	r.Restarts = stats.Restarts
}

// RunSummary aggregates counters across runs.
type RunSummary struct {
	// SequenceName is set when the summary was filtered to one sequence.
	SequenceName string `json:"sequence_name,omitempty"`

	// Runs counts matching runs; Completed counts the ones that finished
	// every cycle.
	Runs      int64 `json:"runs"`
	Completed int64 `json:"completed"`

	// CyclesCompleted, Clicks, ItemsClicked, KeysPressed, TriggerTimeouts,
	// and Restarts sum the per-run counters.
	CyclesCompleted int64 `json:"cycles_completed"`
	Clicks          int64 `json:"clicks"`
	ItemsClicked    int64 `json:"items_clicked"`
	KeysPressed     int64 `json:"keys_pressed"`
	TriggerTimeouts int64 `json:"trigger_timeouts"`
	Restarts        int64 `json:"restarts"`

	// PeriodStart and PeriodEnd bound the summarized window when filters
	// were applied.
	PeriodStart time.Time `json:"period_start,omitempty"`
	PeriodEnd   time.Time `json:"period_end,omitempty"`
}

// RunQuery defines filters for querying run history.
type RunQuery struct {
	// SequenceName filters by sequence.
	SequenceName *string

	// Status filters by run status.
	Status *RunStatus

	// Since filters to runs started after this time (inclusive).
	Since *time.Time

	// Until filters to runs started before this time (exclusive).
	Until *time.Time

	// Limit is the maximum records to return.
	Limit int
}

// Validate checks if the run record is valid.
func (r *RunRecord) Validate() error {
	validation := &ValidationErrors{}
	if r.SequenceName == "" {
		validation.AddMessage("sequence_name", "sequence_name is required")
	}
	switch r.Status {
	case RunStatusRunning, RunStatusCompleted, RunStatusStopped, RunStatusFailed:
	default:
		validation.AddMessage("status", "unknown run status")
	}
	if r.StartedAt.IsZero() {
		validation.AddMessage("started_at", "started_at is required")
	}
	return validation.Err()
}
