package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenrik/clickseq/internal/logging"
	"github.com/fenrik/clickseq/internal/models"
)

// Recorder stamps engine events with the run's identity and forwards them to
// a sink. Sink failures are logged, never surfaced; recording must not abort
// a run. A nil Recorder drops everything, so callers never nil-check.
type Recorder struct {
	sink   Sink
	runID  string
	logger zerolog.Logger
}

// NewRecorder creates a recorder for one run.
func NewRecorder(sink Sink, runID string) *Recorder {
	return &Recorder{
		sink:   sink,
		runID:  runID,
		logger: logging.Component("events"),
	}
}

func (r *Recorder) emit(ctx context.Context, eventType models.EventType, payload any) {
	if r == nil || r.sink == nil {
		return
	}

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			r.logger.Warn().Err(err).Str("type", string(eventType)).Msg("failed to marshal event payload")
			return
		}
		raw = data
	}

	event := &models.Event{
		Timestamp:  time.Now().UTC(),
		Type:       eventType,
		EntityType: models.EntityTypeRun,
		EntityID:   r.runID,
		Payload:    raw,
	}
	if err := r.sink.Emit(ctx, event); err != nil {
		r.logger.Warn().Err(err).Str("type", string(eventType)).Msg("failed to record event")
	}
}

// RunStarted records the start of a run.
func (r *Recorder) RunStarted(ctx context.Context, sequenceName string, cycles int) {
	r.emit(ctx, models.EventTypeRunStarted, models.RunStartedPayload{
		SequenceName: sequenceName,
		Cycles:       cycles,
	})
}

// RunFinished records the run's terminal state with its final counters.
func (r *Recorder) RunFinished(ctx context.Context, sequenceName string, status models.RunStatus, stats models.RunStats, runErr error) {
	payload := models.RunFinishedPayload{
		SequenceName:    sequenceName,
		Status:          string(status),
		Elapsed:         stats.Elapsed.String(),
		CyclesCompleted: stats.CyclesCompleted,
		Clicks:          stats.Clicks,
		ItemsClicked:    stats.ItemsClicked,
		KeysPressed:     stats.KeysPressed,
	}
	if runErr != nil {
		payload.Error = runErr.Error()
	}

	eventType := models.EventTypeRunCompleted
	switch status {
	case models.RunStatusStopped:
		eventType = models.EventTypeRunStopped
	case models.RunStatusFailed:
		eventType = models.EventTypeRunFailed
	}
	r.emit(ctx, eventType, payload)
}

// RunPaused records a pause taking effect.
func (r *Recorder) RunPaused(ctx context.Context) {
	r.emit(ctx, models.EventTypeRunPaused, nil)
}

// RunResumed records a resume.
func (r *Recorder) RunResumed(ctx context.Context) {
	r.emit(ctx, models.EventTypeRunResumed, nil)
}

// RunRestarted records a reset back to the first cycle.
func (r *Recorder) RunRestarted(ctx context.Context) {
	r.emit(ctx, models.EventTypeRunRestarted, nil)
}

// CycleStarted records a cycle beginning. of is zero for unlimited runs.
func (r *Recorder) CycleStarted(ctx context.Context, cycle, of int) {
	r.emit(ctx, models.EventTypeCycleStarted, models.CyclePayload{Cycle: cycle, Of: of})
}

// CycleCompleted records a cycle finishing.
func (r *Recorder) CycleCompleted(ctx context.Context, cycle, of int) {
	r.emit(ctx, models.EventTypeCycleCompleted, models.CyclePayload{Cycle: cycle, Of: of})
}

// Click records a performed click.
func (r *Recorder) Click(ctx context.Context, pointID string, target models.Coord, count int) {
	r.emit(ctx, models.EventTypeClickPerformed, models.ClickPayload{
		PointID: pointID,
		X:       target.X,
		Y:       target.Y,
		Count:   count,
	})
}

// Key records an injected key press.
func (r *Recorder) Key(ctx context.Context, key string) {
	r.emit(ctx, models.EventTypeKeyPressed, models.KeyPayload{Key: key})
}

// StepSkipped records a wait resolved by the skip signal.
func (r *Recorder) StepSkipped(ctx context.Context, phase string, stepIndex int, waitKind string) {
	r.emit(ctx, models.EventTypeStepSkipped, models.TriggerPayload{
		Phase:     phase,
		StepIndex: stepIndex,
		WaitKind:  waitKind,
	})
}

// TriggerSatisfied records a wait that resolved on its own.
func (r *Recorder) TriggerSatisfied(ctx context.Context, phase string, stepIndex int, waitKind string, waited time.Duration) {
	r.emit(ctx, models.EventTypeTriggerSatisfied, models.TriggerPayload{
		Phase:     phase,
		StepIndex: stepIndex,
		WaitKind:  waitKind,
		Waited:    waited.String(),
	})
}

// TriggerTimeout records a wait that ran out of budget.
func (r *Recorder) TriggerTimeout(ctx context.Context, phase string, stepIndex int, waitKind string, waited time.Duration) {
	r.emit(ctx, models.EventTypeTriggerTimeout, models.TriggerPayload{
		Phase:     phase,
		StepIndex: stepIndex,
		WaitKind:  waitKind,
		Waited:    waited.String(),
	})
}

// Fallback records an ELSE branch being taken.
func (r *Recorder) Fallback(ctx context.Context, phase string, stepIndex int, action string) {
	r.emit(ctx, models.EventTypeFallbackTaken, models.FallbackPayload{
		Phase:     phase,
		StepIndex: stepIndex,
		Action:    action,
	})
}

// ScanResolved records the outcome of one scan sweep.
func (r *Recorder) ScanResolved(ctx context.Context, scanName, mode string, matches int) {
	r.emit(ctx, models.EventTypeScanResolved, models.ScanResolvedPayload{
		ScanConfig: scanName,
		Mode:       mode,
		Matches:    matches,
	})
}

// ItemClicked records a click on a resolved scan hit.
func (r *Recorder) ItemClicked(ctx context.Context, item, category string, priority int, slotID string, target models.Coord) {
	r.emit(ctx, models.EventTypeItemClicked, models.ItemClickedPayload{
		Item:     item,
		Category: category,
		Priority: priority,
		SlotID:   slotID,
		X:        target.X,
		Y:        target.Y,
	})
}

// FailSafe records the pointer tripping the fail-safe corner.
func (r *Recorder) FailSafe(ctx context.Context, x, y int) {
	r.emit(ctx, models.EventTypeFailSafeTriggered, models.FailSafePayload{X: x, Y: y})
}

// BudgetSpent records the total click budget running out.
func (r *Recorder) BudgetSpent(ctx context.Context, clicks int64) {
	r.emit(ctx, models.EventTypeClickBudgetSpent, models.ClickBudgetPayload{Clicks: clicks})
}

// Error records a run-scoped error.
func (r *Recorder) Error(ctx context.Context, scope string, err error) {
	if err == nil {
		return
	}
	r.emit(ctx, models.EventTypeError, models.ErrorPayload{
		Error:   err.Error(),
		Context: scope,
	})
}
