package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenrik/clickseq/internal/events"
	"github.com/fenrik/clickseq/internal/input"
	"github.com/fenrik/clickseq/internal/models"
	"github.com/fenrik/clickseq/internal/trigger"
)

// throttleInterval spaces pacer retries while a click is rate limited.
const throttleInterval = 50 * time.Millisecond

// worker executes one run. It owns the live statistics and position and is
// the only goroutine that touches the injector.
type worker struct {
	engine  *Engine
	cfg     Config
	job     Run
	signals *Signals
	rec     *events.Recorder
	eval    *trigger.Evaluator
	pacer   *input.ClickPacer
	logger  zerolog.Logger
	runID   string

	stats models.RunStats
	pos   Position
}

func newWorker(e *Engine, job Run, signals *Signals, rec *events.Recorder, runID string) *worker {
	w := &worker{
		engine:  e,
		cfg:     e.config,
		job:     job,
		signals: signals,
		rec:     rec,
		logger:  e.logger.With().Str("run_id", runID).Logger(),
		runID:   runID,
		pacer:   input.NewClickPacer(e.config.Pacer),
	}
	w.eval = &trigger.Evaluator{
		Screen: e.deps.Screen,
		Gate:   signals,
		Points: func(id string) (models.Point, bool) {
			p, ok := job.Points[id]
			return p, ok
		},
		PixelTolerance: e.config.PixelTolerance,
		PollInterval:   e.config.PollInterval,
		PixelTimeout:   e.config.PixelTimeout,
		SliceInterval:  e.config.SliceInterval,
		Now:            e.now,
	}
	return w
}

func (w *worker) now() time.Time {
	return w.engine.now()
}

// run is the worker goroutine body: record the run, execute it, finalize.
func (w *worker) run(ctx context.Context) {
	seq := w.job.Sequence
	w.stats.StartedAt = w.now()
	w.pos = Position{Cycles: seq.Cycles}
	w.publish()

	record := &models.RunRecord{
		ID:           w.runID,
		SequenceName: seq.Name,
		Status:       models.RunStatusRunning,
		StartedAt:    w.stats.StartedAt,
	}
	w.createRecord(ctx, record)
	w.rec.RunStarted(ctx, seq.Name, seq.Cycles)

	runErr := w.execute(ctx)
	w.finalize(record, runErr)
}

// finalize reports the terminal status through the record, the event log,
// and the engine snapshot. It uses a background context because the run
// context may already be canceled.
func (w *worker) finalize(record *models.RunRecord, runErr error) {
	ctx := context.Background()
	status, reason := finalStatus(runErr)
	w.stats.Elapsed = w.now().Sub(w.stats.StartedAt)

	var reportErr error
	if status == models.RunStatusFailed {
		reportErr = runErr
	}

	if reason == "failsafe" && w.engine.deps.Injector != nil {
		x, y := w.engine.deps.Injector.PointerLocation()
		w.rec.FailSafe(ctx, x, y)
	}

	record.Status = status
	record.EndedAt = w.now()
	record.ApplyStats(w.stats)
	if reportErr != nil {
		record.Error = reportErr.Error()
	}
	if reason != "" {
		record.Metadata = map[string]string{"reason": reason}
	}
	w.updateRecord(ctx, record)
	w.rec.RunFinished(ctx, record.SequenceName, status, w.stats, reportErr)

	evt := w.logger.Info()
	if reportErr != nil {
		evt = w.logger.Error().Err(reportErr)
	}
	evt.Str("status", string(status)).
		Int("cycles_completed", w.stats.CyclesCompleted).
		Int64("clicks", w.stats.Clicks).
		Int64("items_clicked", w.stats.ItemsClicked).
		Dur("elapsed", w.stats.Elapsed).
		Msg("run finished")

	w.engine.finish(status, w.stats, reportErr)
}

// finalStatus maps the worker's exit error to the run's terminal status and
// the reason recorded in the run metadata.
func finalStatus(err error) (models.RunStatus, string) {
	switch {
	case err == nil:
		return models.RunStatusCompleted, ""
	case errors.Is(err, ErrStopRequested):
		return models.RunStatusStopped, "stop"
	case errors.Is(err, ErrQuitRequested):
		return models.RunStatusStopped, "quit"
	case errors.Is(err, ErrFailSafe):
		return models.RunStatusStopped, "failsafe"
	case errors.Is(err, ErrClickBudget):
		return models.RunStatusStopped, "budget"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.RunStatusStopped, "canceled"
	default:
		return models.RunStatusFailed, "error"
	}
}

// execute walks the cycles and the end phase, restarting from the first
// cycle whenever a restart unwinds the walk.
func (w *worker) execute(ctx context.Context) error {
	for {
		cycleErr := w.runCycles(ctx)
		if errors.Is(cycleErr, errRestart) {
			w.resetForRestart(ctx)
			continue
		}
		if cycleErr != nil && !runsEndPhase(cycleErr) {
			return cycleErr
		}
		if errors.Is(cycleErr, ErrStopRequested) {
			// Stop means finish up: the end phase still runs once.
			w.signals.clearStop()
		}

		endErr := w.runPhase(ctx, &w.job.Sequence.End, "end", 1, 1)
		if errors.Is(endErr, errRestart) {
			w.resetForRestart(ctx)
			continue
		}
		if cycleErr != nil {
			return cycleErr
		}
		return endErr
	}
}

// runsEndPhase reports whether the end phase still runs after this error.
// Fail-safe and budget unwinds re-trip their guard on the first end-phase
// checkpoint unless the condition cleared, so letting them through is safe.
func runsEndPhase(err error) bool {
	return errors.Is(err, ErrStopRequested) ||
		errors.Is(err, ErrFailSafe) ||
		errors.Is(err, ErrClickBudget)
}

func (w *worker) runCycles(ctx context.Context) error {
	seq := w.job.Sequence
	for cycle := 1; seq.Cycles == 0 || cycle <= seq.Cycles; cycle++ {
		w.setCycle(cycle)
		w.rec.CycleStarted(ctx, cycle, seq.Cycles)

		steps := len(seq.Start.Steps)
		if err := w.runPhase(ctx, &seq.Start, "start", 1, 1); err != nil {
			return err
		}
		for li := range seq.Loops {
			loop := &seq.Loops[li]
			reps := loop.Repetitions
			if reps < 1 {
				reps = 1
			}
			steps += len(loop.Steps) * reps
			for rep := 1; rep <= reps; rep++ {
				if err := w.runPhase(ctx, loop, loopLabel(loop, li), rep, reps); err != nil {
					return err
				}
			}
		}

		// An empty unlimited cycle would spin; idle one poll instead.
		if steps == 0 && seq.Cycles == 0 {
			if _, err := w.eval.Sleep(ctx, w.cfg.PollInterval); err != nil {
				return err
			}
		}

		w.stats.CyclesCompleted++
		w.publish()
		w.rec.CycleCompleted(ctx, cycle, seq.Cycles)
	}
	return nil
}

func loopLabel(loop *models.Phase, index int) string {
	if loop.Name != "" {
		return loop.Name
	}
	return fmt.Sprintf("loop %d", index+1)
}

func (w *worker) runPhase(ctx context.Context, phase *models.Phase, label string, rep, reps int) error {
	for i := range phase.Steps {
		w.setStep(label, rep, reps, i, len(phase.Steps))
		if err := w.signals.Checkpoint(ctx); err != nil {
			return err
		}
		if err := w.executeStep(ctx, label, i, &phase.Steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *worker) executeStep(ctx context.Context, phase string, index int, step *models.Step) error {
	switch step.Kind {
	case models.StepClick:
		ok, err := w.waitStep(ctx, phase, index, step)
		if err != nil || !ok {
			return err
		}
		return w.clickPoint(ctx, step.PointID)

	case models.StepWait:
		_, err := w.waitStep(ctx, phase, index, step)
		return err

	case models.StepKey:
		ok, err := w.waitStep(ctx, phase, index, step)
		if err != nil || !ok {
			return err
		}
		return w.pressKey(ctx, step.Key)

	case models.StepScan:
		return w.scanStep(ctx, phase, index, step)

	case models.StepWaitScan:
		return w.waitScanStep(ctx, phase, index, step)

	case models.StepWaitNumber:
		return w.waitNumberStep(ctx, phase, index, step)

	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

// waitStep evaluates the step's wait spec and reports whether the step's
// action should proceed. A timeout routes through the fallback, which never
// proceeds with the primary action.
func (w *worker) waitStep(ctx context.Context, phase string, index int, step *models.Step) (bool, error) {
	if step.Wait.Immediate() {
		return true, nil
	}
	started := w.now()
	res, err := w.eval.Wait(ctx, step.Wait)
	if err != nil {
		return false, err
	}
	return w.finishWait(ctx, phase, index, step, string(step.Wait.Kind), res, w.now().Sub(started))
}

// finishWait records the wait outcome and resolves a timeout through the
// step's fallback.
func (w *worker) finishWait(ctx context.Context, phase string, index int, step *models.Step, kind string, res trigger.Result, waited time.Duration) (bool, error) {
	if res == trigger.TimedOut {
		w.rec.TriggerTimeout(ctx, phase, index, kind, waited)
		return false, w.fallback(ctx, phase, index, step)
	}
	if w.signals.TookSkip() {
		w.rec.StepSkipped(ctx, phase, index, kind)
	} else {
		w.rec.TriggerSatisfied(ctx, phase, index, kind, waited)
	}
	return true, nil
}

// fallback resolves a failed trigger through the step's else action. A step
// without one makes the failure fatal.
func (w *worker) fallback(ctx context.Context, phase string, index int, step *models.Step) error {
	w.stats.TriggerTimeouts++
	w.publish()

	if step.Else == nil {
		return fmt.Errorf("%w: %s step %d in phase %s", ErrTriggerFailed, step.Kind, index+1, phase)
	}

	act := step.Else
	w.rec.Fallback(ctx, phase, index, string(act.Kind))
	w.logger.Warn().
		Str("phase", phase).
		Int("step", index+1).
		Str("action", string(act.Kind)).
		Msg("trigger failed, taking fallback")

	switch act.Kind {
	case models.ElseSkip:
		return nil

	case models.ElseRestart:
		return errRestart

	case models.ElseClickPoint:
		if act.Wait != nil && !act.Wait.Immediate() {
			res, err := w.eval.Wait(ctx, *act.Wait)
			if err != nil {
				return err
			}
			if res == trigger.TimedOut {
				return fmt.Errorf("%w: fallback wait for point %q timed out", ErrTriggerFailed, act.PointID)
			}
		}
		return w.clickPoint(ctx, act.PointID)

	case models.ElsePressKey:
		return w.pressKey(ctx, act.Key)

	default:
		return fmt.Errorf("unknown fallback kind %q", act.Kind)
	}
}

func (w *worker) scanStep(ctx context.Context, phase string, index int, step *models.Step) error {
	cfg := w.job.Scans[step.ScanConfig]
	hits, err := w.engine.deps.Resolver.Resolve(ctx, cfg, step.Mode)
	if err != nil {
		return err
	}

	mode := step.Mode
	if mode == "" {
		mode = cfg.Mode
	}
	w.rec.ScanResolved(ctx, cfg.Name, string(mode), len(hits))

	if len(hits) == 0 {
		return w.fallback(ctx, phase, index, step)
	}

	for i, hit := range hits {
		if i > 0 && w.cfg.ItemClickDelay > 0 {
			if _, err := w.eval.Sleep(ctx, w.cfg.ItemClickDelay); err != nil {
				return err
			}
		}
		if err := w.clickAt(ctx, hit.Slot.ID, hit.Target, w.cfg.ClicksPerPoint); err != nil {
			return err
		}
		w.stats.ItemsClicked++
		w.publish()
		w.rec.ItemClicked(ctx, hit.Item.Name, hit.Item.Category, hit.Item.Priority, hit.Slot.ID, hit.Target)

		if hit.Item.ConfirmOffset != nil {
			if hit.Item.ConfirmDelay > 0 {
				if _, err := w.eval.Sleep(ctx, hit.Item.ConfirmDelay); err != nil {
					return err
				}
			}
			confirm := hit.Target.Add(*hit.Item.ConfirmOffset)
			if err := w.clickAt(ctx, hit.Slot.ID, confirm, 1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *worker) waitScanStep(ctx context.Context, phase string, index int, step *models.Step) error {
	cfg := w.job.Scans[step.ScanConfig]
	wantFound := step.Polarity != models.ScanGone
	cond := func() (bool, error) {
		found, err := w.engine.deps.Resolver.Found(ctx, cfg, step.ItemFilter)
		if err != nil {
			return false, err
		}
		return found == wantFound, nil
	}

	started := w.now()
	res, err := w.eval.Poll(ctx, w.cfg.PollInterval, w.cfg.ScanTimeout, cond)
	if err != nil {
		return err
	}
	_, err = w.finishWait(ctx, phase, index, step, string(step.Kind), res, w.now().Sub(started))
	return err
}

func (w *worker) waitNumberStep(ctx context.Context, phase string, index int, step *models.Step) error {
	region := *step.Region
	cond := func() (bool, error) {
		img, err := w.engine.deps.Screen.CaptureRegion(region)
		if err != nil {
			return false, err
		}
		value, ok := w.engine.deps.Reader.Read(img)
		if !ok {
			return false, nil
		}
		return step.Comparator.Compare(value, step.Threshold), nil
	}

	started := w.now()
	res, err := w.eval.Poll(ctx, w.cfg.PollInterval, w.cfg.NumberTimeout, cond)
	if err != nil {
		return err
	}
	ok, err := w.finishWait(ctx, phase, index, step, string(step.Kind), res, w.now().Sub(started))
	if err != nil || !ok {
		return err
	}
	if step.ClickPointID != "" {
		return w.clickPoint(ctx, step.ClickPointID)
	}
	return nil
}

func (w *worker) clickPoint(ctx context.Context, pointID string) error {
	point, ok := w.job.Points[pointID]
	if !ok {
		return fmt.Errorf("%w: point %q", ErrMissingReference, pointID)
	}
	return w.clickAt(ctx, pointID, point.Coord(), w.cfg.ClicksPerPoint)
}

// clickAt performs one logical click: pacer admission, injection, counters.
// The injection itself is never interrupted.
func (w *worker) clickAt(ctx context.Context, label string, at models.Coord, count int) error {
	if err := w.admitClick(ctx); err != nil {
		return err
	}
	if err := w.engine.deps.Injector.Click(at.X, at.Y, count); err != nil {
		return fmt.Errorf("click at %d,%d: %w", at.X, at.Y, err)
	}
	w.stats.Clicks++
	w.publish()
	w.rec.Click(ctx, label, at, count)
	return nil
}

// admitClick passes the pacer. Throttling sleeps in short slices so control
// signals stay responsive; a spent budget ends the run like a stop.
func (w *worker) admitClick(ctx context.Context) error {
	for {
		switch w.pacer.Allow() {
		case input.Allowed:
			return nil
		case input.BudgetSpent:
			w.rec.BudgetSpent(ctx, w.stats.Clicks)
			return ErrClickBudget
		case input.Throttled:
			if err := w.signals.Checkpoint(ctx); err != nil {
				return err
			}
			if err := sleepCtx(ctx, throttleInterval); err != nil {
				return err
			}
		}
	}
}

func (w *worker) pressKey(ctx context.Context, key string) error {
	if err := w.engine.deps.Injector.PressKey(key); err != nil {
		return fmt.Errorf("press key %q: %w", key, err)
	}
	w.stats.KeysPressed++
	w.publish()
	w.rec.Key(ctx, key)
	return nil
}

// resetForRestart zeroes the counters and rewinds to the first cycle. The
// restart tally survives so the run record shows how often it happened.
func (w *worker) resetForRestart(ctx context.Context) {
	restarts := w.stats.Restarts + 1
	w.stats = models.RunStats{StartedAt: w.stats.StartedAt, Restarts: restarts}
	w.pos = Position{Cycles: w.job.Sequence.Cycles}
	w.publish()
	w.rec.RunRestarted(ctx)
	w.logger.Info().Int64("restarts", restarts).Msg("restarting from the first cycle")
}

func (w *worker) setCycle(cycle int) {
	w.pos.Cycle = cycle
	w.pos.Phase = ""
	w.pos.Repetition = 0
	w.pos.Repetitions = 0
	w.pos.Step = 0
	w.pos.Steps = 0
	w.publish()
}

func (w *worker) setStep(phase string, rep, reps, index, steps int) {
	w.pos.Phase = phase
	w.pos.Repetition = rep
	w.pos.Repetitions = reps
	w.pos.Step = index + 1
	w.pos.Steps = steps
	w.publish()
}

// publish copies the live statistics and position into the engine snapshot.
func (w *worker) publish() {
	e := w.engine
	e.statsMu.Lock()
	e.stats.Run = w.stats
	e.stats.Position = w.pos
	e.statsMu.Unlock()
}

func (w *worker) createRecord(ctx context.Context, record *models.RunRecord) {
	if w.engine.deps.Store == nil {
		return
	}
	if err := w.engine.deps.Store.Create(ctx, record); err != nil {
		w.logger.Warn().Err(err).Msg("failed to record run start")
	}
}

func (w *worker) updateRecord(ctx context.Context, record *models.RunRecord) {
	if w.engine.deps.Store == nil {
		return
	}
	if err := w.engine.deps.Store.Update(ctx, record); err != nil {
		w.logger.Warn().Err(err).Msg("failed to record run result")
	}
}
