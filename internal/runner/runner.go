// Package runner owns sequence execution: a non-blocking control layer that
// accepts signals from the CLI, hotkeys, and watch view, and a single worker
// goroutine that walks the active sequence. One sequence runs at a time.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fenrik/clickseq/internal/config"
	"github.com/fenrik/clickseq/internal/events"
	"github.com/fenrik/clickseq/internal/input"
	"github.com/fenrik/clickseq/internal/logging"
	"github.com/fenrik/clickseq/internal/models"
	"github.com/fenrik/clickseq/internal/scan"
	"github.com/fenrik/clickseq/internal/screen"
	"github.com/fenrik/clickseq/internal/vision"
)

// Engine errors.
var (
	ErrAlreadyRunning   = errors.New("a sequence is already running")
	ErrNotRunning       = errors.New("no sequence is running")
	ErrShuttingDown     = errors.New("engine is shutting down")
	ErrMissingReference = errors.New("missing reference")
	ErrTriggerFailed    = errors.New("trigger failed with no fallback")
)

// Config contains the engine's execution knobs.
type Config struct {
	// ClicksPerPoint is how many physical clicks one logical click
	// injects. Default: 1.
	ClicksPerPoint int

	// PollInterval spaces pixel, scan, and number condition checks.
	// Default: 1 second.
	PollInterval time.Duration

	// SliceInterval spaces signal checks inside plain sleeps.
	// Default: 500ms.
	SliceInterval time.Duration

	// PauseCheckInterval is how often a paused worker re-checks the
	// signals. Default: 500ms.
	PauseCheckInterval time.Duration

	// PixelTolerance is the color distance within which a pixel matches.
	PixelTolerance float64

	// PixelTimeout, ScanTimeout, and NumberTimeout bound the respective
	// wait kinds. Default: 300 seconds each.
	PixelTimeout  time.Duration
	ScanTimeout   time.Duration
	NumberTimeout time.Duration

	// ItemClickDelay paces clicks on consecutive scan hits.
	// Default: 1 second.
	ItemClickDelay time.Duration

	// Pacer bounds the click stream (rate and per-run budget).
	Pacer input.PacerConfig
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		ClicksPerPoint:     1,
		PollInterval:       1 * time.Second,
		SliceInterval:      500 * time.Millisecond,
		PauseCheckInterval: 500 * time.Millisecond,
		PixelTolerance:     10,
		PixelTimeout:       300 * time.Second,
		ScanTimeout:        300 * time.Second,
		NumberTimeout:      300 * time.Second,
		ItemClickDelay:     1 * time.Second,
	}
}

// FromConfig maps the application configuration onto the engine knobs.
func FromConfig(cfg *config.Config) Config {
	return Config{
		ClicksPerPoint:     cfg.ClicksPerPoint,
		PollInterval:       cfg.PixelCheckInterval,
		SliceInterval:      cfg.PauseCheckInterval,
		PauseCheckInterval: cfg.PauseCheckInterval,
		PixelTolerance:     cfg.PixelWaitTolerance,
		PixelTimeout:       cfg.PixelWaitTimeout,
		ScanTimeout:        cfg.ScanWaitTimeout,
		NumberTimeout:      cfg.NumberWaitTimeout,
		ItemClickDelay:     cfg.ItemClickDelay,
		Pacer: input.PacerConfig{
			ClicksPerSecond: cfg.ClicksPerSecond,
			Burst:           cfg.ClickBurst,
			MaxTotalClicks:  cfg.MaxTotalClicks,
		},
	}
}

// RunStore persists run records. db.RunRepository implements it; tests use
// fakes. A nil store disables persistence.
type RunStore interface {
	Create(ctx context.Context, record *models.RunRecord) error
	Update(ctx context.Context, record *models.RunRecord) error
}

// Deps are the engine's collaborators. Injector and Screen are required;
// Reader is required only for sequences with number waits; Sink and Store
// may be nil.
type Deps struct {
	Injector input.Injector
	Screen   screen.Capturer
	Resolver *scan.Resolver
	Reader   *vision.Reader
	FailSafe *input.FailSafe
	Sink     events.Sink
	Store    RunStore
}

// Run bundles a validated sequence with the resolved references it needs.
// Loaders build it; the engine never reads storage itself.
type Run struct {
	Sequence *models.Sequence
	Points   map[string]models.Point
	Scans    map[string]*models.ScanConfig
}

// Position locates the worker inside the sequence. Step and Repetition are
// 1-based for display.
type Position struct {
	Cycle       int    `json:"cycle"`
	Cycles      int    `json:"cycles"`
	Phase       string `json:"phase,omitempty"`
	Repetition  int    `json:"repetition,omitempty"`
	Repetitions int    `json:"repetitions,omitempty"`
	Step        int    `json:"step,omitempty"`
	Steps       int    `json:"steps,omitempty"`
}

// Stats is an advisory snapshot of the engine for the control layer, the
// watch view, and the final report. The worker owns the live state; this is
// a copy.
type Stats struct {
	Running      bool             `json:"running"`
	Paused       bool             `json:"paused"`
	RunID        string           `json:"run_id,omitempty"`
	SequenceName string           `json:"sequence_name,omitempty"`
	Status       models.RunStatus `json:"status,omitempty"`
	Position     Position         `json:"position"`
	Run          models.RunStats  `json:"run"`
	Error        string           `json:"error,omitempty"`
}

// Engine executes sequences. The control methods never block on the worker;
// they flip signals the worker samples at its suspension points.
type Engine struct {
	config Config
	deps   Deps
	logger zerolog.Logger

	// Now is sampled for run timestamps and wait arithmetic. Tests inject
	// a fake clock.
	Now func() time.Time

	mu       sync.Mutex
	running  bool
	quit     bool
	cancel   context.CancelFunc
	signals  *Signals
	recorder *events.Recorder
	done     chan struct{}

	statsMu sync.RWMutex
	stats   Stats
}

// New creates an Engine.
func New(cfg Config, deps Deps) *Engine {
	def := DefaultConfig()
	if cfg.ClicksPerPoint < 1 {
		cfg.ClicksPerPoint = def.ClicksPerPoint
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.SliceInterval <= 0 {
		cfg.SliceInterval = def.SliceInterval
	}
	if cfg.PauseCheckInterval <= 0 {
		cfg.PauseCheckInterval = def.PauseCheckInterval
	}
	if cfg.PixelTimeout <= 0 {
		cfg.PixelTimeout = def.PixelTimeout
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = def.ScanTimeout
	}
	if cfg.NumberTimeout <= 0 {
		cfg.NumberTimeout = def.NumberTimeout
	}
	if deps.Sink == nil {
		deps.Sink = events.NoopSink{}
	}

	return &Engine{
		config: cfg,
		deps:   deps,
		logger: logging.Component("runner"),
		Now:    time.Now,
	}
}

// Start validates the run and launches the worker goroutine. It returns
// immediately; callers observe progress through Stats and Done.
func (e *Engine) Start(ctx context.Context, run Run) error {
	if run.Sequence == nil {
		return errors.New("no sequence to run")
	}
	if err := run.Sequence.Validate(); err != nil {
		return fmt.Errorf("sequence %q: %w", run.Sequence.Name, err)
	}
	if err := e.checkReferences(run); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.quit {
		return ErrShuttingDown
	}
	if e.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	runID := uuid.NewString()

	e.running = true
	e.cancel = cancel
	e.signals = NewSignals(e.deps.FailSafe, e.config.PauseCheckInterval)
	e.recorder = events.NewRecorder(e.deps.Sink, runID)
	e.done = make(chan struct{})

	e.statsMu.Lock()
	e.stats = Stats{
		Running:      true,
		RunID:        runID,
		SequenceName: run.Sequence.Name,
		Status:       models.RunStatusRunning,
		Position:     Position{Cycles: run.Sequence.Cycles},
		Run:          models.RunStats{StartedAt: e.now()},
	}
	e.statsMu.Unlock()

	w := newWorker(e, run, e.signals, e.recorder, runID)
	go w.run(runCtx)

	e.logger.Info().
		Str("run_id", runID).
		Str("sequence", run.Sequence.Name).
		Int("cycles", run.Sequence.Cycles).
		Msg("run starting")
	return nil
}

// checkReferences rejects dangling point and scan references before the
// worker starts, so a missing reference can never surface mid-run.
func (e *Engine) checkReferences(run Run) error {
	for _, id := range run.Sequence.PointRefs() {
		if _, ok := run.Points[id]; !ok {
			return fmt.Errorf("%w: point %q", ErrMissingReference, id)
		}
	}
	if scans := run.Sequence.ScanRefs(); len(scans) > 0 {
		if e.deps.Resolver == nil {
			return errors.New("sequence scans items but no resolver is wired")
		}
		for _, name := range scans {
			if _, ok := run.Scans[name]; !ok {
				return fmt.Errorf("%w: scan config %q", ErrMissingReference, name)
			}
		}
	}
	if e.deps.Reader == nil && readsNumbers(run.Sequence) {
		return errors.New("sequence reads numbers but no glyph set is loaded")
	}
	return nil
}

func readsNumbers(seq *models.Sequence) bool {
	found := false
	eachStep(seq, func(step *models.Step) {
		if step.Kind == models.StepWaitNumber {
			found = true
		}
	})
	return found
}

func eachStep(seq *models.Sequence, fn func(*models.Step)) {
	for i := range seq.Start.Steps {
		fn(&seq.Start.Steps[i])
	}
	for li := range seq.Loops {
		for i := range seq.Loops[li].Steps {
			fn(&seq.Loops[li].Steps[i])
		}
	}
	for i := range seq.End.Steps {
		fn(&seq.End.Steps[i])
	}
}

// Stop asks the worker to unwind the cycles and run the end phase.
func (e *Engine) Stop() error {
	return e.signal(func(s *Signals) { s.RequestStop() })
}

// Skip arms the one-shot skip; the next wait resolves immediately.
func (e *Engine) Skip() error {
	return e.signal(func(s *Signals) { s.RequestSkip() })
}

// Restart rewinds the run to the first cycle at the next step boundary,
// zeroing statistics like an else-restart fallback.
func (e *Engine) Restart() error {
	return e.signal(func(s *Signals) { s.RequestRestart() })
}

// Quit ends the current run without the end phase and refuses new starts.
func (e *Engine) Quit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quit = true
	if e.running && e.signals != nil {
		e.signals.RequestQuit()
	}
	return nil
}

// Pause blocks the worker at its next suspension point. Position and wait
// remainders are preserved.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.signals == nil {
		return ErrNotRunning
	}
	if !e.signals.SetPaused(true) {
		return nil
	}
	e.setPaused(true)
	e.recorder.RunPaused(context.Background())
	e.logger.Info().Msg("run paused")
	return nil
}

// Resume releases a paused worker.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.signals == nil {
		return ErrNotRunning
	}
	if !e.signals.SetPaused(false) {
		return nil
	}
	e.setPaused(false)
	e.recorder.RunResumed(context.Background())
	e.logger.Info().Msg("run resumed")
	return nil
}

// TogglePause pauses a running worker or resumes a paused one.
func (e *Engine) TogglePause() error {
	e.mu.Lock()
	paused := e.signals != nil && e.signals.Paused()
	e.mu.Unlock()
	if paused {
		return e.Resume()
	}
	return e.Pause()
}

func (e *Engine) signal(fn func(*Signals)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.signals == nil {
		return ErrNotRunning
	}
	fn(e.signals)
	return nil
}

// Running reports whether a worker is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Done returns a channel closed when the current run's worker exits. When
// nothing is running it returns an already-closed channel.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return e.done
}

// Stats returns a snapshot of the engine state. Elapsed is live while the
// run is in progress.
func (e *Engine) Stats() Stats {
	e.statsMu.RLock()
	st := e.stats
	e.statsMu.RUnlock()
	if st.Running && !st.Run.StartedAt.IsZero() {
		st.Run.Elapsed = e.now().Sub(st.Run.StartedAt)
	}
	return st
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) setPaused(paused bool) {
	e.statsMu.Lock()
	e.stats.Paused = paused
	e.statsMu.Unlock()
}

// finish is called by the worker after finalization.
func (e *Engine) finish(status models.RunStatus, stats models.RunStats, runErr error) {
	e.statsMu.Lock()
	e.stats.Running = false
	e.stats.Paused = false
	e.stats.Status = status
	e.stats.Run = stats
	if runErr != nil {
		e.stats.Error = runErr.Error()
	}
	e.statsMu.Unlock()

	e.mu.Lock()
	e.running = false
	e.signals = nil
	e.recorder = nil
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	done := e.done
	e.mu.Unlock()

	if done != nil {
		close(done)
	}
}
