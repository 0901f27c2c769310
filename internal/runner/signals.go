package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fenrik/clickseq/internal/input"
)

// Control errors. They unwind the worker to its finalization path; the
// engine maps each to a terminal run status.
var (
	// ErrStopRequested ends the run after the end phase.
	ErrStopRequested = errors.New("stop requested")

	// ErrQuitRequested ends the run immediately, without the end phase.
	ErrQuitRequested = errors.New("quit requested")

	// ErrFailSafe reports the pointer parked in the fail-safe corner.
	// Treated like a stop, except the corner check keeps firing until the
	// pointer moves, so the end phase cannot inject anything meanwhile.
	ErrFailSafe = errors.New("fail-safe triggered")

	// ErrClickBudget reports a spent per-run click budget. Treated like a
	// stop.
	ErrClickBudget = errors.New("click budget spent")
)

// errRestart rewinds the worker to the first cycle. Never escapes the
// worker.
var errRestart = errors.New("restart requested")

// Signals carries the control flags between the control layer and the
// worker. The control layer sets flags; the worker samples them at its
// suspension points and clears the one-shot ones. One instance serves one
// run.
//
// Check is the wait-time suspension point (it consumes a pending skip);
// Checkpoint is the step-boundary one (it consumes a pending restart). Both
// block while paused and both sample the fail-safe first, so a parked
// pointer wins over everything else.
type Signals struct {
	failSafe      *input.FailSafe
	pauseInterval time.Duration

	mu       sync.Mutex
	stop     bool
	quit     bool
	skip     bool
	restart  bool
	paused   bool
	tookSkip bool
}

// NewSignals builds the signal set for one run.
func NewSignals(failSafe *input.FailSafe, pauseInterval time.Duration) *Signals {
	if pauseInterval <= 0 {
		pauseInterval = 500 * time.Millisecond
	}
	return &Signals{failSafe: failSafe, pauseInterval: pauseInterval}
}

// RequestStop asks the worker to unwind and run the end phase.
func (s *Signals) RequestStop() {
	s.mu.Lock()
	s.stop = true
	s.mu.Unlock()
}

// RequestQuit asks the worker to unwind without the end phase.
func (s *Signals) RequestQuit() {
	s.mu.Lock()
	s.quit = true
	s.mu.Unlock()
}

// RequestSkip arms the one-shot skip. The next wait check consumes it and
// resolves that wait alone.
func (s *Signals) RequestSkip() {
	s.mu.Lock()
	s.skip = true
	s.mu.Unlock()
}

// RequestRestart asks the worker to rewind to the first cycle at the next
// step boundary.
func (s *Signals) RequestRestart() {
	s.mu.Lock()
	s.restart = true
	s.mu.Unlock()
}

// SetPaused flips the pause flag and reports whether the value changed.
// While paused the worker blocks at its next suspension point without
// losing position or wait remainder.
func (s *Signals) SetPaused(paused bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == paused {
		return false
	}
	s.paused = paused
	return true
}

// Paused reports the current pause flag.
func (s *Signals) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Check implements trigger.Gate. It blocks while paused, returns a control
// error for quit, stop, or the fail-safe, and consumes a pending skip.
func (s *Signals) Check(ctx context.Context) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if s.failSafe.Triggered() {
			return false, ErrFailSafe
		}

		s.mu.Lock()
		if s.quit {
			s.mu.Unlock()
			return false, ErrQuitRequested
		}
		if s.stop {
			s.mu.Unlock()
			return false, ErrStopRequested
		}
		if !s.paused {
			skip := s.skip
			if skip {
				s.skip = false
				s.tookSkip = true
			}
			s.mu.Unlock()
			return skip, nil
		}
		s.mu.Unlock()

		if err := sleepCtx(ctx, s.pauseInterval); err != nil {
			return false, err
		}
	}
}

// Checkpoint is the step-boundary check. Like Check it blocks while paused
// and surfaces the control errors, but it consumes a pending restart instead
// of a pending skip; the skip stays armed for the next wait.
func (s *Signals) Checkpoint(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.failSafe.Triggered() {
			return ErrFailSafe
		}

		s.mu.Lock()
		if s.quit {
			s.mu.Unlock()
			return ErrQuitRequested
		}
		if s.stop {
			s.mu.Unlock()
			return ErrStopRequested
		}
		if !s.paused {
			restart := s.restart
			s.restart = false
			s.mu.Unlock()
			if restart {
				return errRestart
			}
			return nil
		}
		s.mu.Unlock()

		if err := sleepCtx(ctx, s.pauseInterval); err != nil {
			return err
		}
	}
}

// TookSkip reports and clears whether the last consumed check was a skip.
// The worker samples it right after a wait resolves to tell a skipped wait
// from a satisfied one.
func (s *Signals) TookSkip() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	took := s.tookSkip
	s.tookSkip = false
	return took
}

// clearStop drops the stop flag so the end phase can run after a stop
// unwound the cycles. Quit and the fail-safe are never cleared.
func (s *Signals) clearStop() {
	s.mu.Lock()
	s.stop = false
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
