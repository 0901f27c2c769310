// Package trigger evaluates wait specifications: sliced sleeps, random
// delays, pixel conditions, absolute clock targets, and caller-supplied poll
// conditions. All waiting is cooperative; the evaluator consults the control
// gate at every suspension point and never busy-spins.
package trigger

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/fenrik/clickseq/internal/models"
	"github.com/fenrik/clickseq/internal/screen"
	"github.com/fenrik/clickseq/internal/vision"
)

// Result reports how a wait ended. Control-signal interruptions surface as
// errors instead.
type Result int

const (
	// Satisfied means the condition was met, the duration elapsed, or a
	// skip resolved the wait.
	Satisfied Result = iota

	// TimedOut means the timeout budget ran out first.
	TimedOut
)

func (r Result) String() string {
	if r == Satisfied {
		return "satisfied"
	}
	return "timed_out"
}

// Gate is the control surface consulted at every suspension point. The
// runner's signal set implements it: Check blocks while paused, reports a
// pending skip exactly once, and returns an error to unwind the wait for
// stop, quit, or the fail-safe.
type Gate interface {
	Check(ctx context.Context) (skip bool, err error)
}

// PointLookup resolves point IDs referenced by pixel waits.
type PointLookup func(id string) (models.Point, bool)

// Evaluator runs wait specs against the screen and the clock.
//
// Timeout budgets are decremented by nominal slice lengths, not wall time,
// so time spent paused inside Gate.Check does not consume budget. Clock
// waits are the exception: they re-derive the remainder from the wall clock
// every iteration and fire immediately when the instant passed during a
// pause.
type Evaluator struct {
	// Screen provides pixel reads for pixel waits.
	Screen screen.Capturer

	// Gate is consulted at every suspension point. Required.
	Gate Gate

	// Points resolves point references. Required for pixel waits.
	Points PointLookup

	// PixelTolerance is the color distance within which a pixel matches.
	PixelTolerance float64

	// PollInterval spaces pixel condition checks. Defaults to 1s.
	PollInterval time.Duration

	// PixelTimeout bounds pixel waits. Defaults to 300s.
	PixelTimeout time.Duration

	// SliceInterval spaces signal checks inside plain sleeps.
	// Defaults to 500ms.
	SliceInterval time.Duration

	// Now and Rand exist for tests. They default to time.Now and
	// rand.Float64.
	Now  func() time.Time
	Rand func() float64

	inited bool
}

func (e *Evaluator) init() {
	if e.inited {
		return
	}
	if e.PollInterval <= 0 {
		e.PollInterval = time.Second
	}
	if e.PixelTimeout <= 0 {
		e.PixelTimeout = 300 * time.Second
	}
	if e.SliceInterval <= 0 {
		e.SliceInterval = 500 * time.Millisecond
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.Rand == nil {
		e.Rand = rand.Float64
	}
	e.inited = true
}

// Wait evaluates a wait spec. It returns Satisfied or TimedOut, or the
// gate's error when a control signal unwound the wait.
func (e *Evaluator) Wait(ctx context.Context, spec models.WaitSpec) (Result, error) {
	e.init()

	switch spec.Kind {
	case "", models.WaitImmediate:
		return Satisfied, nil

	case models.WaitFixed:
		if _, err := e.Sleep(ctx, spec.Duration); err != nil {
			return TimedOut, err
		}
		return Satisfied, nil

	case models.WaitRange:
		span := spec.Max - spec.Min
		d := spec.Min + time.Duration(e.Rand()*float64(span))
		if _, err := e.Sleep(ctx, d); err != nil {
			return TimedOut, err
		}
		return Satisfied, nil

	case models.WaitPixel:
		cond, err := e.pixelCondition(spec)
		if err != nil {
			return TimedOut, err
		}
		return e.Poll(ctx, e.PollInterval, e.PixelTimeout, cond)

	case models.WaitClock:
		target, err := ResolveClock(e.Now(), spec.Clock)
		if err != nil {
			return TimedOut, err
		}
		return e.waitUntil(ctx, target)

	case models.WaitComposite:
		skipped, err := e.Sleep(ctx, spec.Duration)
		if err != nil {
			return TimedOut, err
		}
		if skipped {
			return Satisfied, nil
		}
		cond, err := e.pixelCondition(spec)
		if err != nil {
			return TimedOut, err
		}
		return e.Poll(ctx, e.PollInterval, e.PixelTimeout, cond)

	default:
		return TimedOut, fmt.Errorf("unknown wait kind %q", spec.Kind)
	}
}

// Sleep waits out a duration in gate-checked slices. It reports whether a
// skip cut the sleep short. The returned error unwinds the enclosing step.
func (e *Evaluator) Sleep(ctx context.Context, d time.Duration) (bool, error) {
	e.init()
	if d <= 0 {
		return false, nil
	}

	remaining := d
	for remaining > 0 {
		skip, err := e.Gate.Check(ctx)
		if err != nil {
			return false, err
		}
		if skip {
			return true, nil
		}

		slice := e.SliceInterval
		if remaining < slice {
			slice = remaining
		}
		if err := sleepCtx(ctx, slice); err != nil {
			return false, err
		}
		remaining -= slice
	}
	return false, nil
}

// Poll evaluates condition every interval until it holds or the timeout
// budget is spent. The condition is checked before the first sleep, so a
// condition that already holds resolves on the first poll. A pending skip
// resolves the wait as Satisfied without running the condition again.
func (e *Evaluator) Poll(ctx context.Context, interval, timeout time.Duration, condition func() (bool, error)) (Result, error) {
	e.init()
	if interval <= 0 {
		interval = e.PollInterval
	}

	remaining := timeout
	for {
		skip, err := e.Gate.Check(ctx)
		if err != nil {
			return TimedOut, err
		}
		if skip {
			return Satisfied, nil
		}

		ok, err := condition()
		if err != nil {
			return TimedOut, err
		}
		if ok {
			return Satisfied, nil
		}

		if remaining <= 0 {
			return TimedOut, nil
		}

		slice := interval
		if remaining < slice {
			slice = remaining
		}
		if err := sleepCtx(ctx, slice); err != nil {
			return TimedOut, err
		}
		remaining -= slice
	}
}

// waitUntil waits for an absolute instant, re-deriving the remainder from
// the wall clock every slice.
func (e *Evaluator) waitUntil(ctx context.Context, target time.Time) (Result, error) {
	for {
		skip, err := e.Gate.Check(ctx)
		if err != nil {
			return TimedOut, err
		}
		if skip {
			return Satisfied, nil
		}

		remaining := target.Sub(e.Now())
		if remaining <= 0 {
			return Satisfied, nil
		}

		slice := e.SliceInterval
		if remaining < slice {
			slice = remaining
		}
		if err := sleepCtx(ctx, slice); err != nil {
			return TimedOut, err
		}
	}
}

func (e *Evaluator) pixelCondition(spec models.WaitSpec) (func() (bool, error), error) {
	if e.Points == nil {
		return nil, fmt.Errorf("pixel wait: no point lookup configured")
	}
	point, ok := e.Points(spec.PointID)
	if !ok {
		return nil, fmt.Errorf("pixel wait: unknown point %q", spec.PointID)
	}

	wantMatch := spec.Polarity != models.PixelGone
	return func() (bool, error) {
		c, err := e.Screen.ReadPixel(point.X, point.Y)
		if err != nil {
			return false, err
		}
		matches := vision.Similar(c, spec.Color, e.PixelTolerance)
		return matches == wantMatch, nil
	}, nil
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
