package cli

import (
	"fmt"
	"os"
	"time"
)

// progressStep is a one-line stderr note for a slow preflight phase. It
// stays silent in JSON modes and when progress is suppressed, so a nil
// receiver is the normal quiet path.
type progressStep struct {
	started time.Time
}

func startProgress(label string) *progressStep {
	if progressSuppressed() {
		return nil
	}
	fmt.Fprintf(os.Stderr, "%s... ", label)
	return &progressStep{started: time.Now()}
}

func (p *progressStep) Done() {
	if p == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "done (%s)\n", roundElapsed(time.Since(p.started)))
}

func (p *progressStep) Fail(err error) {
	if p == nil {
		return
	}
	if err == nil {
		fmt.Fprintln(os.Stderr, "failed")
		return
	}
	fmt.Fprintf(os.Stderr, "failed: %v\n", err)
}

func progressSuppressed() bool {
	if IsJSONOutput() || IsJSONLOutput() || noProgress {
		return true
	}
	for _, key := range []string{"CLICKSEQ_NO_PROGRESS", "NO_PROGRESS"} {
		if _, ok := os.LookupEnv(key); ok {
			return true
		}
	}
	return false
}

// roundElapsed trims an elapsed duration to a display-friendly precision.
func roundElapsed(d time.Duration) time.Duration {
	switch {
	case d < time.Millisecond:
		return d
	case d < time.Second:
		return d.Round(10 * time.Millisecond)
	default:
		return d.Round(100 * time.Millisecond)
	}
}
