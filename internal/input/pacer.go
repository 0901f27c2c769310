package input

import (
	"sync"
	"time"
)

// Decision is the pacer's verdict for one click.
type Decision int

const (
	// Allowed lets the click proceed.
	Allowed Decision = iota

	// Throttled asks the caller to retry after a short sleep.
	Throttled

	// BudgetSpent means the per-run click budget is exhausted. Terminal,
	// treated like a stop.
	BudgetSpent
)

// PacerConfig bounds the click stream.
type PacerConfig struct {
	// ClicksPerSecond is the sustainable rate (tokens added per second).
	// Zero disables rate limiting.
	ClicksPerSecond float64

	// Burst is the maximum clicks allowed in a burst.
	Burst int

	// MaxTotalClicks caps the whole run. Zero disables the cap.
	MaxTotalClicks int64
}

// ClickPacer implements the token bucket algorithm over injected clicks and
// tracks the per-run click budget.
type ClickPacer struct {
	mu         sync.Mutex
	tokens     float64
	lastUpdate time.Time
	ratePerSec float64
	maxTokens  float64
	remaining  int64 // remaining budget, -1 when uncapped
	allowed    int64
	throttled  int64

	now func() time.Time
}

// NewClickPacer creates a pacer with the given bounds.
func NewClickPacer(cfg PacerConfig) *ClickPacer {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	remaining := int64(-1)
	if cfg.MaxTotalClicks > 0 {
		remaining = cfg.MaxTotalClicks
	}
	p := &ClickPacer{
		tokens:     float64(burst),
		ratePerSec: cfg.ClicksPerSecond,
		maxTokens:  float64(burst),
		remaining:  remaining,
		now:        time.Now,
	}
	p.lastUpdate = p.now()
	return p
}

// Allow decides whether the next click may be injected, consuming a token
// and one unit of budget when it is.
func (p *ClickPacer) Allow() Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.remaining == 0 {
		return BudgetSpent
	}

	if p.ratePerSec > 0 {
		now := p.now()
		elapsed := now.Sub(p.lastUpdate).Seconds()
		p.tokens += elapsed * p.ratePerSec
		if p.tokens > p.maxTokens {
			p.tokens = p.maxTokens
		}
		p.lastUpdate = now

		if p.tokens < 1.0 {
			p.throttled++
			return Throttled
		}
		p.tokens--
	}

	if p.remaining > 0 {
		p.remaining--
	}
	p.allowed++
	return Allowed
}

// PacerStats is a snapshot of the pacer's counters.
type PacerStats struct {
	Allowed   int64
	Throttled int64

	// Remaining is the unused budget, -1 when uncapped.
	Remaining int64
}

// Stats returns the current counters.
func (p *ClickPacer) Stats() PacerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PacerStats{Allowed: p.allowed, Throttled: p.throttled, Remaining: p.remaining}
}
