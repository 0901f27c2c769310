package input

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"enter", "enter"},
		{"Return", "enter"},
		{"ESC", "esc"},
		{"escape", "esc"},
		{"F5", "f5"},
		{"a", "a"},
		{"X", "x"},
		{" space ", "space"},
		{"page_up", "pageup"},
		{"control", "ctrl"},
	}

	for _, tt := range tests {
		got, err := NormalizeKey(tt.in)
		if err != nil {
			t.Fatalf("NormalizeKey(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("NormalizeKey(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestNormalizeKeyUnknown(t *testing.T) {
	for _, in := range []string{"", "warp", "f99", "ctrl+alt+x"} {
		if _, err := NormalizeKey(in); !errors.Is(err, ErrUnknownKey) {
			t.Fatalf("NormalizeKey(%q): expected ErrUnknownKey, got %v", in, err)
		}
	}
}

func TestFailSafe(t *testing.T) {
	at := func(x, y int) func() (int, int) {
		return func() (int, int) { return x, y }
	}

	fs := &FailSafe{Enabled: true, Corner: 5, Location: at(3, 4)}
	if !fs.Triggered() {
		t.Fatalf("pointer inside corner should trigger")
	}

	fs.Location = at(5, 5)
	if !fs.Triggered() {
		t.Fatalf("corner boundary is inclusive")
	}

	fs.Location = at(6, 5)
	if fs.Triggered() {
		t.Fatalf("pointer outside corner must not trigger")
	}

	fs.Enabled = false
	fs.Location = at(0, 0)
	if fs.Triggered() {
		t.Fatalf("disabled fail-safe must never trigger")
	}

	var nilFS *FailSafe
	if nilFS.Triggered() {
		t.Fatalf("nil fail-safe must never trigger")
	}
}

func TestClickPacerBudget(t *testing.T) {
	p := NewClickPacer(PacerConfig{MaxTotalClicks: 2})

	if got := p.Allow(); got != Allowed {
		t.Fatalf("expected first click allowed, got %v", got)
	}
	if got := p.Allow(); got != Allowed {
		t.Fatalf("expected second click allowed, got %v", got)
	}
	if got := p.Allow(); got != BudgetSpent {
		t.Fatalf("expected budget spent, got %v", got)
	}
	if got := p.Allow(); got != BudgetSpent {
		t.Fatalf("budget exhaustion is terminal, got %v", got)
	}

	stats := p.Stats()
	if stats.Allowed != 2 || stats.Remaining != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestClickPacerUncapped(t *testing.T) {
	p := NewClickPacer(PacerConfig{})
	for i := 0; i < 100; i++ {
		if got := p.Allow(); got != Allowed {
			t.Fatalf("uncapped pacer denied click %d: %v", i, got)
		}
	}
	if stats := p.Stats(); stats.Remaining != -1 {
		t.Fatalf("expected uncapped remaining -1, got %d", stats.Remaining)
	}
}

func TestClickPacerRate(t *testing.T) {
	clock := time.Unix(1000, 0)
	p := NewClickPacer(PacerConfig{ClicksPerSecond: 10, Burst: 2})
	p.now = func() time.Time { return clock }
	p.lastUpdate = clock

	if p.Allow() != Allowed || p.Allow() != Allowed {
		t.Fatalf("burst should allow two clicks")
	}
	if got := p.Allow(); got != Throttled {
		t.Fatalf("expected throttling after burst, got %v", got)
	}

	// One token refills after 100ms at 10/s.
	clock = clock.Add(100 * time.Millisecond)
	if got := p.Allow(); got != Allowed {
		t.Fatalf("expected refill after 100ms, got %v", got)
	}
	if got := p.Allow(); got != Throttled {
		t.Fatalf("expected throttle again, got %v", got)
	}

	stats := p.Stats()
	if stats.Throttled != 2 {
		t.Fatalf("expected 2 throttled, got %d", stats.Throttled)
	}
}
