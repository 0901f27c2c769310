package hotkeys

import (
	"errors"
	"testing"
)

type fakeEngine struct {
	calls []string
	err   error
}

func (f *fakeEngine) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeEngine) Stop() error        { return f.record("stop") }
func (f *fakeEngine) Quit() error        { return f.record("quit") }
func (f *fakeEngine) Skip() error        { return f.record("skip") }
func (f *fakeEngine) Restart() error     { return f.record("restart") }
func (f *fakeEngine) TogglePause() error { return f.record("pause") }

func fireAll(t *testing.T, l *Listener) map[string]func() {
	t.Helper()
	fires := make(map[string]func())
	for _, b := range l.bindings() {
		if len(b.keys) != 3 || b.keys[0] != "ctrl" || b.keys[1] != "alt" {
			t.Fatalf("binding %q is not a ctrl+alt combo: %v", b.name, b.keys)
		}
		fires[b.name] = b.fire
	}
	return fires
}

func TestBindingsDriveEngine(t *testing.T) {
	eng := &fakeEngine{}
	toggled, captured := 0, 0
	l := NewListener(Actions{
		Engine:  eng,
		Toggle:  func() { toggled++ },
		Capture: func() { captured++ },
	})

	fires := fireAll(t, l)
	if len(fires) != 7 {
		t.Fatalf("expected 7 bindings, got %d", len(fires))
	}

	for _, name := range []string{"stop", "pause", "skip", "restart", "quit"} {
		fires[name]()
	}
	if len(eng.calls) != 5 || eng.calls[0] != "stop" || eng.calls[4] != "quit" {
		t.Fatalf("unexpected engine calls: %v", eng.calls)
	}

	fires["toggle"]()
	fires["capture"]()
	if toggled != 1 || captured != 1 {
		t.Fatalf("expected toggle and capture to fire once, got %d/%d", toggled, captured)
	}
}

func TestBindingsSkipNilActions(t *testing.T) {
	l := NewListener(Actions{Engine: &fakeEngine{}})
	fires := fireAll(t, l)
	if len(fires) != 5 {
		t.Fatalf("expected 5 bindings without toggle/capture, got %d", len(fires))
	}
	if _, ok := fires["toggle"]; ok {
		t.Fatalf("toggle should not be bound without an action")
	}
}

func TestControlErrorsAreSwallowed(t *testing.T) {
	eng := &fakeEngine{err: errors.New("engine is not running")}
	l := NewListener(Actions{Engine: eng})

	// A hotkey pressed while idle must not panic or propagate.
	fireAll(t, l)["stop"]()
	if len(eng.calls) != 1 {
		t.Fatalf("expected the control call to be attempted, got %v", eng.calls)
	}
}
