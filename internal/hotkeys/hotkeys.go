// Package hotkeys binds global keyboard shortcuts to the engine's control
// signals. The bindings only flip signals; the worker reacts at its own
// suspension points, so a hotkey can never interrupt an injection mid-click.
package hotkeys

import (
	"errors"
	"sync"

	hook "github.com/robotn/gohook"
	"github.com/rs/zerolog"

	"github.com/fenrik/clickseq/internal/logging"
)

// ErrAlreadyListening is returned when Start is called twice. The hook layer
// is process-global, so only one listener can run.
var ErrAlreadyListening = errors.New("hotkey listener already running")

// Engine is the control surface the hotkeys drive. Satisfied by
// runner.Engine.
type Engine interface {
	Stop() error
	Quit() error
	Skip() error
	Restart() error
	TogglePause() error
}

// Actions wires the bindings to their effects. Engine handles the control
// signals; Toggle and Capture are owned by the caller (the run loop decides
// what start/stop toggling means, the library owns point capture). Nil
// fields leave their binding unregistered.
type Actions struct {
	Engine  Engine
	Toggle  func()
	Capture func()
}

type binding struct {
	keys []string
	name string
	fire func()
}

// Listener owns the global hook while it runs.
type Listener struct {
	actions Actions
	log     zerolog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewListener builds a listener for the standard binding set.
func NewListener(actions Actions) *Listener {
	return &Listener{
		actions: actions,
		log:     logging.Component("hotkeys"),
	}
}

// bindings is the fixed shortcut table. Control errors are expected when the
// engine is idle and are only worth a debug line.
func (l *Listener) bindings() []binding {
	var out []binding
	if eng := l.actions.Engine; eng != nil {
		out = append(out,
			binding{keys: []string{"ctrl", "alt", "x"}, name: "stop", fire: l.control("stop", eng.Stop)},
			binding{keys: []string{"ctrl", "alt", "p"}, name: "pause", fire: l.control("pause", eng.TogglePause)},
			binding{keys: []string{"ctrl", "alt", "n"}, name: "skip", fire: l.control("skip", eng.Skip)},
			binding{keys: []string{"ctrl", "alt", "z"}, name: "restart", fire: l.control("restart", eng.Restart)},
			binding{keys: []string{"ctrl", "alt", "q"}, name: "quit", fire: l.control("quit", eng.Quit)},
		)
	}
	if l.actions.Toggle != nil {
		out = append(out, binding{keys: []string{"ctrl", "alt", "s"}, name: "toggle", fire: l.actions.Toggle})
	}
	if l.actions.Capture != nil {
		out = append(out, binding{keys: []string{"ctrl", "alt", "a"}, name: "capture", fire: l.actions.Capture})
	}
	return out
}

func (l *Listener) control(name string, fn func() error) func() {
	return func() {
		l.log.Info().Str("hotkey", name).Msg("hotkey pressed")
		if err := fn(); err != nil {
			l.log.Debug().Err(err).Str("hotkey", name).Msg("control signal not applied")
		}
	}
}

// Start registers the bindings and begins dispatching global key events. It
// returns immediately; Close stops the hook.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrAlreadyListening
	}

	for _, b := range l.bindings() {
		b := b
		hook.Register(hook.KeyDown, b.keys, func(hook.Event) {
			b.fire()
		})
	}

	events := hook.Start()
	l.running = true
	l.done = make(chan struct{})

	go func() {
		<-hook.Process(events)
		close(l.done)
	}()

	return nil
}

// Close stops the hook and waits for the dispatcher to drain.
func (l *Listener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	hook.End()
	<-l.done
	l.running = false
}
