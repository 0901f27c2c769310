// Package input injects mouse and keyboard events into the desktop and
// guards them with the fail-safe and the click pacer.
package input

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-vgo/robotgo"
)

var (
	// ErrInjection marks a failed input injection. Injection failures are
	// fatal to a run; the engine does not retry them.
	ErrInjection = errors.New("input injection failed")

	// ErrUnknownKey marks a key identifier the backend cannot type.
	ErrUnknownKey = errors.New("unknown key")
)

// Injector performs the physical input actions. The engine calls it only
// from the worker goroutine.
type Injector interface {
	// Click moves to x,y and performs count physical left clicks.
	Click(x, y, count int) error

	// PressKey taps a key by identifier ("enter", "f5", "a").
	PressKey(key string) error

	// PointerLocation returns the current pointer position.
	PointerLocation() (x, y int)
}

// specialKeys are the non-character key identifiers the backend accepts.
var specialKeys = map[string]bool{
	"enter": true, "tab": true, "space": true, "backspace": true, "delete": true,
	"esc": true, "up": true, "down": true, "left": true, "right": true,
	"home": true, "end": true, "pageup": true, "pagedown": true,
	"f1": true, "f2": true, "f3": true, "f4": true, "f5": true,
	"f6": true, "f7": true, "f8": true, "f9": true, "f10": true,
	"f11": true, "f12": true,
	"cmd": true, "alt": true, "ctrl": true, "shift": true,
}

var keyAliases = map[string]string{
	"escape":    "esc",
	"return":    "enter",
	"page_up":   "pageup",
	"page_down": "pagedown",
	"control":   "ctrl",
}

// NormalizeKey canonicalizes a key identifier and rejects unknown ones.
// Single printable characters pass through lowercased.
func NormalizeKey(key string) (string, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	if alias, ok := keyAliases[k]; ok {
		k = alias
	}
	if len(k) == 1 {
		return k, nil
	}
	if specialKeys[k] {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// Robot injects through robotgo.
type Robot struct {
	// MoveDelay is the settle time between moving the pointer and
	// pressing the button.
	MoveDelay time.Duration

	// ClickDelay is the pause after each physical click.
	ClickDelay time.Duration
}

// NewRobot returns an Injector backed by robotgo.
func NewRobot(moveDelay, clickDelay time.Duration) *Robot {
	return &Robot{MoveDelay: moveDelay, ClickDelay: clickDelay}
}

// Click moves to the target, settles, and performs count left clicks.
// The pacing sleeps are part of the injection and are not interruptible.
func (r *Robot) Click(x, y, count int) error {
	if count < 1 {
		count = 1
	}
	robotgo.Move(x, y)
	if r.MoveDelay > 0 {
		time.Sleep(r.MoveDelay)
	}
	for i := 0; i < count; i++ {
		robotgo.Click("left", false)
		if r.ClickDelay > 0 {
			time.Sleep(r.ClickDelay)
		}
	}
	return nil
}

// PressKey taps the key.
func (r *Robot) PressKey(key string) error {
	k, err := NormalizeKey(key)
	if err != nil {
		return err
	}
	if err := robotgo.KeyTap(k); err != nil {
		return fmt.Errorf("%w: key %q: %v", ErrInjection, k, err)
	}
	return nil
}

// PointerLocation returns the current pointer position.
func (r *Robot) PointerLocation() (int, int) {
	return robotgo.Location()
}
