// Package logging configures the process-wide zerolog logger and hands out
// component-scoped child loggers.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

var (
	mu   sync.RWMutex
	base = newBase(os.Stderr, zerolog.InfoLevel, isTerminal(os.Stderr))
)

// Setup reconfigures the base logger. level accepts the usual zerolog level
// names ("trace", "debug", "info", "warn", "error"); unknown values fall back
// to info. When pretty is true output goes through a console writer, which is
// the default when stderr is a terminal.
func Setup(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	mu.Lock()
	defer mu.Unlock()
	base = newBase(os.Stderr, lvl, pretty)
}

// SetOutput redirects all loggers to w, keeping the current level. Used by
// tests and by the TUI, which owns the terminal while it runs.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = base.Output(w)
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("component", name).Logger()
}

func newBase(w io.Writer, level zerolog.Level, pretty bool) zerolog.Logger {
	var out io.Writer = w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
