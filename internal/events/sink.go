// Package events carries the engine's append-only event stream: sinks that
// receive events, a ring buffer for live display, and a recorder that stamps
// run identity onto typed payloads.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenrik/clickseq/internal/logging"
	"github.com/fenrik/clickseq/internal/models"
)

// Sink receives engine events.
type Sink interface {
	Emit(ctx context.Context, event *models.Event) error
	Close() error
}

// NoopSink drops all events.
type NoopSink struct{}

// Emit ignores events.
func (NoopSink) Emit(ctx context.Context, event *models.Event) error {
	return nil
}

// Close is a no-op.
func (NoopSink) Close() error {
	return nil
}

// Repository is the minimal interface needed to persist events.
type Repository interface {
	Create(ctx context.Context, event *models.Event) error
}

// DatabaseSink appends events to the SQLite event log. It does not own the
// database connection; the caller closes it.
type DatabaseSink struct {
	mu   sync.Mutex
	repo Repository
}

// NewDatabaseSink creates a database-backed event sink.
func NewDatabaseSink(repo Repository) *DatabaseSink {
	return &DatabaseSink{repo: repo}
}

// Emit persists an event to the event repository.
func (s *DatabaseSink) Emit(ctx context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return errors.New("event repository is required")
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return s.repo.Create(ctx, event)
}

// Close is a no-op; the repository's connection belongs to the caller.
func (s *DatabaseSink) Close() error {
	return nil
}

// LoggerSink writes each event to the structured log at debug level.
type LoggerSink struct {
	logger zerolog.Logger
}

// NewLoggerSink creates a log-backed event sink.
func NewLoggerSink() *LoggerSink {
	return &LoggerSink{logger: logging.Component("events")}
}

// Emit logs the event.
func (s *LoggerSink) Emit(ctx context.Context, event *models.Event) error {
	entry := s.logger.Debug().
		Str("type", string(event.Type)).
		Str("entity_type", string(event.EntityType)).
		Str("entity_id", event.EntityID)
	if len(event.Payload) > 0 {
		entry = entry.RawJSON("payload", event.Payload)
	}
	entry.Msg("event")
	return nil
}

// Close is a no-op.
func (s *LoggerSink) Close() error {
	return nil
}

// Fanout forwards every event to each sink in order. All sinks see the
// event even when an earlier one fails; errors are joined.
type Fanout struct {
	sinks []Sink
}

// NewFanout combines sinks into one.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Emit forwards the event to every sink.
func (f *Fanout) Emit(ctx context.Context, event *models.Event) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (f *Fanout) Close() error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
