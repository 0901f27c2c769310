// Package cli provides live event streaming for the watch command.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenrik/clickseq/internal/db"
	"github.com/fenrik/clickseq/internal/models"
)

var (
	watchMode            bool
	watchType            string
	watchRun             string
	watchSince           string
	watchIncludeExisting bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchType, "type", "", "only stream events of this type (for example click.performed)")
	watchCmd.Flags().StringVar(&watchRun, "run", "", "only stream events for this run (full ID or unique prefix)")
	watchCmd.Flags().StringVar(&watchSince, "since", "", "replay events after this time (duration like 1h or 7d, or a timestamp)")
	watchCmd.Flags().BoolVar(&watchIncludeExisting, "include-existing", false, "replay stored events before following new ones")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream events as they are recorded",
	Long: `Stream events from the run log as JSON lines, one event per line.

The command follows the shared database, so it can run next to an active
'clickseq run' in another terminal. It requires the --jsonl output flag.`,
	Example: `  clickseq watch --jsonl
  clickseq watch --jsonl --type trigger.timeout
  clickseq watch --jsonl --run 1b9d6bcd --since 1h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		watchMode = true
		if err := MustBeJSONLForWatch(); err != nil {
			return err
		}

		since, err := ParseSince(watchSince)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		config := DefaultStreamConfig()
		config.Since = since
		config.IncludeExisting = watchIncludeExisting || since != nil
		if watchType != "" {
			config.Type = models.EventType(watchType)
		}
		if watchRun != "" {
			run, err := resolveRun(context.Background(), db.NewRunRepository(database), watchRun)
			if err != nil {
				return err
			}
			config.RunID = run.ID
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			<-sigCh
			cancel()
		}()

		streamer := NewEventStreamer(db.NewEventRepository(database), os.Stdout, config)
		return streamer.Stream(ctx)
	},
}

// MustBeJSONLForWatch rejects watch mode unless JSONL output is selected,
// since the stream is a sequence of JSON lines by construction.
func MustBeJSONLForWatch() error {
	if watchMode && !jsonlOutput {
		return fmt.Errorf("watch streams events as JSON lines; run it with --jsonl")
	}
	return nil
}

// ConnectionStatus describes the streamer's view of the event source.
type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusReconnecting ConnectionStatus = "reconnecting"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// ReconnectConfig controls retry behavior when polling fails.
type ReconnectConfig struct {
	// Enabled turns reconnection on. When false the first poll error ends
	// the stream.
	Enabled bool

	// MaxAttempts limits consecutive failed polls. Zero means unlimited.
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries.
	MaxBackoff time.Duration

	// BackoffMultiplier scales the wait after each failed retry.
	BackoffMultiplier float64

	// OnStatusChange is called when the connection status changes.
	OnStatusChange func(status ConnectionStatus, attempt int, nextRetry time.Duration, err error)
}

// DefaultReconnectConfig returns reconnect settings suitable for following a
// database that another process writes to.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Enabled:           true,
		MaxAttempts:       0,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// StreamConfig controls what the event streamer emits and how often it polls.
type StreamConfig struct {
	// PollInterval is how often to check for new events.
	PollInterval time.Duration

	// BatchSize is the maximum events fetched per poll.
	BatchSize int

	// Type filters the stream to one event type when set.
	Type models.EventType

	// RunID filters the stream to one run when set.
	RunID string

	// Since replays events recorded after this time. Only honored together
	// with IncludeExisting; a nil Since replays everything.
	Since *time.Time

	// IncludeExisting replays stored events before following new ones.
	// When false the stream starts at the current tail of the log.
	IncludeExisting bool

	// Reconnect controls retry behavior when polling fails.
	Reconnect ReconnectConfig
}

// DefaultStreamConfig returns the settings used by the watch command.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		PollInterval:    500 * time.Millisecond,
		BatchSize:       100,
		IncludeExisting: false,
		Reconnect:       DefaultReconnectConfig(),
	}
}

// EventStreamer follows the event log and writes each event as a JSON line.
type EventStreamer struct {
	repo    *db.EventRepository
	config  StreamConfig
	encoder *json.Encoder
}

// NewEventStreamer creates a streamer that polls repo and writes to w.
func NewEventStreamer(repo *db.EventRepository, w io.Writer, config StreamConfig) *EventStreamer {
	if config.PollInterval <= 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &EventStreamer{
		repo:    repo,
		config:  config,
		encoder: json.NewEncoder(w),
	}
}

// Stream polls for events until ctx is canceled, writing each one as a JSON
// line. It returns nil on cancellation; poll failures end the stream with an
// error once reconnection is exhausted or disabled.
func (s *EventStreamer) Stream(ctx context.Context) error {
	var since *time.Time
	if s.config.IncludeExisting {
		since = s.config.Since
	} else {
		now := time.Now().UTC()
		since = &now
	}

	s.notifyStatus(ConnectionStatusConnected, 0, 0, nil)
	defer s.notifyStatus(ConnectionStatusDisconnected, 0, 0, nil)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	var (
		cursor  string
		attempt int
		backoff time.Duration
	)

	for {
		events, next, err := s.poll(ctx, cursor, since)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !s.config.Reconnect.Enabled {
				return fmt.Errorf("event poll failed: %w", err)
			}
			attempt++
			if s.config.Reconnect.MaxAttempts > 0 && attempt > s.config.Reconnect.MaxAttempts {
				return fmt.Errorf("max reconnection attempts (%d) exceeded: %w", s.config.Reconnect.MaxAttempts, err)
			}
			backoff = s.calculateBackoff(attempt, backoff)
			s.notifyStatus(ConnectionStatusReconnecting, attempt, backoff, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}

		if attempt > 0 {
			attempt = 0
			backoff = 0
			s.notifyStatus(ConnectionStatusConnected, 0, 0, nil)
		}

		for _, event := range events {
			if err := s.writeEvent(event); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
		}
		cursor = next

		// A full batch means there is likely more backlog; drain it before
		// settling into the poll interval.
		if len(events) == s.config.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// poll fetches the next batch of events. It returns the batch plus the
// cursor the following poll should use; since only applies until the first
// event has been seen.
func (s *EventStreamer) poll(ctx context.Context, cursor string, since *time.Time) ([]*models.Event, string, error) {
	query := db.EventQuery{Cursor: cursor, Limit: s.config.BatchSize}
	if cursor == "" {
		query.Since = since
	}
	if s.config.Type != "" {
		eventType := s.config.Type
		query.Type = &eventType
	}
	if s.config.RunID != "" {
		entityType := models.EntityTypeRun
		runID := s.config.RunID
		query.EntityType = &entityType
		query.EntityID = &runID
	}

	page, err := s.repo.Query(ctx, query)
	if err != nil {
		return nil, cursor, err
	}

	next := cursor
	if page.NextCursor != "" {
		next = page.NextCursor
	} else if len(page.Events) > 0 {
		next = page.Events[len(page.Events)-1].ID
	}
	return page.Events, next, nil
}

func (s *EventStreamer) writeEvent(event *models.Event) error {
	return s.encoder.Encode(event)
}

func (s *EventStreamer) notifyStatus(status ConnectionStatus, attempt int, nextRetry time.Duration, err error) {
	if s.config.Reconnect.OnStatusChange == nil {
		return
	}
	s.config.Reconnect.OnStatusChange(status, attempt, nextRetry, err)
}

// calculateBackoff returns the wait before the given retry attempt. The
// first attempt waits InitialBackoff; later attempts scale the previous wait
// by BackoffMultiplier up to MaxBackoff.
func (s *EventStreamer) calculateBackoff(attempt int, current time.Duration) time.Duration {
	if attempt <= 1 || current <= 0 {
		return s.config.Reconnect.InitialBackoff
	}
	next := time.Duration(float64(current) * s.config.Reconnect.BackoffMultiplier)
	if next > s.config.Reconnect.MaxBackoff {
		return s.config.Reconnect.MaxBackoff
	}
	return next
}

// ParseSince parses a --since value: empty means no bound, durations
// (including a d suffix for days) are taken relative to now, and otherwise
// the value must be a timestamp.
func ParseSince(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if d, err := parseDurationWithDays(value); err == nil {
		t := time.Now().Add(-d).UTC()
		return &t, nil
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc, nil
		}
	}

	return nil, fmt.Errorf("invalid time %q (want a duration like 24h or 7d, or a timestamp like 2006-01-02)", value)
}

// parseDurationWithDays extends time.ParseDuration with a d suffix, so 7d
// reads as seven days.
func parseDurationWithDays(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "d") {
		days, err := strconv.ParseFloat(strings.TrimSuffix(value, "d"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		return time.Duration(days * float64(24*time.Hour)), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return d, nil
}
