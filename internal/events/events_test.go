package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/fenrik/clickseq/internal/models"
)

type captureSink struct {
	events []*models.Event
	err    error
	closed bool
}

func (s *captureSink) Emit(ctx context.Context, event *models.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Close() error {
	s.closed = true
	return nil
}

func TestRecorderStampsRunIdentity(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink, "run-1")

	rec.Click(context.Background(), "p1", models.Coord{X: 10, Y: 20}, 2)

	if len(sink.events) != 1 {
		t.Fatalf("expected one event, got %d", len(sink.events))
	}
	event := sink.events[0]
	if event.Type != models.EventTypeClickPerformed {
		t.Fatalf("unexpected event type: %q", event.Type)
	}
	if event.EntityType != models.EntityTypeRun || event.EntityID != "run-1" {
		t.Fatalf("unexpected entity: %s/%s", event.EntityType, event.EntityID)
	}
	if event.Timestamp.IsZero() {
		t.Fatal("expected a timestamp")
	}

	var payload models.ClickPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.PointID != "p1" || payload.X != 10 || payload.Y != 20 || payload.Count != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestRecorderRunFinishedStatusMapping(t *testing.T) {
	cases := []struct {
		status models.RunStatus
		want   models.EventType
	}{
		{models.RunStatusCompleted, models.EventTypeRunCompleted},
		{models.RunStatusStopped, models.EventTypeRunStopped},
		{models.RunStatusFailed, models.EventTypeRunFailed},
	}

	for _, tc := range cases {
		sink := &captureSink{}
		rec := NewRecorder(sink, "run-1")
		rec.RunFinished(context.Background(), "seq", tc.status, models.RunStats{Clicks: 3}, nil)

		if len(sink.events) != 1 || sink.events[0].Type != tc.want {
			t.Fatalf("status %s: expected %s", tc.status, tc.want)
		}
	}
}

func TestRecorderNilSafe(t *testing.T) {
	var rec *Recorder
	rec.Click(context.Background(), "p1", models.Coord{}, 1)
	rec.RunStarted(context.Background(), "seq", 1)
}

func TestRecorderSinkErrorDoesNotPropagate(t *testing.T) {
	sink := &captureSink{err: errors.New("disk full")}
	rec := NewRecorder(sink, "run-1")

	// Must not panic or block; the failure is logged and dropped.
	rec.RunStarted(context.Background(), "seq", 1)
}

func TestRingSnapshotChronological(t *testing.T) {
	ring := NewRing(3)

	for i := 0; i < 5; i++ {
		event := &models.Event{
			Type:     models.EventTypeClickPerformed,
			EntityID: fmt.Sprintf("run-%d", i),
		}
		if err := ring.Emit(context.Background(), event); err != nil {
			t.Fatal(err)
		}
	}

	snapshot := ring.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 buffered events, got %d", len(snapshot))
	}
	for i, event := range snapshot {
		want := fmt.Sprintf("run-%d", i+2)
		if event.EntityID != want {
			t.Fatalf("snapshot[%d] = %s, want %s", i, event.EntityID, want)
		}
	}
}

func TestRingPartialFill(t *testing.T) {
	ring := NewRing(10)
	_ = ring.Emit(context.Background(), &models.Event{EntityID: "a"})
	_ = ring.Emit(context.Background(), &models.Event{EntityID: "b"})

	snapshot := ring.Snapshot()
	if len(snapshot) != 2 || snapshot[0].EntityID != "a" || snapshot[1].EntityID != "b" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestFanoutDeliversToAll(t *testing.T) {
	a, b := &captureSink{}, &captureSink{}
	fanout := NewFanout(a, b)

	if err := fanout.Emit(context.Background(), &models.Event{Type: models.EventTypeRunStarted}); err != nil {
		t.Fatal(err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both sinks to receive the event: %d/%d", len(a.events), len(b.events))
	}

	if err := fanout.Close(); err != nil {
		t.Fatal(err)
	}
	if !a.closed || !b.closed {
		t.Fatal("expected both sinks closed")
	}
}

func TestFanoutKeepsDeliveringPastErrors(t *testing.T) {
	boom := errors.New("sink down")
	a := &captureSink{err: boom}
	b := &captureSink{}
	fanout := NewFanout(a, b)

	err := fanout.Emit(context.Background(), &models.Event{Type: models.EventTypeRunStarted})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the sink error, got %v", err)
	}
	if len(b.events) != 1 {
		t.Fatal("later sinks must still receive the event")
	}
}

func TestDatabaseSinkStampsTimestamp(t *testing.T) {
	repo := &fakeRepo{}
	sink := NewDatabaseSink(repo)

	if err := sink.Emit(context.Background(), &models.Event{Type: models.EventTypeRunStarted, EntityType: models.EntityTypeRun, EntityID: "run-1"}); err != nil {
		t.Fatal(err)
	}
	if repo.last == nil {
		t.Fatal("expected event to be created")
	}
	if repo.last.Timestamp.IsZero() {
		t.Fatal("expected the sink to stamp a timestamp")
	}
}

type fakeRepo struct {
	last *models.Event
}

func (r *fakeRepo) Create(ctx context.Context, event *models.Event) error {
	r.last = event
	return nil
}
