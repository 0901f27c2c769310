package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType categorizes events in the system.
type EventType string

const (
	// Run lifecycle events
	EventTypeRunStarted   EventType = "run.started"
	EventTypeRunCompleted EventType = "run.completed"
	EventTypeRunStopped   EventType = "run.stopped"
	EventTypeRunFailed    EventType = "run.failed"
	EventTypeRunPaused    EventType = "run.paused"
	EventTypeRunResumed   EventType = "run.resumed"
	EventTypeRunRestarted EventType = "run.restarted"

	// Cycle events
	EventTypeCycleStarted   EventType = "cycle.started"
	EventTypeCycleCompleted EventType = "cycle.completed"

	// Step events
	EventTypeClickPerformed EventType = "click.performed"
	EventTypeKeyPressed     EventType = "key.pressed"
	EventTypeStepSkipped    EventType = "step.skipped"

	// Trigger events
	EventTypeTriggerSatisfied EventType = "trigger.satisfied"
	EventTypeTriggerTimeout   EventType = "trigger.timeout"
	EventTypeFallbackTaken    EventType = "fallback.taken"

	// Scan events
	EventTypeScanResolved EventType = "scan.resolved"
	EventTypeItemClicked  EventType = "item.clicked"

	// Safety events
	EventTypeFailSafeTriggered EventType = "failsafe.triggered"
	EventTypeClickBudgetSpent  EventType = "click_budget.spent"

	// System events
	EventTypeError EventType = "error"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeRun    EntityType = "run"
	EntityTypeSystem EntityType = "system"
)

// Event represents an append-only log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the event is valid.
func (e *Event) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(string(e.Type)) == "" {
		validation.AddMessage("type", "event type is required")
	}
	if strings.TrimSpace(string(e.EntityType)) == "" {
		validation.AddMessage("entity_type", "entity_type is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		validation.AddMessage("entity_id", "entity_id is required")
	}
	return validation.Err()
}

// RunStartedPayload is the payload for run.started events.
type RunStartedPayload struct {
	SequenceName string `json:"sequence_name"`
	Cycles       int    `json:"cycles"`
}

// RunFinishedPayload is the payload for run.completed, run.stopped and
// run.failed events.
type RunFinishedPayload struct {
	SequenceName    string `json:"sequence_name"`
	Status          string `json:"status"`
	Elapsed         string `json:"elapsed"`
	CyclesCompleted int    `json:"cycles_completed"`
	Clicks          int64  `json:"clicks"`
	ItemsClicked    int64  `json:"items_clicked"`
	KeysPressed     int64  `json:"keys_pressed"`
	Error           string `json:"error,omitempty"`
}

// CyclePayload is the payload for cycle.started and cycle.completed events.
type CyclePayload struct {
	Cycle int `json:"cycle"`

	// Of is the configured cycle count, zero for unlimited runs.
	Of int `json:"of,omitempty"`
}

// ClickPayload is the payload for click.performed events.
type ClickPayload struct {
	PointID string `json:"point_id,omitempty"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Count   int    `json:"count"`
}

// KeyPayload is the payload for key.pressed events.
type KeyPayload struct {
	Key string `json:"key"`
}

// TriggerPayload is the payload for trigger.satisfied and trigger.timeout
// events.
type TriggerPayload struct {
	Phase     string `json:"phase"`
	StepIndex int    `json:"step_index"`
	WaitKind  string `json:"wait_kind"`
	Waited    string `json:"waited,omitempty"`
}

// FallbackPayload is the payload for fallback.taken events.
type FallbackPayload struct {
	Phase     string `json:"phase"`
	StepIndex int    `json:"step_index"`
	Action    string `json:"action"`
}

// ScanResolvedPayload is the payload for scan.resolved events.
type ScanResolvedPayload struct {
	ScanConfig string `json:"scan_config"`
	Mode       string `json:"mode"`
	Matches    int    `json:"matches"`
}

// ItemClickedPayload is the payload for item.clicked events.
type ItemClickedPayload struct {
	Item     string `json:"item"`
	Category string `json:"category,omitempty"`
	Priority int    `json:"priority"`
	SlotID   string `json:"slot_id"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

// FailSafePayload is the payload for failsafe.triggered events.
type FailSafePayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ClickBudgetPayload is the payload for click_budget.spent events.
type ClickBudgetPayload struct {
	Clicks int64 `json:"clicks"`
}

// ErrorPayload is the payload for error events.
type ErrorPayload struct {
	Error   string `json:"error"`
	Context string `json:"context,omitempty"`
}
