package clustermanager

import (
	"sync"
	"time"
)

// EventType is the type of a progress event
type EventType string

const (
	// EventPhaseStarted is emitted when a phase instance is dispatched
	EventPhaseStarted EventType = "phase.started"
	// EventPhaseSucceeded is emitted when a phase instance completed
	EventPhaseSucceeded EventType = "phase.succeeded"
	// EventPhaseFailed is emitted when a phase instance failed
	EventPhaseFailed EventType = "phase.failed"
	// EventPhaseSkipped is emitted when a predecessor failed
	EventPhaseSkipped EventType = "phase.skipped"
	// EventPhaseCancelled is emitted for phases never dispatched because the run was cancelled
	EventPhaseCancelled EventType = "phase.cancelled"
	// EventStep is emitted for a single remote command within a phase
	EventStep EventType = "step"
	// EventRollback is emitted when a failed phase is rolled back
	EventRollback EventType = "rollback"
)

// Event is one entry of the event stream
type Event struct {
	Type      EventType
	Phase     string
	Node      string
	Message   string
	Timestamp time.Time
	Err       error
}

// NopEventService discards all events
type NopEventService struct{}

// AddEvent implements EventService
func (NopEventService) AddEvent(Event) {}

// EventRecorder keeps all events in memory, in arrival order
type EventRecorder struct {
	mu     sync.Mutex
	events []Event
}

var _ EventService = &EventRecorder{}

// AddEvent implements EventService
func (recorder *EventRecorder) AddEvent(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.events = append(recorder.events, event)
}

// Events returns a copy of the recorded events
func (recorder *EventRecorder) Events() []Event {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	out := make([]Event, len(recorder.events))
	copy(out, recorder.events)
	return out
}

// Find returns the first event matching type, phase and node
func (recorder *EventRecorder) Find(eventType EventType, phase, node string) (Event, bool) {
	for _, event := range recorder.Events() {
		if event.Type == eventType && event.Phase == phase && event.Node == node {
			return event, true
		}
	}
	return Event{}, false
}

// FanOut forwards every event to several services
type FanOut []EventService

// AddEvent implements EventService
func (services FanOut) AddEvent(event Event) {
	for _, service := range services {
		service.AddEvent(event)
	}
}
