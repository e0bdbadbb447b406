package detection

import "time"

// EventKind names a detector transition.
type EventKind string

const (
	EventAlarmRaised    EventKind = "alarm_raised"
	EventAlarmCleared   EventKind = "alarm_cleared"
	EventBlinkCompleted EventKind = "blink_completed"
)

// Event is emitted by Detector.Step on a state transition.
type Event struct {
	Kind     EventKind
	EAR      float64
	FrameSeq uint64
	At       time.Time
}

// EventHandler receives detector events in emission order.
type EventHandler interface {
	HandleEvent(ev Event)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ev Event)

func (f EventHandlerFunc) HandleEvent(ev Event) { f(ev) }
