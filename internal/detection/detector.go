package detection

import (
	"errors"
	"fmt"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
)

const (
	DefaultEARThreshold = 0.25
	DefaultConsecFrames = 30
)

var ErrInvalidThresholds = errors.New("invalid detection thresholds")

type Thresholds struct {
	EARThreshold float64
	ConsecFrames int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		EARThreshold: DefaultEARThreshold,
		ConsecFrames: DefaultConsecFrames,
	}
}

func (t Thresholds) Validate() error {
	if t.EARThreshold <= 0 || t.EARThreshold >= 1 {
		return fmt.Errorf("%w: ear threshold %v not in (0,1)", ErrInvalidThresholds, t.EARThreshold)
	}
	if t.ConsecFrames < 1 {
		return fmt.Errorf("%w: consecutive frames %d < 1", ErrInvalidThresholds, t.ConsecFrames)
	}
	return nil
}

type Phase string

const (
	PhaseWatching Phase = "watching"
	PhaseAlarming Phase = "alarming"
)

// State is the mutable part of the detector, exposed as a copy.
type State struct {
	LowEARCounter int  `json:"low_ear_counter"`
	AlarmActive   bool `json:"alarm_active"`
}

func (s State) Phase() Phase {
	if s.AlarmActive {
		return PhaseAlarming
	}
	return PhaseWatching
}

// Detector debounces low-EAR frames into alarm transitions. A Detector is
// owned by one session loop and is not safe for concurrent use.
type Detector struct {
	thresholds Thresholds
	state      State
	now        func() time.Time
}

func NewDetector(t Thresholds) (*Detector, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Detector{thresholds: t, now: time.Now}, nil
}

func (d *Detector) State() State { return d.state }

func (d *Detector) Thresholds() Thresholds { return d.thresholds }

// Step advances the detector by one frame and returns the events it caused.
func (d *Detector) Step(seq uint64, obs models.FrameObservation) []Event {
	if !obs.FaceFound {
		// losing the face is not itself drowsiness, and does not clear an alarm
		d.state.LowEARCounter = 0
		return nil
	}

	if obs.EAR < d.thresholds.EARThreshold {
		d.state.LowEARCounter++
		if d.state.LowEARCounter >= d.thresholds.ConsecFrames && !d.state.AlarmActive {
			d.state.AlarmActive = true
			return []Event{d.event(EventAlarmRaised, seq, obs.EAR)}
		}
		return nil
	}

	d.state.LowEARCounter = 0
	if !d.state.AlarmActive {
		return nil
	}
	d.state.AlarmActive = false
	return []Event{
		d.event(EventAlarmCleared, seq, obs.EAR),
		d.event(EventBlinkCompleted, seq, obs.EAR),
	}
}

// Status is the display status for the frame just stepped.
func (d *Detector) Status(obs models.FrameObservation) string {
	switch {
	case !obs.FaceFound:
		return models.StatusNoFace
	case d.state.LowEARCounter >= d.thresholds.ConsecFrames:
		return models.StatusDrowsiness
	default:
		return models.StatusAlert
	}
}

func (d *Detector) event(kind EventKind, seq uint64, ear float64) Event {
	return Event{Kind: kind, EAR: ear, FrameSeq: seq, At: d.now()}
}
