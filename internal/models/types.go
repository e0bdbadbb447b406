package models

import "time"

// Point is a normalized landmark coordinate in [0,1] image space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FaceLandmarks holds the landmarks of one detected face, indexed by the
// provider's anatomical scheme. Valid only while its frame is processed.
type FaceLandmarks struct {
	Points []Point `json:"points"`
}

type EyeObservation struct {
	EAR   float64 `json:"ear"`
	Valid bool    `json:"valid"`
}

// FrameObservation is the per-frame reduction fed to the detector.
// EAR is meaningful only when FaceFound is true.
type FrameObservation struct {
	EAR       float64 `json:"ear"`
	FaceFound bool    `json:"face_found"`
}

// Frame is one unit pulled from a frame source.
type Frame struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	// Format describes Data: "png", "jpeg" or "landmarks+json".
	Format string `json:"format"`
	Data   []byte `json:"-"`
}

type SessionStatistics struct {
	TotalBlinks  int       `json:"total_blinks"`
	SleepAlerts  int       `json:"sleep_alerts"`
	SessionStart time.Time `json:"session_start"`
}

const (
	StatusAlert      = "Alert"
	StatusDrowsiness = "DROWSINESS ALERT!"
	StatusNoFace     = "No face detected"
)

// Marker is an eye landmark projected to pixel space for drawing.
type Marker struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Overlay is the annotated view of one processed frame handed to the display.
type Overlay struct {
	SessionID string    `json:"session_id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Status    string    `json:"status"`
	EAR       float64   `json:"ear"`
	Blinks    int       `json:"blinks"`
	Alerts    int       `json:"alerts"`
	Markers   []Marker  `json:"markers,omitempty"`
	Lines     []string  `json:"lines"`
}

type HealthStatus struct {
	Status        string        `json:"status"`
	SessionState  string        `json:"session_state"`
	ActiveViewers int           `json:"active_viewers"`
	Uptime        time.Duration `json:"uptime"`
	Version       string        `json:"version,omitempty"`
}
