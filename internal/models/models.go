package models

import "time"

type SessionRecord struct {
	ID              string     `json:"id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Status          string     `json:"status"`
	Source          string     `json:"source"`
	EARThreshold    float64    `json:"ear_threshold"`
	ConsecFrames    int        `json:"consec_frames"`
	TotalBlinks     int        `json:"total_blinks"`
	SleepAlerts     int        `json:"sleep_alerts"`
	FramesProcessed int64      `json:"frames_processed"`
}

type EventRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	EAR       float64   `json:"ear"`
	FrameSeq  uint64    `json:"frame_seq"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionSummary mirrors what a controller polls while a session runs.
type SessionSummary struct {
	SessionID       string            `json:"session_id,omitempty"`
	State           string            `json:"current_status"`
	Statistics      SessionStatistics `json:"statistics"`
	Duration        time.Duration     `json:"session_duration"`
	DetectionMethod string            `json:"detection_method"`
	FramesProcessed int64             `json:"frames_processed"`
	FramesNoFace    int64             `json:"frames_no_face"`
	ProviderErrors  int64             `json:"provider_errors"`
	AvgLatencyMs    float64           `json:"avg_latency_ms"`
}
