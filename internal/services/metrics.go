package services

import (
	"sync/atomic"
	"time"
)

// FrameCounts is a point-in-time copy of Metrics.
type FrameCounts struct {
	Frames         int64
	NoFace         int64
	ProviderErrors int64
	AvgLatencyMs   float64
	LastFrame      time.Time
}

// Metrics counts frame processing for one session. It is safe for
// concurrent use; readers may see a frame counted before its latency.
type Metrics struct {
	frames    atomic.Int64
	noFace    atomic.Int64
	errors    atomic.Int64
	latencyUs atomic.Int64
	lastFrame atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveFrame records one classified frame and how long it took.
func (m *Metrics) ObserveFrame(faceFound bool, took time.Duration) {
	if !faceFound {
		m.noFace.Add(1)
	}
	m.frames.Add(1)
	m.latencyUs.Add(took.Microseconds())
	m.lastFrame.Store(time.Now().UnixMilli())
}

// ObserveError records a frame the landmark provider could not handle.
func (m *Metrics) ObserveError() {
	m.errors.Add(1)
}

func (m *Metrics) Frames() int64 { return m.frames.Load() }

func (m *Metrics) Snapshot() FrameCounts {
	c := FrameCounts{
		Frames:         m.frames.Load(),
		NoFace:         m.noFace.Load(),
		ProviderErrors: m.errors.Load(),
	}
	if c.Frames > 0 {
		c.AvgLatencyMs = float64(m.latencyUs.Load()) / float64(c.Frames) / 1000.0
	}
	if ms := m.lastFrame.Load(); ms != 0 {
		c.LastFrame = time.UnixMilli(ms)
	}
	return c
}
