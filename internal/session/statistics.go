package session

import (
	"sync"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/detection"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
)

// Statistics accumulates per-session counters. The loop goroutine applies
// events while any number of readers take snapshots.
type Statistics struct {
	mu    sync.RWMutex
	stats models.SessionStatistics
}

func NewStatistics(start time.Time) *Statistics {
	return &Statistics{stats: models.SessionStatistics{SessionStart: start}}
}

func (s *Statistics) HandleEvent(ev detection.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Kind {
	case detection.EventAlarmRaised:
		s.stats.SleepAlerts++
	case detection.EventBlinkCompleted:
		s.stats.TotalBlinks++
	}
}

// Snapshot returns both counters from the same instant.
func (s *Statistics) Snapshot() models.SessionStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
