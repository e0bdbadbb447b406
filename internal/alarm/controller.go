package alarm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/detection"
)

// Sink plays and stops the alarm tone.
type Sink interface {
	Play(ctx context.Context, loop bool) error
	Stop(ctx context.Context) error
}

const sinkTimeout = 2 * time.Second

// Controller turns detector events into sink calls. At most one alarm is
// playing at a time; sink failures are logged and never reach the caller.
type Controller struct {
	sink   Sink
	logger *slog.Logger

	mu      sync.Mutex
	playing bool
}

func NewController(sink Sink, logger *slog.Logger) *Controller {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{sink: sink, logger: logger.With("component", "alarm")}
}

func (c *Controller) HandleEvent(ev detection.Event) {
	switch ev.Kind {
	case detection.EventAlarmRaised:
		c.play()
	case detection.EventAlarmCleared:
		c.stop()
	}
}

// Shutdown silences the sink if an alarm is still playing.
func (c *Controller) Shutdown() {
	c.stop()
}

func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

func (c *Controller) play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing {
		return
	}

	// a failed Play still counts as playing so the matching Stop reaches
	// sinks that did start
	c.playing = true

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := c.sink.Play(ctx, true); err != nil {
		c.logger.Warn("alarm playback failed, continuing without sound", "error", err)
		return
	}
	c.logger.Info("alarm started")
}

func (c *Controller) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.playing = false

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := c.sink.Stop(ctx); err != nil {
		c.logger.Warn("alarm stop failed", "error", err)
		return
	}
	c.logger.Info("alarm stopped")
}

type NopSink struct{}

func (NopSink) Play(context.Context, bool) error { return nil }
func (NopSink) Stop(context.Context) error       { return nil }

// MultiSink drives several sinks as one; every sink is tried.
type MultiSink []Sink

func (m MultiSink) Play(ctx context.Context, loop bool) error {
	var errs []error
	for _, s := range m {
		if err := s.Play(ctx, loop); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Stop(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := s.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
