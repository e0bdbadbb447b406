package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/alarm"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/detection"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/services"
	"github.com/google/uuid"
)

// FrameSource yields frames in order. Next returns io.EOF at end of stream
// and should return promptly once ctx is cancelled.
type FrameSource interface {
	Next(ctx context.Context) (models.Frame, error)
	Close() error
}

// LandmarkProvider finds the faces in a frame.
type LandmarkProvider interface {
	Detect(ctx context.Context, frame models.Frame) ([]models.FaceLandmarks, error)
}

// Display receives one overlay per processed frame. Show must not block.
type Display interface {
	Show(overlay models.Overlay)
}

// Observer follows a session's lifecycle. Calls come from the loop
// goroutine in order and must not block it.
type Observer interface {
	SessionStarted(rec models.SessionRecord)
	SessionEvent(sessionID string, ev detection.Event)
	SessionFinished(rec models.SessionRecord)
}

type State string

const (
	StateIdle    State = "Idle"
	StateRunning State = "Running"
	StateStopped State = "Stopped"
)

type StartStatus string

const (
	StatusStarted        StartStatus = "started"
	StatusAlreadyRunning StartStatus = "already_running"
)

type StopStatus string

const (
	StatusStopping   StopStatus = "stopping"
	StatusNotRunning StopStatus = "not_running"
)

var ErrNilSource = errors.New("frame source is nil")

type Config struct {
	Thresholds      detection.Thresholds
	LeftEye         []int
	RightEye        []int
	DetectionMethod string
	SourceName      string
}

type Deps struct {
	Provider  LandmarkProvider
	Alarm     *alarm.Controller
	Display   Display
	Observers []Observer
	Logger    *slog.Logger
}

// Runner owns the detection session lifecycle: Idle, Running, Stopped. Only
// one session runs at a time; a stopped runner can be started again with
// fresh state and statistics.
type Runner struct {
	cfg        Config
	provider   LandmarkProvider
	classifier *detection.Classifier
	alarm      *alarm.Controller
	display    Display
	observers  []Observer
	logger     *slog.Logger

	mu      sync.Mutex
	state   State
	current *run
}

// run is the state of one session. Only the loop goroutine touches detector.
type run struct {
	id       string
	source   FrameSource
	detector *detection.Detector
	stats    *Statistics
	metrics  *services.Metrics
	cancel   context.CancelFunc
	done     chan struct{}
	started  time.Time

	// guarded by Runner.mu
	ended time.Time
}

func NewRunner(cfg Config, deps Deps) (*Runner, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if deps.Provider == nil {
		return nil, errors.New("landmark provider is required")
	}
	classifier, err := detection.NewClassifier(cfg.LeftEye, cfg.RightEye)
	if err != nil {
		return nil, fmt.Errorf("eye landmark indices: %w", err)
	}
	if cfg.DetectionMethod == "" {
		cfg.DetectionMethod = "Face Mesh landmarks"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctrl := deps.Alarm
	if ctrl == nil {
		ctrl = alarm.NewController(nil, logger)
	}

	return &Runner{
		cfg:        cfg,
		provider:   deps.Provider,
		classifier: classifier,
		alarm:      ctrl,
		display:    deps.Display,
		observers:  deps.Observers,
		logger:     logger.With("component", "session"),
		state:      StateIdle,
	}, nil
}

// Start launches a session reading from src. It never waits on the loop.
func (r *Runner) Start(src FrameSource) (StartStatus, error) {
	if src == nil {
		return "", ErrNilSource
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRunning {
		return StatusAlreadyRunning, nil
	}

	detector, err := detection.NewDetector(r.cfg.Thresholds)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	cur := &run{
		id:       uuid.NewString(),
		source:   src,
		detector: detector,
		stats:    NewStatistics(now),
		metrics:  services.NewMetrics(),
		cancel:   cancel,
		done:     make(chan struct{}),
		started:  now,
	}
	r.current = cur
	r.state = StateRunning

	r.logger.Info("detection session started",
		"session_id", cur.id,
		"ear_threshold", r.cfg.Thresholds.EARThreshold,
		"consec_frames", r.cfg.Thresholds.ConsecFrames)

	go r.loop(ctx, cur)
	return StatusStarted, nil
}

// Stop asks the running loop to exit after its current frame and returns
// without waiting. Use Wait to block until the session has stopped.
func (r *Runner) Stop() StopStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return StatusNotRunning
	}
	r.current.cancel()
	return StatusStopping
}

// Wait blocks until the current session loop has exited or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()
	if cur == nil {
		return nil
	}
	select {
	case <-cur.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Statistics returns the current or last session's counters, or zeros if
// no session was ever started.
func (r *Runner) Statistics() models.SessionStatistics {
	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()
	if cur == nil {
		return models.SessionStatistics{}
	}
	return cur.stats.Snapshot()
}

func (r *Runner) Summary() models.SessionSummary {
	r.mu.Lock()
	cur, state := r.current, r.state
	var ended time.Time
	if cur != nil {
		ended = cur.ended
	}
	r.mu.Unlock()

	summary := models.SessionSummary{
		State:           string(state),
		DetectionMethod: r.cfg.DetectionMethod,
	}
	if cur == nil {
		return summary
	}
	if ended.IsZero() {
		ended = time.Now()
	}
	summary.SessionID = cur.id
	summary.Statistics = cur.stats.Snapshot()
	summary.Duration = ended.Sub(cur.started)
	counts := cur.metrics.Snapshot()
	summary.FramesProcessed = counts.Frames
	summary.FramesNoFace = counts.NoFace
	summary.ProviderErrors = counts.ProviderErrors
	summary.AvgLatencyMs = counts.AvgLatencyMs
	return summary
}

func (r *Runner) loop(ctx context.Context, cur *run) {
	defer close(cur.done)
	for _, o := range r.observers {
		o.SessionStarted(r.record(cur, "running", nil))
	}

	for ctx.Err() == nil {
		frame, err := cur.source.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				r.logger.Warn("frame source failed, ending session", "session_id", cur.id, "error", err)
			}
			break
		}
		r.process(ctx, cur, frame)
	}

	r.finish(cur)
}

func (r *Runner) process(ctx context.Context, cur *run, frame models.Frame) {
	start := time.Now()
	faces, err := r.provider.Detect(ctx, frame)
	if err != nil {
		cur.metrics.ObserveError()
		if ctx.Err() == nil {
			r.logger.Warn("landmark detection failed, skipping frame", "seq", frame.Seq, "error", err)
		}
		return
	}

	obs := r.classifier.Classify(faces)
	for _, ev := range cur.detector.Step(frame.Seq, obs) {
		cur.stats.HandleEvent(ev)
		r.alarm.HandleEvent(ev)
		for _, o := range r.observers {
			o.SessionEvent(cur.id, ev)
		}
		r.logger.Info("detector transition", "session_id", cur.id, "event", ev.Kind, "seq", ev.FrameSeq, "ear", ev.EAR)
	}

	cur.metrics.ObserveFrame(obs.FaceFound, time.Since(start))

	if r.display != nil {
		r.display.Show(r.overlay(cur, frame, faces, obs))
	}
}

func (r *Runner) finish(cur *run) {
	// the alarm must not outlive the session
	r.alarm.Shutdown()
	if err := cur.source.Close(); err != nil {
		r.logger.Warn("closing frame source", "session_id", cur.id, "error", err)
	}

	ended := time.Now()
	rec := r.record(cur, "completed", &ended)
	for _, o := range r.observers {
		o.SessionFinished(rec)
	}

	r.mu.Lock()
	cur.ended = ended
	if r.current == cur {
		r.state = StateStopped
	}
	r.mu.Unlock()

	stats := cur.stats.Snapshot()
	r.logger.Info("detection session stopped",
		"session_id", cur.id,
		"frames", cur.metrics.Frames(),
		"blinks", stats.TotalBlinks,
		"alerts", stats.SleepAlerts,
		"duration", ended.Sub(cur.started).Round(time.Millisecond))
}

func (r *Runner) record(cur *run, status string, ended *time.Time) models.SessionRecord {
	stats := cur.stats.Snapshot()
	return models.SessionRecord{
		ID:              cur.id,
		StartTime:       cur.started,
		EndTime:         ended,
		Status:          status,
		Source:          r.cfg.SourceName,
		EARThreshold:    r.cfg.Thresholds.EARThreshold,
		ConsecFrames:    r.cfg.Thresholds.ConsecFrames,
		TotalBlinks:     stats.TotalBlinks,
		SleepAlerts:     stats.SleepAlerts,
		FramesProcessed: cur.metrics.Frames(),
	}
}

func (r *Runner) overlay(cur *run, frame models.Frame, faces []models.FaceLandmarks, obs models.FrameObservation) models.Overlay {
	stats := cur.stats.Snapshot()
	status := cur.detector.Status(obs)

	var lines []string
	if status == models.StatusDrowsiness {
		lines = append(lines, models.StatusDrowsiness, "WAKE UP!")
	}
	lines = append(lines,
		fmt.Sprintf("EAR: %.2f", obs.EAR),
		fmt.Sprintf("Blinks: %d", stats.TotalBlinks),
		fmt.Sprintf("Alerts: %d", stats.SleepAlerts),
		fmt.Sprintf("Status: %s", status),
	)

	ov := models.Overlay{
		SessionID: cur.id,
		Seq:       frame.Seq,
		Timestamp: frame.Timestamp,
		Width:     frame.Width,
		Height:    frame.Height,
		Status:    status,
		EAR:       obs.EAR,
		Blinks:    stats.TotalBlinks,
		Alerts:    stats.SleepAlerts,
		Lines:     lines,
	}
	if len(faces) > 0 && frame.Width > 0 && frame.Height > 0 {
		ov.Markers = r.classifier.Markers(faces[0], frame.Width, frame.Height)
	}
	return ov
}
