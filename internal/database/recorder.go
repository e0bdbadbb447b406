package database

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/detection"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
	"github.com/google/uuid"
)

const writeTimeout = 5 * time.Second

// SessionStore is the subset of DB the recorder writes to.
type SessionStore interface {
	CreateSession(ctx context.Context, rec models.SessionRecord) error
	FinishSession(ctx context.Context, rec models.SessionRecord) error
	InsertEvent(ctx context.Context, ev models.EventRecord) error
}

type writeOp func(ctx context.Context, s SessionStore) error

// Recorder persists session lifecycles from its own goroutine so the
// detection loop never waits on the database. When the queue is full new
// writes are dropped and counted.
type Recorder struct {
	store  SessionStore
	logger *slog.Logger
	queue  chan writeOp

	dropped atomic.Int64
	failed  atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewRecorder(store SessionStore, queueSize int, logger *slog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:  store,
		logger: logger.With("component", "recorder"),
		queue:  make(chan writeOp, queueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) SessionStarted(rec models.SessionRecord) {
	r.enqueue(func(ctx context.Context, s SessionStore) error {
		return s.CreateSession(ctx, rec)
	})
}

func (r *Recorder) SessionEvent(sessionID string, ev detection.Event) {
	rec := models.EventRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Kind:      string(ev.Kind),
		EAR:       ev.EAR,
		FrameSeq:  ev.FrameSeq,
		Timestamp: ev.At,
	}
	r.enqueue(func(ctx context.Context, s SessionStore) error {
		return s.InsertEvent(ctx, rec)
	})
}

func (r *Recorder) SessionFinished(rec models.SessionRecord) {
	r.enqueue(func(ctx context.Context, s SessionStore) error {
		return s.FinishSession(ctx, rec)
	})
}

func (r *Recorder) enqueue(op writeOp) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- op:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("recorder queue full, dropping writes")
		}
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for op := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := op(ctx, r.store); err != nil {
			r.failed.Add(1)
			r.logger.Error("session write failed", "error", err)
		}
		cancel()
	}
}

// Close flushes queued writes and stops the writer. It waits at most until
// ctx is done.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

func (r *Recorder) Failed() int64 { return r.failed.Load() }
