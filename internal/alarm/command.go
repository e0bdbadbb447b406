package alarm

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
)

// CommandSink plays the alarm by running an external player, e.g.
// "aplay -q alarm.wav". With loop set the command is restarted each time
// it exits until Stop is called.
type CommandSink struct {
	name   string
	args   []string
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCommandSink(name string, args []string, logger *slog.Logger) *CommandSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandSink{name: name, args: args, logger: logger.With("sink", "command")}
}

func (s *CommandSink) Play(_ context.Context, loop bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	path, err := exec.LookPath(s.name)
	if err != nil {
		return fmt.Errorf("alarm player %q: %w", s.name, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go s.run(ctx, path, loop, done)
	return nil
}

func (s *CommandSink) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for alarm player to exit: %w", ctx.Err())
	}
}

func (s *CommandSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *CommandSink) run(ctx context.Context, path string, loop bool, done chan struct{}) {
	defer close(done)
	for {
		err := exec.CommandContext(ctx, path, s.args...).Run()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			// a broken player would otherwise spin
			s.logger.Warn("alarm player exited", "error", err)
			return
		}
		if !loop {
			return
		}
	}
}
