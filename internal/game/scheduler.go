package game

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler drives the registry's once-per-second tick. It replaces ambient
// interval callbacks with an owned background task: start and stop are
// explicit, and tests advance time by calling Step directly instead of
// sleeping.
type Scheduler struct {
	registry *Registry
	interval time.Duration

	// afterTick, when set, runs after each tick. The broadcaster hooks in
	// here so state pushes always observe the post-tick registry.
	afterTick func()

	stop chan struct{}
	done chan struct{}
}

// NewScheduler creates a scheduler. afterTick may be nil.
func NewScheduler(r *Registry, interval time.Duration, afterTick func()) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		registry:  r,
		interval:  interval,
		afterTick: afterTick,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the tick loop in a goroutine until Stop is called or the
// context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("scheduler started", "interval", s.interval.String())
		for {
			select {
			case <-ticker.C:
				s.Step(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Step advances exactly one tick. Exported so tests can drive game time
// deterministically.
func (s *Scheduler) Step(ctx context.Context) {
	s.registry.Tick(ctx)
	if s.afterTick != nil {
		s.afterTick()
	}
}

// Stop halts the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}
