package game

import (
	"context"
	"testing"
	"time"

	"github.com/Ivantech123/neontrill/internal/model"
)

func TestScheduler_StepAdvancesRegistry(t *testing.T) {
	env := newTestEnv(t)
	s := NewScheduler(env.registry, 0, nil)

	g := mustCreate(t, env.registry, 0.1, 5, 4)
	s.Step(context.Background())

	got, _ := env.registry.Game(g.ID)
	if got.TimeLeft != 59 {
		t.Errorf("expected one second consumed per step, got %d", got.TimeLeft)
	}
}

func TestScheduler_StepRunsAfterTick(t *testing.T) {
	env := newTestEnv(t)

	// afterTick must observe post-tick state; capture it from inside.
	var observed int
	var s *Scheduler
	g := mustCreate(t, env.registry, 0.1, 5, 4)
	s = NewScheduler(env.registry, 0, func() {
		got, _ := env.registry.Game(g.ID)
		observed = got.TimeLeft
	})

	s.Step(context.Background())
	if observed != 59 {
		t.Errorf("afterTick saw pre-tick state: %d", observed)
	}
}

func TestScheduler_DeterministicFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	s := NewScheduler(env.registry, 0, nil)
	ctx := context.Background()

	g := mustCreate(t, env.registry, 0.1, 5, 2)
	mustJoin(t, env.registry, g.ID, "alice", 1)
	mustJoin(t, env.registry, g.ID, "bob", 1)

	// The room filled, so exactly the countdown's worth of steps settles it.
	for i := 0; i < 5; i++ {
		s.Step(ctx)
	}
	got, _ := env.registry.Game(g.ID)
	if got.Status != model.StatusFinished {
		t.Errorf("expected finished after %d steps, got %s", 5, got.Status)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	env := newTestEnv(t)
	s := NewScheduler(env.registry, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Stop() // must return promptly and not panic on double stop paths
}
