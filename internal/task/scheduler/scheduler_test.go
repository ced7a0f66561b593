package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eventbot/internal/task/engine"
	logx "eventbot/pkg/logx"
)

type fakeEngine struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (f *fakeEngine) Enqueue(t engine.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, t.Name)
	return f.err
}

func (f *fakeEngine) Snapshot() engine.Snapshot { return engine.Snapshot{} }

func (f *fakeEngine) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func noop(context.Context) error { return nil }

func newTestService(eng Enqueuer) *Service {
	return New(Config{Enabled: true, Timezone: "UTC"}, eng, logx.Nop())
}

func TestAddOnceSkipsPastInstant(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	s := newTestService(eng)
	err := s.AddOnce("deliver-greetings", time.Now().Add(-time.Minute), 0, TaskOptions{}, noop)
	if !errors.Is(err, ErrMissed) {
		t.Fatalf("err=%v, want ErrMissed", err)
	}
	if s.Has("deliver-greetings") {
		t.Fatalf("missed job should not be registered")
	}
	time.Sleep(20 * time.Millisecond)
	if got := eng.got(); len(got) != 0 {
		t.Fatalf("enqueued %v", got)
	}
}

func TestAddOnceFiresOnceAndUpserts(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	s := newTestService(eng)
	if err := s.AddOnce("send-reminder", time.Now().Add(time.Hour), 0, TaskOptions{}, noop); err != nil {
		t.Fatalf("AddOnce: %v", err)
	}
	// Re-registering the name replaces the hour-away trigger.
	if err := s.AddOnce("send-reminder", time.Now().Add(10*time.Millisecond), 0, TaskOptions{}, noop); err != nil {
		t.Fatalf("AddOnce: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(eng.got()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if got := eng.got(); len(got) != 1 || got[0] != "send-reminder" {
		t.Fatalf("enqueued %v", got)
	}
	if s.Has("send-reminder") {
		t.Fatalf("fired one-shot should be forgotten")
	}
}

func TestRemoveDisarmsOnce(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	s := newTestService(eng)
	if err := s.AddOnce("collection", time.Now().Add(30*time.Millisecond), 0, TaskOptions{}, noop); err != nil {
		t.Fatalf("AddOnce: %v", err)
	}
	if !s.Remove("collection") {
		t.Fatalf("Remove reported nothing removed")
	}
	if s.Remove("collection") {
		t.Fatalf("second Remove should be a no-op")
	}
	time.Sleep(80 * time.Millisecond)
	if got := eng.got(); len(got) != 0 {
		t.Fatalf("enqueued %v", got)
	}
}

func TestClockOverrideDecidesMissed(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	base := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newTestService(eng).WithClock(func() time.Time { return base })
	if err := s.AddOnce("x", base.Add(-time.Second), 0, TaskOptions{}, noop); !errors.Is(err, ErrMissed) {
		t.Fatalf("err=%v", err)
	}
	if err := s.AddOnce("y", base.Add(time.Hour), 0, TaskOptions{}, noop); err != nil {
		t.Fatalf("err=%v", err)
	}
	s.Stop(context.Background())
}

func TestSnapshotListsSchedules(t *testing.T) {
	t.Parallel()

	s := newTestService(&fakeEngine{})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.AddInterval("auto-push-new-media", time.Hour, 0, TaskOptions{}, noop); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if err := s.AddCron("nightly", "0 3 * * *", 0, TaskOptions{}, noop); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	if err := s.AddCron("bad", "not a spec", 0, TaskOptions{}, noop); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := s.AddOnce("deliver-greetings", time.Now().Add(time.Hour), 0, TaskOptions{}, noop); err != nil {
		t.Fatalf("AddOnce: %v", err)
	}

	snap := s.Snapshot()
	if !snap.Running || len(snap.Schedules) != 3 {
		t.Fatalf("snapshot=%+v", snap)
	}
	kinds := map[string]string{}
	for _, it := range snap.Schedules {
		kinds[it.Name] = it.Kind
		if it.Next.IsZero() {
			t.Fatalf("%s has no next run", it.Name)
		}
	}
	want := map[string]string{"auto-push-new-media": "interval", "nightly": "cron", "deliver-greetings": "once"}
	for k, v := range want {
		if kinds[k] != v {
			t.Fatalf("kinds=%v", kinds)
		}
	}
}

func TestSpreadIntervalFirstRun(t *testing.T) {
	t.Parallel()

	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := spreadInterval(time.Minute, now, "auto-push-new-media")
	first := sched.Next(now)
	if first.Before(now.Add(time.Minute)) || !first.Before(now.Add(time.Minute+maxStartupSpread)) {
		t.Fatalf("first=%v", first)
	}
	second := sched.Next(first)
	if d := second.Sub(first); d < time.Minute-time.Second || d > time.Minute+time.Second {
		t.Fatalf("second run after %v", d)
	}
}
