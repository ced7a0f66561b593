package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"eventbot/internal/eventbus"
	logx "eventbot/pkg/logx"
)

func startEngine(t *testing.T, cfg Config, bus eventbus.Bus) *Service {
	t.Helper()
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitHistory(t *testing.T, s *Service, n int) []HistoryItem {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h := s.Snapshot().History; len(h) >= n {
			return h
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("history did not reach %d items", n)
	return nil
}

func TestEngineRunsTask(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	s := startEngine(t, Config{Workers: 1}, bus)
	if err := s.Enqueue(Task{Name: "deliver-greetings", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h := waitHistory(t, s, 1)
	if h[0].Error != "" || h[0].Attempts != 1 {
		t.Fatalf("history=%+v", h[0])
	}

	seen := map[string]bool{}
	timeout := time.After(time.Second)
	for !seen[EventFinished] {
		select {
		case ev := <-events:
			seen[ev.Type] = true
		case <-timeout:
			t.Fatalf("events seen=%v", seen)
		}
	}
}

func TestEngineRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1, RetryMax: 2}, nil)
	var calls int32
	err := s.Enqueue(Task{
		Name: "flaky",
		Opt:  TaskOptions{RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond},
		Run: func(context.Context) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h := waitHistory(t, s, 1)
	if h[0].Error != "" || h[0].Attempts != 3 {
		t.Fatalf("history=%+v", h[0])
	}
}

func TestEngineNoRetryStopsImmediately(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1, RetryMax: 3}, nil)
	var calls int32
	_ = s.Enqueue(Task{
		Name: "store-broken",
		Opt:  TaskOptions{RetryBase: time.Millisecond},
		Run: func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return NoRetry(errors.New("database is locked"))
		},
	})
	h := waitHistory(t, s, 1)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls=%d", got)
	}
	if h[0].Error != "database is locked" {
		t.Fatalf("error=%q", h[0].Error)
	}
}

func TestEngineOverlapSkip(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 2}, nil)
	release := make(chan struct{})
	task := Task{
		Name: "auto-push-new-media",
		Opt:  TaskOptions{Overlap: OverlapSkipIfRunning},
		Run: func(ctx context.Context) error {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	}
	if err := s.Enqueue(task); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if err := s.Enqueue(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second Enqueue err=%v", err)
	}
	close(release)
	waitHistory(t, s, 1)

	// Released after completion.
	deadline := time.Now().Add(time.Second)
	for {
		err := s.Enqueue(Task{Name: task.Name, Opt: task.Opt, Run: func(context.Context) error { return nil }})
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("overlap gate not released: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEngineRecoversPanic(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1}, nil)
	_ = s.Enqueue(Task{Name: "boom", Run: func(context.Context) error { panic("bad") }})
	h := waitHistory(t, s, 1)
	if h[0].Error != "panic: bad" {
		t.Fatalf("error=%q", h[0].Error)
	}
	// Worker survives.
	_ = s.Enqueue(Task{Name: "after", Run: func(context.Context) error { return nil }})
	waitHistory(t, s, 2)
}

func TestEngineStoppedRejects(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	if err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v", err)
	}
	if err := s.Enqueue(Task{Name: "", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatalf("expected name error")
	}
}

func TestRetryAfterHint(t *testing.T) {
	t.Parallel()

	err := RetryAfter(errors.New("429"), 3*time.Second)
	var ra RetryAfterError
	if !errors.As(err, &ra) || ra.RetryAfter() != 3*time.Second {
		t.Fatalf("hint lost: %v", err)
	}
	if !IsNoRetry(NoRetry(err)) || IsNoRetry(err) {
		t.Fatalf("NoRetry detection wrong")
	}
}
