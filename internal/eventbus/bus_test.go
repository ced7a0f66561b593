package eventbus

import (
	"testing"
	"time"
)

func drain(ch <-chan Event) []string {
	var out []string
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e.Type)
		default:
			return out
		}
	}
}

func TestSubscribeFilters(t *testing.T) {
	t.Parallel()

	b := New()
	all, unsubAll := b.Subscribe(8)
	defer unsubAll()
	failed, unsubFailed := b.Subscribe(8, "task.failed")
	defer unsubFailed()
	tasks, unsubTasks := b.Subscribe(8, "task.*")
	defer unsubTasks()

	for _, typ := range []string{"task.started", "task.failed", "config.reloaded"} {
		b.Publish(Event{Type: typ})
	}

	if got := drain(all); len(got) != 3 {
		t.Fatalf("all got %v", got)
	}
	if got := drain(failed); len(got) != 1 || got[0] != "task.failed" {
		t.Fatalf("failed got %v", got)
	}
	if got := drain(tasks); len(got) != 2 {
		t.Fatalf("tasks got %v", got)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(Event{Type: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a full subscriber")
	}
	if got := len(drain(ch)); got != 1 {
		t.Fatalf("buffered=%d", got)
	}
	if d := b.Dropped(); d != 4 {
		t.Fatalf("dropped=%d", d)
	}
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(2)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open")
	}
	// Publishing after unsubscribe must not panic on the closed channel.
	b.Publish(Event{Type: "after"})
}
