package ratelimit

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLimiterFivePerMinute(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Date(2025, 9, 26, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(5, time.Minute)
	l.now = c.now

	for i := 0; i < 5; i++ {
		if !l.Allow(1) {
			t.Fatalf("message %d should pass", i+1)
		}
	}
	if l.Allow(1) {
		t.Fatalf("sixth message within the window should be limited")
	}
	if !l.Allow(2) {
		t.Fatalf("limits are per user")
	}

	c.advance(13 * time.Second)
	if !l.Allow(1) {
		t.Fatalf("one token should refill after window/n")
	}
	if l.Allow(1) {
		t.Fatalf("only one token refilled")
	}
}

func TestLimiterSweep(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Unix(0, 0)}
	l := NewLimiter(5, time.Minute)
	l.now = c.now
	l.Allow(1)
	c.advance(time.Minute)
	l.Allow(2)

	l.Sweep(c.t.Add(90 * time.Second))
	if l.Len() != 1 {
		t.Fatalf("expected idle visitor to be swept, len=%d", l.Len())
	}
}

func TestThrottleCooldown(t *testing.T) {
	t.Parallel()

	c := &clock{t: time.Unix(100, 0)}
	th := NewThrottle(3 * time.Second)
	th.now = c.now

	if !th.Allow(7) {
		t.Fatalf("first notification should pass")
	}
	c.advance(2 * time.Second)
	if th.Allow(7) {
		t.Fatalf("notification inside cooldown should be suppressed")
	}
	if !th.Allow(8) {
		t.Fatalf("cooldown is per user")
	}
	c.advance(time.Second)
	if !th.Allow(7) {
		t.Fatalf("cooldown elapsed; should pass")
	}
}
