package ratelimit

import (
	"sync"
	"time"
)

// Throttle lets one event per user through per cooldown period.
type Throttle struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[int64]time.Time
	now      func() time.Time
}

func NewThrottle(cooldown time.Duration) *Throttle {
	return &Throttle{cooldown: cooldown, last: make(map[int64]time.Time), now: time.Now}
}

func (t *Throttle) SetCooldown(d time.Duration) {
	t.mu.Lock()
	t.cooldown = d
	t.mu.Unlock()
}

// Allow reports whether the cooldown for userID has elapsed and, if so,
// starts a new one.
func (t *Throttle) Allow(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.last[userID]; ok && now.Sub(last) < t.cooldown {
		return false
	}
	t.last[userID] = now
	if len(t.last) > 4096 {
		for id, at := range t.last {
			if now.Sub(at) >= t.cooldown {
				delete(t.last, id)
			}
		}
	}
	return true
}
