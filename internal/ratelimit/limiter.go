// Package ratelimit guards inbound traffic per user.
//
// Limiter is a token bucket per user (N events per window). Throttle is a
// simple per-user cooldown for outgoing confirmations.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter admits at most n events per window for each user, with bursts of
// up to n. Idle users are forgotten after ttl.
type Limiter struct {
	mu       sync.Mutex
	every    rate.Limit
	burst    int
	ttl      time.Duration
	visitors map[int64]*visitor
	now      func() time.Time

	calls      int
	sweepEvery int
}

func NewLimiter(n int, window time.Duration) *Limiter {
	l := &Limiter{
		visitors:   make(map[int64]*visitor),
		now:        time.Now,
		sweepEvery: 256,
	}
	l.Configure(n, window)
	return l
}

// Configure changes the rate for new and existing users.
func (l *Limiter) Configure(n int, window time.Duration) {
	if n < 1 {
		n = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.every = rate.Every(window / time.Duration(n))
	l.burst = n
	l.ttl = 2 * window
	for _, v := range l.visitors {
		v.limiter.SetLimit(l.every)
		v.limiter.SetBurst(n)
	}
}

// Allow reports whether the user may proceed now.
func (l *Limiter) Allow(userID int64) bool {
	l.mu.Lock()
	now := l.now()
	v, ok := l.visitors[userID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[userID] = v
	}
	v.lastSeen = now
	l.calls++
	if l.calls%l.sweepEvery == 0 {
		l.sweepLocked(now)
	}
	lim := v.limiter
	l.mu.Unlock()

	return lim.AllowN(now, 1)
}

// Sweep drops users idle longer than the ttl.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	l.sweepLocked(now)
	l.mu.Unlock()
}

func (l *Limiter) sweepLocked(now time.Time) {
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, id)
		}
	}
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}
