package scheduler

import (
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// spreadSchedule delays the first run; later runs follow base.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// spreadInterval keeps interval jobs registered together from firing in
// the same second after a restart.
func spreadInterval(every time.Duration, now time.Time, tag string) cron.Schedule {
	spread := min(every, maxStartupSpread)
	if spread <= 0 {
		return cron.Every(every)
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(tag))
	rng := rand.New(rand.NewPCG(uint64(now.UnixNano()), h.Sum64()))
	return &spreadSchedule{base: cron.Every(every), first: now.Add(every + time.Duration(rng.Int64N(int64(spread))))}
}
