package scheduler

import (
	"sort"
	"time"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Enabled: s.cfg.Enabled, Running: s.c != nil}
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	snap.Timezone = loc.String()
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Kind: "cron", Spec: d.spec, Timeout: d.timeout}
		if d.every > 0 {
			it.Kind = "interval"
		}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	for name, d := range s.once {
		snap.Schedules = append(snap.Schedules, ScheduleInfo{Name: name, Kind: "once", Timeout: d.timeout, Next: d.at.In(loc)})
	}
	eng := s.engine
	s.mu.Unlock()

	sort.Slice(snap.Schedules, func(i, j int) bool { return snap.Schedules[i].Name < snap.Schedules[j].Name })
	if eng != nil {
		snap.Engine = eng.Snapshot()
	}
	return snap
}
