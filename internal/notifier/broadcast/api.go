package broadcast

import (
	"sort"
	"time"

	"github.com/google/uuid"

	kit "eventbot/internal/transport"
	logx "eventbot/pkg/logx"
)

// Submit queues a text for targets and returns the job id. done, when set,
// is called with the final status once the job has run.
func (s *Service) Submit(name string, targets []kit.ChatTarget, text string, opt *kit.SendOptions, done DoneFunc) (string, error) {
	now := time.Now()
	id := "bc-" + uuid.NewString()[:8]
	s.pruneStatus(now)

	s.statusMu.Lock()
	s.status[id] = &JobStatus{ID: id, Name: name, Total: len(targets), CreatedAt: now}
	s.statusMu.Unlock()

	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.abandon(id)
		return id, ErrNotRunning
	}
	select {
	case q <- job{id: id, name: name, targets: targets, text: text, opt: opt, done: done}:
		s.log.Debug("broadcast job queued", logx.String("job", id), logx.String("name", name), logx.Int("total", len(targets)))
		return id, nil
	default:
		s.log.Warn("broadcast queue full, dropping job", logx.String("job", id), logx.String("name", name), logx.Int("queue_cap", cap(q)))
		s.abandon(id)
		return id, ErrQueueFull
	}
}

func (s *Service) Status(id string) (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[id]
	if !ok {
		return JobStatus{}, false
	}
	cp := *st
	cp.Failures = append([]kit.ChatTarget(nil), st.Failures...)
	return cp, true
}

// Jobs lists known statuses, newest first.
func (s *Service) Jobs() []JobStatus {
	s.statusMu.RLock()
	out := make([]JobStatus, 0, len(s.status))
	for _, st := range s.status {
		cp := *st
		cp.Failures = nil
		out = append(out, cp)
	}
	s.statusMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Service) abandon(id string) {
	s.statusMu.Lock()
	if st := s.status[id]; st != nil {
		st.DoneAt = time.Now()
		st.Failed = st.Total
	}
	s.statusMu.Unlock()
}

func (s *Service) update(id string, fn func(st *JobStatus)) {
	s.statusMu.Lock()
	if st := s.status[id]; st != nil {
		fn(st)
	}
	s.statusMu.Unlock()
}

// pruneStatus drops finished entries past the TTL, then the oldest finished
// ones above the size cap.
func (s *Service) pruneStatus(now time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	for id, st := range s.status {
		if st.Finished() && now.Sub(st.DoneAt) > s.statusTTL {
			delete(s.status, id)
		}
	}
	for len(s.status) > s.statusMax {
		var oldest string
		var at time.Time
		for id, st := range s.status {
			if st.Finished() && (oldest == "" || st.DoneAt.Before(at)) {
				oldest, at = id, st.DoneAt
			}
		}
		if oldest == "" {
			return
		}
		delete(s.status, oldest)
	}
}
