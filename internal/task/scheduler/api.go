package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"eventbot/internal/task/engine"
	logx "eventbot/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

// AddCron registers (or replaces) a cron schedule named name.
func (s *Service) AddCron(name, spec string, timeout time.Duration, opt TaskOptions, job Job) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return s.addDef(scheduleDef{name: name, spec: spec, timeout: timeout, opt: opt, job: job})
}

// AddInterval registers (or replaces) an interval schedule. The first tick
// lands after every plus a small random spread.
func (s *Service) AddInterval(name string, every, timeout time.Duration, opt TaskOptions, job Job) error {
	if every <= 0 {
		return fmt.Errorf("schedule %s: interval must be > 0", name)
	}
	return s.addDef(scheduleDef{name: name, spec: "@every " + every.String(), every: every, timeout: timeout, opt: opt, job: job})
}

func (s *Service) addDef(d scheduleDef) error {
	d.name = strings.TrimSpace(d.name)
	if d.name == "" {
		return errors.New("name required")
	}
	if d.job == nil {
		return errors.New("job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(d.name)
	s.defs = append(s.defs, d)
	if s.c == nil {
		return nil
	}
	if err := s.addCronLocked(&s.defs[len(s.defs)-1]); err != nil {
		return err
	}
	s.log.Debug("schedule registered", logx.String("name", d.name), logx.String("spec", d.spec))
	return nil
}

// AddOnce arms a one-shot trigger at the given instant, replacing any
// schedule with the same name. Past instants are not replayed: the call
// returns ErrMissed and nothing is armed.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, opt TaskOptions, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if at.IsZero() || job == nil {
		return errors.New("instant and job required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	delay := at.Sub(s.now())
	if delay < 0 {
		s.log.Warn("one-shot job missed", logx.String("name", name), logx.Time("at", at))
		return ErrMissed
	}

	d := &onceDef{at: at, timeout: timeout, job: job, opt: opt}
	d.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		// Replaced or removed since arming.
		if s.once[name] != d {
			s.mu.Unlock()
			return
		}
		delete(s.once, name)
		s.mu.Unlock()
		s.enqueue(name, d.timeout, d.opt, d.job)
	})
	s.once[name] = d
	s.log.Debug("one-shot registered", logx.String("name", name), logx.Time("at", at), logx.Duration("in", delay))
	return nil
}

// Remove unschedules name. It reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.removeLocked(strings.TrimSpace(name))
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// Has reports whether a schedule named name is registered.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.once[name]; ok {
		return true
	}
	for _, d := range s.defs {
		if d.name == name {
			return true
		}
	}
	return false
}

func (s *Service) removeLocked(name string) bool {
	removed := false
	if d, ok := s.once[name]; ok {
		d.timer.Stop()
		delete(s.once, name)
		removed = true
	}
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	def := *d
	job := cron.FuncJob(func() { s.enqueue(def.name, def.timeout, def.opt, def.job) })
	if d.every > 0 {
		d.entryID = s.c.Schedule(spreadInterval(d.every, time.Now().In(s.loc), d.name), job)
		return nil
	}
	id, err := s.c.AddJob(d.spec, job)
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) enqueue(name string, timeout time.Duration, opt TaskOptions, job Job) {
	if s.engine == nil {
		return
	}
	err := s.engine.Enqueue(engine.Task{Name: name, Timeout: timeout, Run: job, Opt: opt})
	if err == nil {
		return
	}
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name), logx.Err(err))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	throttled := !last.IsZero() && now.Sub(last) < enqueueWarnThrottle
	if !throttled {
		s.lastEnqWarn[name] = now
	}
	s.enqMu.Unlock()
	if !throttled {
		s.log.Warn("schedule failed to enqueue task", logx.String("schedule", name), logx.Err(err))
	}
}
