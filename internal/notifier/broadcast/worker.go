package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"

	kit "eventbot/internal/transport"
	logx "eventbot/pkg/logx"
)

func (s *Service) exec(ctx context.Context, j job) {
	start := time.Now()
	s.update(j.id, func(st *JobStatus) {
		st.StartedAt = start
		st.Running = true
	})
	s.log.Info("broadcast job started", logx.String("job", j.id), logx.String("name", j.name), logx.Int("total", len(j.targets)))

	for _, t := range j.targets {
		err := s.sendOne(ctx, j, t)
		s.update(j.id, func(st *JobStatus) {
			if err == nil {
				st.Sent++
				return
			}
			st.Failed++
			if len(st.Failures) < maxFailures {
				st.Failures = append(st.Failures, t)
			}
		})
		if ctx.Err() != nil {
			break
		}
	}
	s.update(j.id, func(st *JobStatus) {
		st.DoneAt = time.Now()
		st.Running = false
	})
	s.pruneStatus(time.Now())

	st, _ := s.Status(j.id)
	fields := []logx.Field{
		logx.String("job", j.id),
		logx.String("name", j.name),
		logx.Int("total", st.Total),
		logx.Int("sent", st.Sent),
		logx.Int("failed", st.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	if st.Failed > 0 {
		s.log.Warn("broadcast job finished with failures", fields...)
	} else {
		s.log.Info("broadcast job finished", fields...)
	}
	if j.done != nil {
		j.done(context.WithoutCancel(ctx), st)
	}
}

// sendOne retries transient failures with backoff. Unavailable recipients
// are not retried; rate limits wait for the hinted delay.
func (s *Service) sendOne(ctx context.Context, j job, t kit.ChatTarget) error {
	s.mu.Lock()
	lim, retry, base := s.limiter, s.cfg.RetryMax, s.cfg.RetryBase
	s.mu.Unlock()

	b := &backoff.Backoff{Min: base, Max: 10 * base, Factor: 2, Jitter: true}
	var last error
	for attempt := 0; attempt <= retry; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		_, err := s.sender.SendText(ctx, t, j.text, j.opt)
		if err == nil {
			return nil
		}
		last = err
		if errors.Is(err, kit.ErrRecipientUnavailable) || attempt == retry {
			break
		}
		delay := b.Duration()
		if after, ok := kit.IsRateLimited(err); ok && after > delay {
			delay = after
		}
		s.log.Debug("broadcast send retry scheduled", logx.String("job", j.id), logx.Int64("chat_id", t.ChatID), logx.Int("attempt", attempt+2), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return ctx.Err()
		case <-tmr.C:
		}
	}
	s.log.Debug("broadcast send failed", logx.String("job", j.id), logx.Int64("chat_id", t.ChatID), logx.Err(last))
	return last
}
