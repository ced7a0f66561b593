package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/jpillora/backoff"

	logx "eventbot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queuedTask) {
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qt := <-queue:
			s.inFlight.Add(1)
			s.execOne(ctx, stopCh, qt)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, qt queuedTask) {
	defer qt.releaseState()

	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)

	s.mu.Lock()
	maxDelay := s.cfg.MaxQueueDelay
	s.mu.Unlock()
	if maxDelay > 0 && queueDelay > maxDelay {
		s.drop(qt.task, queueDelay, "stale_queue_delay")
		return
	}

	name := qt.task.Name
	s.log.Debug("task started", logx.String("task", name), logx.Duration("queue_delay", queueDelay))
	s.publish(EventStarted, TaskEvent{ID: qt.task.ID, Name: name, Started: start, QueueDelay: queueDelay})

	b := &backoff.Backoff{Min: qt.opt.RetryBase, Max: qt.opt.RetryMaxDelay, Factor: 2, Jitter: true}
	var err error
	attempts := 0
	for maxAttempts := 1 + qt.opt.RetryMax; attempts < maxAttempts; {
		attempts++
		err = s.runTask(ctx, qt)
		if err == nil {
			break
		}
		var nr noRetryError
		if errors.As(err, &nr) {
			err = nr.err
			break
		}
		if attempts >= maxAttempts {
			break
		}

		delay := b.Duration()
		var ra RetryAfterError
		if errors.As(err, &ra) {
			delay = min(ra.RetryAfter(), qt.opt.RetryMaxDelay)
		}
		s.log.Debug("task retry scheduled", logx.String("task", name), logx.Int("attempt", attempts+1), logx.Duration("delay", delay), logx.Err(err))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			err = ctx.Err()
		case <-stopCh:
			t.Stop()
			err = ErrStopped
		case <-t.C:
			continue
		}
		break
	}

	dur := time.Since(start)
	item := HistoryItem{ID: qt.task.ID, Name: name, Started: start, QueueDelay: queueDelay, Duration: dur, Attempts: attempts}
	ev := TaskEvent{ID: qt.task.ID, Name: name, Started: start, QueueDelay: queueDelay, Duration: dur, Attempts: attempts}
	fields := []logx.Field{logx.String("task", name), logx.Duration("dur", dur), logx.Int("attempts", attempts)}
	if err != nil {
		item.Error, ev.Error = err.Error(), err.Error()
		tasksTotal.WithLabelValues(name, "failed").Inc()
		s.log.Warn("task failed", append(fields, logx.Err(err))...)
		s.publish(EventFailed, ev)
	} else {
		tasksTotal.WithLabelValues(name, "ok").Inc()
		s.log.Info("task completed", fields...)
		s.publish(EventFinished, ev)
	}
	taskDuration.WithLabelValues(name).Observe(dur.Seconds())
	s.record(item)
}

// runTask runs one attempt, converting a panic into an error.
func (s *Service) runTask(ctx context.Context, qt queuedTask) (err error) {
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, qt.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked", logx.String("task", qt.task.Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return qt.task.Run(ctx)
}
