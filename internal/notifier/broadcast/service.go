// Package broadcast runs operator text broadcasts in the background with a
// shared send rate and per-target retries.
package broadcast

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	rtsup "eventbot/internal/runtime/supervisor"
	kit "eventbot/internal/transport"
	logx "eventbot/pkg/logx"
)

var (
	ErrNotRunning = errors.New("broadcast: not running")
	ErrQueueFull  = errors.New("broadcast: queue full")
)

const maxFailures = 200

func New(cfg Config, sender kit.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		cfg:       cfg,
		sender:    sender,
		log:       log.With(logx.Component("broadcast")),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		status:    map[string]*JobStatus{},
		statusMax: 100,
		statusTTL: 24 * time.Hour,
	}
}

// Apply updates pacing and retries. Worker count and queue size take effect
// on the next Start.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	cfg := s.cfg
	queue := make(chan job, cfg.QueueSize)
	sup := rtsup.NewSupervisor(ctx, rtsup.WithLogger(s.log))
	for i := 0; i < cfg.Workers; i++ {
		sup.Go0("broadcast.worker", func(ctx context.Context) {
			s.worker(ctx, queue)
		})
	}
	s.queue, s.sup = queue, sup
	s.log.Info("broadcast started", logx.Int("workers", cfg.Workers), logx.Int("rps", cfg.RatePerSec))
}

// Stop cancels running jobs; queued jobs are discarded.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup, s.queue = nil, nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	start := time.Now()
	if err := sup.Stop(ctx); err != nil {
		s.log.Warn("broadcast stop timed out", logx.Err(err))
		return
	}
	s.log.Info("broadcast stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) worker(ctx context.Context, queue <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-queue:
			s.exec(ctx, j)
		}
	}
}
