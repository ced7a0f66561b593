package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	kit "eventbot/internal/transport"
	logx "eventbot/pkg/logx"
)

const (
	opGreetings  = "deliver-greetings"
	opReminder   = "send-reminder"
	opCollection = "build-and-send-media-collection"
	opPush       = "auto-push-new-media"
)

type Engine struct {
	store  Store
	sender kit.Sender
	ops    Operators
	log    logx.Logger

	mu      sync.RWMutex
	cfg     Config
	msgs    Messages
	cal     Calendar
	limiter *rate.Limiter

	group singleflight.Group
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, store Store, sender kit.Sender, cal Calendar, ops Operators, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		store:  store,
		sender: sender,
		ops:    ops,
		cal:    cal,
		msgs:   DefaultMessages(),
		log:    log.With(logx.Component("delivery")),
		sleep:  sleepCtx,
	}
	e.Apply(cfg)
	return e
}

// Apply swaps pacing settings; runs in progress pick them up per unit.
func (e *Engine) Apply(cfg Config) {
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > kit.MaxAlbumSize {
		cfg.ChunkSize = kit.MaxAlbumSize
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	e.mu.Lock()
	e.cfg = cfg
	e.limiter = lim
	e.mu.Unlock()
}

func (e *Engine) SetMessages(m Messages) {
	e.mu.Lock()
	e.msgs = m
	e.mu.Unlock()
}

func (e *Engine) SetCalendar(c Calendar) {
	e.mu.Lock()
	e.cal = c
	e.mu.Unlock()
}

func (e *Engine) snapshot() (Config, Messages, Calendar, *rate.Limiter) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg, e.msgs, e.cal, e.limiter
}

// once collapses concurrent runs of op into one; late callers share its
// result.
func (e *Engine) once(ctx context.Context, op string, fn func(context.Context) (any, error)) (any, error) {
	v, err, shared := e.group.Do(op, func() (any, error) {
		start := time.Now()
		v, err := fn(ctx)
		result := "ok"
		if err != nil {
			result = "error"
		}
		runsTotal.WithLabelValues(op, result).Inc()
		e.log.Debug("delivery run finished", logx.String("op", op), logx.Duration("dur", time.Since(start)), logx.Err(err))
		return v, err
	})
	if shared {
		e.log.Debug("delivery run shared with a concurrent caller", logx.String("op", op))
	}
	return v, err
}

// send runs one unit after the pacing limiter and classifies its error.
// Only context cancellation is returned; transport failures are counted.
func (e *Engine) send(ctx context.Context, op string, to int64, rep *Report, fn func(context.Context, kit.ChatTarget) error) error {
	cfg, _, _, lim := e.snapshot()
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	err := fn(ctx, kit.UserTarget(to))
	if err == nil {
		rep.Sent++
		sendsTotal.WithLabelValues(op, "sent").Inc()
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	rep.Failed++

	if after, ok := kit.IsRateLimited(err); ok {
		rep.RateLimited++
		sendsTotal.WithLabelValues(op, "rate_limited").Inc()
		wait := max(cfg.FloodBackoff, after)
		e.log.Warn("rate limited, backing off", logx.String("op", op), logx.Int64("chat_id", to), logx.Duration("wait", wait))
		return e.sleep(ctx, wait)
	}
	if errors.Is(err, kit.ErrRecipientUnavailable) {
		rep.Unavailable++
		sendsTotal.WithLabelValues(op, "unavailable").Inc()
		e.log.Info("recipient unavailable, skipped", logx.String("op", op), logx.Int64("chat_id", to), logx.Err(err))
		return nil
	}
	sendsTotal.WithLabelValues(op, "failed").Inc()
	e.log.Warn("send failed", logx.String("op", op), logx.Int64("chat_id", to), logx.Err(err))
	return nil
}

func (e *Engine) sendText(ctx context.Context, op string, to int64, rep *Report, text string) error {
	return e.send(ctx, op, to, rep, func(ctx context.Context, t kit.ChatTarget) error {
		_, err := e.sender.SendText(ctx, t, text, nil)
		return err
	})
}

func (e *Engine) broadcastText(ctx context.Context, op string, to []int64, rep *Report, text string) error {
	for _, id := range to {
		if err := e.sendText(ctx, op, id, rep, text); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) operators() []int64 {
	if e.ops == nil {
		return nil
	}
	return dedupe(e.ops.Operators())
}

func dedupe(ids ...[]int64) []int64 {
	seen := map[int64]struct{}{}
	var out []int64
	for _, list := range ids {
		for _, id := range list {
			if _, ok := seen[id]; ok || id == 0 {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func storeErr(what string, err error) error {
	return fmt.Errorf("delivery: %s: %w", what, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
