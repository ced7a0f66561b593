package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"eventbot/internal/config"
	"eventbot/internal/event"
	"eventbot/internal/task/scheduler"
	logx "eventbot/pkg/logx"
)

// applyConfig fans a validated config out to the running components.
// Token and storage changes need a restart.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	changed := func(s string) bool { return slices.Contains(sections, s) }

	if changed(config.SectionStorage) {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if prev != nil && prev.Telegram.Token != next.Telegram.Token {
		a.log.Warn("telegram token changed; restart required for changes to take effect")
	}

	// Target first so Apply does not warn about an enabled chat sink
	// without a chat.
	a.logs.SetChatTarget(logChatID(next), next.Logging.Chat.ThreadID)
	a.logs.Apply(mapLogging(next))

	a.cmdm.SetOperators(next.Telegram.OperatorIDs)

	a.limits.Store(mapLimits(next))
	n, window, cooldown := inbound(next)
	a.inbound.Configure(n, window)
	a.slowDown.SetCooldown(window)
	a.notify.SetCooldown(cooldown)

	a.delivery.Apply(mapDeliveryConfig(next))
	a.broadcast.Apply(mapBroadcastConfig(next))
	a.engine.Apply(ctx, mapTaskEngineConfig(next))
	a.metrics.Reconfigure(ctx, mapMetricsConfig(next))
	a.bot.SetContent(next.Content)
	a.delivery.SetMessages(mapMessages(next))

	calChanged := false
	if changed(config.SectionEvent) {
		cal, err := event.FromConfig(next.Event)
		if err != nil {
			// Validate already parsed it; keep the running calendar.
			a.log.Warn("invalid event config; keeping previous", logx.Err(err))
		} else {
			a.cal.Store(cal)
			calChanged = true
		}
	}

	wasEnabled := a.sched.Enabled()
	a.sched.Apply(scheduler.Config{Enabled: next.Scheduler.Enabled, Timezone: next.Event.Timezone})
	switch {
	case wasEnabled && !next.Scheduler.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !wasEnabled && next.Scheduler.Enabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
		a.registerJobs(a.cal.Load())
	case next.Scheduler.Enabled && calChanged:
		a.registerJobs(a.cal.Load())
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
