package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"eventbot/internal/bot"
	"eventbot/internal/config"
	"eventbot/internal/delivery"
	"eventbot/internal/event"
	"eventbot/internal/eventbus"
	"eventbot/internal/flows"
	"eventbot/internal/notifier/broadcast"
	"eventbot/internal/observability/metrics"
	"eventbot/internal/ratelimit"
	"eventbot/internal/runtime/supervisor"
	"eventbot/internal/session"
	"eventbot/internal/storage"
	"eventbot/internal/task/engine"
	"eventbot/internal/task/scheduler"
	kit "eventbot/internal/transport"
	telegram "eventbot/internal/transport/telegram/adapter"
	"eventbot/internal/transport/telegram/router"
	logx "eventbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	cal     *event.Live

	engine    *engine.Service
	sched     *scheduler.Service
	broadcast *broadcast.Service
	delivery  *delivery.Engine
	metrics   *metrics.Server

	cmdm     *router.CommandManager
	bot      *bot.Bot
	sessions *session.Registry
	limits   *flows.LimitsHolder
	inbound  *ratelimit.Limiter
	slowDown *ratelimit.Throttle
	notify   *ratelimit.Throttle

	updates chan kit.Update
}

// NewApp loads and validates the config and builds every component. Nothing
// runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// The chat sink needs the adapter and the adapter wants a logger, so
	// the service starts without a sink and gets it right after.
	logCfg := mapLogging(cfg)
	logs, log := logx.New(logCfg, nil)

	pollTimeout, _ := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.Component("telegram")))
	if err != nil {
		return nil, err
	}
	logs.SetSink(ad)
	logs.SetChatTarget(logChatID(cfg), cfg.Logging.Chat.ThreadID)
	logs.Apply(logCfg)

	alog := log.With(logx.Component("app"))

	cal, err := event.FromConfig(cfg.Event)
	if err != nil {
		return nil, err
	}
	live := event.NewLive(cal)

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	alog.Info("storage ready", logx.String("driver", sc.Driver))

	bus := eventbus.New()
	eng := engine.New(mapTaskEngineConfig(cfg), log.With(logx.Component("taskengine")), bus)
	sched := scheduler.New(scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: cfg.Event.Timezone,
	}, eng, log.With(logx.Component("scheduler")))
	bc := broadcast.New(mapBroadcastConfig(cfg), ad, log.With(logx.Component("broadcast")))

	n, window, cooldown := inbound(cfg)
	a := &App{
		cfgm:      cfgm,
		log:       alog,
		logs:      logs,
		bus:       bus,
		store:     store,
		adapter:   ad,
		cal:       live,
		engine:    eng,
		sched:     sched,
		broadcast: bc,
		limits:    flows.NewLimitsHolder(mapLimits(cfg)),
		inbound:   ratelimit.NewLimiter(n, window),
		slowDown:  ratelimit.NewThrottle(window),
		notify:    ratelimit.NewThrottle(cooldown),
		updates:   make(chan kit.Update, 256),
	}

	// The router needs the fallback before the bot exists; the bot needs
	// the router's operator list for the wishlist flow.
	a.cmdm = router.NewCommandManager(log.With(logx.Component("commands")), ad, cfg.Telegram.OperatorIDs, router.Options{
		Inbound:        a.inbound,
		SlowDownNotice: a.slowDown,
		Exempt:         a.mediaUpload,
		Fallback: func(ctx context.Context, req *router.Request) error {
			return a.bot.Fallback(ctx, req)
		},
	})

	a.sessions = session.NewRegistry(log.With(logx.Component("sessions")),
		flows.NewGreeting(store, live),
		flows.NewMedia(store, live, a.limits, a.notify),
		flows.NewSong(store, live, a.limits),
		flows.NewWishlist(store, a.cmdm),
	)
	a.delivery = delivery.New(mapDeliveryConfig(cfg), store, ad, live, a.cmdm, log)
	a.delivery.SetMessages(mapMessages(cfg))
	a.bot = bot.New(bot.Deps{
		Store:     store,
		Sessions:  a.sessions,
		Calendar:  live,
		Delivery:  a.delivery,
		Broadcast: bc,
		Tasks:     eng,
		Schedules: sched,
		Content:   cfg.Content,
		Log:       log,
	})
	a.metrics = metrics.New(mapMetricsConfig(cfg), a.health, log)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.Component("config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.engine.Start(run)
	a.broadcast.Start(run)
	a.metrics.Start(run)
	if a.sched.Enabled() {
		a.sched.Start(run)
		a.registerJobs(a.cal.Load())
	}

	a.cmdm.SetRegistry(run, a.bot.Commands(), a.bot.Callbacks())
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	a.watchTaskEvents()
	a.sup.Go0("ratelimit.sweep", func(c context.Context) {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case now := <-t.C:
				a.inbound.Sweep(now)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: apply only the newest.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	cal := a.cal.Load()
	a.log.Info("app started",
		logx.Time("start", cal.Start),
		logx.Time("archive", cal.Archive),
		logx.Bool("archive_mode", cal.IsArchive()),
		logx.Int("operators", len(a.cmdm.Operators())),
	)
	return nil
}

// watchTaskEvents logs failed and dropped tasks at error level so the log
// chat sink forwards them to the operators.
func (a *App) watchTaskEvents() {
	events, unsub := a.bus.Subscribe(64, engine.EventFailed, engine.EventDropped)
	a.sup.Go0("eventbus.tasks", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				te, _ := e.Data.(engine.TaskEvent)
				a.log.Error("task "+e.Type,
					logx.String("task", te.Name),
					logx.String("id", te.ID),
					logx.Int("attempts", te.Attempts),
					logx.String("err", te.Error),
				)
			}
		}
	})
}

// mediaUpload reports whether up is a file sent into an open media flow.
// Those bypass the inbound limit: a 10-photo album is 10 updates.
func (a *App) mediaUpload(up kit.Update) bool {
	if up.Message == nil || up.Message.Media == nil || a.sessions == nil {
		return false
	}
	kind, ok := a.sessions.Active(up.Message.From.ID)
	return ok && kind == session.KindMedia
}

func (a *App) health() (bool, any) {
	es := a.engine.Snapshot()
	ok := a.adapter.Supervisor() != nil && es.Running
	return ok, map[string]any{
		"adapter":        a.adapter.Supervisor() != nil,
		"engine_running": es.Running,
		"engine_queue":   es.QueueLen,
		"in_flight":      es.InFlight,
		"sessions":       a.sessions.Len(),
		"archive":        a.cal.IsArchive(),
		"push_scheduled": a.sched.Has(bot.JobPushNewMedia),
		"bus_dropped":    a.bus.Dropped(),
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown step so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Triggers first so nothing new is queued while the workers drain.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("workers", 5*time.Second, func(c context.Context) error {
		g, gctx := errgroup.WithContext(c)
		g.Go(func() error { a.engine.Stop(gctx); return nil })
		g.Go(func() error { a.broadcast.Stop(gctx); return nil })
		g.Go(func() error { a.metrics.Stop(gctx); return nil })
		return g.Wait()
	})
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}
