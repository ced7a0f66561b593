package app

import (
	"strconv"
	"strings"
	"time"

	"eventbot/internal/config"
	"eventbot/internal/delivery"
	"eventbot/internal/flows"
	"eventbot/internal/notifier/broadcast"
	"eventbot/internal/observability/metrics"
	"eventbot/internal/storage"
	"eventbot/internal/task/engine"
	logx "eventbot/pkg/logx"
)

// The mappers run on validated configs; Validate has already rejected bad
// durations, so parse errors fall back to defaults here.

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    l.Chat.Enabled,
			ThreadID:   l.Chat.ThreadID,
			MinLevel:   l.Chat.MinLevel,
			RatePerSec: l.Chat.RatePerSec,
		},
	}
}

// logChatID parses telegram.log_chat. 0 clears the target.
func logChatID(cfg *config.Config) int64 {
	s := strings.TrimSpace(cfg.Telegram.LogChat)
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
	}, nil
}

func mapTaskEngineConfig(cfg *config.Config) engine.Config {
	te := cfg.TaskEngine
	def, _ := config.ParseDurationOrDefault("task_engine.default_timeout", te.DefaultTimeout, 0)
	delay, _ := config.ParseDurationOrDefault("task_engine.max_queue_delay", te.MaxQueueDelay, 0)
	return engine.Config{
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: def,
		MaxQueueDelay:  delay,
		HistorySize:    te.HistorySize,
		RetryMax:       te.RetryMax,
	}
}

func mapDeliveryConfig(cfg *config.Config) delivery.Config {
	d := cfg.Delivery
	chunk, _ := config.ParseDurationOrDefault("delivery.chunk_pause", d.ChunkPause, time.Second)
	recip, _ := config.ParseDurationOrDefault("delivery.recipient_pause", d.RecipientPause, 500*time.Millisecond)
	flood, _ := config.ParseDurationOrDefault("delivery.flood_backoff", d.FloodBackoff, 5*time.Second)
	return delivery.Config{
		ChunkSize:      d.ChunkSize,
		ChunkPause:     chunk,
		RecipientPause: recip,
		FloodBackoff:   flood,
		RatePerSec:     d.RatePerSec,
	}
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	b := cfg.Broadcast
	return broadcast.Config{Workers: b.Workers, QueueSize: b.QueueSize, RatePerSec: b.RatePerSec, RetryMax: b.RetryMax}
}

func mapMetricsConfig(cfg *config.Config) metrics.Config {
	p := cfg.Pprof
	rt, _ := config.ParseDurationOrDefault("pprof.read_timeout", p.ReadTimeout, 10*time.Second)
	wt, _ := config.ParseDurationOrDefault("pprof.write_timeout", p.WriteTimeout, 60*time.Second)
	it, _ := config.ParseDurationOrDefault("pprof.idle_timeout", p.IdleTimeout, 60*time.Second)
	return metrics.Config{
		Enabled:              p.Enabled,
		Addr:                 p.Addr,
		Prefix:               p.Prefix,
		Token:                p.Token,
		AllowInsecure:        p.AllowInsecure,
		Metrics:              p.Metrics,
		ReadTimeout:          rt,
		WriteTimeout:         wt,
		IdleTimeout:          it,
		MutexProfileFraction: p.MutexProfileFraction,
		BlockProfileRate:     p.BlockProfileRate,
	}
}

func mapLimits(cfg *config.Config) flows.Limits {
	l := cfg.Limits
	return flows.Limits{MaxFilesPerUser: l.MaxFilesPerUser, SongMinLen: l.SongMinLen, SongMaxLen: l.SongMaxLen}
}

// inbound returns the per-user message budget and the notice cooldown.
func inbound(cfg *config.Config) (n int, window, cooldown time.Duration) {
	l := cfg.Limits
	window, _ = config.ParseDurationOrDefault("limits.inbound_window", l.InboundWindow, time.Minute)
	cooldown, _ = config.ParseDurationOrDefault("limits.notify_cooldown", l.NotifyCooldown, 3*time.Second)
	return l.InboundPerWindow, window, cooldown
}

// mapMessages overlays the configured delivery texts on the defaults.
func mapMessages(cfg *config.Config) delivery.Messages {
	m := delivery.DefaultMessages()
	c := cfg.Content.Messages
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&m.GreetingFrom, c.GreetingFrom},
		{&m.PresentsSummary, c.PresentsSummary},
		{&m.Reminder, c.Reminder},
		{&m.CollectionReady, c.CollectionReady},
		{&m.CollectionEmpty, c.CollectionEmpty},
		{&m.NewMedia, c.NewMedia},
	} {
		if v := strings.TrimSpace(f.src); v != "" {
			*f.dst = v
		}
	}
	return m
}
