package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports every problem that must stop the process from starting.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token: required (or set EVENTBOT_TOKEN)"))
	}
	if len(cfg.Telegram.OperatorIDs) == 0 {
		errs = append(errs, errors.New("telegram.operator_ids: at least one operator is required"))
	}
	for i, id := range cfg.Telegram.OperatorIDs {
		if id <= 0 {
			errs = append(errs, fmt.Errorf("telegram.operator_ids[%d]: invalid id %d", i, id))
		}
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	if ev, err := cfg.Event.Resolve(); err != nil {
		errs = append(errs, err)
	} else {
		if !ev.Reminder.Before(ev.Start) {
			errs = append(errs, errors.New("event.reminder_at must be before event.start"))
		}
		if !ev.Start.Before(ev.Archive) {
			errs = append(errs, errors.New("event.archive must be after event.start"))
		}
	}

	l := cfg.Limits
	if l.InboundPerWindow < 1 {
		errs = append(errs, errors.New("limits.inbound_per_window must be >= 1"))
	}
	if l.MaxFilesPerUser < 0 {
		errs = append(errs, errors.New("limits.max_files_per_user must be >= 0"))
	}
	if l.SongMinLen < 1 || l.SongMaxLen < l.SongMinLen {
		errs = append(errs, fmt.Errorf("limits: song length range [%d,%d] is invalid", l.SongMinLen, l.SongMaxLen))
	}
	for path, raw := range map[string]string{
		"limits.inbound_window":       l.InboundWindow,
		"limits.notify_cooldown":      l.NotifyCooldown,
		"delivery.chunk_pause":        cfg.Delivery.ChunkPause,
		"delivery.recipient_pause":    cfg.Delivery.RecipientPause,
		"delivery.flood_backoff":      cfg.Delivery.FloodBackoff,
		"task_engine.default_timeout": cfg.TaskEngine.DefaultTimeout,
		"task_engine.max_queue_delay": cfg.TaskEngine.MaxQueueDelay,
		"pprof.read_timeout":          cfg.Pprof.ReadTimeout,
		"pprof.write_timeout":         cfg.Pprof.WriteTimeout,
		"pprof.idle_timeout":          cfg.Pprof.IdleTimeout,
		"storage.busy_timeout":        cfg.Storage.BusyTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if cs := cfg.Delivery.ChunkSize; cs < 1 || cs > 10 {
		errs = append(errs, fmt.Errorf("delivery.chunk_size must be within 1..10, got %d", cs))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "sqlite", "gorm", "gorm-sqlite":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path: required for sqlite drivers"))
		}
	case "postgres":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn: required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}

	return errors.Join(errs...)
}
