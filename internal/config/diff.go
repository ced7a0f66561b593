package config

import (
	"reflect"
	"strings"

	logx "eventbot/pkg/logx"
)

// Section names reported by SummarizeConfigChange.
const (
	SectionTelegram   = "telegram"
	SectionEvent      = "event"
	SectionLimits     = "limits"
	SectionDelivery   = "delivery"
	SectionContent    = "content"
	SectionLogging    = "logging"
	SectionPprof      = "pprof"
	SectionScheduler  = "scheduler"
	SectionTaskEngine = "task_engine"
	SectionBroadcast  = "broadcast"
	SectionStorage    = "storage"
)

// SummarizeConfigChange lists changed sections plus safe fields for a log
// line. Tokens and DSNs are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	o, n := oldCfg.Telegram, newCfg.Telegram
	if o.Token != n.Token || o.PollTimeout != n.PollTimeout ||
		!reflect.DeepEqual(o.OperatorIDs, n.OperatorIDs) ||
		strings.TrimSpace(o.LogChat) != strings.TrimSpace(n.LogChat) {
		changed = append(changed, SectionTelegram)
		attrs = append(attrs,
			logx.Int("telegram.operator_count", len(n.OperatorIDs)),
			logx.Bool("telegram.token_changed", o.Token != n.Token),
			logx.Bool("telegram.log_chat_set", strings.TrimSpace(n.LogChat) != ""),
		)
	}

	if oldCfg.Event != newCfg.Event {
		changed = append(changed, SectionEvent)
		attrs = append(attrs,
			logx.String("event.start", newCfg.Event.Start),
			logx.String("event.archive", newCfg.Event.Archive),
			logx.String("event.timezone", newCfg.Event.Timezone),
		)
	}

	if oldCfg.Limits != newCfg.Limits {
		changed = append(changed, SectionLimits)
		attrs = append(attrs,
			logx.Int("limits.inbound_per_window", newCfg.Limits.InboundPerWindow),
			logx.Int("limits.max_files_per_user", newCfg.Limits.MaxFilesPerUser),
		)
	}

	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, SectionDelivery)
		attrs = append(attrs,
			logx.Int("delivery.chunk_size", newCfg.Delivery.ChunkSize),
			logx.Int("delivery.rate_per_sec", newCfg.Delivery.RatePerSec),
		)
	}

	if !reflect.DeepEqual(oldCfg.Content, newCfg.Content) {
		changed = append(changed, SectionContent)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	op, np := oldCfg.Pprof, newCfg.Pprof
	op.Token, np.Token = tokenMarker(op.Token), tokenMarker(np.Token)
	if op != np || oldCfg.Pprof.Token != newCfg.Pprof.Token {
		changed = append(changed, SectionPprof)
		attrs = append(attrs,
			logx.Bool("pprof.enabled", np.Enabled),
			logx.String("pprof.addr", np.Addr),
			logx.Bool("pprof.metrics", np.Metrics),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, SectionScheduler)
		attrs = append(attrs, logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled))
	}
	if oldCfg.TaskEngine != newCfg.TaskEngine {
		changed = append(changed, SectionTaskEngine)
		attrs = append(attrs, logx.Int("task_engine.workers", newCfg.TaskEngine.Workers))
	}
	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, SectionBroadcast)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, SectionStorage)
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}

	return changed, attrs
}

func tokenMarker(tok string) string {
	if strings.TrimSpace(tok) == "" {
		return ""
	}
	return "set"
}
