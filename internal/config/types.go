package config

// Config is the full eventbot configuration file (YAML or JSON).
//
// Durations are Go duration strings ("500ms", "10s", "1h"). Event dates use
// the layout "2006-01-02 15:04" in event.timezone.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Event    EventConfig    `json:"event"`
	Limits   LimitsConfig   `json:"limits"`
	Delivery DeliveryConfig `json:"delivery"`
	Content  ContentConfig  `json:"content"`

	Logging LoggingConfig `json:"logging"`
	Pprof   PprofConfig   `json:"pprof,omitempty"`

	Scheduler  SchedulerConfig  `json:"scheduler"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
	Broadcast  BroadcastConfig  `json:"broadcast"`
	Storage    StorageConfig    `json:"storage"`
}

type TelegramConfig struct {
	// Token may be left empty in the file and supplied via EVENTBOT_TOKEN
	// or BOT_TOKEN.
	Token string `json:"token"`
	// OperatorIDs are the hosts allowed to run admin commands and the
	// recipients of greetings and the media collection.
	OperatorIDs []int64 `json:"operator_ids"`
	// LogChat receives warn+ log lines when logging.chat.enabled is set.
	LogChat     string `json:"log_chat,omitempty"`
	PollTimeout string `json:"poll_timeout"`
}

// EventConfig describes the party calendar.
type EventConfig struct {
	Timezone string `json:"timezone"`
	Start    string `json:"start"`
	// ReminderAt defaults to the day before Start at 19:00.
	ReminderAt          string `json:"reminder_at,omitempty"`
	CollectionDelayDays int    `json:"collection_delay_days"`
	// Archive is the first day (date only) on which the bot is read-only.
	Archive      string `json:"archive"`
	PushInterval string `json:"push_interval,omitempty"`
	// PushCron, when set, replaces PushInterval with a cron expression in
	// the event timezone ("0 * * * *" pushes at the top of every hour).
	PushCron string `json:"push_cron,omitempty"`
}

// LimitsConfig guards inbound traffic and submission sizes.
type LimitsConfig struct {
	InboundPerWindow int    `json:"inbound_per_window"`
	InboundWindow    string `json:"inbound_window"`
	NotifyCooldown   string `json:"notify_cooldown"`
	// MaxFilesPerUser caps media uploads per user. 0 means unlimited.
	MaxFilesPerUser int `json:"max_files_per_user"`
	SongMinLen      int `json:"song_min_len"`
	SongMaxLen      int `json:"song_max_len"`
}

// DeliveryConfig paces fan-out sends.
type DeliveryConfig struct {
	ChunkSize      int    `json:"chunk_size"`
	ChunkPause     string `json:"chunk_pause"`
	RecipientPause string `json:"recipient_pause"`
	FloodBackoff   string `json:"flood_backoff"`
	RatePerSec     int    `json:"rate_per_sec"`
}

// ContentConfig holds the static party information shown in the menu.
type ContentConfig struct {
	HostName  string   `json:"host_name"`
	Venue     string   `json:"venue"`
	Address   string   `json:"address"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	TimeText  string   `json:"time_text"`
	BringText string   `json:"bring_text"`
	Fortunes  []string `json:"fortunes,omitempty"`
	// Messages overrides what the delivery jobs send. Empty fields keep the
	// built-in text.
	Messages DeliveryMessages `json:"messages,omitempty"`
}

// DeliveryMessages are printf templates; the verb each field takes is noted.
type DeliveryMessages struct {
	GreetingFrom    string `json:"greeting_from,omitempty"`    // %s sender name
	PresentsSummary string `json:"presents_summary,omitempty"` // %d delivered
	Reminder        string `json:"reminder,omitempty"`
	CollectionReady string `json:"collection_ready,omitempty"` // %d files
	CollectionEmpty string `json:"collection_empty,omitempty"`
	NewMedia        string `json:"new_media,omitempty"` // %d new files
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// PprofConfig controls the debug HTTP server (/healthz, /metrics, pprof).
//
// Bind to localhost, or set a token, or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       bool   `json:"metrics,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
}

// TaskEngineConfig controls execution of scheduled and manual jobs.
//
// Defaults: workers 2, queue_size 64, history_size 100, retry_max 2.
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// BroadcastConfig controls the operator /broadcast worker.
type BroadcastConfig struct {
	Workers    int `json:"workers,omitempty"`
	QueueSize  int `json:"queue_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
	RetryMax   int `json:"retry_max,omitempty"`
}

// StorageConfig selects the content store backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/eventbot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://..." }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}
