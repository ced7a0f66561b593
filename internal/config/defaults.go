package config

import "strings"

var defaultFortunes = []string{
	"Tonight a stranger becomes a friend.",
	"Your next toast will be legendary.",
	"Someone here has a surprise for you.",
	"Dance first, think later.",
	"The best photo of the night will be yours.",
}

// ApplyDefaults fills zero values. It is called by Parse, so every
// committed config is complete.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Telegram.PollTimeout) == "" {
		c.Telegram.PollTimeout = "10s"
	}

	if strings.TrimSpace(c.Event.Timezone) == "" {
		c.Event.Timezone = "Europe/Moscow"
	}
	if c.Event.CollectionDelayDays == 0 {
		c.Event.CollectionDelayDays = 7
	}
	if strings.TrimSpace(c.Event.PushInterval) == "" {
		c.Event.PushInterval = "1h"
	}

	l := &c.Limits
	if l.InboundPerWindow == 0 {
		l.InboundPerWindow = 5
	}
	if strings.TrimSpace(l.InboundWindow) == "" {
		l.InboundWindow = "60s"
	}
	if strings.TrimSpace(l.NotifyCooldown) == "" {
		l.NotifyCooldown = "3s"
	}
	if l.SongMinLen == 0 {
		l.SongMinLen = 3
	}
	if l.SongMaxLen == 0 {
		l.SongMaxLen = 200
	}

	d := &c.Delivery
	if d.ChunkSize == 0 {
		d.ChunkSize = 10
	}
	if strings.TrimSpace(d.ChunkPause) == "" {
		d.ChunkPause = "1s"
	}
	if strings.TrimSpace(d.RecipientPause) == "" {
		d.RecipientPause = "500ms"
	}
	if strings.TrimSpace(d.FloodBackoff) == "" {
		d.FloodBackoff = "5s"
	}
	if d.RatePerSec == 0 {
		d.RatePerSec = 20
	}

	if len(c.Content.Fortunes) == 0 {
		c.Content.Fortunes = append([]string(nil), defaultFortunes...)
	}

	if c.TaskEngine.Workers == 0 {
		c.TaskEngine.Workers = 2
	}
	if c.TaskEngine.QueueSize == 0 {
		c.TaskEngine.QueueSize = 64
	}
	if c.TaskEngine.HistorySize == 0 {
		c.TaskEngine.HistorySize = 100
	}
	if c.TaskEngine.RetryMax == 0 {
		c.TaskEngine.RetryMax = 2
	}

	if c.Broadcast.Workers == 0 {
		c.Broadcast.Workers = 1
	}
	if c.Broadcast.QueueSize == 0 {
		c.Broadcast.QueueSize = 16
	}
	if c.Broadcast.RatePerSec == 0 {
		c.Broadcast.RatePerSec = 20
	}
	if c.Broadcast.RetryMax == 0 {
		c.Broadcast.RetryMax = 2
	}

	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "sqlite"
	}
	if strings.TrimSpace(c.Storage.Path) == "" && c.Storage.Driver != "postgres" {
		c.Storage.Path = "./data/eventbot.db"
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}
