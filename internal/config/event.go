package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts what the scheduler accepts: optional seconds and
// descriptors such as @hourly.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// EventTimes is EventConfig parsed into concrete instants.
type EventTimes struct {
	Loc      *time.Location
	Start    time.Time
	Reminder time.Time
	Archive  time.Time
	// CollectionDays counts calendar days after Start, so a DST change in
	// between keeps the wall-clock time.
	CollectionDays int
	PushInterval   time.Duration
	PushCron       string
}

// Resolve parses the event section. Archive accepts a date or a date-time;
// a bare date means midnight local time.
func (e EventConfig) Resolve() (EventTimes, error) {
	var out EventTimes

	loc, err := time.LoadLocation(strings.TrimSpace(e.Timezone))
	if err != nil {
		return out, fmt.Errorf("event.timezone: %w", err)
	}
	out.Loc = loc

	out.Start, err = ParseLocalTime("event.start", e.Start, loc)
	if err != nil {
		return out, err
	}
	if strings.TrimSpace(e.ReminderAt) == "" {
		d := out.Start.AddDate(0, 0, -1)
		out.Reminder = time.Date(d.Year(), d.Month(), d.Day(), 19, 0, 0, 0, loc)
	} else if out.Reminder, err = ParseLocalTime("event.reminder_at", e.ReminderAt, loc); err != nil {
		return out, err
	}
	if out.Archive, err = ParseLocalTime("event.archive", e.Archive, loc); err != nil {
		return out, err
	}
	if e.CollectionDelayDays < 0 {
		return out, fmt.Errorf("event.collection_delay_days must be >= 0")
	}
	out.CollectionDays = e.CollectionDelayDays
	if out.PushInterval, err = ParseDurationOrDefault("event.push_interval", e.PushInterval, time.Hour); err != nil {
		return out, err
	}
	if out.PushCron = strings.TrimSpace(e.PushCron); out.PushCron != "" {
		if _, err := cronParser.Parse(out.PushCron); err != nil {
			return out, fmt.Errorf("event.push_cron: %w", err)
		}
	}
	return out, nil
}
