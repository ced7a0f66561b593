// Package event holds the party calendar: when submissions open, when the
// scheduled deliveries fire and when the bot turns read-only.
package event

import (
	"math"
	"time"

	"eventbot/internal/config"
)

// Calendar answers time-window questions. It is immutable; a config reload
// builds a new one.
type Calendar struct {
	Loc            *time.Location
	Start          time.Time
	Reminder       time.Time
	Archive        time.Time
	CollectionDays int
	PushInterval   time.Duration
	// PushCron overrides PushInterval when set.
	PushCron string

	now func() time.Time
}

// FromConfig builds a calendar from the event section.
func FromConfig(ec config.EventConfig) (*Calendar, error) {
	ev, err := ec.Resolve()
	if err != nil {
		return nil, err
	}
	return &Calendar{
		Loc:            ev.Loc,
		Start:          ev.Start,
		Reminder:       ev.Reminder,
		Archive:        ev.Archive,
		CollectionDays: ev.CollectionDays,
		PushInterval:   ev.PushInterval,
		PushCron:       ev.PushCron,
	}, nil
}

// WithClock returns a copy that reads time from now (tests).
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Calendar) Now() time.Time {
	if c.now != nil {
		return c.now().In(c.Loc)
	}
	return time.Now().In(c.Loc)
}

// IsArchive reports read-only mode: the local date has reached the archive
// date.
func (c *Calendar) IsArchive() bool {
	return !c.Now().Before(c.Archive)
}

// Started reports whether the event start has passed.
func (c *Calendar) Started() bool {
	return !c.Now().Before(c.Start)
}

func (c *Calendar) GreetingsOpen() bool { return !c.IsArchive() }
func (c *Calendar) SongsOpen() bool     { return !c.IsArchive() }

// UploadsOpen is true from the start until archive mode.
func (c *Calendar) UploadsOpen() bool { return c.Started() && !c.IsArchive() }

// CollectionAt is when the combined media collection is sent: the start's
// wall-clock time, CollectionDays later.
func (c *Calendar) CollectionAt() time.Time { return c.Start.AddDate(0, 0, c.CollectionDays) }

// DaysUntilStart counts calendar days from today to the start day.
// Negative values mean the start is in the past.
func (c *Calendar) DaysUntilStart() int {
	now := c.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.Loc)
	day := time.Date(c.Start.Year(), c.Start.Month(), c.Start.Day(), 0, 0, 0, 0, c.Loc)
	return int(math.Round(day.Sub(today).Hours() / 24))
}
