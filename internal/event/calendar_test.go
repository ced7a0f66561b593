package event

import (
	"testing"
	"time"

	"eventbot/internal/config"
)

func testCalendar(t *testing.T, now string) *Calendar {
	t.Helper()
	c, err := FromConfig(config.EventConfig{
		Timezone:            "Europe/Moscow",
		Start:               "2025-09-26 00:01",
		Archive:             "2025-10-31",
		CollectionDelayDays: 7,
	})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	at, err := time.ParseInLocation(config.DateTimeLayout, now, c.Loc)
	if err != nil {
		t.Fatalf("parse now: %v", err)
	}
	return c.WithClock(func() time.Time { return at })
}

func TestWindows(t *testing.T) {
	t.Parallel()

	cases := []struct {
		now                       string
		greetings, uploads, songs bool
		archive                   bool
		days                      int
	}{
		{"2025-09-20 12:00", true, false, true, false, 6},
		{"2025-09-26 00:00", true, false, true, false, 0},
		{"2025-09-26 00:01", true, true, true, false, 0},
		{"2025-10-30 23:59", true, true, true, false, -34},
		{"2025-10-31 00:00", false, false, false, true, -35},
	}
	for _, tc := range cases {
		c := testCalendar(t, tc.now)
		if c.GreetingsOpen() != tc.greetings || c.UploadsOpen() != tc.uploads ||
			c.SongsOpen() != tc.songs || c.IsArchive() != tc.archive {
			t.Fatalf("%s: greetings=%v uploads=%v songs=%v archive=%v", tc.now,
				c.GreetingsOpen(), c.UploadsOpen(), c.SongsOpen(), c.IsArchive())
		}
		if got := c.DaysUntilStart(); got != tc.days {
			t.Fatalf("%s: DaysUntilStart=%d want %d", tc.now, got, tc.days)
		}
	}
}

func TestCollectionAt(t *testing.T) {
	t.Parallel()

	c := testCalendar(t, "2025-09-01 10:00")
	if got := c.CollectionAt().Format(config.DateTimeLayout); got != "2025-10-03 00:01" {
		t.Fatalf("CollectionAt=%s", got)
	}
}

func TestCollectionAtKeepsWallClockAcrossDST(t *testing.T) {
	t.Parallel()

	// Berlin leaves summer time on 2025-10-26.
	c, err := FromConfig(config.EventConfig{
		Timezone:            "Europe/Berlin",
		Start:               "2025-10-20 12:00",
		Archive:             "2025-12-01",
		CollectionDelayDays: 7,
	})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if got := c.CollectionAt().Format(config.DateTimeLayout); got != "2025-10-27 12:00" {
		t.Fatalf("CollectionAt=%s", got)
	}
	if d := c.CollectionAt().Sub(c.Start); d != 7*24*time.Hour+time.Hour {
		t.Fatalf("elapsed=%s", d)
	}
}

func TestLiveSwap(t *testing.T) {
	t.Parallel()

	live := NewLive(testCalendar(t, "2025-09-20 12:00"))
	if live.Started() || live.DaysUntilStart() != 6 {
		t.Fatalf("before swap: started=%v days=%d", live.Started(), live.DaysUntilStart())
	}
	live.Store(testCalendar(t, "2025-10-31 09:00"))
	if !live.IsArchive() || live.UploadsOpen() {
		t.Fatalf("after swap: archive=%v uploads=%v", live.IsArchive(), live.UploadsOpen())
	}
}
