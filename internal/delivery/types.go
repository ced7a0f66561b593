// Package delivery fans accumulated party content out to recipients:
// greetings to the hosts, reminders to greeting senders and the media
// collection to hosts or everyone. Sends are paced, batched into albums
// and tolerant of per-recipient failures.
package delivery

import (
	"context"
	"time"

	"eventbot/internal/storage"
)

type Mode int

const (
	// ModeOperators sends the collection to the hosts only and marks nothing.
	ModeOperators Mode = iota
	// ModeEveryone adds every known user and marks the pass as sent.
	ModeEveryone
)

func (m Mode) String() string {
	if m == ModeEveryone {
		return "everyone"
	}
	return "operators"
}

type Config struct {
	// ChunkSize caps images per album call; values above 10 are clamped.
	ChunkSize      int
	ChunkPause     time.Duration
	RecipientPause time.Duration
	// FloodBackoff is the minimum wait after a rate-limit error.
	FloodBackoff time.Duration
	// RatePerSec paces every send. <=0 disables pacing.
	RatePerSec int
}

// Messages are the texts the engine sends. %s and %d verbs are filled as
// documented per field.
type Messages struct {
	GreetingFrom    string // %s sender name
	PresentsSummary string // %d greetings delivered
	Reminder        string
	CollectionReady string // %d files
	CollectionEmpty string
	NewMedia        string // %d new files
}

func DefaultMessages() Messages {
	return Messages{
		GreetingFrom:    "🎁 From %s",
		PresentsSummary: "🎉 Presents delivered: %d",
		Reminder:        "⏰ Reminder: the party is tomorrow! See you there 🎈",
		CollectionReady: "🎉 The party album is ready!\n\nTotal files: %d",
		CollectionEmpty: "The album is empty, nobody uploaded anything 😢",
		NewMedia:        "📸 New files in the party album: %d",
	}
}

// Store is the slice of the content store the engine reads and flags.
type Store interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
	PendingGreetings(ctx context.Context) ([]storage.SenderGreeting, error)
	MarkGreetingDelivered(ctx context.Context, id int64) (bool, error)
	GreetingSenderIDs(ctx context.Context) ([]int64, error)
	ListMedia(ctx context.Context) ([]storage.MediaItem, error)
	UnsentMedia(ctx context.Context) ([]storage.MediaItem, error)
	MarkMediaSent(ctx context.Context, ids []int64) (int64, error)
}

type Calendar interface {
	IsArchive() bool
}

// Operators supplies the current host ids; the list is reloadable.
type Operators interface {
	Operators() []int64
}

// Report counts per-unit send outcomes. A unit is one text, media or album call.
type Report struct {
	Recipients  int
	Sent        int
	Failed      int
	RateLimited int
	Unavailable int
}

func (r *Report) add(o Report) {
	r.Sent += o.Sent
	r.Failed += o.Failed
	r.RateLimited += o.RateLimited
	r.Unavailable += o.Unavailable
}

type GreetingReport struct {
	Report
	Pending   int
	Delivered int
}

type CollectionReport struct {
	Report
	Mode   Mode
	Items  int
	Albums int
	Marked int64
}

type PushReport struct {
	Report
	// Skipped is set in archive mode.
	Skipped bool
	Items   int
	Marked  int64
}
