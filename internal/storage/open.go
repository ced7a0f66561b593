package storage

import (
	"context"
	"errors"
	"strings"

	logx "eventbot/pkg/logx"
)

type UserStore interface {
	// UpsertUser records profile fields and never resets Remembers.
	UpsertUser(ctx context.Context, u User) error
	SetRemembers(ctx context.Context, userID int64, remembers bool) error
	GetUser(ctx context.Context, userID int64) (User, bool, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
}

type GreetingStore interface {
	AddGreeting(ctx context.Context, g Greeting) (int64, error)
	PendingGreetings(ctx context.Context) ([]SenderGreeting, error)
	// MarkGreetingDelivered flips the flag only if it is still unset and
	// reports whether this call changed it.
	MarkGreetingDelivered(ctx context.Context, id int64) (bool, error)
	GreetingSenderIDs(ctx context.Context) ([]int64, error)
	RecentGreetings(ctx context.Context, limit int) ([]SenderGreeting, error)
}

type MediaStore interface {
	AddMedia(ctx context.Context, m MediaItem) (int64, error)
	CountUserMedia(ctx context.Context, userID int64) (int, error)
	// ListMedia and UnsentMedia order by creation time, then id.
	ListMedia(ctx context.Context) ([]MediaItem, error)
	UnsentMedia(ctx context.Context) ([]MediaItem, error)
	MarkMediaSent(ctx context.Context, ids []int64) (int64, error)
}

type SongStore interface {
	AddSong(ctx context.Context, s SongSuggestion) (int64, error)
	// ListSongs returns newest first.
	ListSongs(ctx context.Context) ([]SongEntry, error)
}

type WishlistStore interface {
	AddWishlistItem(ctx context.Context, text string, createdBy int64) (int64, error)
	ListWishlist(ctx context.Context) ([]WishlistEntry, error)
	DeleteWishlistItem(ctx context.Context, id int64) (bool, error)
}

type AttendanceStore interface {
	// ConfirmAttendance is idempotent per user. created is false when the
	// user had already confirmed; count is the total after the call.
	ConfirmAttendance(ctx context.Context, userID int64) (created bool, count int, err error)
	AttendanceCount(ctx context.Context) (int, error)
	ListAttendance(ctx context.Context) ([]Attendee, error)
}

type WelcomePhotoStore interface {
	// SetWelcomePhoto deactivates the current photo of the category and
	// stores p as active, atomically.
	SetWelcomePhoto(ctx context.Context, p WelcomePhoto) (int64, error)
	ActiveWelcomePhoto(ctx context.Context, cat PhotoCategory) (WelcomePhoto, bool, error)
	ListWelcomePhotos(ctx context.Context) ([]WelcomePhoto, error)
}

// Store is the full content store.
type Store interface {
	UserStore
	GreetingStore
	MediaStore
	SongStore
	WishlistStore
	AttendanceStore
	WelcomePhotoStore

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.Component("storage"), logx.String("driver", driver))

	switch driver {
	case "", "none":
		return nil, ErrDisabled
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "gorm", "gorm-sqlite":
		return openGormSQLite(cfg, log)
	case "postgres", "postgresql":
		return openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
