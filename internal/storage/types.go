package storage

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrDisabled          = errors.New("storage disabled")
	ErrDriverUnavailable = errors.New("storage driver not compiled in")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

type GreetingKind string

const (
	GreetingText    GreetingKind = "text"
	GreetingImage   GreetingKind = "image"
	GreetingVideo   GreetingKind = "video"
	GreetingVoice   GreetingKind = "voice"
	GreetingSticker GreetingKind = "sticker"
)

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaVoice MediaKind = "voice"
)

type PhotoCategory string

const (
	PhotoAccepted PhotoCategory = "accepted"
	PhotoDeclined PhotoCategory = "declined"
)

// User is a chat user seen by the bot. Remembers is nil until the user
// answers the welcome question.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Remembers *bool
	CreatedAt time.Time
}

// DisplayName picks first name, then @username, then "anonymous".
func (u User) DisplayName() string {
	if s := strings.TrimSpace(u.FirstName); s != "" {
		return s
	}
	if s := strings.TrimSpace(u.Username); s != "" {
		return "@" + s
	}
	return "anonymous"
}

// Greeting content is the text itself or a transport file reference.
type Greeting struct {
	ID        int64
	UserID    int64
	Kind      GreetingKind
	Content   string
	Delivered bool
	CreatedAt time.Time
}

// SenderGreeting is a greeting joined with its author.
type SenderGreeting struct {
	Greeting
	Sender User
}

type MediaItem struct {
	ID               int64
	UserID           int64
	Kind             MediaKind
	FileRef          string
	SentToRecipients bool
	CreatedAt        time.Time
}

type SongSuggestion struct {
	ID        int64
	UserID    int64
	Text      string
	CreatedAt time.Time
}

type SongEntry struct {
	SongSuggestion
	Sender User
}

type WishlistEntry struct {
	ID        int64
	Text      string
	CreatedBy int64
	CreatedAt time.Time
}

type Attendee struct {
	User        User
	ConfirmedAt time.Time
}

type WelcomePhoto struct {
	ID        int64
	Category  PhotoCategory
	FileRef   string
	Caption   string
	Active    bool
	CreatedAt time.Time
}

// Stats is the operator /stats summary.
type Stats struct {
	Users              int
	RemembersYes       int
	RemembersNo        int
	RemembersUnknown   int
	Greetings          int
	GreetingsDelivered int
	Media              int
	MediaSent          int
	Songs              int
	Wishlist           int
	Attendance         int
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
