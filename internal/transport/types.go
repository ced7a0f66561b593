package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type MediaKind string

const (
	MediaPhoto   MediaKind = "photo"
	MediaVideo   MediaKind = "video"
	MediaVoice   MediaKind = "voice"
	MediaSticker MediaKind = "sticker"
)

// Media is an outbound or inbound attachment referenced by the platform's
// file id.
type Media struct {
	Kind    MediaKind
	FileRef string
	Caption string
}

type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
	From     User
	Text     string
	IsGroup  bool
	// Media is set for photo, video, voice and sticker messages.
	Media *Media
	// HasLocation marks location messages, which carry no Media.
	HasLocation bool
	// ReplyTo is the replied-to message, if any (one level deep).
	ReplyTo *Message
}

type Callback struct {
	ID        string
	From      User
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// UserTarget addresses a private chat, whose id equals the user id.
func UserTarget(userID int64) ChatTarget { return ChatTarget{ChatID: userID} }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Sender-side operations used by the delivery engine and broadcast worker.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendMedia(ctx context.Context, to ChatTarget, m Media, opt *SendOptions) (MessageRef, error)
	// SendAlbum sends 2..MaxAlbumSize photos/videos as one grouped message.
	SendAlbum(ctx context.Context, to ChatTarget, items []Media) ([]MessageRef, error)
}

type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	SendLocation(ctx context.Context, to ChatTarget, lat, lng float64, opt *SendOptions) (MessageRef, error)
	DeleteMessage(ctx context.Context, ref MessageRef) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command
// menu to the platform.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
