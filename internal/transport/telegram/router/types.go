package router

import (
	"context"
	"time"

	kit "eventbot/internal/transport"
	logx "eventbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOperator
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	// Route is a space-separated command path, e.g. "get_album" or "wishlist add".
	Route       string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	// Hidden commands are routable but left out of help and the menu.
	Hidden bool
	Handle HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackAccess defaults to operator-only.
type CallbackAccess int

const (
	CallbackAccessOperator CallbackAccess = iota
	CallbackAccessEveryone
)

// CallbackRoute matches callback data "<group>:<action>[:<payload>]".
type CallbackRoute struct {
	Group   string
	Action  string
	Access  CallbackAccess
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update  kit.Update
	Message *kit.Message // nil for callbacks
	Chat    kit.ChatTarget
	From    kit.User
	Path    []string
	Command string
	Args    []string
	Payload string

	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Adapter    kit.Adapter
	Logger     logx.Logger
	IsOperator bool
}

// Reply sends text to the request chat.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}

// Allower gates a user action. Satisfied by ratelimit.Limiter and ratelimit.Throttle.
type Allower interface {
	Allow(userID int64) bool
}

type Texts struct {
	Unknown      string
	Unauthorized string
	Busy         string
	SlowDown     string
}

func (t Texts) withDefaults() Texts {
	if t.Unknown == "" {
		t.Unknown = "Unknown command. Try /help"
	}
	if t.Unauthorized == "" {
		t.Unauthorized = "unauthorized"
	}
	if t.Busy == "" {
		t.Busy = "busy, try again"
	}
	if t.SlowDown == "" {
		t.SlowDown = "Too many messages, slow down a little."
	}
	return t
}

type Options struct {
	// Workers is the number of per-user ordered queues. <=0 uses NumCPU (min 2).
	Workers   int
	QueueSize int
	// Inbound limits messages per user; nil disables the limit.
	Inbound Allower
	// SlowDownNotice gates the "slow down" reply; nil replies every time.
	SlowDownNotice Allower
	// Exempt lets an update skip the inbound limit, e.g. uploads into an
	// open media flow where an album arrives as one update per item.
	Exempt func(up kit.Update) bool
	// Fallback receives non-command messages (submission flows).
	Fallback HandlerFunc
	Texts    Texts
}
