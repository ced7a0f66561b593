// Package bot holds the chat handlers: /start and the main menu for guests,
// the submission flows' replies and the host commands.
package bot

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"eventbot/internal/config"
	"eventbot/internal/delivery"
	"eventbot/internal/notifier/broadcast"
	"eventbot/internal/session"
	"eventbot/internal/storage"
	"eventbot/internal/task/engine"
	"eventbot/internal/task/scheduler"
	kit "eventbot/internal/transport"
	"eventbot/internal/transport/telegram/router"
	logx "eventbot/pkg/logx"
)

type Calendar interface {
	IsArchive() bool
	Started() bool
	DaysUntilStart() int
}

// Deliverer runs the fan-out operations on demand.
type Deliverer interface {
	DeliverGreetings(ctx context.Context) (delivery.GreetingReport, error)
	SendReminder(ctx context.Context) (delivery.Report, error)
	BuildAndSendMediaCollection(ctx context.Context, mode delivery.Mode) (delivery.CollectionReport, error)
	PushNewMedia(ctx context.Context) (delivery.PushReport, error)
}

type Broadcaster interface {
	Submit(name string, targets []kit.ChatTarget, text string, opt *kit.SendOptions, done broadcast.DoneFunc) (string, error)
}

// Tasks queues manual runs on the same engine the scheduler uses, so a
// manual run and a scheduled one of the same job never overlap.
type Tasks interface {
	Enqueue(t engine.Task) error
	Snapshot() engine.Snapshot
}

type Schedules interface {
	Snapshot() scheduler.Snapshot
}

type Deps struct {
	Store     storage.Store
	Sessions  *session.Registry
	Calendar  Calendar
	Delivery  Deliverer
	Broadcast Broadcaster
	Tasks     Tasks
	Schedules Schedules
	Content   config.ContentConfig
	Texts     Texts
	Log       logx.Logger
}

type Bot struct {
	store     storage.Store
	sessions  *session.Registry
	cal       Calendar
	delivery  Deliverer
	broadcast Broadcaster
	tasks     Tasks
	schedules Schedules
	log       logx.Logger
	started   time.Time

	content atomic.Pointer[config.ContentConfig]
	texts   atomic.Pointer[Texts]

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func New(d Deps) *Bot {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Texts == (Texts{}) {
		d.Texts = DefaultTexts()
	}
	b := &Bot{
		store:     d.Store,
		sessions:  d.Sessions,
		cal:       d.Calendar,
		delivery:  d.Delivery,
		broadcast: d.Broadcast,
		tasks:     d.Tasks,
		schedules: d.Schedules,
		log:       d.Log.With(logx.Component("bot")),
		started:   time.Now(),
		rnd:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	b.SetContent(d.Content)
	b.texts.Store(&d.Texts)
	return b
}

// SetContent swaps the party information shown in the menu.
func (b *Bot) SetContent(c config.ContentConfig) { b.content.Store(&c) }

func (b *Bot) T() Texts { return *b.texts.Load() }

func (b *Bot) info() config.ContentConfig { return *b.content.Load() }

// Commands lists guest and host commands for the router.
func (b *Bot) Commands() []router.Command {
	return append(b.guestCommands(), b.adminCommands()...)
}

// Callbacks lists inline button routes.
func (b *Bot) Callbacks() []router.CallbackRoute {
	return append(b.menuCallbacks(),
		router.CallbackRoute{Group: "start", Action: "remember", Access: router.CallbackAccessEveryone, Handle: b.cbRemember},
		router.CallbackRoute{Group: "flow", Action: "cancel", Access: router.CallbackAccessEveryone, Handle: b.cbCancel},
	)
}

func actorOf(u kit.User) session.Actor {
	return session.Actor{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

func (b *Bot) registerUser(ctx context.Context, u kit.User) error {
	return b.store.UpsertUser(ctx, storage.User{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName})
}

func (b *Bot) replyErr(ctx context.Context, req *router.Request, err error) error {
	req.Logger.Error("handler failed", logx.String("cmd", req.Command), logx.Err(err))
	_, _ = req.Reply(ctx, b.T().Error, nil)
	return err
}
