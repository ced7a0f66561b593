package adapter

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "eventbot/internal/runtime/supervisor"
	kit "eventbot/internal/transport"
	logx "eventbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool

	// sup owns the poll loop and its helpers; created on Start, cancelled on Stop.
	sup *rtsup.Supervisor

	droppedUpdates atomic.Uint64

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			log.Warn("telebot handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// Supervisor returns the adapter's goroutine supervisor (nil when stopped).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) registerHandlers() {
	forward := func(c tele.Context) error {
		if m := convertMessage(c.Message()); m != nil {
			a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: m})
		}
		return nil
	}
	for _, ev := range []string{tele.OnText, tele.OnPhoto, tele.OnVideo, tele.OnVoice, tele.OnSticker, tele.OnLocation} {
		a.bot.Handle(ev, forward)
	}

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil || cb.Sender == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				From:      convertUser(cb.Sender),
				ChatID:    m.Chat.ID,
				ThreadID:  m.ThreadID,
				MessageID: m.ID,
				Data:      strings.TrimSpace(cb.Data),
			},
		})
		return nil
	})
}

func convertUser(u *tele.User) kit.User {
	if u == nil {
		return kit.User{}
	}
	return kit.User{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

func convertMessage(m *tele.Message) *kit.Message {
	if m == nil || m.Sender == nil || m.Chat == nil {
		return nil
	}
	out := &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ThreadID: m.ThreadID,
		From:     convertUser(m.Sender),
		Text:     m.Text,
		IsGroup:  m.Chat.Type != tele.ChatPrivate,
	}
	switch {
	case m.Photo != nil:
		out.Media = &kit.Media{Kind: kit.MediaPhoto, FileRef: m.Photo.FileID, Caption: m.Caption}
	case m.Video != nil:
		out.Media = &kit.Media{Kind: kit.MediaVideo, FileRef: m.Video.FileID, Caption: m.Caption}
	case m.Voice != nil:
		out.Media = &kit.Media{Kind: kit.MediaVoice, FileRef: m.Voice.FileID, Caption: m.Caption}
	case m.Sticker != nil:
		out.Media = &kit.Media{Kind: kit.MediaSticker, FileRef: m.Sticker.FileID}
	case m.Location != nil:
		out.HasLocation = true
	}
	if r := m.ReplyTo; r != nil && r.Chat != nil {
		reply := &kit.Message{ID: r.ID, ChatID: r.Chat.ID, Text: r.Text}
		if r.Photo != nil {
			reply.Media = &kit.Media{Kind: kit.MediaPhoto, FileRef: r.Photo.FileID, Caption: r.Caption}
		}
		if r.Sender != nil {
			reply.From = convertUser(r.Sender)
		}
		out.ReplyTo = reply
	}
	return out
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.droppedUpdates.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)), logx.Int("chan_cap", capacity))
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log.With(logx.Component("telegram.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-ticker.C:
				a.reportDropped(cap(out))
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// bot.Start blocks until Stop; restart it if it returns early.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping")
	sup.Cancel()

	// getUpdates may still be long-polling; cap the wait.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt == nil {
		return so
	}
	so.ParseMode = opt.ParseMode
	so.DisableWebPagePreview = opt.DisablePreview
	if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
		so.ReplyMarkup = rm
	}
	return so
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitTelegramText(text, telegramTextLimit, parseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctxErr(ctx); err != nil {
			return first, err
		}
		so := sendOptions(to, opt)
		// Markup belongs on the first chunk only.
		if i > 0 {
			so.ReplyMarkup = nil
		}
		msg, err := a.bot.Send(chat, chunk, so)
		if err != nil {
			return first, mapError(err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendMedia(ctx context.Context, to kit.ChatTarget, m kit.Media, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctxErr(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	what, err := sendable(m)
	if err != nil {
		return kit.MessageRef{}, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, what, sendOptions(to, opt))
	if err != nil {
		return kit.MessageRef{}, mapError(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) SendAlbum(ctx context.Context, to kit.ChatTarget, items []kit.Media) ([]kit.MessageRef, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if len(items) > kit.MaxAlbumSize {
		return nil, kit.ErrAlbumTooLarge
	}
	if len(items) == 1 {
		ref, err := a.SendMedia(ctx, to, items[0], nil)
		if err != nil {
			return nil, err
		}
		return []kit.MessageRef{ref}, nil
	}
	album := make(tele.Album, 0, len(items))
	for _, it := range items {
		switch it.Kind {
		case kit.MediaPhoto:
			album = append(album, &tele.Photo{File: tele.File{FileID: it.FileRef}, Caption: it.Caption})
		case kit.MediaVideo:
			album = append(album, &tele.Video{File: tele.File{FileID: it.FileRef}, Caption: it.Caption})
		default:
			return nil, errors.New("album supports only photos and videos")
		}
	}
	msgs, err := a.bot.SendAlbum(&tele.Chat{ID: to.ChatID}, album, &tele.SendOptions{ThreadID: to.ThreadID})
	if err != nil {
		return nil, mapError(err)
	}
	refs := make([]kit.MessageRef, 0, len(msgs))
	for _, m := range msgs {
		refs = append(refs, kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: m.ID})
	}
	return refs, nil
}

func (a *Adapter) SendLocation(ctx context.Context, to kit.ChatTarget, lat, lng float64, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctxErr(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	loc := &tele.Location{Lat: float32(lat), Lng: float32(lng)}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, loc, sendOptions(to, opt))
	if err != nil {
		return kit.MessageRef{}, mapError(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitTelegramText(text, telegramTextLimit, parseMode)
	to := kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}
	msg := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	if _, err := a.bot.Edit(msg, chunks[0], sendOptions(to, opt)); err != nil {
		return mapError(err)
	}
	// Overflow goes out as new messages.
	for _, chunk := range chunks[1:] {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		if _, err := a.SendText(ctx, to, chunk, &kit.SendOptions{ParseMode: parseMode}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return mapError(a.bot.Delete(&tele.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	}))
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// SendLog posts a log line to the operator log chat.
func (a *Adapter) SendLog(ctx context.Context, chatID int64, threadID int, text string) error {
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, text, &kit.SendOptions{DisablePreview: true})
	return err
}

func sendable(m kit.Media) (tele.Sendable, error) {
	file := tele.File{FileID: m.FileRef}
	switch m.Kind {
	case kit.MediaPhoto:
		return &tele.Photo{File: file, Caption: m.Caption}, nil
	case kit.MediaVideo:
		return &tele.Video{File: file, Caption: m.Caption}, nil
	case kit.MediaVoice:
		return &tele.Voice{File: file, Caption: m.Caption}, nil
	case kit.MediaSticker:
		return &tele.Sticker{File: file}, nil
	default:
		return nil, errors.New("unsupported media kind: " + string(m.Kind))
	}
}
