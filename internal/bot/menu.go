package bot

import (
	"context"
	"fmt"
	"strings"

	"eventbot/internal/session"
	kit "eventbot/internal/transport"
	"eventbot/internal/transport/telegram/router"
	"eventbot/pkg/tgui"
)

const menuGroup = "menu"

func (b *Bot) mainMenu() *tgui.Inline {
	t := b.T()
	btn := func(text, action string) tgui.Button { return tgui.Btn(text, tgui.Data(menuGroup, action, "")) }
	return tgui.NewInline().Grid(2,
		btn(t.BtnLocation, "location"),
		btn(t.BtnTime, "time"),
		btn(t.BtnBring, "bring"),
		btn(t.BtnWishlist, "wishlist"),
		btn(t.BtnGreeting, "greeting"),
		btn(t.BtnUpload, "upload"),
		btn(t.BtnFortune, "fortune"),
		btn(t.BtnAttend, "attend"),
		btn(t.BtnSong, "song"),
		btn(t.BtnCountdown, "countdown"),
	)
}

func backKeyboard(t Texts) *kit.SendOptions {
	kb := tgui.NewInline().Row(tgui.Btn(t.BtnBack, tgui.Data(menuGroup, "back", "")))
	return &kit.SendOptions{ReplyMarkupAdapter: kb.Markup()}
}

func (b *Bot) sendMenu(ctx context.Context, req *router.Request) error {
	_, err := req.Reply(ctx, b.T().MenuTitle, &kit.SendOptions{ReplyMarkupAdapter: b.mainMenu().Markup()})
	return err
}

func (b *Bot) cmdMenu(ctx context.Context, req *router.Request) error {
	if b.cal.IsArchive() {
		_, err := req.Reply(ctx, b.T().Archive, nil)
		return err
	}
	return b.sendMenu(ctx, req)
}

func (b *Bot) menuCallbacks() []router.CallbackRoute {
	route := func(action string, h router.CallbackHandlerFunc) router.CallbackRoute {
		return router.CallbackRoute{Group: menuGroup, Action: action, Access: router.CallbackAccessEveryone, Handle: h}
	}
	startFlow := func(kind session.Kind) router.CallbackHandlerFunc {
		return func(ctx context.Context, req *router.Request, _ string) error {
			return b.startFlow(ctx, req, kind, "")
		}
	}
	return []router.CallbackRoute{
		route("location", b.cbLocation),
		route("time", b.cbStatic(func() string { return b.info().TimeText })),
		route("bring", b.cbStatic(func() string { return b.info().BringText })),
		route("wishlist", b.cbWishlist),
		route("greeting", startFlow(session.KindGreeting)),
		route("upload", startFlow(session.KindMedia)),
		route("song", startFlow(session.KindSong)),
		route("fortune", b.cbFortune),
		route("attend", b.cbAttend),
		route("countdown", b.cbCountdown),
		route("back", b.cbBack),
	}
}

// guard answers archive mode for every menu action.
func (b *Bot) guard(ctx context.Context, req *router.Request) bool {
	if !b.cal.IsArchive() {
		return true
	}
	_, _ = req.Reply(ctx, b.T().Archive, nil)
	return false
}

func (b *Bot) cbStatic(text func() string) router.CallbackHandlerFunc {
	return func(ctx context.Context, req *router.Request, _ string) error {
		if !b.guard(ctx, req) {
			return nil
		}
		_, err := req.Reply(ctx, text(), backKeyboard(b.T()))
		return err
	}
}

func (b *Bot) cbLocation(ctx context.Context, req *router.Request, _ string) error {
	if !b.guard(ctx, req) {
		return nil
	}
	info := b.info()
	if info.Latitude != 0 || info.Longitude != 0 {
		if _, err := req.Adapter.SendLocation(ctx, req.Chat, info.Latitude, info.Longitude, nil); err != nil {
			return err
		}
	}
	text := strings.TrimSpace(strings.Join([]string{"📍 " + info.Venue, info.Address}, "\n"))
	_, err := req.Reply(ctx, text, backKeyboard(b.T()))
	return err
}

func (b *Bot) cbWishlist(ctx context.Context, req *router.Request, _ string) error {
	if !b.guard(ctx, req) {
		return nil
	}
	t := b.T()
	items, err := b.store.ListWishlist(ctx)
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	msg := tgui.New().Title("", t.WishlistTitle).Blank()
	if len(items) == 0 {
		msg.Line(t.WishlistEmpty)
	}
	for i, it := range items {
		msg.Line(fmt.Sprintf("%d. %s", i+1, it.Text))
	}
	m := msg.Build()
	m.Opt.ReplyMarkupAdapter = backKeyboard(t).ReplyMarkupAdapter
	_, err = m.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) cbFortune(ctx context.Context, req *router.Request, _ string) error {
	if !b.guard(ctx, req) {
		return nil
	}
	fortunes := b.info().Fortunes
	if len(fortunes) == 0 {
		return nil
	}
	b.rndMu.Lock()
	pick := fortunes[b.rnd.IntN(len(fortunes))]
	b.rndMu.Unlock()
	_, err := req.Reply(ctx, b.T().FortunePrefix+pick, backKeyboard(b.T()))
	return err
}

func (b *Bot) cbAttend(ctx context.Context, req *router.Request, _ string) error {
	if !b.guard(ctx, req) {
		return nil
	}
	t := b.T()
	if err := b.registerUser(ctx, req.From); err != nil {
		return b.replyErr(ctx, req, err)
	}
	created, count, err := b.store.ConfirmAttendance(ctx, req.From.ID)
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	text := fmt.Sprintf(t.AttendAlready, count)
	if created {
		text = fmt.Sprintf(t.AttendConfirmed, count)
	}
	_, err = req.Reply(ctx, text, backKeyboard(t))
	return err
}

func (b *Bot) cbCountdown(ctx context.Context, req *router.Request, _ string) error {
	if !b.guard(ctx, req) {
		return nil
	}
	_, err := req.Reply(ctx, countdownText(b.T(), b.cal.DaysUntilStart()), backKeyboard(b.T()))
	return err
}

func countdownText(t Texts, days int) string {
	switch {
	case days > 0:
		return fmt.Sprintf(t.CountdownLeft, days)
	case days == 0:
		return t.CountdownToday
	default:
		return fmt.Sprintf(t.CountdownAgo, -days)
	}
}

// cbBack ends any active flow and shows the menu.
func (b *Bot) cbBack(ctx context.Context, req *router.Request, _ string) error {
	b.sessions.End(req.From.ID)
	if !b.guard(ctx, req) {
		return nil
	}
	return b.sendMenu(ctx, req)
}
