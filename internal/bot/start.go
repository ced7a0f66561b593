package bot

import (
	"context"
	"fmt"

	"eventbot/internal/storage"
	kit "eventbot/internal/transport"
	"eventbot/internal/transport/telegram/router"
	logx "eventbot/pkg/logx"
	"eventbot/pkg/tgui"
)

func (b *Bot) guestCommands() []router.Command {
	return []router.Command{
		{Route: "start", Description: "Start the bot", Handle: b.cmdStart},
		{Route: "menu", Description: "Show the main menu", Handle: b.cmdMenu},
		{Route: "cancel", Description: "Cancel the current action", Handle: b.cmdCancel},
	}
}

// cmdStart registers the guest and asks whether they remember the host.
// Any half-finished flow is dropped.
func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	t := b.T()
	if b.cal.IsArchive() {
		_, err := req.Reply(ctx, t.Archive, nil)
		return err
	}
	if err := b.registerUser(ctx, req.From); err != nil {
		return b.replyErr(ctx, req, err)
	}
	b.sessions.End(req.From.ID)

	kb := tgui.YesNo(
		tgui.Btn(t.RememberYes, tgui.Data("start", "remember", "yes")),
		tgui.Btn(t.RememberNo, tgui.Data("start", "remember", "no")),
	)
	_, err := req.Reply(ctx, fmt.Sprintf(t.RememberQuestion, b.info().HostName), &kit.SendOptions{ReplyMarkupAdapter: kb.Markup()})
	return err
}

// cbRemember stores the answer, shows the welcome photo for it and then
// the menu.
func (b *Bot) cbRemember(ctx context.Context, req *router.Request, payload string) error {
	t := b.T()
	remembers := payload == "yes"
	if err := b.registerUser(ctx, req.From); err != nil {
		return b.replyErr(ctx, req, err)
	}
	if err := b.store.SetRemembers(ctx, req.From.ID, remembers); err != nil {
		return b.replyErr(ctx, req, err)
	}

	cat, text := storage.PhotoDeclined, t.WelcomeDeclined
	if remembers {
		cat, text = storage.PhotoAccepted, t.WelcomeAccepted
	}
	photo, ok, err := b.store.ActiveWelcomePhoto(ctx, cat)
	if err != nil {
		req.Logger.Warn("welcome photo lookup failed", logx.String("category", string(cat)), logx.Err(err))
	}
	if ok {
		caption := photo.Caption
		if caption == "" {
			caption = text
		}
		_, err = req.Adapter.SendMedia(ctx, req.Chat, kit.Media{Kind: kit.MediaPhoto, FileRef: photo.FileRef, Caption: caption}, nil)
	}
	if !ok || err != nil {
		if _, err := req.Reply(ctx, text, nil); err != nil {
			return err
		}
	}
	return b.sendMenu(ctx, req)
}
