package bot

import (
	"context"

	"eventbot/internal/session"
	kit "eventbot/internal/transport"
	"eventbot/internal/transport/telegram/router"
	logx "eventbot/pkg/logx"
	"eventbot/pkg/tgui"
)

func (b *Bot) startFlow(ctx context.Context, req *router.Request, kind session.Kind, step string) error {
	res, err := b.sessions.Start(ctx, actorOf(req.From), kind, step)
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	return b.render(ctx, req, res)
}

// Fallback feeds a non-command message to the sender's active flow.
func (b *Bot) Fallback(ctx context.Context, req *router.Request) error {
	if req.Message == nil {
		return nil
	}
	ev := eventOf(req.Message)
	res, err := b.sessions.Advance(ctx, actorOf(req.From), ev)
	if err != nil {
		// The flow stays open; the user may retry.
		return b.replyErr(ctx, req, err)
	}
	if res.Outcome == session.OutcomeIgnored {
		if b.cal.IsArchive() {
			_, err = req.Reply(ctx, b.T().Archive, nil)
			return err
		}
		_, err = req.Reply(ctx, b.T().UseMenu, &kit.SendOptions{ReplyMarkupAdapter: b.mainMenu().Markup()})
		return err
	}
	req.Logger.Debug("flow advanced", logx.String("event", ev.Kind.String()), logx.String("outcome", res.Outcome.String()))
	return b.render(ctx, req, res)
}

func eventOf(m *kit.Message) session.Event {
	if m.Media != nil {
		ev := session.Event{FileRef: m.Media.FileRef, Caption: m.Media.Caption}
		switch m.Media.Kind {
		case kit.MediaPhoto:
			ev.Kind = session.EventImage
		case kit.MediaVideo:
			ev.Kind = session.EventVideo
		case kit.MediaVoice:
			ev.Kind = session.EventVoice
		case kit.MediaSticker:
			ev.Kind = session.EventSticker
		}
		return ev
	}
	if m.Text != "" {
		return session.Event{Kind: session.EventText, Text: m.Text}
	}
	return session.Event{Kind: session.EventOther}
}

// render replies to a flow result. Open flows get a cancel button, finished
// ones a way back to the menu.
func (b *Bot) render(ctx context.Context, req *router.Request, res session.Result) error {
	if res.Quiet {
		return nil
	}
	t := b.T()
	text := t.notice(res)
	if text == "" {
		return nil
	}
	var opt *kit.SendOptions
	switch res.Outcome {
	case session.OutcomePrompt, session.OutcomeInvalid:
		kb := tgui.NewInline().Row(tgui.Btn(t.BtnCancel, tgui.Data("flow", "cancel", "")))
		opt = &kit.SendOptions{ReplyMarkupAdapter: kb.Markup()}
	case session.OutcomeCollected, session.OutcomeSaved, session.OutcomeCancelled, session.OutcomeRefused:
		opt = backKeyboard(t)
	}
	_, err := req.Reply(ctx, text, opt)
	return err
}

func (b *Bot) cmdCancel(ctx context.Context, req *router.Request) error {
	return b.render(ctx, req, b.sessions.Cancel(ctx, actorOf(req.From)))
}

func (b *Bot) cbCancel(ctx context.Context, req *router.Request, _ string) error {
	res := b.sessions.Cancel(ctx, actorOf(req.From))
	if cb := req.Update.Callback; cb != nil && res.Outcome == session.OutcomeCancelled {
		// Replace the prompt so its cancel button cannot be pressed twice.
		ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
		if err := req.Adapter.EditText(ctx, ref, b.T().NoticeCancelled, nil); err == nil {
			return b.sendMenu(ctx, req)
		}
	}
	return b.render(ctx, req, res)
}
