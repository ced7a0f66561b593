package delivery

import (
	"context"
	"fmt"

	"eventbot/internal/storage"
	kit "eventbot/internal/transport"
	logx "eventbot/pkg/logx"
)

// DeliverGreetings sends every undelivered greeting to every host and flags
// a greeting only when all hosts received it. Partially delivered greetings
// are retried on the next run.
func (e *Engine) DeliverGreetings(ctx context.Context) (GreetingReport, error) {
	v, err := e.once(ctx, opGreetings, func(ctx context.Context) (any, error) {
		return e.deliverGreetings(ctx)
	})
	rep, _ := v.(GreetingReport)
	return rep, err
}

func (e *Engine) deliverGreetings(ctx context.Context) (GreetingReport, error) {
	var rep GreetingReport
	ops := e.operators()
	rep.Recipients = len(ops)

	pending, err := e.store.PendingGreetings(ctx)
	if err != nil {
		return rep, storeErr("pending greetings", err)
	}
	rep.Pending = len(pending)
	_, msgs, _, _ := e.snapshot()

	for _, g := range pending {
		var unit Report
		for _, op := range ops {
			if err := e.send(ctx, opGreetings, op, &unit, func(ctx context.Context, to kit.ChatTarget) error {
				return e.sendGreeting(ctx, to, g, msgs)
			}); err != nil {
				rep.add(unit)
				return rep, err
			}
		}
		rep.add(unit)
		if unit.Failed > 0 || len(ops) == 0 {
			continue
		}
		changed, err := e.store.MarkGreetingDelivered(ctx, g.ID)
		if err != nil {
			return rep, storeErr("mark greeting delivered", err)
		}
		if changed {
			rep.Delivered++
			markedTotal.WithLabelValues(opGreetings).Inc()
		}
	}

	if err := e.broadcastText(ctx, opGreetings, ops, &rep.Report, fmt.Sprintf(msgs.PresentsSummary, rep.Delivered)); err != nil {
		return rep, err
	}
	e.log.Info("greetings delivered",
		logx.Int("pending", rep.Pending),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", rep.Failed),
		logx.Int("operators", len(ops)),
	)
	return rep, nil
}

// sendGreeting formats one greeting for its kind. Stickers cannot carry a
// caption, so the sender line goes out as a text first.
func (e *Engine) sendGreeting(ctx context.Context, to kit.ChatTarget, g storage.SenderGreeting, msgs Messages) error {
	from := fmt.Sprintf(msgs.GreetingFrom, g.Sender.DisplayName())
	var kind kit.MediaKind
	switch g.Kind {
	case storage.GreetingText:
		_, err := e.sender.SendText(ctx, to, from+"\n\n"+g.Content, nil)
		return err
	case storage.GreetingImage:
		kind = kit.MediaPhoto
	case storage.GreetingVideo:
		kind = kit.MediaVideo
	case storage.GreetingVoice:
		kind = kit.MediaVoice
	case storage.GreetingSticker:
		if _, err := e.sender.SendText(ctx, to, from, nil); err != nil {
			return err
		}
		_, err := e.sender.SendMedia(ctx, to, kit.Media{Kind: kit.MediaSticker, FileRef: g.Content}, nil)
		return err
	default:
		return fmt.Errorf("unknown greeting kind %q", g.Kind)
	}
	_, err := e.sender.SendMedia(ctx, to, kit.Media{Kind: kind, FileRef: g.Content, Caption: from}, nil)
	return err
}

// SendReminder texts every distinct greeting sender.
func (e *Engine) SendReminder(ctx context.Context) (Report, error) {
	v, err := e.once(ctx, opReminder, func(ctx context.Context) (any, error) {
		var rep Report
		ids, err := e.store.GreetingSenderIDs(ctx)
		if err != nil {
			return rep, storeErr("greeting senders", err)
		}
		ids = dedupe(ids)
		rep.Recipients = len(ids)
		_, msgs, _, _ := e.snapshot()
		if err := e.broadcastText(ctx, opReminder, ids, &rep, msgs.Reminder); err != nil {
			return rep, err
		}
		e.log.Info("reminder sent", logx.Int("recipients", rep.Recipients), logx.Int("sent", rep.Sent), logx.Int("failed", rep.Failed))
		return rep, nil
	})
	rep, _ := v.(Report)
	return rep, err
}
