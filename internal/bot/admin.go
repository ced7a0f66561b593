package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventbot/internal/delivery"
	"eventbot/internal/flows"
	"eventbot/internal/notifier/broadcast"
	"eventbot/internal/session"
	"eventbot/internal/storage"
	"eventbot/internal/task/engine"
	kit "eventbot/internal/transport"
	"eventbot/internal/transport/telegram/router"
	logx "eventbot/pkg/logx"
	"eventbot/pkg/tgui"
)

const (
	JobDeliverGreetings = "deliver-greetings"
	JobSendReminder     = "send-reminder"
	JobMediaCollection  = "build-and-send-media-collection"
	JobPushNewMedia     = "auto-push-new-media"
)

const deliveryTimeout = 30 * time.Minute

func (b *Bot) adminCommands() []router.Command {
	op := func(route, desc, usage string, h router.HandlerFunc) router.Command {
		return router.Command{Route: route, Description: desc, Usage: usage, Access: router.AccessOperator, Handle: h}
	}
	return []router.Command{
		op("admin", "Host commands", "/admin", b.cmdAdmin),
		op("open_presents", "Deliver all greetings now", "/open_presents", b.cmdOpenPresents),
		op("get_album", "Send the media collection (add 'all' for everyone)", "/get_album [all]", b.cmdGetAlbum),
		op("push_media", "Push new media to everyone now", "/push_media", b.cmdPushMedia),
		op("remind", "Send the reminder now", "/remind", b.cmdRemind),
		op("stats", "Bot statistics", "/stats", b.cmdStats),
		op("guests", "Confirmed guests", "/guests", b.cmdGuests),
		op("broadcast", "Send a text to every user", "/broadcast <text>", b.cmdBroadcast),
		op("set_start_photo", "Reply to a photo to set the welcome photo", "/set_start_photo yes|no", b.cmdSetStartPhoto),
		op("get_start_photos", "Welcome photo history", "/get_start_photos", b.cmdGetStartPhotos),
		op("get_song_requests", "Song suggestions, newest first", "/get_song_requests", b.cmdSongs),
		op("debug_wishes", "Last 10 greetings", "/debug_wishes", b.cmdDebugWishes),
		op("wishlist_add", "Add a wishlist item", "/wishlist_add", func(ctx context.Context, req *router.Request) error {
			return b.startFlow(ctx, req, session.KindWishlist, flows.StepWishlistItem)
		}),
		op("wishlist_del", "Delete a wishlist item", "/wishlist_del", func(ctx context.Context, req *router.Request) error {
			return b.startFlow(ctx, req, session.KindWishlist, flows.StepWishlistDelete)
		}),
		op("jobs", "Scheduled jobs and recent runs", "/jobs", b.cmdJobs),
		op("sysinfo", "Process and runtime info", "/sysinfo", b.cmdSysinfo),
	}
}

func (b *Bot) cmdAdmin(ctx context.Context, req *router.Request) error {
	msg := tgui.New().Title("🔧", "Host commands").Blank()
	for _, c := range b.adminCommands() {
		msg.RawLine(tgui.JoinH(" - ", tgui.Code(c.Usage), tgui.Esc(c.Description)))
	}
	_, err := msg.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

// runJob queues a delivery run under the job's scheduler name and reports
// its summary back to the requesting chat.
func (b *Bot) runJob(ctx context.Context, req *router.Request, name string, run func(ctx context.Context) (string, error)) error {
	chat := req.Chat
	adapter := req.Adapter
	log := req.Logger
	err := b.tasks.Enqueue(engine.Task{
		Name:    name,
		Timeout: deliveryTimeout,
		Opt:     engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning},
		Run: func(ctx context.Context) error {
			summary, err := run(ctx)
			if err != nil {
				_, _ = adapter.SendText(ctx, chat, fmt.Sprintf("❌ %s failed: %v", name, err), nil)
				return engine.NoRetry(err)
			}
			if _, err := adapter.SendText(ctx, chat, summary, nil); err != nil {
				log.Warn("job summary not sent", logx.String("job", name), logx.Err(err))
			}
			return nil
		},
	})
	switch {
	case errors.Is(err, engine.ErrOverlapSkip):
		_, err = req.Reply(ctx, "⏳ "+name+" is already running.", nil)
	case err != nil:
		_, _ = req.Reply(ctx, fmt.Sprintf("❌ could not queue %s: %v", name, err), nil)
	default:
		_, err = req.Reply(ctx, "▶️ "+name+" started.", nil)
	}
	return err
}

func (b *Bot) cmdOpenPresents(ctx context.Context, req *router.Request) error {
	return b.runJob(ctx, req, JobDeliverGreetings, func(ctx context.Context) (string, error) {
		rep, err := b.delivery.DeliverGreetings(ctx)
		return fmt.Sprintf("✅ Greetings: %d pending, %d delivered, %d failed sends.", rep.Pending, rep.Delivered, rep.Failed), err
	})
}

func (b *Bot) cmdGetAlbum(ctx context.Context, req *router.Request) error {
	mode := delivery.ModeOperators
	if len(req.Args) > 0 && strings.EqualFold(req.Args[0], "all") {
		mode = delivery.ModeEveryone
	}
	return b.runJob(ctx, req, JobMediaCollection, func(ctx context.Context) (string, error) {
		rep, err := b.delivery.BuildAndSendMediaCollection(ctx, mode)
		return fmt.Sprintf("✅ Album (%s): %d files to %d recipients, %d failed sends.", mode, rep.Items, rep.Recipients, rep.Failed), err
	})
}

func (b *Bot) cmdPushMedia(ctx context.Context, req *router.Request) error {
	return b.runJob(ctx, req, JobPushNewMedia, func(ctx context.Context) (string, error) {
		rep, err := b.delivery.PushNewMedia(ctx)
		if rep.Skipped {
			return "Archive mode: nothing pushed.", err
		}
		return fmt.Sprintf("✅ Pushed %d new files to %d users, %d failed sends.", rep.Items, rep.Recipients, rep.Failed), err
	})
}

func (b *Bot) cmdRemind(ctx context.Context, req *router.Request) error {
	return b.runJob(ctx, req, JobSendReminder, func(ctx context.Context) (string, error) {
		rep, err := b.delivery.SendReminder(ctx)
		return fmt.Sprintf("✅ Reminder sent to %d of %d users.", rep.Sent, rep.Recipients), err
	})
}

func (b *Bot) cmdStats(ctx context.Context, req *router.Request) error {
	st, err := b.store.Stats(ctx)
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	msg := tgui.New().Title("📊", "Statistics").Blank().
		KV("Users", st.Users).
		KV("Remember the host", fmt.Sprintf("yes %d / no %d / no answer %d", st.RemembersYes, st.RemembersNo, st.RemembersUnknown)).
		KV("Greetings", fmt.Sprintf("%d (delivered %d)", st.Greetings, st.GreetingsDelivered)).
		KV("Album files", fmt.Sprintf("%d (pushed %d)", st.Media, st.MediaSent)).
		KV("Songs", st.Songs).
		KV("Wishlist items", st.Wishlist).
		KV("Confirmed guests", st.Attendance)
	_, err = msg.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) cmdGuests(ctx context.Context, req *router.Request) error {
	guests, err := b.store.ListAttendance(ctx)
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	msg := tgui.New().Title("✅", fmt.Sprintf("Confirmed guests: %d", len(guests)))
	for i, g := range guests {
		msg.RawLine(tgui.JoinH(" ", tgui.Raw(fmt.Sprintf("%d.", i+1)), tgui.Mention(g.User.DisplayName(), g.User.ID)))
	}
	_, err = msg.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) cmdBroadcast(ctx context.Context, req *router.Request) error {
	text := strings.TrimSpace(strings.Join(req.RawArgs, " "))
	if text == "" {
		_, err := req.Reply(ctx, "Usage: /broadcast <text>", nil)
		return err
	}
	ids, err := b.store.ListUserIDs(ctx)
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	targets := make([]kit.ChatTarget, len(ids))
	for i, id := range ids {
		targets[i] = kit.UserTarget(id)
	}

	chat, adapter := req.Chat, req.Adapter
	id, err := b.broadcast.Submit("admin", targets, text, nil, func(ctx context.Context, st broadcast.JobStatus) {
		_, _ = adapter.SendText(ctx, chat, fmt.Sprintf("✅ Broadcast finished!\nSent: %d\nFailed: %d", st.Sent, st.Failed), nil)
	})
	if err != nil {
		_, _ = req.Reply(ctx, "❌ Broadcast not started: "+err.Error(), nil)
		return err
	}
	_, err = req.Reply(ctx, fmt.Sprintf("📣 Broadcast %s queued for %d users.", id, len(targets)), nil)
	return err
}

func (b *Bot) cmdSetStartPhoto(ctx context.Context, req *router.Request) error {
	var cat storage.PhotoCategory
	if len(req.Args) > 0 {
		switch strings.ToLower(req.Args[0]) {
		case "yes":
			cat = storage.PhotoAccepted
		case "no":
			cat = storage.PhotoDeclined
		}
	}
	var src *kit.Media
	if m := req.Message; m != nil && m.ReplyTo != nil && m.ReplyTo.Media != nil && m.ReplyTo.Media.Kind == kit.MediaPhoto {
		src = m.ReplyTo.Media
	}
	if cat == "" || src == nil {
		_, err := req.Reply(ctx, "Reply to a photo with /set_start_photo yes or /set_start_photo no", nil)
		return err
	}
	if _, err := b.store.SetWelcomePhoto(ctx, storage.WelcomePhoto{Category: cat, FileRef: src.FileRef, Caption: src.Caption}); err != nil {
		return b.replyErr(ctx, req, err)
	}
	_, err := req.Reply(ctx, fmt.Sprintf("✅ Welcome photo for '%s' set.", req.Args[0]), nil)
	return err
}

func (b *Bot) cmdGetStartPhotos(ctx context.Context, req *router.Request) error {
	photos, err := b.store.ListWelcomePhotos(ctx)
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	msg := tgui.New().Title("🖼", "Welcome photos").Blank()
	if len(photos) == 0 {
		msg.Line("No photos set.")
	}
	for _, p := range photos {
		state := ""
		if p.Active {
			state = " (active)"
		}
		msg.RawLine(tgui.JoinH(" ",
			tgui.B(string(p.Category)+state),
			tgui.Code(p.FileRef),
			tgui.I(tgui.TruncRunes(p.Caption, 60)),
		))
	}
	_, err = msg.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) cmdSongs(ctx context.Context, req *router.Request) error {
	songs, err := b.store.ListSongs(ctx)
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	msg := tgui.New().Title("🎵", "Song requests").Blank()
	for i, s := range songs {
		msg.RawLine(tgui.Raw(fmt.Sprintf("%d. ", i+1) + tgui.B(s.Text).String()))
		msg.Line(fmt.Sprintf("   👤 %s  📅 %s", s.Sender.DisplayName(), s.CreatedAt.Format("2006-01-02 15:04")))
	}
	msg.Blank().KV("Total", len(songs))
	_, err = msg.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) cmdDebugWishes(ctx context.Context, req *router.Request) error {
	list, err := b.store.RecentGreetings(ctx, 10)
	if err != nil {
		return b.replyErr(ctx, req, err)
	}
	msg := tgui.New().Title("🔍", "Last greetings")
	if len(list) == 0 {
		msg.Blank().Line("No greetings yet.")
	}
	for _, g := range list {
		msg.Blank().
			KV("User", fmt.Sprintf("%s (%d)", g.Sender.DisplayName(), g.UserID)).
			KV("Kind", string(g.Kind)).
			KV("Content", tgui.TruncRunes(g.Content, 50)).
			KV("Delivered", g.Delivered).
			KV("Time", g.CreatedAt.Format("2006-01-02 15:04"))
	}
	_, err = msg.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) cmdJobs(ctx context.Context, req *router.Request) error {
	msg := tgui.New().Title("⏱", "Jobs")
	if b.schedules != nil {
		snap := b.schedules.Snapshot()
		msg.KV("Scheduler", fmt.Sprintf("enabled=%v running=%v tz=%s", snap.Enabled, snap.Running, snap.Timezone)).Blank()
		for _, s := range snap.Schedules {
			next := "-"
			if !s.Next.IsZero() {
				next = s.Next.Format("2006-01-02 15:04") + " (in " + durRel(time.Until(s.Next)) + ")"
			}
			msg.RawLine(tgui.JoinH(" ", tgui.Code(s.Name), tgui.Esc(s.Kind), tgui.Esc("next "+next)))
		}
	}
	es := b.tasks.Snapshot()
	msg.Blank().KV("Engine", fmt.Sprintf("workers=%d queue=%d/%d in_flight=%d dropped=%d", es.Workers, es.QueueLen, es.QueueCap, es.InFlight, es.Dropped))
	hist := es.History
	if len(hist) > 5 {
		hist = hist[len(hist)-5:]
	}
	for _, h := range hist {
		status := "ok"
		if h.Error != "" {
			status = tgui.TruncRunes(h.Error, 60)
		}
		msg.Line(fmt.Sprintf("%s %s %s (%s)", h.Started.Format("01-02 15:04"), h.Name, status, h.Duration.Round(time.Millisecond)))
	}
	_, err := msg.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}
