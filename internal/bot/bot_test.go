package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"eventbot/internal/delivery"
	"eventbot/internal/flows"
	"eventbot/internal/session"
	"eventbot/internal/storage"
	"eventbot/internal/task/engine"
	kit "eventbot/internal/transport"
	"eventbot/internal/transport/telegram/router"
	logx "eventbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	texts []string
	media []kit.Media
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}
func (f *fakeAdapter) SendMedia(_ context.Context, _ kit.ChatTarget, m kit.Media, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, m)
	return kit.MessageRef{}, nil
}
func (f *fakeAdapter) SendAlbum(context.Context, kit.ChatTarget, []kit.Media) ([]kit.MessageRef, error) {
	return nil, nil
}
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }
func (f *fakeAdapter) SendLocation(context.Context, kit.ChatTarget, float64, float64, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (f *fakeAdapter) DeleteMessage(context.Context, kit.MessageRef) error { return nil }

func (f *fakeAdapter) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeAdapter) last(t *testing.T) string {
	t.Helper()
	s := f.sent()
	if len(s) == 0 {
		t.Fatalf("nothing sent")
	}
	return s[len(s)-1]
}

type fakeCal struct {
	archive bool
	days    int
}

func (c fakeCal) IsArchive() bool       { return c.archive }
func (c fakeCal) Started() bool         { return c.days <= 0 }
func (c fakeCal) DaysUntilStart() int   { return c.days }
func (c fakeCal) GreetingsOpen() bool   { return !c.archive && c.days > 0 }
func (c fakeCal) UploadsOpen() bool     { return !c.archive && c.days <= 0 }
func (c fakeCal) SongsOpen() bool       { return !c.archive }
func (c fakeCal) IsOperator(int64) bool { return false }

type fakeTasks struct {
	mu     sync.Mutex
	queued []engine.Task
	err    error
}

func (f *fakeTasks) Enqueue(t engine.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.queued = append(f.queued, t)
	return nil
}

func (f *fakeTasks) Snapshot() engine.Snapshot { return engine.Snapshot{} }

type fakeDeliverer struct {
	greetings delivery.GreetingReport
	modes     []delivery.Mode
}

func (f *fakeDeliverer) DeliverGreetings(context.Context) (delivery.GreetingReport, error) {
	return f.greetings, nil
}
func (f *fakeDeliverer) SendReminder(context.Context) (delivery.Report, error) {
	return delivery.Report{}, nil
}
func (f *fakeDeliverer) BuildAndSendMediaCollection(_ context.Context, mode delivery.Mode) (delivery.CollectionReport, error) {
	f.modes = append(f.modes, mode)
	return delivery.CollectionReport{Mode: mode}, nil
}
func (f *fakeDeliverer) PushNewMedia(context.Context) (delivery.PushReport, error) {
	return delivery.PushReport{}, nil
}

type harness struct {
	bot     *Bot
	store   storage.Store
	adapter *fakeAdapter
	tasks   *fakeTasks
	deliver *fakeDeliverer
}

func newHarness(t *testing.T, cal fakeCal) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if errors.Is(err, storage.ErrDriverUnavailable) {
		t.Skip("sqlite driver not built in")
	}
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	limits := flows.NewLimitsHolder(flows.Limits{MaxFilesPerUser: 0, SongMinLen: 2, SongMaxLen: 100})
	reg := session.NewRegistry(logx.Nop(),
		flows.NewGreeting(st, cal),
		flows.NewMedia(st, cal, limits, nil),
		flows.NewSong(st, cal, limits),
		flows.NewWishlist(st, cal),
	)
	h := &harness{store: st, adapter: &fakeAdapter{}, tasks: &fakeTasks{}, deliver: &fakeDeliverer{}}
	h.bot = New(Deps{
		Store:    st,
		Sessions: reg,
		Calendar: cal,
		Delivery: h.deliver,
		Tasks:    h.tasks,
	})
	return h
}

func (h *harness) req(from int64, text string, args ...string) *router.Request {
	u := kit.User{ID: from, FirstName: fmt.Sprintf("user%d", from)}
	return &router.Request{
		Message: &kit.Message{ID: 1, ChatID: from, From: u, Text: text},
		Chat:    kit.UserTarget(from),
		From:    u,
		Args:    args,
		RawArgs: args,
		Adapter: h.adapter,
		Logger:  logx.Nop(),
	}
}

func TestCountdownText(t *testing.T) {
	t.Parallel()
	tx := DefaultTexts()
	cases := []struct {
		days int
		want string
	}{
		{3, fmt.Sprintf(tx.CountdownLeft, 3)},
		{0, tx.CountdownToday},
		{-2, fmt.Sprintf(tx.CountdownAgo, 2)},
	}
	for _, tc := range cases {
		if got := countdownText(tx, tc.days); got != tc.want {
			t.Fatalf("days=%d: got %q want %q", tc.days, got, tc.want)
		}
	}
}

func TestEventOf(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		msg  kit.Message
		want session.EventKind
	}{
		{"text", kit.Message{Text: "hi"}, session.EventText},
		{"photo", kit.Message{Media: &kit.Media{Kind: kit.MediaPhoto, FileRef: "p"}}, session.EventImage},
		{"video", kit.Message{Media: &kit.Media{Kind: kit.MediaVideo, FileRef: "v"}}, session.EventVideo},
		{"voice", kit.Message{Media: &kit.Media{Kind: kit.MediaVoice, FileRef: "a"}}, session.EventVoice},
		{"sticker", kit.Message{Media: &kit.Media{Kind: kit.MediaSticker, FileRef: "s"}}, session.EventSticker},
		{"location", kit.Message{HasLocation: true}, session.EventOther},
	}
	for _, tc := range cases {
		m := tc.msg
		if got := eventOf(&m).Kind; got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestStartInArchiveOnlyAnswersArchive(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeCal{archive: true})
	if err := h.bot.cmdStart(context.Background(), h.req(1, "/start")); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := h.adapter.sent(); len(got) != 1 || got[0] != DefaultTexts().Archive {
		t.Fatalf("sent %q", got)
	}
	if _, ok, _ := h.store.GetUser(context.Background(), 1); ok {
		t.Fatalf("archive /start must not register the user")
	}
}

func TestAttendConfirmTwice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeCal{days: 5})
	ctx := context.Background()
	tx := DefaultTexts()

	if err := h.bot.cbAttend(ctx, h.req(1, ""), ""); err != nil {
		t.Fatalf("attend: %v", err)
	}
	if got, want := h.adapter.last(t), fmt.Sprintf(tx.AttendConfirmed, 1); got != want {
		t.Fatalf("first: got %q want %q", got, want)
	}
	if err := h.bot.cbAttend(ctx, h.req(1, ""), ""); err != nil {
		t.Fatalf("attend again: %v", err)
	}
	if got, want := h.adapter.last(t), fmt.Sprintf(tx.AttendAlready, 1); got != want {
		t.Fatalf("second: got %q want %q", got, want)
	}
}

func TestFallbackWithoutFlowShowsMenu(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeCal{days: 5})
	if err := h.bot.Fallback(context.Background(), h.req(1, "hello")); err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if got := h.adapter.last(t); got != DefaultTexts().UseMenu {
		t.Fatalf("got %q", got)
	}
}

func TestGreetingFlowSavesOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeCal{days: 5})
	ctx := context.Background()
	tx := DefaultTexts()

	if err := h.bot.startFlow(ctx, h.req(1, ""), session.KindGreeting, ""); err != nil {
		t.Fatalf("start flow: %v", err)
	}
	if got := h.adapter.last(t); got != tx.GreetingPrompt {
		t.Fatalf("prompt: %q", got)
	}
	if err := h.bot.Fallback(ctx, h.req(1, "happy birthday")); err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if got := h.adapter.last(t); got != tx.GreetingSaved {
		t.Fatalf("saved: %q", got)
	}
	// The flow is closed; the next message goes to the menu hint.
	if err := h.bot.Fallback(ctx, h.req(1, "again")); err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if got := h.adapter.last(t); got != tx.UseMenu {
		t.Fatalf("after save: %q", got)
	}
	pending, err := h.store.PendingGreetings(ctx)
	if err != nil || len(pending) != 1 || pending[0].Content != "happy birthday" {
		t.Fatalf("pending=%+v err=%v", pending, err)
	}
}

func TestCancelWithoutFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeCal{days: 5})
	if err := h.bot.cmdCancel(context.Background(), h.req(1, "/cancel")); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.adapter.last(t); got != DefaultTexts().NothingToCancel {
		t.Fatalf("got %q", got)
	}
}

func TestOpenPresentsRunsAsEngineTask(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeCal{days: 0})
	h.deliver.greetings = delivery.GreetingReport{Pending: 2, Delivered: 2}
	ctx := context.Background()

	if err := h.bot.cmdOpenPresents(ctx, h.req(1, "/open_presents")); err != nil {
		t.Fatalf("cmd: %v", err)
	}
	if len(h.tasks.queued) != 1 {
		t.Fatalf("queued %d tasks", len(h.tasks.queued))
	}
	task := h.tasks.queued[0]
	if task.Name != JobDeliverGreetings || task.Opt.Overlap != engine.OverlapSkipIfRunning {
		t.Fatalf("task %q overlap=%v", task.Name, task.Opt.Overlap)
	}
	if err := task.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := h.adapter.last(t); !strings.Contains(got, "2 delivered") {
		t.Fatalf("summary %q", got)
	}
}

func TestManualJobAlreadyRunning(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeCal{days: 0})
	h.tasks.err = engine.ErrOverlapSkip
	if err := h.bot.cmdRemind(context.Background(), h.req(1, "/remind")); err != nil {
		t.Fatalf("cmd: %v", err)
	}
	if got := h.adapter.last(t); !strings.Contains(got, "already running") {
		t.Fatalf("got %q", got)
	}
}

func TestGetAlbumMode(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeCal{days: 0})
	ctx := context.Background()
	_ = h.bot.cmdGetAlbum(ctx, h.req(1, "/get_album"))
	_ = h.bot.cmdGetAlbum(ctx, h.req(1, "/get_album all", "all"))
	for _, task := range h.tasks.queued {
		if err := task.Run(ctx); err != nil {
			t.Fatalf("run: %v", err)
		}
	}
	want := []delivery.Mode{delivery.ModeOperators, delivery.ModeEveryone}
	if len(h.deliver.modes) != 2 || h.deliver.modes[0] != want[0] || h.deliver.modes[1] != want[1] {
		t.Fatalf("modes %v", h.deliver.modes)
	}
}

func TestSetStartPhotoNeedsRepliedPhoto(t *testing.T) {
	t.Parallel()
	h := newHarness(t, fakeCal{days: 5})
	ctx := context.Background()

	if err := h.bot.cmdSetStartPhoto(ctx, h.req(1, "/set_start_photo yes", "yes")); err != nil {
		t.Fatalf("cmd: %v", err)
	}
	if _, ok, _ := h.store.ActiveWelcomePhoto(ctx, storage.PhotoAccepted); ok {
		t.Fatalf("photo set without a replied photo")
	}

	req := h.req(1, "/set_start_photo yes", "yes")
	req.Message.ReplyTo = &kit.Message{Media: &kit.Media{Kind: kit.MediaPhoto, FileRef: "file-1", Caption: "hi"}}
	if err := h.bot.cmdSetStartPhoto(ctx, req); err != nil {
		t.Fatalf("cmd: %v", err)
	}
	p, ok, err := h.store.ActiveWelcomePhoto(ctx, storage.PhotoAccepted)
	if err != nil || !ok || p.FileRef != "file-1" {
		t.Fatalf("photo=%+v ok=%v err=%v", p, ok, err)
	}
}

func TestFormatHelpers(t *testing.T) {
	t.Parallel()
	bytes := map[uint64]string{512: "512B", 2048: "2.0KB", 3 << 20: "3.0MB", 5 << 30: "5.0GB"}
	for in, want := range bytes {
		if got := fmtBytes(in); got != want {
			t.Fatalf("fmtBytes(%d)=%q want %q", in, got, want)
		}
	}
	durs := []struct {
		in   time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m5s"},
		{-(2*time.Hour + 10*time.Minute), "2h10m"},
		{75 * time.Hour, "3d3h"},
	}
	for _, tc := range durs {
		if got := durRel(tc.in); got != tc.want {
			t.Fatalf("durRel(%v)=%q want %q", tc.in, got, tc.want)
		}
	}
}
