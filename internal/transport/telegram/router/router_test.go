package router

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"eventbot/internal/ratelimit"
	kit "eventbot/internal/transport"
	logx "eventbot/pkg/logx"
)

type fakeAdapter struct {
	mu      sync.Mutex
	texts   []string
	answers []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}
func (f *fakeAdapter) SendMedia(context.Context, kit.ChatTarget, kit.Media, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (f *fakeAdapter) SendAlbum(context.Context, kit.ChatTarget, []kit.Media) ([]kit.MessageRef, error) {
	return nil, nil
}
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}
func (f *fakeAdapter) SendLocation(context.Context, kit.ChatTarget, float64, float64, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (f *fakeAdapter) DeleteMessage(context.Context, kit.MessageRef) error { return nil }

func (f *fakeAdapter) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type denyAll struct{}

func (denyAll) Allow(int64) bool { return false }

func msgUpdate(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 1, ChatID: from, From: kit.User{ID: from}, Text: text,
	}}
}

func runManager(t *testing.T, m *CommandManager) (chan kit.Update, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.DispatchLoop(ctx, updates)
	}()
	// Wait for the worker queues.
	deadline := time.Now().Add(2 * time.Second)
	for m.Supervisor() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return updates, func() {
		cancel()
		<-done
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"/cmd a b", []string{"/cmd", "a", "b"}},
		{`/cmd "a b" c`, []string{"/cmd", "a b", "c"}},
		{`/cmd 'x' ""`, []string{"/cmd", "x", ""}},
		{`/cmd a\ b`, []string{"/cmd", "a b"}},
		{"   ", nil},
	}
	for _, tc := range cases {
		if got := tokenizeCommandLine(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("tokenize(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	pos, flags, bools := parseFlags([]string{"all", "-1", "--limit=5", "--mode", "fast", "--dry"})
	if !reflect.DeepEqual(pos, []string{"all", "-1"}) {
		t.Fatalf("pos=%q", pos)
	}
	if flags["limit"] != "5" || flags["mode"] != "fast" {
		t.Fatalf("flags=%v", flags)
	}
	if !bools["dry"] {
		t.Fatalf("bools=%v", bools)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"get_album":      "get_album",
		"Wishlist-Add":   "wishlist_add",
		"a  b":           "a_b",
		"9lives":         "cmd_9lives",
		"émoji✨":         "moji",
		"":               "",
		"/set start/now": "set_start_now",
	}
	for in, want := range cases {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Fatalf("sanitize(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestDispatchRoutesCommandsAndAccess(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), ad, []int64{1}, Options{Workers: 2})
	m.SetRegistry(context.Background(), []Command{
		{Route: "ping", Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Reply(ctx, "pong "+strings.Join(req.Args, ","), nil)
			return err
		}},
		{Route: "stats", Access: AccessOperator, Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Reply(ctx, "stats ok", nil)
			return err
		}},
	}, nil)

	updates, stop := runManager(t, m)
	defer stop()

	updates <- msgUpdate(2, "/ping@eventbot x y")
	waitFor(t, func() bool { return len(ad.sent()) == 1 })
	updates <- msgUpdate(2, "/stats")
	waitFor(t, func() bool { return len(ad.sent()) == 2 })
	updates <- msgUpdate(1, "/stats")
	waitFor(t, func() bool { return len(ad.sent()) == 3 })
	updates <- msgUpdate(1, "/nope")
	waitFor(t, func() bool { return len(ad.sent()) == 4 })

	want := []string{"pong x,y", "unauthorized", "stats ok", "Unknown command. Try /help"}
	if got := ad.sent(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sent=%q, want %q", got, want)
	}
}

func TestFallbackReceivesPlainMessagesInOrder(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	var mu sync.Mutex
	var seen []string
	m := NewCommandManager(logx.Nop(), ad, nil, Options{
		Workers: 4,
		Fallback: func(ctx context.Context, req *Request) error {
			mu.Lock()
			seen = append(seen, req.Message.Text)
			mu.Unlock()
			return nil
		},
	})
	m.SetRegistry(context.Background(), nil, nil)
	updates, stop := runManager(t, m)
	defer stop()

	for _, s := range []string{"a", "b", "c", "d"} {
		updates <- msgUpdate(7, s)
	}
	group := msgUpdate(7, "ignored")
	group.Message.IsGroup = true
	updates <- group

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 4
	})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(seen, []string{"a", "b", "c", "d"}) {
		t.Fatalf("seen=%q", seen)
	}
}

func TestInboundLimitRepliesSlowDown(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	called := make(chan struct{}, 1)
	m := NewCommandManager(logx.Nop(), ad, nil, Options{
		Inbound: denyAll{},
		Fallback: func(ctx context.Context, req *Request) error {
			called <- struct{}{}
			return nil
		},
	})
	m.SetRegistry(context.Background(), nil, nil)
	updates, stop := runManager(t, m)
	defer stop()

	updates <- msgUpdate(3, "hello")
	waitFor(t, func() bool { return len(ad.sent()) == 1 })
	if got := ad.sent()[0]; !strings.Contains(got, "slow down") {
		t.Fatalf("reply=%q", got)
	}
	select {
	case <-called:
		t.Fatalf("fallback should not run for limited users")
	default:
	}
}

func TestExemptUploadsBypassInboundLimit(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	var mu sync.Mutex
	var got []string
	m := NewCommandManager(logx.Nop(), ad, nil, Options{
		Inbound: ratelimit.NewLimiter(5, time.Minute),
		Exempt: func(up kit.Update) bool {
			return up.Message != nil && up.Message.Media != nil
		},
		Fallback: func(ctx context.Context, req *Request) error {
			mu.Lock()
			defer mu.Unlock()
			if req.Message.Media != nil {
				got = append(got, req.Message.Media.FileRef)
			} else {
				got = append(got, req.Message.Text)
			}
			return nil
		},
	})
	m.SetRegistry(context.Background(), nil, nil)
	updates, stop := runManager(t, m)
	defer stop()

	// An album of 10 photos arrives as 10 updates.
	for i := 0; i < 10; i++ {
		up := msgUpdate(7, "")
		up.Message.ID = i + 1
		up.Message.Media = &kit.Media{Kind: kit.MediaPhoto, FileRef: fmt.Sprintf("p%d", i)}
		updates <- up
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 10
	})
	if n := len(ad.sent()); n != 0 {
		t.Fatalf("unexpected replies: %q", ad.sent())
	}

	// Text is still limited: 5 admitted, the 6th gets the notice.
	for i := 0; i < 6; i++ {
		updates <- msgUpdate(7, fmt.Sprintf("t%d", i))
	}
	waitFor(t, func() bool { return len(ad.sent()) == 1 })
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 15 {
		t.Fatalf("fallback got %d messages, want 15: %q", len(got), got)
	}
	if got[9] != "p9" || got[14] != "t4" {
		t.Fatalf("order=%q", got)
	}
}

func TestCallbackAccess(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	got := make(chan string, 2)
	m := NewCommandManager(logx.Nop(), ad, []int64{1}, Options{})
	m.SetRegistry(context.Background(), nil, []CallbackRoute{
		{Group: "menu", Action: "fortune", Access: CallbackAccessEveryone, Handle: func(ctx context.Context, req *Request, payload string) error {
			got <- "fortune:" + payload
			return nil
		}},
		{Group: "admin", Action: "push", Handle: func(ctx context.Context, req *Request, payload string) error {
			got <- "push"
			return nil
		}},
	})
	updates, stop := runManager(t, m)
	defer stop()

	cb := func(from int64, data string) kit.Update {
		return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb", From: kit.User{ID: from}, ChatID: from, Data: data}}
	}
	updates <- cb(5, "admin:push")
	updates <- cb(5, "menu:fortune:x")

	select {
	case v := <-got:
		if v != "fortune:x" {
			t.Fatalf("handler=%q", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("callback not handled")
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.answers) == 0 || ad.answers[0] != "forbidden" {
		t.Fatalf("answers=%q", ad.answers)
	}
}

func TestHelpHidesOperatorCommands(t *testing.T) {
	t.Parallel()

	m := NewCommandManager(logx.Nop(), &fakeAdapter{}, nil, Options{})
	noop := func(context.Context, *Request) error { return nil }
	m.SetRegistry(context.Background(), []Command{
		{Route: "start", Description: "begin", Handle: noop},
		{Route: "stats", Description: "numbers", Access: AccessOperator, Handle: noop},
		{Route: "secret", Hidden: true, Handle: noop},
	}, nil)

	public := m.helpText(nil, false)
	if !strings.Contains(public, "/start") || strings.Contains(public, "/stats") || strings.Contains(public, "/secret") {
		t.Fatalf("public help:\n%s", public)
	}
	if op := m.helpText(nil, true); !strings.Contains(op, "🔒 <code>/stats</code>") {
		t.Fatalf("operator help:\n%s", op)
	}

	menu := buildTelegramMenuCommands(m.root)
	var names []string
	for _, c := range menu {
		names = append(names, c.Command)
	}
	if !reflect.DeepEqual(names, []string{"help", "start"}) {
		t.Fatalf("menu=%q", names)
	}
}
