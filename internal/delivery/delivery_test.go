package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"eventbot/internal/storage"
	kit "eventbot/internal/transport"
	logx "eventbot/pkg/logx"
)

type sentCall struct {
	chat  int64
	kind  string // text, media, album
	text  string
	media kit.Media
	size  int
}

type fakeSender struct {
	mu    sync.Mutex
	calls []sentCall
	// fail maps chat id to the error returned for every call to it.
	fail map[int64]error
}

func (f *fakeSender) record(c sentCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.fail[c.chat]
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, f.record(sentCall{chat: to.ChatID, kind: "text", text: text})
}

func (f *fakeSender) SendMedia(_ context.Context, to kit.ChatTarget, m kit.Media, _ *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, f.record(sentCall{chat: to.ChatID, kind: "media", media: m, size: 1})
}

func (f *fakeSender) SendAlbum(_ context.Context, to kit.ChatTarget, items []kit.Media) ([]kit.MessageRef, error) {
	return nil, f.record(sentCall{chat: to.ChatID, kind: "album", size: len(items)})
}

func (f *fakeSender) byChat(chat int64, kind string) []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentCall
	for _, c := range f.calls {
		if c.chat == chat && (kind == "" || c.kind == kind) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

type fakeStore struct {
	mu        sync.Mutex
	users     []int64
	greetings []storage.SenderGreeting
	media     []storage.MediaItem
	failList  error
}

func (s *fakeStore) ListUserIDs(context.Context) ([]int64, error) {
	return append([]int64(nil), s.users...), nil
}

func (s *fakeStore) PendingGreetings(context.Context) ([]storage.SenderGreeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList != nil {
		return nil, s.failList
	}
	var out []storage.SenderGreeting
	for _, g := range s.greetings {
		if !g.Delivered {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkGreetingDelivered(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.greetings {
		if s.greetings[i].ID == id && !s.greetings[i].Delivered {
			s.greetings[i].Delivered = true
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) GreetingSenderIDs(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, g := range s.greetings {
		out = append(out, g.UserID)
	}
	return out, nil
}

func (s *fakeStore) ListMedia(context.Context) ([]storage.MediaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.MediaItem(nil), s.media...), nil
}

func (s *fakeStore) UnsentMedia(context.Context) ([]storage.MediaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.MediaItem
	for _, m := range s.media {
		if !m.SentToRecipients {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkMediaSent(_ context.Context, ids []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for i := range s.media {
		if want[s.media[i].ID] && !s.media[i].SentToRecipients {
			s.media[i].SentToRecipients = true
			n++
		}
	}
	return n, nil
}

type staticOps []int64

func (o staticOps) Operators() []int64 { return o }

type archiveFlag bool

func (a archiveFlag) IsArchive() bool { return bool(a) }

func images(n int) []storage.MediaItem {
	out := make([]storage.MediaItem, n)
	for i := range out {
		out[i] = storage.MediaItem{ID: int64(i + 1), UserID: 100, Kind: storage.MediaImage, FileRef: "photo"}
	}
	return out
}

func newTestEngine(st *fakeStore, snd *fakeSender, ops []int64) (*Engine, *[]time.Duration) {
	e := New(Config{ChunkSize: 10, FloodBackoff: 5 * time.Second}, st, snd, archiveFlag(false), staticOps(ops), logx.Nop())
	var slept []time.Duration
	var mu sync.Mutex
	e.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return nil
	}
	return e, &slept
}

func albumSizes(calls []sentCall) []int {
	var out []int
	for _, c := range calls {
		out = append(out, c.size)
	}
	return out
}

func TestCollectionChunksAlbums(t *testing.T) {
	t.Parallel()

	st := &fakeStore{media: images(23), users: []int64{7, 8}}
	snd := &fakeSender{}
	e, _ := newTestEngine(st, snd, []int64{1, 2})

	rep, err := e.BuildAndSendMediaCollection(context.Background(), ModeOperators)
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	for _, op := range []int64{1, 2} {
		got := albumSizes(snd.byChat(op, "album"))
		if len(got) != 3 || got[0] != 10 || got[1] != 10 || got[2] != 3 {
			t.Fatalf("chat %d albums=%v", op, got)
		}
		if texts := snd.byChat(op, "text"); len(texts) != 1 {
			t.Fatalf("chat %d summary texts=%d", op, len(texts))
		}
	}
	if got := snd.byChat(7, ""); len(got) != 0 {
		t.Fatalf("non-operator received %d calls in operator mode", len(got))
	}
	if rep.Marked != 0 || rep.Albums != 3 || rep.Items != 23 {
		t.Fatalf("report=%+v", rep)
	}
}

func TestCollectionEveryoneMarksImages(t *testing.T) {
	t.Parallel()

	media := images(2)
	media = append(media,
		storage.MediaItem{ID: 3, Kind: storage.MediaVideo, FileRef: "vid"},
		storage.MediaItem{ID: 4, Kind: storage.MediaVoice, FileRef: "voc"},
	)
	st := &fakeStore{media: media, users: []int64{1, 7}}
	snd := &fakeSender{}
	e, _ := newTestEngine(st, snd, []int64{1})

	rep, err := e.BuildAndSendMediaCollection(context.Background(), ModeEveryone)
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if rep.Recipients != 2 || rep.Items != 3 || rep.Marked != 2 {
		t.Fatalf("report=%+v", rep)
	}
	// Summary, the photo album, then the video on its own. No voice.
	calls := snd.byChat(7, "")
	if len(calls) != 3 || calls[1].kind != "album" || calls[2].media.Kind != kit.MediaVideo {
		t.Fatalf("calls=%+v", calls)
	}

	// Only the video and the voice note are left for the push.
	snd.reset()
	push, err := e.PushNewMedia(context.Background())
	if err != nil || push.Items != 2 {
		t.Fatalf("push after everyone pass: rep=%+v err=%v", push, err)
	}
}

func TestCollectionEveryoneTwentyThreeImages(t *testing.T) {
	t.Parallel()

	st := &fakeStore{media: images(23), users: []int64{7, 8}}
	snd := &fakeSender{}
	e, _ := newTestEngine(st, snd, []int64{1, 2})

	rep, err := e.BuildAndSendMediaCollection(context.Background(), ModeEveryone)
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	for _, chat := range []int64{1, 2, 7, 8} {
		got := albumSizes(snd.byChat(chat, "album"))
		if len(got) != 3 || got[0] != 10 || got[1] != 10 || got[2] != 3 {
			t.Fatalf("chat %d albums=%v", chat, got)
		}
	}
	if rep.Recipients != 4 || rep.Marked != 23 {
		t.Fatalf("report=%+v", rep)
	}
	left, _ := st.UnsentMedia(context.Background())
	if len(left) != 0 {
		t.Fatalf("%d items still unsent", len(left))
	}
}

func TestPushTwiceSendsOnce(t *testing.T) {
	t.Parallel()

	st := &fakeStore{media: images(12), users: []int64{7, 8}}
	snd := &fakeSender{}
	e, slept := newTestEngine(st, snd, []int64{1})
	e.Apply(Config{ChunkSize: 10, ChunkPause: time.Second, RecipientPause: 500 * time.Millisecond})

	rep, err := e.PushNewMedia(context.Background())
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if rep.Items != 12 || rep.Marked != 12 || rep.Recipients != 2 {
		t.Fatalf("report=%+v", rep)
	}
	if got := albumSizes(snd.byChat(8, "album")); len(got) != 2 || got[0] != 10 || got[1] != 2 {
		t.Fatalf("albums=%v", got)
	}
	// One chunk pause per recipient plus one pause between recipients.
	if len(*slept) != 3 {
		t.Fatalf("pauses=%v", *slept)
	}

	snd.reset()
	rep, err = e.PushNewMedia(context.Background())
	if err != nil || rep.Items != 0 || len(snd.calls) != 0 {
		t.Fatalf("second push: rep=%+v err=%v calls=%d", rep, err, len(snd.calls))
	}
}

func TestPushSkippedInArchive(t *testing.T) {
	t.Parallel()

	st := &fakeStore{media: images(1), users: []int64{7}}
	snd := &fakeSender{}
	e, _ := newTestEngine(st, snd, nil)
	e.SetCalendar(archiveFlag(true))

	rep, err := e.PushNewMedia(context.Background())
	if err != nil || !rep.Skipped || len(snd.calls) != 0 {
		t.Fatalf("rep=%+v err=%v", rep, err)
	}
}

func TestGreetingsMarkedOnlyOnFullSuccess(t *testing.T) {
	t.Parallel()

	st := &fakeStore{greetings: []storage.SenderGreeting{
		{Greeting: storage.Greeting{ID: 1, UserID: 50, Kind: storage.GreetingText, Content: "happy birthday"}, Sender: storage.User{ID: 50, FirstName: "Ann"}},
		{Greeting: storage.Greeting{ID: 2, UserID: 51, Kind: storage.GreetingSticker, Content: "stk"}, Sender: storage.User{ID: 51, Username: "bob"}},
	}}
	snd := &fakeSender{fail: map[int64]error{2: errors.New("network down")}}
	e, _ := newTestEngine(st, snd, []int64{1, 2})

	rep, err := e.DeliverGreetings(context.Background())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if rep.Pending != 2 || rep.Delivered != 0 {
		t.Fatalf("report=%+v", rep)
	}
	texts := snd.byChat(1, "text")
	if len(texts) < 1 || texts[0].text != "🎁 From Ann\n\nhappy birthday" {
		t.Fatalf("texts=%+v", texts)
	}
	stickers := snd.byChat(1, "media")
	if len(stickers) != 1 || stickers[0].media.Caption != "" {
		t.Fatalf("stickers=%+v", stickers)
	}

	// Host 2 recovers: both greetings go out again and are flagged.
	snd.mu.Lock()
	snd.fail = nil
	snd.mu.Unlock()
	snd.reset()
	rep, err = e.DeliverGreetings(context.Background())
	if err != nil || rep.Delivered != 2 {
		t.Fatalf("retry: rep=%+v err=%v", rep, err)
	}
	summary := snd.byChat(2, "text")
	if last := summary[len(summary)-1].text; last != "🎉 Presents delivered: 2" {
		t.Fatalf("summary=%q", last)
	}

	snd.reset()
	rep, err = e.DeliverGreetings(context.Background())
	if err != nil || rep.Pending != 0 {
		t.Fatalf("third run: rep=%+v err=%v", rep, err)
	}
}

func TestRateLimitBacksOffAndContinues(t *testing.T) {
	t.Parallel()

	st := &fakeStore{greetings: []storage.SenderGreeting{
		{Greeting: storage.Greeting{ID: 1, UserID: 50}},
		{Greeting: storage.Greeting{ID: 2, UserID: 51}},
		{Greeting: storage.Greeting{ID: 3, UserID: 50}},
	}}
	snd := &fakeSender{fail: map[int64]error{
		50: &kit.RateLimitError{RetryAfter: 9 * time.Second},
		51: kit.ErrRecipientUnavailable,
	}}
	e, slept := newTestEngine(st, snd, nil)

	rep, err := e.SendReminder(context.Background())
	if err != nil {
		t.Fatalf("reminder: %v", err)
	}
	if rep.Recipients != 2 || rep.RateLimited != 1 || rep.Unavailable != 1 || rep.Sent != 0 {
		t.Fatalf("report=%+v", rep)
	}
	if len(*slept) != 1 || (*slept)[0] != 9*time.Second {
		t.Fatalf("slept=%v", *slept)
	}
}

func TestStoreErrorAborts(t *testing.T) {
	t.Parallel()

	boom := errors.New("database is locked")
	st := &fakeStore{failList: boom}
	snd := &fakeSender{}
	e, _ := newTestEngine(st, snd, []int64{1})

	if _, err := e.DeliverGreetings(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if len(snd.calls) != 0 {
		t.Fatalf("sent %d calls after a store error", len(snd.calls))
	}
}

func TestPlanUnitsNeverExceedsAlbumSize(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, 1, 3, 10, 50} {
		for _, u := range planUnits(images(37), size) {
			if len(u.items) > kit.MaxAlbumSize || len(u.items) == 0 {
				t.Fatalf("size=%d unit of %d", size, len(u.items))
			}
		}
	}
}

// Not parallel: the counters are package globals.
func TestPushCountsMarkedRows(t *testing.T) {
	st := &fakeStore{media: images(5), users: []int64{7}}
	e, _ := newTestEngine(st, &fakeSender{}, nil)

	marked := markedTotal.WithLabelValues(opPush)
	runs := runsTotal.WithLabelValues(opPush, "ok")
	beforeMarked, beforeRuns := testutil.ToFloat64(marked), testutil.ToFloat64(runs)

	if _, err := e.PushNewMedia(context.Background()); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got := testutil.ToFloat64(marked) - beforeMarked; got != 5 {
		t.Fatalf("marked delta=%v", got)
	}
	if got := testutil.ToFloat64(runs) - beforeRuns; got != 1 {
		t.Fatalf("runs delta=%v", got)
	}
}

func TestReminderUsesConfiguredText(t *testing.T) {
	t.Parallel()

	st := &fakeStore{greetings: []storage.SenderGreeting{
		{Greeting: storage.Greeting{ID: 1, UserID: 50}},
		{Greeting: storage.Greeting{ID: 2, UserID: 50}},
		{Greeting: storage.Greeting{ID: 3, UserID: 51}},
	}}
	snd := &fakeSender{}
	e, _ := newTestEngine(st, snd, nil)
	msgs := DefaultMessages()
	msgs.Reminder = "Tomorrow at 7!"
	e.SetMessages(msgs)

	rep, err := e.SendReminder(context.Background())
	if err != nil || rep.Recipients != 2 {
		t.Fatalf("rep=%+v err=%v", rep, err)
	}
	for _, chat := range []int64{50, 51} {
		got := snd.byChat(chat, "text")
		if len(got) != 1 || got[0].text != "Tomorrow at 7!" {
			t.Fatalf("chat %d texts=%+v", chat, got)
		}
	}
}
