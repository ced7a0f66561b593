package flows

import (
	"context"
	"errors"
	"sync"
	"testing"

	"eventbot/internal/session"
	"eventbot/internal/storage"
	logx "eventbot/pkg/logx"
)

type fakeCalendar struct {
	archive, started bool
	days             int
}

func (c fakeCalendar) GreetingsOpen() bool { return !c.archive }
func (c fakeCalendar) SongsOpen() bool     { return !c.archive }
func (c fakeCalendar) UploadsOpen() bool   { return c.started && !c.archive }
func (c fakeCalendar) Started() bool       { return c.started }
func (c fakeCalendar) DaysUntilStart() int { return c.days }

type memStore struct {
	mu        sync.Mutex
	users     map[int64]storage.User
	greetings []storage.Greeting
	media     []storage.MediaItem
	songs     []storage.SongSuggestion
	wishlist  map[int64]string
	nextID    int64
	failAdd   error
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]storage.User{}, wishlist: map[int64]string{}}
}

func (m *memStore) UpsertUser(_ context.Context, u storage.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memStore) AddGreeting(_ context.Context, g storage.Greeting) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdd != nil {
		return 0, m.failAdd
	}
	m.nextID++
	g.ID = m.nextID
	m.greetings = append(m.greetings, g)
	return g.ID, nil
}

func (m *memStore) AddMedia(_ context.Context, it storage.MediaItem) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	it.ID = m.nextID
	m.media = append(m.media, it)
	return it.ID, nil
}

func (m *memStore) CountUserMedia(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.media {
		if it.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) AddSong(_ context.Context, s storage.SongSuggestion) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.songs = append(m.songs, s)
	return m.nextID, nil
}

func (m *memStore) AddWishlistItem(_ context.Context, text string, _ int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.wishlist[m.nextID] = text
	return m.nextID, nil
}

func (m *memStore) DeleteWishlistItem(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.wishlist[id]
	delete(m.wishlist, id)
	return ok, nil
}

type operators map[int64]bool

func (o operators) IsOperator(id int64) bool { return o[id] }

type denyAfterFirst struct{ seen map[int64]bool }

func (d *denyAfterFirst) Allow(id int64) bool {
	if d.seen[id] {
		return false
	}
	d.seen[id] = true
	return true
}

type harness struct {
	store *memStore
	reg   *session.Registry
	lim   *LimitsHolder
}

func newHarness(cal fakeCalendar) *harness {
	st := newMemStore()
	lim := NewLimitsHolder(Limits{SongMinLen: 3, SongMaxLen: 200})
	reg := session.NewRegistry(logx.Nop(),
		NewGreeting(st, cal),
		NewMedia(st, cal, lim, &denyAfterFirst{seen: map[int64]bool{}}),
		NewSong(st, cal, lim),
		NewWishlist(st, operators{1: true}),
	)
	return &harness{store: st, reg: reg, lim: lim}
}

var guest = session.Actor{ID: 42, FirstName: "Guest"}

func mustOutcome(t *testing.T, res session.Result, err error, want session.Outcome) session.Result {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != want {
		t.Fatalf("outcome=%v want %v (notice %q)", res.Outcome, want, res.Notice)
	}
	return res
}

func TestSongSupersedesMediaThenPhotoIgnored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(fakeCalendar{started: true})

	res, err := h.reg.Start(ctx, guest, session.KindMedia, "")
	mustOutcome(t, res, err, session.OutcomePrompt)
	res, err = h.reg.Start(ctx, guest, session.KindSong, "")
	mustOutcome(t, res, err, session.OutcomePrompt)

	res, err = h.reg.Advance(ctx, guest, session.Event{Kind: session.EventImage, FileRef: "photo-1"})
	res = mustOutcome(t, res, err, session.OutcomePrompt)
	if res.Notice != NoticeSongTextOnly {
		t.Fatalf("notice=%q", res.Notice)
	}
	if len(h.store.media) != 0 {
		t.Fatalf("photo must not reach the media store")
	}

	res, err = h.reg.Advance(ctx, guest, session.Event{Kind: session.EventText, Text: "Song 2 - Blur"})
	mustOutcome(t, res, err, session.OutcomeSaved)

	res, err = h.reg.Advance(ctx, guest, session.Event{Kind: session.EventImage, FileRef: "photo-2"})
	mustOutcome(t, res, err, session.OutcomeIgnored)
}

func TestGreetingKinds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := []struct {
		ev   session.Event
		kind storage.GreetingKind
	}{
		{session.Event{Kind: session.EventText, Text: "  happy day  "}, storage.GreetingText},
		{session.Event{Kind: session.EventImage, FileRef: "p"}, storage.GreetingImage},
		{session.Event{Kind: session.EventVideo, FileRef: "v"}, storage.GreetingVideo},
		{session.Event{Kind: session.EventVoice, FileRef: "o"}, storage.GreetingVoice},
		{session.Event{Kind: session.EventSticker, FileRef: "s"}, storage.GreetingSticker},
	}
	for _, tc := range cases {
		h := newHarness(fakeCalendar{})
		_, _ = h.reg.Start(ctx, guest, session.KindGreeting, "")
		res, err := h.reg.Advance(ctx, guest, tc.ev)
		mustOutcome(t, res, err, session.OutcomeSaved)
		if len(h.store.greetings) != 1 || h.store.greetings[0].Kind != tc.kind {
			t.Fatalf("%v: greetings=%+v", tc.ev.Kind, h.store.greetings)
		}
	}
	h := newHarness(fakeCalendar{})
	_, _ = h.reg.Start(ctx, guest, session.KindGreeting, "")
	_, _ = h.reg.Advance(ctx, guest, session.Event{Kind: session.EventText, Text: "  happy day  "})
	if got := h.store.greetings[0].Content; got != "happy day" {
		t.Fatalf("content=%q", got)
	}
	if _, ok := h.store.users[guest.ID]; !ok {
		t.Fatalf("greeting start should register the user")
	}
}

func TestGreetingUnsupportedReprompts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(fakeCalendar{})

	_, _ = h.reg.Start(ctx, guest, session.KindGreeting, "")
	res, err := h.reg.Advance(ctx, guest, session.Event{Kind: session.EventOther})
	res = mustOutcome(t, res, err, session.OutcomePrompt)
	if res.Notice != NoticeGreetingUnsupported {
		t.Fatalf("notice=%q", res.Notice)
	}
	if k, ok := h.reg.Active(guest.ID); !ok || k != session.KindGreeting {
		t.Fatalf("greeting flow should still be active")
	}
}

func TestGreetingStoreErrorKeepsFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(fakeCalendar{})
	h.store.failAdd = errors.New("disk full")

	_, _ = h.reg.Start(ctx, guest, session.KindGreeting, "")
	if _, err := h.reg.Advance(ctx, guest, session.Event{Kind: session.EventText, Text: "hi"}); err == nil {
		t.Fatalf("expected store error")
	}
	if _, ok := h.reg.Active(guest.ID); !ok {
		t.Fatalf("flow should survive a store error")
	}
}

func TestArchiveRefusesStarts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(fakeCalendar{started: true, archive: true})

	for _, k := range []session.Kind{session.KindGreeting, session.KindMedia, session.KindSong} {
		res, err := h.reg.Start(ctx, guest, k, "")
		res = mustOutcome(t, res, err, session.OutcomeRefused)
		if res.Notice != session.NoticeArchive {
			t.Fatalf("%s: notice=%q", k, res.Notice)
		}
	}
	if h.reg.Len() != 0 {
		t.Fatalf("refused starts must not install state")
	}
}

func TestMediaBeforeStart(t *testing.T) {
	t.Parallel()

	h := newHarness(fakeCalendar{days: 4})
	res, err := h.reg.Start(context.Background(), guest, session.KindMedia, "")
	res = mustOutcome(t, res, err, session.OutcomeRefused)
	if res.Notice != NoticeUploadsNotYet || res.Detail != "4" {
		t.Fatalf("res=%+v", res)
	}
}

func TestMediaStaysOpenAndThrottles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(fakeCalendar{started: true})

	_, _ = h.reg.Start(ctx, guest, session.KindMedia, "")
	first, err := h.reg.Advance(ctx, guest, session.Event{Kind: session.EventImage, FileRef: "a"})
	first = mustOutcome(t, first, err, session.OutcomeCollected)
	second, err := h.reg.Advance(ctx, guest, session.Event{Kind: session.EventVideo, FileRef: "b"})
	second = mustOutcome(t, second, err, session.OutcomeCollected)

	if first.Quiet || !second.Quiet {
		t.Fatalf("quiet flags first=%v second=%v", first.Quiet, second.Quiet)
	}
	if st, _ := h.reg.State(guest.ID); st.Count != 2 {
		t.Fatalf("count=%d", st.Count)
	}
	res, err := h.reg.Advance(ctx, guest, session.Event{Kind: session.EventSticker, FileRef: "s"})
	mustOutcome(t, res, err, session.OutcomePrompt)
	if len(h.store.media) != 2 {
		t.Fatalf("media=%d", len(h.store.media))
	}
}

func TestMediaLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(fakeCalendar{started: true})
	h.lim.Store(Limits{MaxFilesPerUser: 1, SongMinLen: 3, SongMaxLen: 200})

	_, _ = h.reg.Start(ctx, guest, session.KindMedia, "")
	res, err := h.reg.Advance(ctx, guest, session.Event{Kind: session.EventImage, FileRef: "a"})
	mustOutcome(t, res, err, session.OutcomeCollected)
	res, err = h.reg.Advance(ctx, guest, session.Event{Kind: session.EventImage, FileRef: "b"})
	res = mustOutcome(t, res, err, session.OutcomeInvalid)
	if res.Notice != NoticeMediaLimit || res.Detail != "1" {
		t.Fatalf("res=%+v", res)
	}
	if len(h.store.media) != 1 {
		t.Fatalf("limit exceeded: %d items", len(h.store.media))
	}
}

func TestSongLengthBounds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	long := make([]rune, 201)
	for i := range long {
		long[i] = 'я'
	}
	cases := []struct {
		text string
		want session.Outcome
	}{
		{"ab", session.OutcomeInvalid},
		{"   ab   ", session.OutcomeInvalid},
		{"abc", session.OutcomeSaved},
		{string(long[:200]), session.OutcomeSaved},
		{string(long), session.OutcomeInvalid},
	}
	for _, tc := range cases {
		h := newHarness(fakeCalendar{})
		_, _ = h.reg.Start(ctx, guest, session.KindSong, "")
		res, err := h.reg.Advance(ctx, guest, session.Event{Kind: session.EventText, Text: tc.text})
		res = mustOutcome(t, res, err, tc.want)
		if tc.want == session.OutcomeInvalid {
			if res.Detail != "3-200" {
				t.Fatalf("detail=%q", res.Detail)
			}
			if _, ok := h.reg.Active(guest.ID); !ok {
				t.Fatalf("invalid song must keep the flow open")
			}
		}
	}
}

func TestWishlistOperatorOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(fakeCalendar{})
	op := session.Actor{ID: 1}

	_, _ = h.reg.Start(ctx, guest, session.KindSong, "")
	res, err := h.reg.Start(ctx, guest, session.KindWishlist, StepWishlistItem)
	mustOutcome(t, res, err, session.OutcomeForbidden)
	if k, _ := h.reg.Active(guest.ID); k != session.KindSong {
		t.Fatalf("refused wishlist start replaced %q", k)
	}

	res, err = h.reg.Start(ctx, op, session.KindWishlist, StepWishlistItem)
	mustOutcome(t, res, err, session.OutcomePrompt)
	res, err = h.reg.Advance(ctx, op, session.Event{Kind: session.EventText, Text: "A teapot"})
	res = mustOutcome(t, res, err, session.OutcomeSaved)
	if len(h.store.wishlist) != 1 || res.Detail == "" {
		t.Fatalf("wishlist=%v detail=%q", h.store.wishlist, res.Detail)
	}
}

func TestWishlistDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(fakeCalendar{})
	op := session.Actor{ID: 1}
	id, _ := h.store.AddWishlistItem(ctx, "socks", 1)

	_, _ = h.reg.Start(ctx, op, session.KindWishlist, StepWishlistDelete)
	res, err := h.reg.Advance(ctx, op, session.Event{Kind: session.EventText, Text: "abc"})
	mustOutcome(t, res, err, session.OutcomeInvalid)
	res, err = h.reg.Advance(ctx, op, session.Event{Kind: session.EventText, Text: "999"})
	res = mustOutcome(t, res, err, session.OutcomeInvalid)
	if res.Notice != NoticeWishlistNotFound {
		t.Fatalf("notice=%q", res.Notice)
	}
	if id != 1 {
		t.Fatalf("unexpected seeded id %d", id)
	}
	res, err = h.reg.Advance(ctx, op, session.Event{Kind: session.EventText, Text: " 1 "})
	mustOutcome(t, res, err, session.OutcomeSaved)
	if len(h.store.wishlist) != 0 {
		t.Fatalf("item not deleted")
	}
}

func TestWishlistRevokedOperator(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newMemStore()
	ops := operators{1: true}
	reg := session.NewRegistry(logx.Nop(), NewWishlist(st, ops))
	op := session.Actor{ID: 1}

	_, _ = reg.Start(ctx, op, session.KindWishlist, StepWishlistItem)
	delete(ops, 1)
	res, err := reg.Advance(ctx, op, session.Event{Kind: session.EventText, Text: "a bike"})
	mustOutcome(t, res, err, session.OutcomeForbidden)
	if len(st.wishlist) != 0 {
		t.Fatalf("forbidden step mutated the store")
	}
	if s, ok := reg.State(1); !ok || s.Step != StepWishlistItem {
		t.Fatalf("forbidden step changed state: %+v ok=%v", s, ok)
	}
}
