package flows

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"eventbot/internal/session"
	"eventbot/internal/storage"
)

type songStore interface {
	userStore
	AddSong(ctx context.Context, s storage.SongSuggestion) (int64, error)
}

// Song collects one track suggestion as free text.
type Song struct {
	store  songStore
	cal    Calendar
	limits *LimitsHolder
}

func NewSong(store songStore, cal Calendar, limits *LimitsHolder) *Song {
	return &Song{store: store, cal: cal, limits: limits}
}

func (f *Song) Kind() session.Kind { return session.KindSong }

func (f *Song) Start(ctx context.Context, a session.Actor, _ string) (session.Result, session.State, error) {
	if !f.cal.SongsOpen() {
		return session.Result{Outcome: session.OutcomeRefused, Notice: session.NoticeArchive}, session.State{}, nil
	}
	if err := register(ctx, f.store, a); err != nil {
		return session.Result{}, session.State{}, err
	}
	return prompt(NoticeSongPrompt), session.State{Kind: session.KindSong, Step: StepWaitingSong}, nil
}

func (f *Song) Handle(ctx context.Context, a session.Actor, _ *session.State, ev session.Event) (session.Result, error) {
	if ev.Kind != session.EventText {
		return prompt(NoticeSongTextOnly), nil
	}

	text := strings.TrimSpace(ev.Text)
	lim := f.limits.Load()
	if n := utf8.RuneCountInString(text); n < lim.SongMinLen || n > lim.SongMaxLen {
		return session.Result{
			Outcome: session.OutcomeInvalid,
			Notice:  NoticeSongLength,
			Detail:  fmt.Sprintf("%d-%d", lim.SongMinLen, lim.SongMaxLen),
		}, nil
	}

	if _, err := f.store.AddSong(ctx, storage.SongSuggestion{UserID: a.ID, Text: text}); err != nil {
		return session.Result{}, err
	}
	return session.Result{Outcome: session.OutcomeSaved, Notice: NoticeSongSaved}, nil
}
