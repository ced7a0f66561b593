package flows

import (
	"context"
	"strings"

	"eventbot/internal/session"
	"eventbot/internal/storage"
)

type greetingStore interface {
	userStore
	AddGreeting(ctx context.Context, g storage.Greeting) (int64, error)
}

// Greeting collects exactly one greeting of any supported kind.
type Greeting struct {
	store greetingStore
	cal   Calendar
}

func NewGreeting(store greetingStore, cal Calendar) *Greeting {
	return &Greeting{store: store, cal: cal}
}

func (f *Greeting) Kind() session.Kind { return session.KindGreeting }

func (f *Greeting) Start(ctx context.Context, a session.Actor, _ string) (session.Result, session.State, error) {
	if !f.cal.GreetingsOpen() {
		return session.Result{Outcome: session.OutcomeRefused, Notice: session.NoticeArchive}, session.State{}, nil
	}
	if err := register(ctx, f.store, a); err != nil {
		return session.Result{}, session.State{}, err
	}
	return prompt(NoticeGreetingPrompt), session.State{Kind: session.KindGreeting, Step: StepWaitingGreeting}, nil
}

func (f *Greeting) Handle(ctx context.Context, a session.Actor, _ *session.State, ev session.Event) (session.Result, error) {
	if !f.cal.GreetingsOpen() {
		return session.Result{Outcome: session.OutcomeCancelled, Notice: session.NoticeArchive}, nil
	}

	g := storage.Greeting{UserID: a.ID}
	switch ev.Kind {
	case session.EventText:
		g.Kind, g.Content = storage.GreetingText, strings.TrimSpace(ev.Text)
	case session.EventImage:
		g.Kind, g.Content = storage.GreetingImage, ev.FileRef
	case session.EventVideo:
		g.Kind, g.Content = storage.GreetingVideo, ev.FileRef
	case session.EventVoice:
		g.Kind, g.Content = storage.GreetingVoice, ev.FileRef
	case session.EventSticker:
		g.Kind, g.Content = storage.GreetingSticker, ev.FileRef
	}
	if g.Kind == "" || g.Content == "" {
		return prompt(NoticeGreetingUnsupported), nil
	}

	if _, err := f.store.AddGreeting(ctx, g); err != nil {
		return session.Result{}, err
	}
	return session.Result{Outcome: session.OutcomeSaved, Notice: NoticeGreetingSaved}, nil
}
