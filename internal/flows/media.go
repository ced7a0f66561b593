package flows

import (
	"context"
	"strconv"

	"eventbot/internal/session"
	"eventbot/internal/storage"
)

type mediaStore interface {
	userStore
	AddMedia(ctx context.Context, m storage.MediaItem) (int64, error)
	CountUserMedia(ctx context.Context, userID int64) (int, error)
}

// Media collects any number of photos, videos and voice notes until the
// user cancels or starts another flow.
type Media struct {
	store    mediaStore
	cal      Calendar
	limits   *LimitsHolder
	throttle Throttle
}

func NewMedia(store mediaStore, cal Calendar, limits *LimitsHolder, throttle Throttle) *Media {
	return &Media{store: store, cal: cal, limits: limits, throttle: throttle}
}

func (f *Media) Kind() session.Kind { return session.KindMedia }

func (f *Media) Start(ctx context.Context, a session.Actor, _ string) (session.Result, session.State, error) {
	if !f.cal.UploadsOpen() {
		if !f.cal.Started() {
			return session.Result{
				Outcome: session.OutcomeRefused,
				Notice:  NoticeUploadsNotYet,
				Detail:  strconv.Itoa(f.cal.DaysUntilStart()),
			}, session.State{}, nil
		}
		return session.Result{Outcome: session.OutcomeRefused, Notice: session.NoticeArchive}, session.State{}, nil
	}
	if err := register(ctx, f.store, a); err != nil {
		return session.Result{}, session.State{}, err
	}
	return prompt(NoticeMediaPrompt), session.State{Kind: session.KindMedia, Step: StepCollectingMedia}, nil
}

func (f *Media) Handle(ctx context.Context, a session.Actor, st *session.State, ev session.Event) (session.Result, error) {
	if !f.cal.UploadsOpen() {
		return session.Result{Outcome: session.OutcomeCancelled, Notice: session.NoticeArchive}, nil
	}

	var kind storage.MediaKind
	switch ev.Kind {
	case session.EventImage:
		kind = storage.MediaImage
	case session.EventVideo:
		kind = storage.MediaVideo
	case session.EventVoice:
		kind = storage.MediaVoice
	}
	if kind == "" || ev.FileRef == "" {
		return prompt(NoticeMediaUnsupported), nil
	}

	if limit := f.limits.Load().MaxFilesPerUser; limit > 0 {
		n, err := f.store.CountUserMedia(ctx, a.ID)
		if err != nil {
			return session.Result{}, err
		}
		if n >= limit {
			return session.Result{Outcome: session.OutcomeInvalid, Notice: NoticeMediaLimit, Detail: strconv.Itoa(limit)}, nil
		}
	}

	if _, err := f.store.AddMedia(ctx, storage.MediaItem{UserID: a.ID, Kind: kind, FileRef: ev.FileRef}); err != nil {
		return session.Result{}, err
	}
	st.Count++

	res := session.Result{Outcome: session.OutcomeCollected, Notice: NoticeMediaSaved, Detail: strconv.Itoa(st.Count)}
	if f.throttle != nil && !f.throttle.Allow(a.ID) {
		res.Quiet = true
	}
	return res, nil
}
