// Package flows implements the submission flows driven by session.Registry:
// greetings, media uploads, song requests and the operator wishlist editor.
package flows

import (
	"context"
	"sync/atomic"

	"eventbot/internal/session"
	"eventbot/internal/storage"
)

const (
	NoticeGreetingPrompt      session.Notice = "greeting_prompt"
	NoticeGreetingUnsupported session.Notice = "greeting_unsupported"
	NoticeGreetingSaved       session.Notice = "greeting_saved"

	NoticeMediaPrompt      session.Notice = "media_prompt"
	NoticeMediaUnsupported session.Notice = "media_unsupported"
	NoticeMediaSaved       session.Notice = "media_saved"
	NoticeMediaLimit       session.Notice = "media_limit"
	NoticeUploadsNotYet    session.Notice = "uploads_not_yet"

	NoticeSongPrompt   session.Notice = "song_prompt"
	NoticeSongTextOnly session.Notice = "song_text_only"
	NoticeSongLength   session.Notice = "song_length"
	NoticeSongSaved    session.Notice = "song_saved"

	NoticeWishlistItemPrompt   session.Notice = "wishlist_item_prompt"
	NoticeWishlistDeletePrompt session.Notice = "wishlist_delete_prompt"
	NoticeWishlistAdded        session.Notice = "wishlist_added"
	NoticeWishlistDeleted      session.Notice = "wishlist_deleted"
	NoticeWishlistBadID        session.Notice = "wishlist_bad_id"
	NoticeWishlistNotFound     session.Notice = "wishlist_not_found"
	NoticeWishlistTextOnly     session.Notice = "wishlist_text_only"
)

// Step names.
const (
	StepWaitingGreeting = "waiting_for_greeting"
	StepCollectingMedia = "collecting_media"
	StepWaitingSong     = "waiting_for_song"
	StepWishlistItem    = "waiting_for_item"
	StepWishlistDelete  = "waiting_for_delete_id"
)

// Calendar is the subset of event.Calendar the flows consult.
type Calendar interface {
	GreetingsOpen() bool
	UploadsOpen() bool
	SongsOpen() bool
	Started() bool
	DaysUntilStart() int
}

// Authorizer decides operator privileges.
type Authorizer interface {
	IsOperator(userID int64) bool
}

// Throttle gates repeated notifications per user.
type Throttle interface {
	Allow(userID int64) bool
}

// Limits are the reloadable submission limits.
type Limits struct {
	MaxFilesPerUser int // 0 = unlimited
	SongMinLen      int
	SongMaxLen      int
}

// LimitsHolder shares Limits between the app (writer on reload) and flows.
type LimitsHolder struct{ v atomic.Pointer[Limits] }

func NewLimitsHolder(l Limits) *LimitsHolder {
	h := &LimitsHolder{}
	h.Store(l)
	return h
}

func (h *LimitsHolder) Store(l Limits) { h.v.Store(&l) }

func (h *LimitsHolder) Load() Limits {
	if p := h.v.Load(); p != nil {
		return *p
	}
	return Limits{SongMinLen: 3, SongMaxLen: 200}
}

// userStore registers users on flow start.
type userStore interface {
	UpsertUser(ctx context.Context, u storage.User) error
}

func register(ctx context.Context, users userStore, a session.Actor) error {
	return users.UpsertUser(ctx, storage.User{
		ID:        a.ID,
		Username:  a.Username,
		FirstName: a.FirstName,
		LastName:  a.LastName,
	})
}

func prompt(n session.Notice) session.Result {
	return session.Result{Outcome: session.OutcomePrompt, Notice: n}
}
