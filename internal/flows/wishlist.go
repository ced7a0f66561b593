package flows

import (
	"context"
	"strconv"
	"strings"

	"eventbot/internal/session"
)

type wishlistStore interface {
	AddWishlistItem(ctx context.Context, text string, createdBy int64) (int64, error)
	DeleteWishlistItem(ctx context.Context, id int64) (bool, error)
}

// Wishlist is the operator-only editor. The step picks the sub-flow:
// StepWishlistItem adds an entry, StepWishlistDelete removes one by id.
// Authorization is checked on every call, not only at Start.
type Wishlist struct {
	store wishlistStore
	auth  Authorizer
}

func NewWishlist(store wishlistStore, auth Authorizer) *Wishlist {
	return &Wishlist{store: store, auth: auth}
}

func (f *Wishlist) Kind() session.Kind { return session.KindWishlist }

var forbidden = session.Result{Outcome: session.OutcomeForbidden, Notice: session.NoticeForbidden}

func (f *Wishlist) Start(_ context.Context, a session.Actor, step string) (session.Result, session.State, error) {
	if !f.auth.IsOperator(a.ID) {
		return forbidden, session.State{}, nil
	}
	st := session.State{Kind: session.KindWishlist, Step: StepWishlistItem}
	if step == StepWishlistDelete {
		st.Step = StepWishlistDelete
		return prompt(NoticeWishlistDeletePrompt), st, nil
	}
	return prompt(NoticeWishlistItemPrompt), st, nil
}

func (f *Wishlist) Handle(ctx context.Context, a session.Actor, st *session.State, ev session.Event) (session.Result, error) {
	if !f.auth.IsOperator(a.ID) {
		return forbidden, nil
	}
	if ev.Kind != session.EventText || strings.TrimSpace(ev.Text) == "" {
		return prompt(NoticeWishlistTextOnly), nil
	}
	text := strings.TrimSpace(ev.Text)

	if st.Step == StepWishlistDelete {
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil || id <= 0 {
			return session.Result{Outcome: session.OutcomeInvalid, Notice: NoticeWishlistBadID}, nil
		}
		ok, err := f.store.DeleteWishlistItem(ctx, id)
		if err != nil {
			return session.Result{}, err
		}
		if !ok {
			return session.Result{Outcome: session.OutcomeInvalid, Notice: NoticeWishlistNotFound, Detail: text}, nil
		}
		return session.Result{Outcome: session.OutcomeSaved, Notice: NoticeWishlistDeleted, Detail: text}, nil
	}

	id, err := f.store.AddWishlistItem(ctx, text, a.ID)
	if err != nil {
		return session.Result{}, err
	}
	return session.Result{Outcome: session.OutcomeSaved, Notice: NoticeWishlistAdded, Detail: strconv.FormatInt(id, 10)}, nil
}
