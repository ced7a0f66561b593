package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	logx "eventbot/pkg/logx"
)

// Flow is one submission flow's transition logic. Implementations must not
// keep per-user state of their own.
type Flow interface {
	Kind() Kind
	// Start checks entry conditions. The state is installed only when the
	// result is OutcomePrompt.
	Start(ctx context.Context, a Actor, step string) (Result, State, error)
	// Handle consumes one event. It may update st (step, count).
	Handle(ctx context.Context, a Actor, st *State, ev Event) (Result, error)
}

// Registry owns all per-user flow state.
type Registry struct {
	log   logx.Logger
	now   func() time.Time
	locks keyedMutex

	mu     sync.Mutex
	flows  map[Kind]Flow
	states map[int64]State
}

func NewRegistry(log logx.Logger, flows ...Flow) *Registry {
	r := &Registry{
		log:    log.With(logx.Component("session")),
		now:    time.Now,
		flows:  make(map[Kind]Flow, len(flows)),
		states: make(map[int64]State),
	}
	for _, f := range flows {
		r.flows[f.Kind()] = f
	}
	return r
}

// Begin installs kind as the user's active flow, discarding any previous
// state.
func (r *Registry) Begin(userID int64, kind Kind, step string) State {
	st := State{Kind: kind, Step: step, StartedAt: r.now()}
	r.mu.Lock()
	prev, had := r.states[userID]
	r.states[userID] = st
	n := len(r.states)
	r.mu.Unlock()

	activeSessions.Set(float64(n))
	if had {
		r.log.Debug("flow superseded", logx.Int64("user", userID),
			logx.String("from", string(prev.Kind)), logx.String("to", string(kind)))
	}
	return st
}

func (r *Registry) Active(userID int64) (Kind, bool) {
	st, ok := r.State(userID)
	return st.Kind, ok
}

func (r *Registry) State(userID int64) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[userID]
	return st, ok
}

// End clears the user's flow. It reports whether one was active.
func (r *Registry) End(userID int64) bool {
	r.mu.Lock()
	_, ok := r.states[userID]
	delete(r.states, userID)
	n := len(r.states)
	r.mu.Unlock()
	activeSessions.Set(float64(n))
	return ok
}

// Len is the number of users with an active flow.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *Registry) put(userID int64, st State) {
	r.mu.Lock()
	r.states[userID] = st
	r.mu.Unlock()
}

// Start runs kind's entry check and, if accepted, makes it the active flow.
// A refused start leaves the existing state untouched.
func (r *Registry) Start(ctx context.Context, a Actor, kind Kind, step string) (Result, error) {
	f, ok := r.flows[kind]
	if !ok {
		return Result{}, fmt.Errorf("session: unknown flow %q", kind)
	}

	unlock := r.locks.Lock(a.ID)
	defer unlock()

	res, st, err := f.Start(ctx, a, step)
	if err != nil {
		return res, fmt.Errorf("start %s: %w", kind, err)
	}
	observe(kind, res.Outcome)
	if res.Outcome != OutcomePrompt {
		return res, nil
	}

	r.Begin(a.ID, kind, st.Step)
	r.log.Debug("flow started", logx.Int64("user", a.ID), logx.String("kind", string(kind)), logx.String("step", st.Step))
	return res, nil
}

// Advance routes ev to the user's active flow. Without one the result is
// OutcomeIgnored. On error the previous state is kept.
func (r *Registry) Advance(ctx context.Context, a Actor, ev Event) (Result, error) {
	unlock := r.locks.Lock(a.ID)
	defer unlock()

	st, ok := r.State(a.ID)
	if !ok {
		return Result{Outcome: OutcomeIgnored}, nil
	}
	f, ok := r.flows[st.Kind]
	if !ok {
		r.End(a.ID)
		return Result{Outcome: OutcomeIgnored}, nil
	}

	next := st
	res, err := f.Handle(ctx, a, &next, ev)
	if err != nil {
		return res, fmt.Errorf("%s flow: %w", st.Kind, err)
	}
	observe(st.Kind, res.Outcome)

	switch {
	case res.Outcome.Terminal():
		r.End(a.ID)
	case res.Outcome == OutcomeForbidden:
		// no state change
	default:
		r.put(a.ID, next)
	}
	return res, nil
}

// Cancel ends the user's active flow.
func (r *Registry) Cancel(_ context.Context, a Actor) Result {
	unlock := r.locks.Lock(a.ID)
	defer unlock()

	st, ok := r.State(a.ID)
	if !ok {
		return Result{Outcome: OutcomeIgnored, Notice: NoticeNothingToCancel}
	}
	r.End(a.ID)
	observe(st.Kind, OutcomeCancelled)
	r.log.Debug("flow cancelled", logx.Int64("user", a.ID), logx.String("kind", string(st.Kind)))
	return Result{Outcome: OutcomeCancelled, Notice: NoticeCancelled, Detail: string(st.Kind)}
}
