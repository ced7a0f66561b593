package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"eventbot/internal/task/engine"
	logx "eventbot/pkg/logx"
)

// ErrMissed is returned by AddOnce for an instant that already passed.
// Missed one-shot jobs are not replayed.
var ErrMissed = errors.New("one-shot instant already passed")

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Moscow"
}

type (
	OverlapPolicy = engine.OverlapPolicy
	TaskOptions   = engine.TaskOptions
	HistoryItem   = engine.HistoryItem
)

const (
	OverlapAllow         = engine.OverlapAllow
	OverlapSkipIfRunning = engine.OverlapSkipIfRunning
)

type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // cron spec or "@every <d>"
	every   time.Duration
	timeout time.Duration
	job     Job
	opt     TaskOptions
	entryID cron.EntryID
}

type onceDef struct {
	at      time.Time
	timeout time.Duration
	job     Job
	opt     TaskOptions
	timer   *time.Timer
}

// Enqueuer is the part of the task engine the scheduler needs.
type Enqueuer interface {
	Enqueue(t engine.Task) error
	Snapshot() engine.Snapshot
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	engine Enqueuer
	now    func() time.Time

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef
	once   map[string]*onceDef

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name    string
	Kind    string // cron | interval | once
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
	Engine    engine.Snapshot
}
