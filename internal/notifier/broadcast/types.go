package broadcast

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	rtsup "eventbot/internal/runtime/supervisor"
	kit "eventbot/internal/transport"
	logx "eventbot/pkg/logx"
)

type Config struct {
	Workers    int
	QueueSize  int
	RatePerSec int
	RetryMax   int
	// RetryBase is the first retry delay; tests shrink it.
	RetryBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 300 * time.Millisecond
	}
	return c
}

// DoneFunc receives the final status of a job on its worker goroutine.
type DoneFunc func(ctx context.Context, st JobStatus)

type job struct {
	id      string
	name    string
	targets []kit.ChatTarget
	text    string
	opt     *kit.SendOptions
	done    DoneFunc
}

type JobStatus struct {
	ID     string
	Name   string
	Total  int
	Sent   int
	Failed int
	// Failures keeps at most maxFailures targets.
	Failures  []kit.ChatTarget
	CreatedAt time.Time
	StartedAt time.Time
	DoneAt    time.Time
	Running   bool
}

// Finished reports whether the job ran to completion or was dropped.
func (s JobStatus) Finished() bool { return !s.DoneAt.IsZero() }

type Service struct {
	mu      sync.Mutex
	cfg     Config
	sender  kit.Sender
	log     logx.Logger
	limiter *rate.Limiter
	queue   chan job
	sup     *rtsup.Supervisor

	statusMu  sync.RWMutex
	status    map[string]*JobStatus
	statusMax int
	statusTTL time.Duration
}
