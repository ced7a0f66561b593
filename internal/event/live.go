package event

import (
	"sync/atomic"
	"time"
)

// Live is a Calendar that config reloads can swap under running readers.
type Live struct {
	p atomic.Pointer[Calendar]
}

func NewLive(c *Calendar) *Live {
	l := &Live{}
	l.Store(c)
	return l
}

func (l *Live) Store(c *Calendar) { l.p.Store(c) }
func (l *Live) Load() *Calendar   { return l.p.Load() }

func (l *Live) Now() time.Time      { return l.Load().Now() }
func (l *Live) IsArchive() bool     { return l.Load().IsArchive() }
func (l *Live) Started() bool       { return l.Load().Started() }
func (l *Live) GreetingsOpen() bool { return l.Load().GreetingsOpen() }
func (l *Live) SongsOpen() bool     { return l.Load().SongsOpen() }
func (l *Live) UploadsOpen() bool   { return l.Load().UploadsOpen() }
func (l *Live) DaysUntilStart() int { return l.Load().DaysUntilStart() }
func (l *Live) StartAt() time.Time  { return l.Load().Start }
