package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	logx "eventbot/pkg/logx"
)

const slowQuery = 500 * time.Millisecond

// gormLogger routes GORM's logging into logx. Only slow or failed queries
// are traced, at debug and warn respectively.
type gormLogger struct {
	log   logx.Logger
	level gormlogger.LogLevel
}

func newGormLogger(log logx.Logger) gormlogger.Interface {
	return &gormLogger{log: log.With(logx.String("layer", "gorm")), level: gormlogger.Warn}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Debug(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	took := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.Warn("gorm query failed", logx.Err(err), logx.String("sql", sql), logx.Int64("rows", rows), logx.Duration("took", took))
	case took >= slowQuery:
		sql, rows := fc()
		l.log.Debug("gorm slow query", logx.String("sql", sql), logx.Int64("rows", rows), logx.Duration("took", took))
	}
}
