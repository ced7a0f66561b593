//go:build gormsqlite

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"

	logx "eventbot/pkg/logx"
)

func openGormSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	busy := cfg.BusyTimeout.Milliseconds()
	if busy <= 0 {
		busy = 5000
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", cfg.Path, busy)
	st, err := newGormStore(sqlite.Open(dsn), log)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := st.db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	log.Debug("gorm sqlite store opened", logx.String("path", cfg.Path))
	return st, nil
}
