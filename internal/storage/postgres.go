package storage

import (
	"errors"
	"strings"

	"gorm.io/driver/postgres"

	logx "eventbot/pkg/logx"
)

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	st, err := newGormStore(postgres.Open(dsn), log)
	if err != nil {
		return nil, err
	}
	log.Debug("postgres store opened")
	return st, nil
}
