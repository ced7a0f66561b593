//go:build !gormsqlite

package storage

import (
	"fmt"

	logx "eventbot/pkg/logx"
)

func openGormSQLite(Config, logx.Logger) (Store, error) {
	return nil, fmt.Errorf("gorm-sqlite: %w (build with -tags gormsqlite)", ErrDriverUnavailable)
}
