//go:build gormsqlite

package storage

import (
	"fmt"

	logx "eventbot/pkg/logx"
)

// With gormsqlite the "sqlite" driver name belongs to glebarez/go-sqlite,
// so plain sqlite is served by the GORM store.
func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	st, err := openGormSQLite(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("sqlite (gorm): %w", err)
	}
	return st, nil
}
