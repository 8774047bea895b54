package database

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// sqliteDialector opens a WAL-journaled file, or a named shared-cache memory
// store private to this handle when no path is configured.
func sqliteDialector(cfg Config) (gorm.Dialector, error) {
	if cfg.DSN != "" {
		return sqlite.Open(cfg.DSN), nil
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return sqlite.Open("file:loandesk-" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"), nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return sqlite.Open("file:" + filepath.ToSlash(path) + "?_foreign_keys=1&_journal_mode=WAL"), nil
}

func enableForeignKeys(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
