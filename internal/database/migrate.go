package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/maklermate/maklermate-api/internal/database/migrations"
	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

// Goose dialects of the supported databases
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// goose keeps its base FS and dialect in package state
var gooseMu sync.Mutex

func migrationDir(dialect string) (string, error) {
	switch dialect {
	case DialectPostgres:
		return "postgres", nil
	case DialectSQLite:
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported migration dialect %q", dialect)
}

// withGoose prepares goose for dialect and runs fn against the underlying sql.DB
func withGoose(db *gorm.DB, dialect string, fn func(dir string) error) error {
	dir, err := migrationDir(dialect)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return fn(dir)
}

// Migrate applies all pending schema migrations
func Migrate(ctx context.Context, db *gorm.DB, dialect string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return withGoose(db, dialect, func(dir string) error {
		if err := goose.UpContext(ctx, sqlDB, dir); err != nil {
			return fmt.Errorf("failed to run up migrations: %w", err)
		}
		return nil
	})
}

// SchemaVersion returns the version of the last applied migration
func SchemaVersion(db *gorm.DB, dialect string) (int64, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return 0, fmt.Errorf("failed to get database instance: %w", err)
	}
	var version int64
	err = withGoose(db, dialect, func(string) error {
		v, err := goose.GetDBVersion(sqlDB)
		version = v
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}
