package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/maklermate/maklermate-api/internal/config"
	"github.com/maklermate/maklermate-api/internal/database"
	"github.com/maklermate/maklermate-api/internal/logger"
	"github.com/maklermate/maklermate-api/internal/migration"
	"github.com/maklermate/maklermate-api/internal/store"
	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Migration error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&cfg.Logging, &cfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// Get command
	args := os.Args[1:]
	if len(args) == 0 {
		return fmt.Errorf("usage: migrate [schema|up|status]")
	}

	// The SQL schema has to exist before the store backend can open
	if args[0] == "schema" {
		return migrateSchema(ctx, cfg)
	}

	backend, err := store.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open storage backend: %w", err)
	}
	defer backend.Close()

	m := migration.NewMigrator(backend, []migration.Collection{
		{Kind: migration.KindLeads, Key: cfg.Storage.LeadsKey},
		{Kind: migration.KindExposes, Key: cfg.Storage.ExposesKey},
	}, log)

	switch args[0] {
	case "up":
		res, err := m.Up(ctx)
		if err != nil {
			return fmt.Errorf("failed to run up migrations: %w", err)
		}
		fmt.Printf("Migrated %d collections (%d records, %d upgraded)\n", res.Keys, res.Records, res.Upgraded)
		for _, key := range res.Skipped {
			fmt.Printf("Skipped corrupt collection: %s\n", key)
		}

	case "status":
		st, err := m.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tKIND\tRECORDS\tOUTDATED\tCORRUPT")
		for _, s := range st {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\n", s.Key, s.Kind, s.Records, s.Outdated, s.Corrupt)
		}
		return tw.Flush()

	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}

	return nil
}

// migrateSchema applies the goose migrations of the SQL backends
func migrateSchema(ctx context.Context, cfg *config.Config) error {
	var (
		db      *gorm.DB
		dialect string
		err     error
	)
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		db, err = database.NewPostgres(&cfg.Database)
		dialect = database.DialectPostgres
	case config.BackendSQLite:
		db, err = database.NewSQLite(cfg.Storage.SQLitePath)
		dialect = database.DialectSQLite
	default:
		return fmt.Errorf("backend %s has no SQL schema", cfg.Storage.Backend)
	}
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.Migrate(ctx, db, dialect); err != nil {
		return err
	}
	version, err := database.SchemaVersion(db, dialect)
	if err != nil {
		return err
	}
	fmt.Printf("Schema migrations applied successfully (version %d)\n", version)
	return nil
}
