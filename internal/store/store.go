package store

import (
	"context"
	"fmt"

	"github.com/maklermate/maklermate-api/internal/config"
	"github.com/maklermate/maklermate-api/internal/database"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// closer wraps a backend together with the connection it owns
type closer struct {
	Backend
	close func() error
}

func (c *closer) Close() error {
	err := c.Backend.Close()
	if cerr := c.close(); err == nil {
		err = cerr
	}
	return err
}

// New opens the backend selected by cfg.Storage.Backend. The memory backend
// gets its own hub, so it is only shared within the returned instance.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	logger = logger.With(zap.String("backend", cfg.Storage.Backend))

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return NewMemoryBackend(NewMemoryHub(), cfg.Storage.QuotaBytes), nil

	case config.BackendFile:
		return NewFileBackend(cfg.Storage.DataDir, cfg.Storage.QuotaBytes, logger)

	case config.BackendSQLite, config.BackendPostgres:
		var (
			db  *gorm.DB
			err error
		)
		if cfg.Storage.Backend == config.BackendSQLite {
			db, err = database.NewSQLite(cfg.Storage.SQLitePath)
			// a local SQLite file is owned by this process, so it is migrated on open;
			// PostgreSQL is migrated with `migrate schema`
			if err == nil {
				if err = database.Migrate(ctx, db, database.DialectSQLite); err != nil {
					database.Close(db)
				}
			}
		} else {
			db, err = database.NewPostgres(&cfg.Database)
		}
		if err != nil {
			return nil, err
		}
		b, err := NewGormBackend(db, cfg.Storage.PollInterval(), logger)
		if err != nil {
			database.Close(db)
			return nil, err
		}
		return &closer{Backend: b, close: func() error { return database.Close(db) }}, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b := NewRedisBackend(client, cfg.Redis.Channel, logger)
		return &closer{Backend: b, close: client.Close}, nil
	}

	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}
