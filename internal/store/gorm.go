package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maklermate/maklermate-api/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPollInterval is how often a GormBackend looks for foreign writes
const DefaultPollInterval = time.Second

// Entry is one key/value row. Deletes keep a tombstone so that polling
// instances can observe them.
type Entry struct {
	Key       string    `gorm:"primaryKey;type:varchar(255)"`
	Value     []byte
	Deleted   bool      `gorm:"not null;default:false"`
	Revision  int64     `gorm:"not null;index"`
	Origin    string    `gorm:"type:varchar(64);not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName overrides the default table name
func (Entry) TableName() string {
	return "store_entries"
}

// revisionCounter hands out revisions. It is bumped in the same transaction
// as the row it stamps, so revisions grow in commit order across instances.
type revisionCounter struct {
	Name  string `gorm:"primaryKey;type:varchar(64)"`
	Value int64  `gorm:"not null"`
}

// TableName overrides the default table name
func (revisionCounter) TableName() string {
	return "store_revisions"
}

const entriesCounter = "entries"

// ErrSchemaMissing is returned when the store tables have not been migrated
var ErrSchemaMissing = errors.New("store tables missing, run the schema migration")

// GormBackend keeps values in a SQL table through gorm (SQLite or PostgreSQL)
type GormBackend struct {
	db           *gorm.DB
	origin       string
	pollInterval time.Duration
	logger       *zap.Logger
	notifier     *notifier

	mu     sync.Mutex
	cursor int64
	stop   chan struct{}
	done   chan struct{}
}

// NewGormBackend returns a backend over the migrated store tables
func NewGormBackend(db *gorm.DB, pollInterval time.Duration, logger *zap.Logger) (*GormBackend, error) {
	m := db.Migrator()
	if !m.HasTable(&Entry{}) || !m.HasTable(&revisionCounter{}) {
		return nil, ErrSchemaMissing
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &GormBackend{
		db:           db,
		origin:       uuid.NewString(),
		pollInterval: pollInterval,
		logger:       logger,
		notifier:     newNotifier(),
	}, nil
}

// Get returns the value of a live (non-deleted) row
func (b *GormBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry Entry
	err := b.db.WithContext(ctx).
		Where(map[string]interface{}{"key": key, "deleted": false}).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return entry.Value, true, nil
}

// Set upserts the row for key
func (b *GormBackend) Set(ctx context.Context, key string, value []byte) error {
	return b.upsert(ctx, Entry{Key: key, Value: value})
}

// Delete writes a tombstone for key
func (b *GormBackend) Delete(ctx context.Context, key string) error {
	return b.upsert(ctx, Entry{Key: key, Deleted: true})
}

func (b *GormBackend) upsert(ctx context.Context, entry Entry) error {
	entry.Origin = b.origin
	entry.UpdatedAt = time.Now().UTC()

	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rev, err := bumpRevision(tx)
		if err != nil {
			return err
		}
		entry.Revision = rev
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "deleted", "revision", "origin", "updated_at"}),
		}).Create(&entry).Error
	})
	if err != nil {
		return mapSQLError(fmt.Errorf("failed to write %s: %w", entry.Key, err))
	}
	return nil
}

// Keys lists the keys of live rows
func (b *GormBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.WithContext(ctx).Model(&Entry{}).
		Where(map[string]interface{}{"deleted": false}).
		Pluck("key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return filterKeys(keys, prefix), nil
}

// bumpRevision increments the shared counter and returns the new value. The
// row lock taken by the update is held until tx commits.
func bumpRevision(tx *gorm.DB) (int64, error) {
	res := tx.Model(&revisionCounter{}).
		Where("name = ?", entriesCounter).
		UpdateColumn("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrSchemaMissing
	}
	var c revisionCounter
	if err := tx.Where("name = ?", entriesCounter).First(&c).Error; err != nil {
		return 0, err
	}
	return c.Value, nil
}

// Watch starts polling for rows written by other instances
func (b *GormBackend) Watch(ctx context.Context, fn func(Change)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop == nil {
		var c revisionCounter
		if err := b.db.WithContext(ctx).Where("name = ?", entriesCounter).First(&c).Error; err != nil {
			return nil, fmt.Errorf("failed to read store revision: %w", err)
		}
		b.cursor = c.Value
		b.stop = make(chan struct{})
		b.done = make(chan struct{})
		go b.poll(b.stop, b.done)
	}
	return b.notifier.add(fn), nil
}

func (b *GormBackend) poll(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := b.pollOnce(context.Background()); err != nil {
				b.logger.Warn("store poll failed", zap.Error(err))
			}
		}
	}
}

// pollOnce delivers every foreign row written since the last poll
func (b *GormBackend) pollOnce(ctx context.Context) error {
	b.mu.Lock()
	cursor := b.cursor
	b.mu.Unlock()

	var entries []Entry
	err := b.db.WithContext(ctx).
		Where("revision > ? AND origin <> ?", cursor, b.origin).
		Order("revision").
		Find(&entries).Error
	if err != nil {
		return err
	}
	for _, e := range entries {
		b.mu.Lock()
		if e.Revision > b.cursor {
			b.cursor = e.Revision
		}
		b.mu.Unlock()
		if e.Deleted {
			b.notifier.notify(Change{Key: e.Key, Deleted: true})
		} else {
			b.notifier.notify(Change{Key: e.Key, Value: e.Value})
		}
	}
	return nil
}

// Close stops polling; the *gorm.DB is owned by the caller
func (b *GormBackend) Close() error {
	b.mu.Lock()
	stop, done := b.stop, b.done
	b.stop, b.done = nil, nil
	b.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func mapSQLError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database or disk is full") ||
		strings.Contains(msg, "could not extend file") ||
		strings.Contains(msg, "disk full") {
		return fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, err)
	}
	return err
}
