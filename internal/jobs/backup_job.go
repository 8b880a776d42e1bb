package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maklermate/maklermate-api/internal/storage"
	"github.com/maklermate/maklermate-api/internal/store"
	"go.uber.org/zap"
)

// BackupJobName is the scheduler name of the backup job
const BackupJobName = "backup"

// DefaultBackupTimeout bounds one backup run
const DefaultBackupTimeout = 5 * time.Minute

const backupTimeFormat = "20060102T150405Z"

// BackupResult summarizes one run
type BackupResult struct {
	Written []string
	Pruned  int
	Failed  int
}

// BackupJob copies every stored collection, including the per-user scopes of
// each base key, to a storage sink and keeps the newest Retain copies per key
type BackupJob struct {
	backend  store.Backend
	sink     storage.Storage
	baseKeys []string
	retain   int
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewBackupJob creates a backup job. A retain of zero or less keeps all copies.
func NewBackupJob(backend store.Backend, sink storage.Storage, baseKeys []string, retain int, logger *zap.Logger) *BackupJob {
	return &BackupJob{
		backend:  backend,
		sink:     sink,
		baseKeys: baseKeys,
		retain:   retain,
		timeout:  DefaultBackupTimeout,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source used for backup names
func (j *BackupJob) WithClock(now func() time.Time) *BackupJob {
	j.now = now
	return j
}

// Run is the scheduler entry point
func (j *BackupJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	res, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.Error("backup failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}

	j.logger.Info("backup completed",
		zap.Int("written", len(res.Written)),
		zap.Int("pruned", res.Pruned),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", time.Since(start)))
}

// RunOnce backs up all collections. A failing key is logged and counted,
// the remaining keys are still processed.
func (j *BackupJob) RunOnce(ctx context.Context) (*BackupResult, error) {
	keys, err := j.collectionKeys(ctx)
	if err != nil {
		return nil, err
	}

	res := &BackupResult{Written: []string{}}
	stamp := j.now().UTC().Format(backupTimeFormat)

	for _, key := range keys {
		name, err := j.backupKey(ctx, key, stamp)
		if err != nil {
			res.Failed++
			j.logger.Warn("failed to back up collection",
				zap.String("key", key),
				zap.Error(err))
			continue
		}
		res.Written = append(res.Written, name)

		pruned, err := j.prune(ctx, key)
		if err != nil {
			j.logger.Warn("failed to prune backups",
				zap.String("key", key),
				zap.Error(err))
		}
		res.Pruned += pruned
	}
	return res, nil
}

// collectionKeys returns each base key and its user scopes
func (j *BackupJob) collectionKeys(ctx context.Context) ([]string, error) {
	var keys []string
	for _, base := range j.baseKeys {
		found, err := j.backend.Keys(ctx, base)
		if err != nil {
			return nil, fmt.Errorf("failed to list collections for %s: %w", base, err)
		}
		for _, k := range found {
			if k == base || strings.HasPrefix(k, base+":") {
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

func (j *BackupJob) backupKey(ctx context.Context, key, stamp string) (string, error) {
	raw, ok, err := j.backend.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("collection %s disappeared", key)
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("collection %s does not hold valid JSON", key)
	}

	name := fmt.Sprintf("%s%s-%s.json", BackupPrefix(key), stamp, uuid.NewString()[:8])
	if _, err := j.sink.Put(ctx, name, "application/json", bytes.NewReader(raw)); err != nil {
		return "", err
	}
	return name, nil
}

// prune deletes the oldest copies of key beyond the retain count
func (j *BackupJob) prune(ctx context.Context, key string) (int, error) {
	if j.retain <= 0 {
		return 0, nil
	}
	names, err := j.sink.List(ctx, BackupPrefix(key))
	if err != nil {
		return 0, err
	}
	if len(names) <= j.retain {
		return 0, nil
	}

	pruned := 0
	for _, name := range names[:len(names)-j.retain] {
		if err := j.sink.Delete(ctx, name); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// BackupPrefix is the name prefix of all backups of key. The user scope
// separator is replaced so names stay flat.
func BackupPrefix(key string) string {
	return strings.NewReplacer(":", "__", "/", "_", `\`, "_").Replace(key) + "."
}

// RegisterBackupJob registers job with the scheduler under BackupJobName
func RegisterBackupJob(scheduler *Scheduler, job *BackupJob, cronExpr string) error {
	return scheduler.AddJob(BackupJobName, cronExpr, job.Run)
}
