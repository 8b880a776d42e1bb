package store

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/maklermate/maklermate-api/internal/domain"
	"go.uber.org/zap"
)

const fileExt = ".json"

// FileBackend stores one JSON file per key in a directory. Several
// processes may point at the same directory; fsnotify events tell each
// instance about files rewritten by the others.
type FileBackend struct {
	dir        string
	quotaBytes int64
	logger     *zap.Logger
	notifier   *notifier

	mu       sync.Mutex
	written  map[string][32]byte // checksum of the last value this instance wrote or reported, per key
	deleting map[string]bool
	watcher  *fsnotify.Watcher
}

// NewFileBackend creates the directory if needed. A quota of zero or less disables the limit.
func NewFileBackend(dir string, quotaBytes int64, logger *zap.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileBackend{
		dir:        dir,
		quotaBytes: quotaBytes,
		logger:     logger,
		notifier:   newNotifier(),
		written:    make(map[string][32]byte),
		deleting:   make(map[string]bool),
	}, nil
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileExt)
}

func keyFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileExt))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// Get reads the file for key
func (b *FileBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, true, nil
}

// Keys decodes the key of every data file in the directory
func (b *FileBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list data directory: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if key, ok := keyFromPath(e.Name()); ok {
			keys = append(keys, key)
		}
	}
	return filterKeys(keys, prefix), nil
}

// CheckQuota sums the sizes of all other keys and adds size
func (b *FileBackend) CheckQuota(key string, size int) error {
	if b.quotaBytes <= 0 {
		return nil
	}
	own := b.path(key)
	total := int64(size)
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("failed to list data directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Join(b.dir, entry.Name()) == own {
			continue
		}
		if _, ok := keyFromPath(entry.Name()); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	if total > b.quotaBytes {
		return domain.ErrQuotaExceeded
	}
	return nil
}

// Set writes value atomically through a temp file and rename
func (b *FileBackend) Set(_ context.Context, key string, value []byte) error {
	if err := b.CheckQuota(key, len(value)); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return mapDiskError(fmt.Errorf("failed to create temp file: %w", err))
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return mapDiskError(fmt.Errorf("failed to write %s: %w", key, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return mapDiskError(fmt.Errorf("failed to close temp file: %w", err))
	}

	b.mu.Lock()
	b.written[key] = sha256.Sum256(value)
	b.mu.Unlock()

	if err := os.Rename(tmpName, b.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Delete removes the file for key
func (b *FileBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.written, key)
	b.deleting[key] = true
	b.mu.Unlock()

	err := os.Remove(b.path(key))
	if errors.Is(err, os.ErrNotExist) {
		b.mu.Lock()
		delete(b.deleting, key)
		b.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Watch starts an fsnotify watcher on the directory the first time it is called
func (b *FileBackend) Watch(_ context.Context, fn func(Change)) (func(), error) {
	b.mu.Lock()
	if b.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			b.mu.Unlock()
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		if err := w.Add(b.dir); err != nil {
			w.Close()
			b.mu.Unlock()
			return nil, fmt.Errorf("failed to watch %s: %w", b.dir, err)
		}
		b.watcher = w
		go b.loop(w)
	}
	b.mu.Unlock()
	return b.notifier.add(fn), nil
}

func (b *FileBackend) loop(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			b.handleEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			b.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (b *FileBackend) handleEvent(ev fsnotify.Event) {
	key, ok := keyFromPath(ev.Name)
	if !ok {
		return
	}

	if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
		if _, err := os.Stat(ev.Name); errors.Is(err, os.ErrNotExist) {
			b.mu.Lock()
			own := b.deleting[key]
			delete(b.deleting, key)
			delete(b.written, key)
			b.mu.Unlock()
			if !own {
				b.notifier.notify(Change{Key: key, Deleted: true})
			}
			return
		}
	}
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		return
	}

	data, err := os.ReadFile(ev.Name)
	if err != nil {
		return
	}
	sum := sha256.Sum256(data)

	b.mu.Lock()
	last, seen := b.written[key]
	if seen && last == sum {
		b.mu.Unlock()
		return
	}
	b.written[key] = sum
	b.mu.Unlock()

	b.notifier.notify(Change{Key: key, Value: data})
}

// Close stops the watcher
func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watcher != nil {
		err := b.watcher.Close()
		b.watcher = nil
		return err
	}
	return nil
}

func mapDiskError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, err)
	}
	return err
}
