// Package persistence writes snapshots of a collection to a store.Backend,
// collapsing bursts of saves into one write.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/maklermate/maklermate-api/internal/store"
	"go.uber.org/zap"
)

// DefaultDebounce is the window in which repeated saves collapse into one write
const DefaultDebounce = 150 * time.Millisecond

// Options configures an Adapter
type Options[T any] struct {
	// Debounce defaults to DefaultDebounce; negative values write on the next tick
	Debounce time.Duration
	// Decode turns a stored value into records. Defaults to a plain JSON array decode.
	Decode func(data []byte) ([]T, error)
	// OnError receives failures of debounced writes
	OnError func(error)
	Logger  *zap.Logger
}

// Adapter persists snapshots of one collection under one key
type Adapter[T any] struct {
	key      string
	backend  store.Backend
	debounce time.Duration
	decode   func([]byte) ([]T, error)
	onError  func(error)
	logger   *zap.Logger

	// writeMu serializes backend writes so snapshots land in save order
	writeMu sync.Mutex

	mu          sync.Mutex
	gen         uint64
	timer       *time.Timer
	pending     []byte
	pendingRecs []T
	inflight    []T
}

// New creates an adapter for key
func New[T any](backend store.Backend, key string, opts Options[T]) *Adapter[T] {
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	if opts.Decode == nil {
		opts.Decode = decodeArray[T]
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Adapter[T]{
		key:      key,
		backend:  backend,
		debounce: opts.Debounce,
		decode:   opts.Decode,
		onError:  opts.OnError,
		logger:   opts.Logger.With(zap.String("collection", key)),
	}
}

// Key returns the storage key
func (a *Adapter[T]) Key() string {
	return a.key
}

// Save encodes the snapshot now and schedules the write. A later Save
// replaces the pending snapshot and restarts the window. Quota problems are
// reported synchronously when the backend can check them up front.
func (a *Adapter[T]) Save(records []T) error {
	data, err := a.encode(records)
	if err != nil {
		return err
	}
	if qc, ok := a.backend.(store.QuotaChecker); ok {
		if err := qc.CheckQuota(a.key, len(data)); err != nil {
			return err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelLocked()
	a.pending = data
	a.pendingRecs = cloneSlice(records)
	gen := a.gen
	a.timer = time.AfterFunc(a.debounce, func() { a.fire(gen) })
	return nil
}

// SaveSync drops any pending snapshot and writes records immediately
func (a *Adapter[T]) SaveSync(ctx context.Context, records []T) error {
	data, err := a.encode(records)
	if err != nil {
		return err
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	a.cancelLocked()
	a.mu.Unlock()

	if err := a.backend.Set(ctx, a.key, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", a.key, err)
	}
	return nil
}

// Load returns the pending snapshot if one is scheduled, otherwise the
// stored records. Missing or unparseable values yield an empty slice.
func (a *Adapter[T]) Load(ctx context.Context) ([]T, error) {
	a.mu.Lock()
	switch {
	case a.pendingRecs != nil:
		recs := cloneSlice(a.pendingRecs)
		a.mu.Unlock()
		return recs, nil
	case a.inflight != nil:
		recs := cloneSlice(a.inflight)
		a.mu.Unlock()
		return recs, nil
	}
	a.mu.Unlock()

	data, ok, err := a.backend.Get(ctx, a.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", a.key, err)
	}
	if !ok {
		return []T{}, nil
	}
	recs, err := a.decode(data)
	if err != nil {
		a.logger.Warn("ignoring unreadable stored collection", zap.Error(err))
		return []T{}, nil
	}
	return recs, nil
}

// Subscribe registers fn for changes written by other instances. A deleted
// key is reported as an empty slice; unparseable values are skipped. After
// the returned function returns, fn is not called again.
func (a *Adapter[T]) Subscribe(ctx context.Context, fn func([]T)) (func(), error) {
	return a.backend.Watch(ctx, func(c store.Change) {
		if c.Key != a.key {
			return
		}
		if c.Deleted {
			fn([]T{})
			return
		}
		recs, err := a.decode(c.Value)
		if err != nil {
			a.logger.Debug("skipping unparseable change", zap.Error(err))
			return
		}
		fn(recs)
	})
}

// Clear drops any pending snapshot and deletes the key
func (a *Adapter[T]) Clear(ctx context.Context) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	a.cancelLocked()
	a.mu.Unlock()

	if err := a.backend.Delete(ctx, a.key); err != nil {
		return fmt.Errorf("failed to clear %s: %w", a.key, err)
	}
	return nil
}

// Flush writes the pending snapshot, if any, right away
func (a *Adapter[T]) Flush(ctx context.Context) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	data := a.pending
	if data != nil {
		a.inflight = a.pendingRecs
	}
	a.cancelLocked()
	a.mu.Unlock()

	if data == nil {
		return nil
	}
	err := a.backend.Set(ctx, a.key, data)

	a.mu.Lock()
	a.inflight = nil
	a.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to flush %s: %w", a.key, err)
	}
	return nil
}

// Pending reports whether a debounced write is scheduled
func (a *Adapter[T]) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

func (a *Adapter[T]) fire(gen uint64) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	if gen != a.gen || a.pending == nil {
		a.mu.Unlock()
		return
	}
	data := a.pending
	a.inflight = a.pendingRecs
	a.pending, a.pendingRecs, a.timer = nil, nil, nil
	a.mu.Unlock()

	err := a.backend.Set(context.Background(), a.key, data)

	a.mu.Lock()
	a.inflight = nil
	a.mu.Unlock()

	if err != nil {
		a.logger.Error("debounced write failed", zap.Int("bytes", len(data)), zap.Error(err))
		if a.onError != nil {
			a.onError(fmt.Errorf("failed to save %s: %w", a.key, err))
		}
	}
}

// cancelLocked drops the pending snapshot and invalidates its timer
func (a *Adapter[T]) cancelLocked() {
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.pending, a.pendingRecs = nil, nil
}

func (a *Adapter[T]) encode(records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", a.key, err)
	}
	return data, nil
}

func decodeArray[T any](data []byte) ([]T, error) {
	var recs []T
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []T{}
	}
	return recs, nil
}

func cloneSlice[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}
