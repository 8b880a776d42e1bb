// Package repository keeps whole collections of records in a store.Backend.
// Every write reads the full collection, applies the change and persists the
// new snapshot through a debounced persistence.Adapter.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/normalizer"
	"github.com/maklermate/maklermate-api/internal/persistence"
	"github.com/maklermate/maklermate-api/internal/store"
	"go.uber.org/zap"
)

// Schema describes how a record type is decoded, checked and stamped
type Schema[T any] struct {
	// Key is the base storage key; the user scope is appended per call
	Key string
	// Decode turns one stored element into a canonical record. It must not fail.
	Decode func(raw json.RawMessage) T
	// Prepare coerces caller input (enum case, whitespace) without repairing it,
	// so that Validate still sees what the caller meant
	Prepare func(T) T
	// Canonical runs the full normalizer on a typed record
	Canonical func(T) T
	Validate  func(T) error
	ID        func(T) string
	// Timestamps returns the creation and last update time
	Timestamps func(T) (created, updated time.Time)
	// Stamp sets the id and both timestamps
	Stamp func(rec T, id string, created, updated time.Time) T
	// Clone deep-copies a record. Nil means the value copy is enough.
	Clone func(T) T
}

// Options configures a Repository
type Options struct {
	Debounce time.Duration
	Logger   *zap.Logger
	// Now defaults to time.Now
	Now func() time.Time
	// OnError receives failures of debounced writes
	OnError func(key string, err error)
}

// Repository stores one collection of T per user scope
type Repository[T any] struct {
	backend store.Backend
	schema  Schema[T]
	opts    Options
	logger  *zap.Logger

	// mu serializes read-modify-write cycles within this instance
	mu       sync.Mutex
	adapters map[string]*persistence.Adapter[T]
}

// New creates a repository for schema on backend
func New[T any](backend store.Backend, schema Schema[T], opts Options) *Repository[T] {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Repository[T]{
		backend:  backend,
		schema:   schema,
		opts:     opts,
		logger:   opts.Logger,
		adapters: make(map[string]*persistence.Adapter[T]),
	}
}

// adapter returns the adapter for the scoped key of ctx
func (r *Repository[T]) adapter(ctx context.Context) *persistence.Adapter[T] {
	key := ScopedKey(ctx, r.schema.Key)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adapterLocked(key)
}

func (r *Repository[T]) adapterLocked(key string) *persistence.Adapter[T] {
	if a, ok := r.adapters[key]; ok {
		return a
	}
	a := persistence.New(r.backend, key, persistence.Options[T]{
		Debounce: r.opts.Debounce,
		Decode:   r.decode,
		Logger:   r.logger,
		OnError: func(err error) {
			if r.opts.OnError != nil {
				r.opts.OnError(key, err)
			}
		},
	})
	r.adapters[key] = a
	return a
}

// decode parses a stored collection. Anything but a JSON array is an error;
// the adapter turns that into an empty collection.
func (r *Repository[T]) decode(data []byte) ([]T, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, el := range raw {
		out = append(out, r.schema.Decode(el))
	}
	return out, nil
}

func (r *Repository[T]) clone(rec T) T {
	if r.schema.Clone == nil {
		return rec
	}
	return r.schema.Clone(rec)
}

func (r *Repository[T]) cloneAll(recs []T) []T {
	out := make([]T, len(recs))
	for i, rec := range recs {
		out[i] = r.clone(rec)
	}
	return out
}

// load reads the collection for the scope of ctx
func (r *Repository[T]) load(ctx context.Context) (*persistence.Adapter[T], []T, error) {
	a := r.adapter(ctx)
	recs, err := a.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return a, recs, nil
}

func (r *Repository[T]) indexOf(recs []T, id string) int {
	for i, rec := range recs {
		if r.schema.ID(rec) == id {
			return i
		}
	}
	return -1
}

// GetAll returns every record of the caller's collection
func (r *Repository[T]) GetAll(ctx context.Context) ([]T, error) {
	_, recs, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return r.cloneAll(recs), nil
}

// GetByID returns one record or domain.ErrNotFound
func (r *Repository[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T
	_, recs, err := r.load(ctx)
	if err != nil {
		return zero, err
	}
	if i := r.indexOf(recs, id); i >= 0 {
		return r.clone(recs[i]), nil
	}
	return zero, fmt.Errorf("%s %q: %w", r.schema.Key, id, domain.ErrNotFound)
}

// Create assigns a fresh id and timestamps, validates and appends rec
func (r *Repository[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.adapterLocked(ScopedKey(ctx, r.schema.Key))
	recs, err := a.Load(ctx)
	if err != nil {
		return zero, err
	}

	rec = r.schema.Prepare(r.clone(rec))
	if err := r.schema.Validate(rec); err != nil {
		return zero, err
	}

	at := r.opts.Now()
	id := normalizer.NewID(at)
	for r.indexOf(recs, id) >= 0 {
		id = normalizer.NewID(at)
	}
	rec = r.schema.Stamp(r.schema.Canonical(rec), id, at, at)

	if err := a.Save(append(recs, rec)); err != nil {
		return zero, err
	}
	return r.clone(rec), nil
}

// Update applies mutate to the record with id, re-normalizes and validates
// the result and moves updatedAt strictly forward
func (r *Repository[T]) Update(ctx context.Context, id string, mutate func(T) (T, error)) (T, error) {
	var zero T
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.adapterLocked(ScopedKey(ctx, r.schema.Key))
	recs, err := a.Load(ctx)
	if err != nil {
		return zero, err
	}
	i := r.indexOf(recs, id)
	if i < 0 {
		return zero, fmt.Errorf("%s %q: %w", r.schema.Key, id, domain.ErrNotFound)
	}

	next, err := r.apply(recs[i], mutate)
	if err != nil {
		return zero, err
	}
	recs[i] = next

	if err := a.Save(recs); err != nil {
		return zero, err
	}
	return r.clone(next), nil
}

func (r *Repository[T]) apply(prev T, mutate func(T) (T, error)) (T, error) {
	var zero T
	next, err := mutate(r.clone(prev))
	if err != nil {
		return zero, err
	}
	next = r.schema.Prepare(next)
	if err := r.schema.Validate(next); err != nil {
		return zero, err
	}

	created, updated := r.schema.Timestamps(prev)
	at := r.opts.Now().UTC().Truncate(time.Millisecond)
	if !at.After(updated) {
		at = updated.Add(time.Millisecond)
	}
	return r.schema.Stamp(r.schema.Canonical(next), r.schema.ID(prev), created, at), nil
}

// UpdateMany applies mutate to every listed record that exists and returns
// how many were changed. Missing ids are ignored. If mutate fails for any
// record nothing is written.
func (r *Repository[T]) UpdateMany(ctx context.Context, ids []string, mutate func(T) (T, error)) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.adapterLocked(ScopedKey(ctx, r.schema.Key))
	recs, err := a.Load(ctx)
	if err != nil {
		return 0, err
	}

	wanted := toSet(ids)
	changed := 0
	for i, rec := range recs {
		if _, ok := wanted[r.schema.ID(rec)]; !ok {
			continue
		}
		next, err := r.apply(rec, mutate)
		if err != nil {
			return 0, err
		}
		recs[i] = next
		changed++
	}
	if changed == 0 {
		return 0, nil
	}
	if err := a.Save(recs); err != nil {
		return 0, err
	}
	return changed, nil
}

// Delete removes the record with id or returns domain.ErrNotFound
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	n, err := r.DeleteMany(ctx, []string{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", r.schema.Key, id, domain.ErrNotFound)
	}
	return nil
}

// DeleteMany removes every listed record that exists and returns how many
// were removed. Missing ids are ignored.
func (r *Repository[T]) DeleteMany(ctx context.Context, ids []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.adapterLocked(ScopedKey(ctx, r.schema.Key))
	recs, err := a.Load(ctx)
	if err != nil {
		return 0, err
	}

	wanted := toSet(ids)
	kept := make([]T, 0, len(recs))
	for _, rec := range recs {
		if _, ok := wanted[r.schema.ID(rec)]; !ok {
			kept = append(kept, rec)
		}
	}
	removed := len(recs) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := a.Save(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

// Merge appends every record whose id is not in the collection yet and
// returns how many were added. Records keep their ids and timestamps.
func (r *Repository[T]) Merge(ctx context.Context, incoming []T) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.adapterLocked(ScopedKey(ctx, r.schema.Key))
	recs, err := a.Load(ctx)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(recs)+len(incoming))
	for _, rec := range recs {
		seen[r.schema.ID(rec)] = struct{}{}
	}
	added := 0
	for _, rec := range incoming {
		rec = r.schema.Canonical(r.clone(rec))
		id := r.schema.ID(rec)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		recs = append(recs, rec)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := a.Save(recs); err != nil {
		return 0, err
	}
	return added, nil
}

// Replace overwrites the whole collection synchronously
func (r *Repository[T]) Replace(ctx context.Context, recs []T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.adapterLocked(ScopedKey(ctx, r.schema.Key))
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		out = append(out, r.schema.Canonical(r.clone(rec)))
	}
	return a.SaveSync(ctx, out)
}

// Clear deletes the whole collection synchronously
func (r *Repository[T]) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adapterLocked(ScopedKey(ctx, r.schema.Key)).Clear(ctx)
}

// Subscribe reports the collection whenever another instance changes it
func (r *Repository[T]) Subscribe(ctx context.Context, fn func([]T)) (func(), error) {
	return r.adapter(ctx).Subscribe(ctx, fn)
}

// Flush writes every pending snapshot
func (r *Repository[T]) Flush(ctx context.Context) error {
	r.mu.Lock()
	adapters := make([]*persistence.Adapter[T], 0, len(r.adapters))
	for _, a := range r.adapters {
		adapters = append(adapters, a)
	}
	r.mu.Unlock()

	var errs []error
	for _, a := range adapters {
		if err := a.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending writes. The backend is owned by the caller.
func (r *Repository[T]) Close() error {
	return r.Flush(context.Background())
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
