package persistence_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/persistence"
	"github.com/maklermate/maklermate-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// countingBackend counts writes and can be told to fail them
type countingBackend struct {
	store.Backend
	sets atomic.Int32
	fail atomic.Bool
}

func (b *countingBackend) Set(ctx context.Context, key string, value []byte) error {
	b.sets.Add(1)
	if b.fail.Load() {
		return errors.New("disk on fire")
	}
	return b.Backend.Set(ctx, key, value)
}

func newAdapter(t *testing.T, debounce time.Duration) (*persistence.Adapter[item], *countingBackend) {
	t.Helper()
	backend := &countingBackend{Backend: store.NewMemoryBackend(store.NewMemoryHub(), 0)}
	return persistence.New(backend, "items", persistence.Options[item]{Debounce: debounce}), backend
}

func stored(t *testing.T, b store.Backend) string {
	t.Helper()
	data, ok, err := b.Get(context.Background(), "items")
	require.NoError(t, err)
	if !ok {
		return ""
	}
	return string(data)
}

func TestAdapter_SaveCollapsesBurst(t *testing.T) {
	a, backend := newAdapter(t, 50*time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Save([]item{{ID: "1", Name: string(rune('a' + i))}}))
	}
	assert.True(t, a.Pending())
	assert.Equal(t, int32(0), backend.sets.Load())

	assert.Eventually(t, func() bool { return backend.sets.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `[{"id":"1","name":"e"}]`, stored(t, backend))
	assert.False(t, a.Pending())

	// Nothing else is written afterwards
	assert.Never(t, func() bool { return backend.sets.Load() > 1 }, 150*time.Millisecond, 10*time.Millisecond)
}

func TestAdapter_LoadReadsOwnPendingWrites(t *testing.T) {
	ctx := context.Background()
	a, _ := newAdapter(t, time.Hour)

	got, err := a.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	require.NoError(t, a.Save([]item{{ID: "1", Name: "Max"}}))
	got, err = a.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "1", Name: "Max"}}, got)
}

func TestAdapter_SaveSyncCancelsPending(t *testing.T) {
	ctx := context.Background()
	a, backend := newAdapter(t, 30*time.Millisecond)

	require.NoError(t, a.Save([]item{{ID: "old"}}))
	require.NoError(t, a.SaveSync(ctx, []item{{ID: "new"}}))

	assert.JSONEq(t, `[{"id":"new","name":""}]`, stored(t, backend))
	assert.Never(t, func() bool { return backend.sets.Load() > 1 }, 120*time.Millisecond, 10*time.Millisecond)
	assert.JSONEq(t, `[{"id":"new","name":""}]`, stored(t, backend))
}

func TestAdapter_Flush(t *testing.T) {
	ctx := context.Background()
	a, backend := newAdapter(t, time.Hour)

	require.NoError(t, a.Flush(ctx))
	assert.Equal(t, int32(0), backend.sets.Load())

	require.NoError(t, a.Save(nil))
	require.NoError(t, a.Flush(ctx))
	assert.Equal(t, "[]", stored(t, backend))
	assert.False(t, a.Pending())
}

// gatedBackend holds every Set until release is closed
type gatedBackend struct {
	store.Backend
	entered chan struct{}
	release chan struct{}
}

func (b *gatedBackend) Set(ctx context.Context, key string, value []byte) error {
	b.entered <- struct{}{}
	<-b.release
	return b.Backend.Set(ctx, key, value)
}

func TestAdapter_LoadDuringFlushSeesFlushedRecords(t *testing.T) {
	ctx := context.Background()
	backend := &gatedBackend{
		Backend: store.NewMemoryBackend(store.NewMemoryHub(), 0),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	require.NoError(t, backend.Backend.Set(ctx, "items", []byte(`[{"id":"old","name":""}]`)))
	a := persistence.New(backend, "items", persistence.Options[item]{Debounce: time.Hour})

	require.NoError(t, a.Save([]item{{ID: "new", Name: "Max"}}))

	flushed := make(chan error, 1)
	go func() { flushed <- a.Flush(ctx) }()
	<-backend.entered

	// The pending snapshot left the queue but is not stored yet
	assert.False(t, a.Pending())
	got, err := a.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "new", Name: "Max"}}, got)

	close(backend.release)
	require.NoError(t, <-flushed)

	got, err = a.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "new", Name: "Max"}}, got)
	assert.JSONEq(t, `[{"id":"new","name":"Max"}]`, stored(t, backend))
}

func TestAdapter_Clear(t *testing.T) {
	ctx := context.Background()
	a, backend := newAdapter(t, time.Hour)

	require.NoError(t, a.SaveSync(ctx, []item{{ID: "1"}}))
	require.NoError(t, a.Save([]item{{ID: "2"}}))
	require.NoError(t, a.Clear(ctx))

	assert.False(t, a.Pending())
	assert.Equal(t, "", stored(t, backend))
	got, err := a.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAdapter_LoadIgnoresGarbage(t *testing.T) {
	ctx := context.Background()
	a, backend := newAdapter(t, time.Hour)

	for _, raw := range []string{"{oops", `{"id":"1"}`, "42"} {
		require.NoError(t, backend.Backend.Set(ctx, "items", []byte(raw)))
		got, err := a.Load(ctx)
		require.NoError(t, err, raw)
		assert.Empty(t, got, raw)
	}
}

func TestAdapter_QuotaIsSynchronous(t *testing.T) {
	backend := store.NewMemoryBackend(store.NewMemoryHub(), 64)
	a := persistence.New(backend, "items", persistence.Options[item]{Debounce: time.Hour})

	err := a.Save([]item{{ID: "1", Name: string(make([]byte, 100))}})
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.False(t, a.Pending())
}

func TestAdapter_OnError(t *testing.T) {
	backend := &countingBackend{Backend: store.NewMemoryBackend(store.NewMemoryHub(), 0)}
	backend.fail.Store(true)

	errs := make(chan error, 1)
	a := persistence.New(backend, "items", persistence.Options[item]{
		Debounce: 10 * time.Millisecond,
		OnError:  func(err error) { errs <- err },
	})
	require.NoError(t, a.Save([]item{{ID: "1"}}))

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "disk on fire")
	case <-time.After(time.Second):
		t.Fatal("OnError was not called")
	}
}

func TestAdapter_Subscribe(t *testing.T) {
	ctx := context.Background()
	hub := store.NewMemoryHub()
	mine := persistence.New(store.NewMemoryBackend(hub, 0), "items", persistence.Options[item]{})
	otherBackend := store.NewMemoryBackend(hub, 0)
	other := persistence.New(otherBackend, "items", persistence.Options[item]{})

	var (
		mu       sync.Mutex
		received [][]item
	)
	unsubscribe, err := mine.Subscribe(ctx, func(items []item) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, items)
	})
	require.NoError(t, err)

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(received)
	}

	// Own writes are not reported
	require.NoError(t, mine.SaveSync(ctx, []item{{ID: "mine"}}))
	assert.Equal(t, 0, count())

	require.NoError(t, other.SaveSync(ctx, []item{{ID: "theirs"}}))
	require.Equal(t, 1, count())

	// Other keys and garbage are ignored
	require.NoError(t, otherBackend.Set(ctx, "unrelated", []byte(`[]`)))
	require.NoError(t, otherBackend.Set(ctx, "items", []byte(`{garbage`)))
	require.Equal(t, 1, count())

	// Clearing is reported as an empty list
	require.NoError(t, other.Clear(ctx))
	require.Equal(t, 2, count())

	mu.Lock()
	assert.Equal(t, []item{{ID: "theirs"}}, received[0])
	assert.Empty(t, received[1])
	mu.Unlock()

	unsubscribe()
	require.NoError(t, other.SaveSync(ctx, []item{{ID: "late"}}))
	assert.Equal(t, 2, count())
}
