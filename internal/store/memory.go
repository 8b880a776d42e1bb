package store

import (
	"context"
	"sync"

	"github.com/maklermate/maklermate-api/internal/domain"
)

// DefaultQuotaBytes matches the usual 5 MB budget of browser local storage
const DefaultQuotaBytes = 5 * 1024 * 1024

// MemoryHub is the shared storage several MemoryBackend instances write to.
// It stands in for the browser's local storage shared between tabs.
type MemoryHub struct {
	mu        sync.RWMutex
	data      map[string][]byte
	instances map[*MemoryBackend]struct{}
}

// NewMemoryHub creates an empty hub
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		data:      make(map[string][]byte),
		instances: make(map[*MemoryBackend]struct{}),
	}
}

// MemoryBackend is one instance attached to a MemoryHub
type MemoryBackend struct {
	hub        *MemoryHub
	quotaBytes int64
	notifier   *notifier
}

// NewMemoryBackend attaches a new instance to hub. A quota of zero or less disables the limit.
func NewMemoryBackend(hub *MemoryHub, quotaBytes int64) *MemoryBackend {
	b := &MemoryBackend{
		hub:        hub,
		quotaBytes: quotaBytes,
		notifier:   newNotifier(),
	}
	hub.mu.Lock()
	hub.instances[b] = struct{}{}
	hub.mu.Unlock()
	return b
}

// Get returns a copy of the value stored under key
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	v, ok := b.hub.data[key]
	return cloneBytes(v), ok, nil
}

// CheckQuota reports whether writing size bytes under key would exceed the quota
func (b *MemoryBackend) CheckQuota(key string, size int) error {
	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	return b.checkQuotaLocked(key, size)
}

func (b *MemoryBackend) checkQuotaLocked(key string, size int) error {
	if b.quotaBytes <= 0 {
		return nil
	}
	total := int64(size)
	for k, v := range b.hub.data {
		if k != key {
			total += int64(len(k) + len(v))
		}
	}
	total += int64(len(key))
	if total > b.quotaBytes {
		return domain.ErrQuotaExceeded
	}
	return nil
}

// Set stores value and notifies the other instances on the hub
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	b.hub.mu.Lock()
	if err := b.checkQuotaLocked(key, len(value)); err != nil {
		b.hub.mu.Unlock()
		return err
	}
	b.hub.data[key] = cloneBytes(value)
	peers := b.peersLocked()
	b.hub.mu.Unlock()

	for _, p := range peers {
		p.notifier.notify(Change{Key: key, Value: cloneBytes(value)})
	}
	return nil
}

// Delete removes key and notifies the other instances on the hub
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.hub.mu.Lock()
	_, existed := b.hub.data[key]
	delete(b.hub.data, key)
	peers := b.peersLocked()
	b.hub.mu.Unlock()

	if existed {
		for _, p := range peers {
			p.notifier.notify(Change{Key: key, Deleted: true})
		}
	}
	return nil
}

// Keys lists the keys on the hub
func (b *MemoryBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	b.hub.mu.RLock()
	keys := make([]string, 0, len(b.hub.data))
	for k := range b.hub.data {
		keys = append(keys, k)
	}
	b.hub.mu.RUnlock()
	return filterKeys(keys, prefix), nil
}

// Watch registers fn for writes made by other instances on the hub
func (b *MemoryBackend) Watch(_ context.Context, fn func(Change)) (func(), error) {
	return b.notifier.add(fn), nil
}

// Close detaches the instance from the hub
func (b *MemoryBackend) Close() error {
	b.hub.mu.Lock()
	delete(b.hub.instances, b)
	b.hub.mu.Unlock()
	return nil
}

func (b *MemoryBackend) peersLocked() []*MemoryBackend {
	peers := make([]*MemoryBackend, 0, len(b.hub.instances))
	for p := range b.hub.instances {
		if p != b {
			peers = append(peers, p)
		}
	}
	return peers
}
