// Package store provides the durable key/value backends the record
// repositories persist into. Each backend instance plays the role of one
// execution context: Watch reports changes written by other instances that
// share the same underlying data, never the instance's own writes.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Change describes a write observed from another instance
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Backend is a durable key/value store holding one JSON document per key
type Backend interface {
	// Get returns the stored value and whether the key exists
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// Keys returns the sorted live keys starting with prefix
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Watch registers fn for changes made by other instances. The returned
	// function stops delivery; once it returns fn is not invoked again.
	Watch(ctx context.Context, fn func(Change)) (func(), error)
	// Close releases resources held by the backend
	Close() error
}

// QuotaChecker is implemented by backends with a capacity limit, so writers
// can reject an oversized snapshot before scheduling it
type QuotaChecker interface {
	CheckQuota(key string, size int) error
}

// subscription is one registered watcher. Deliveries hold mu for reading,
// unsubscribing takes it for writing, so once the unsubscribe func returns
// no delivery is running or will start.
type subscription struct {
	mu     sync.RWMutex
	fn     func(Change)
	active bool
}

func (s *subscription) deliver(c Change) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active {
		s.fn(c)
	}
}

// notifier fans changes out to watchers
type notifier struct {
	mu   sync.RWMutex
	next int
	subs map[int]*subscription
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]*subscription)}
}

func (n *notifier) add(fn func(Change)) func() {
	sub := &subscription{fn: fn, active: true}

	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = sub
	n.mu.Unlock()

	// The returned func must not be called from inside fn
	var once sync.Once
	return func() {
		once.Do(func() {
			sub.mu.Lock()
			sub.active = false
			sub.mu.Unlock()
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) notify(c Change) {
	n.mu.RLock()
	subs := make([]*subscription, 0, len(n.subs))
	for _, s := range n.subs {
		subs = append(subs, s)
	}
	n.mu.RUnlock()

	for _, s := range subs {
		s.deliver(c)
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// filterKeys returns the sorted keys starting with prefix
func filterKeys(keys []string, prefix string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
