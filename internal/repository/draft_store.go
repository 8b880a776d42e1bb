package repository

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/persistence"
	"github.com/maklermate/maklermate-api/internal/store"
	"go.uber.org/zap"
)

// DefaultDraftKey holds the unsaved expose form
const DefaultDraftKey = "maklermate_draft"

// DraftStore keeps the most recent expose form per user. The draft is stored
// as a one-element array so it shares the collection adapter; a bare object
// written by older clients is read as well.
type DraftStore struct {
	backend store.Backend
	key     string
	opts    persistence.Options[domain.DraftForm]

	mu       sync.Mutex
	adapters map[string]*persistence.Adapter[domain.DraftForm]
}

// NewDraftStore creates a draft store
func NewDraftStore(backend store.Backend, key string, opts Options) *DraftStore {
	if key == "" {
		key = DefaultDraftKey
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &DraftStore{
		backend: backend,
		key:     key,
		opts: persistence.Options[domain.DraftForm]{
			Debounce: opts.Debounce,
			Decode:   decodeDraft,
			Logger:   opts.Logger,
		},
		adapters: make(map[string]*persistence.Adapter[domain.DraftForm]),
	}
}

func (s *DraftStore) adapter(ctx context.Context) *persistence.Adapter[domain.DraftForm] {
	key := ScopedKey(ctx, s.key)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.adapters[key]
	if !ok {
		a = persistence.New(s.backend, key, s.opts)
		s.adapters[key] = a
	}
	return a
}

// Load returns the current draft, or an empty form when none is stored
func (s *DraftStore) Load(ctx context.Context) (domain.DraftForm, error) {
	drafts, err := s.adapter(ctx).Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 || drafts[0] == nil {
		return domain.DraftForm{}, nil
	}
	return cloneDraft(drafts[0]), nil
}

// Save replaces the draft; bursts of saves collapse into one write
func (s *DraftStore) Save(ctx context.Context, draft domain.DraftForm) error {
	return s.adapter(ctx).Save([]domain.DraftForm{cloneDraft(draft)})
}

// Clear removes the draft
func (s *DraftStore) Clear(ctx context.Context) error {
	return s.adapter(ctx).Clear(ctx)
}

// Flush writes every pending draft
func (s *DraftStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	adapters := make([]*persistence.Adapter[domain.DraftForm], 0, len(s.adapters))
	for _, a := range s.adapters {
		adapters = append(adapters, a)
	}
	s.mu.Unlock()

	for _, a := range adapters {
		if err := a.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes pending writes. The backend is owned by the caller.
func (s *DraftStore) Close() error {
	return s.Flush(context.Background())
}

func decodeDraft(data []byte) ([]domain.DraftForm, error) {
	var list []map[string]any
	if err := json.Unmarshal(data, &list); err == nil {
		out := make([]domain.DraftForm, 0, 1)
		if len(list) > 0 {
			out = append(out, stringifyDraft(list[0]))
		}
		return out, nil
	}
	var single map[string]any
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []domain.DraftForm{stringifyDraft(single)}, nil
}

func stringifyDraft(m map[string]any) domain.DraftForm {
	out := make(domain.DraftForm, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

func cloneDraft(d domain.DraftForm) domain.DraftForm {
	out := make(domain.DraftForm, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
