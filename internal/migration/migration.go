package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/normalizer"
	"github.com/maklermate/maklermate-api/internal/store"
	"go.uber.org/zap"
)

// Collection kinds understood by the migrator
const (
	KindLeads   = "leads"
	KindExposes = "exposes"
)

// Collection names a base key and the kind of records stored under it
type Collection struct {
	Kind string
	Key  string
}

// KeyStatus describes one stored collection
type KeyStatus struct {
	Key      string
	Kind     string
	Records  int
	Outdated int
	Corrupt  bool
}

// Result summarizes an upgrade run
type Result struct {
	Keys     int
	Records  int
	Upgraded int
	Skipped  []string
}

// Migrator rewrites stored collections into the current schema
type Migrator struct {
	backend     store.Backend
	collections []Collection
	logger      *zap.Logger
}

// NewMigrator creates a migrator for the given collections
func NewMigrator(backend store.Backend, collections []Collection, logger *zap.Logger) *Migrator {
	return &Migrator{backend: backend, collections: collections, logger: logger}
}

// Status reports record counts and outdated records per stored key
func (m *Migrator) Status(ctx context.Context) ([]KeyStatus, error) {
	var out []KeyStatus
	err := m.each(ctx, func(c Collection, key string, raw []json.RawMessage, ok bool) error {
		st := KeyStatus{Key: key, Kind: c.Kind, Corrupt: !ok, Records: len(raw)}
		for _, el := range raw {
			if outdated(c.Kind, el) {
				st.Outdated++
			}
		}
		out = append(out, st)
		return nil
	})
	return out, err
}

// Up normalizes every record of every stored key and writes the result back.
// Keys holding anything but a JSON array are left untouched and reported.
func (m *Migrator) Up(ctx context.Context) (*Result, error) {
	res := &Result{}
	err := m.each(ctx, func(c Collection, key string, raw []json.RawMessage, ok bool) error {
		if !ok {
			res.Skipped = append(res.Skipped, key)
			m.logger.Warn("skipping corrupt collection", zap.String("key", key))
			return nil
		}

		upgraded := 0
		for _, el := range raw {
			if outdated(c.Kind, el) {
				upgraded++
			}
		}

		data, err := normalize(c.Kind, raw)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		if err := m.backend.Set(ctx, key, data); err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}

		res.Keys++
		res.Records += len(raw)
		res.Upgraded += upgraded
		m.logger.Info("collection migrated",
			zap.String("key", key),
			zap.Int("records", len(raw)),
			zap.Int("upgraded", upgraded))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// each visits the base key and every user scope of each collection
func (m *Migrator) each(ctx context.Context, fn func(c Collection, key string, raw []json.RawMessage, ok bool) error) error {
	for _, c := range m.collections {
		if c.Kind != KindLeads && c.Kind != KindExposes {
			return fmt.Errorf("unknown collection kind %q", c.Kind)
		}
		keys, err := m.backend.Keys(ctx, c.Key)
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", c.Key, err)
		}
		for _, key := range keys {
			if key != c.Key && !strings.HasPrefix(key, c.Key+":") {
				continue
			}
			data, found, err := m.backend.Get(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", key, err)
			}
			if !found {
				continue
			}
			var raw []json.RawMessage
			ok := json.Unmarshal(data, &raw) == nil
			if err := fn(c, key, raw, ok); err != nil {
				return err
			}
		}
	}
	return nil
}

func normalize(kind string, raw []json.RawMessage) ([]byte, error) {
	switch kind {
	case KindLeads:
		leads := make([]domain.Lead, 0, len(raw))
		for _, el := range raw {
			leads = append(leads, normalizer.MigrateLeadJSON(el))
		}
		return json.Marshal(leads)
	default:
		exposes := make([]domain.SavedExpose, 0, len(raw))
		for _, el := range raw {
			exposes = append(exposes, normalizer.NormalizeExpose(el))
		}
		return json.Marshal(exposes)
	}
}

// outdated reports whether a lead carries an older schema version. Exposes
// are not versioned and never count as outdated.
func outdated(kind string, el json.RawMessage) bool {
	if kind != KindLeads {
		return false
	}
	var tag struct {
		Version *float64 `json:"_v"`
	}
	if err := json.Unmarshal(el, &tag); err != nil || tag.Version == nil {
		return true
	}
	return int(*tag.Version) < domain.LeadSchemaVersion
}
