package repository

import (
	"encoding/json"
	"time"

	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/normalizer"
	"github.com/maklermate/maklermate-api/internal/store"
)

// DefaultExposesKey is the storage key used by the original browser app
const DefaultExposesKey = "maklermate_exposes"

// ExposeRepository stores saved exposes
type ExposeRepository = Repository[domain.SavedExpose]

// ExposeSchema returns the schema for exposes stored under key
func ExposeSchema(key string) Schema[domain.SavedExpose] {
	if key == "" {
		key = DefaultExposesKey
	}
	normalize := func(e domain.SavedExpose) domain.SavedExpose {
		return normalizer.NormalizeExpose(e)
	}
	return Schema[domain.SavedExpose]{
		Key: key,
		Decode: func(raw json.RawMessage) domain.SavedExpose {
			return normalizer.NormalizeExpose(raw)
		},
		Prepare:   normalize,
		Canonical: normalize,
		Validate:  domain.ValidateExpose,
		ID:        func(e domain.SavedExpose) string { return e.ID },
		Timestamps: func(e domain.SavedExpose) (time.Time, time.Time) {
			return e.Created(), domain.ParseISO(e.UpdatedAt)
		},
		Stamp: func(e domain.SavedExpose, id string, created, updated time.Time) domain.SavedExpose {
			e.ID = id
			e.CreatedAt = domain.FormatISO(created)
			e.UpdatedAt = domain.FormatISO(updated)
			return e
		},
		Clone: domain.SavedExpose.Clone,
	}
}

// NewExposeRepository creates an expose repository
func NewExposeRepository(backend store.Backend, key string, opts Options) *ExposeRepository {
	return New(backend, ExposeSchema(key), opts)
}
