package repository

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/normalizer"
	"github.com/maklermate/maklermate-api/internal/store"
)

// DefaultLeadsKey is the storage key used by the original browser app
const DefaultLeadsKey = "maklermate_leads"

// LeadRepository stores leads
type LeadRepository = Repository[domain.Lead]

// LeadSchema returns the schema for leads stored under key
func LeadSchema(key string) Schema[domain.Lead] {
	if key == "" {
		key = DefaultLeadsKey
	}
	return Schema[domain.Lead]{
		Key: key,
		Decode: func(raw json.RawMessage) domain.Lead {
			return normalizer.MigrateLeadJSON(raw)
		},
		Prepare: prepareLead,
		Canonical: func(l domain.Lead) domain.Lead {
			return normalizer.MigrateLead(l)
		},
		Validate: domain.ValidateLead,
		ID:       func(l domain.Lead) string { return l.ID },
		Timestamps: func(l domain.Lead) (time.Time, time.Time) {
			return l.Created(), l.Updated()
		},
		Stamp: func(l domain.Lead, id string, created, updated time.Time) domain.Lead {
			l.ID = id
			l.CreatedAt = domain.FormatISO(created)
			l.UpdatedAt = domain.FormatISO(updated)
			return l
		},
	}
}

// NewLeadRepository creates a lead repository
func NewLeadRepository(backend store.Backend, key string, opts Options) *LeadRepository {
	return New(backend, LeadSchema(key), opts)
}

// prepareLead trims text and coerces the enums; name and contact are left
// for validation
func prepareLead(l domain.Lead) domain.Lead {
	l.Name = strings.TrimSpace(l.Name)
	l.Contact = strings.TrimSpace(l.Contact)
	l.Location = strings.TrimSpace(l.Location)
	l.Note = strings.TrimSpace(l.Note)
	l.Status = normalizer.NormalizeStatus(string(l.Status))
	l.Type = normalizer.NormalizeType(string(l.Type))
	l.Version = domain.LeadSchemaVersion
	return l
}
