package normalizer

import (
	"encoding/json"
	"math"

	"github.com/maklermate/maklermate-api/internal/domain"
)

// leadMigration upgrades a raw lead from one schema version to the next
type leadMigration struct {
	from  int
	apply func(map[string]any) map[string]any
}

// leadMigrations is ordered by version. Adding schema version N+1 means
// appending one step with from = N.
var leadMigrations = []leadMigration{
	{from: 1, apply: migrateLeadV1ToV2},
}

// legacyAliases lists, per current field, the field names used by version 1
// in order of preference. The current name always wins when present.
var legacyAliases = []struct {
	field   string
	aliases []string
}{
	{field: "contact", aliases: []string{"email", "phone", "telefon"}},
	{field: "location", aliases: []string{"ort"}},
	{field: "note", aliases: []string{"notes", "notiz"}},
	{field: "type", aliases: []string{"typ"}},
	{field: "createdAt", aliases: []string{"created", "created_at"}},
	{field: "updatedAt", aliases: []string{"updated", "updated_at"}},
}

func migrateLeadV1ToV2(rec map[string]any) map[string]any {
	for _, a := range legacyAliases {
		if present(rec[a.field]) {
			continue
		}
		for _, alias := range a.aliases {
			if present(rec[alias]) {
				rec[a.field] = rec[alias]
				break
			}
		}
	}
	for _, a := range legacyAliases {
		for _, alias := range a.aliases {
			delete(rec, alias)
		}
	}
	rec["_v"] = 2
	return rec
}

// schemaVersion reads the _v tag; missing or malformed tags mean version 1
func schemaVersion(rec map[string]any) int {
	var f float64
	switch v := rec["_v"].(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 1
		}
		f = parsed
	default:
		return 1
	}
	if f < 1 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 1
	}
	return int(f)
}

// upgradeLead runs every migration step from the record's version up to the current one
func upgradeLead(rec map[string]any) map[string]any {
	v := schemaVersion(rec)
	for _, m := range leadMigrations {
		if v > domain.LeadSchemaVersion {
			break
		}
		if m.from == v {
			rec = m.apply(rec)
			v = m.from + 1
		}
	}
	return rec
}
