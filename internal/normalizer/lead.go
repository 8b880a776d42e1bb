package normalizer

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/maklermate/maklermate-api/internal/domain"
)

// DefaultLeadName replaces names that are empty after trimming
const DefaultLeadName = "Unbenannt"

// MigrateLead upgrades any record-shaped input to the current lead schema.
// Legacy records are remapped step by step; current records are re-normalized.
func MigrateLead(raw any) domain.Lead {
	return canonicalLead(upgradeLead(toMap(raw)), now())
}

// MigrateLeadJSON is MigrateLead for a raw JSON document
func MigrateLeadJSON(data []byte) domain.Lead {
	return MigrateLead(decodeMap(data))
}

// CreateLead builds a complete lead from a partial input, generating the id
// and timestamps when absent
func CreateLead(partial map[string]any) domain.Lead {
	rec := toMap(partial)
	at := now()
	if !present(rec["createdAt"]) {
		rec["createdAt"] = domain.FormatISO(at)
	}
	if !present(rec["updatedAt"]) {
		rec["updatedAt"] = rec["createdAt"]
	}
	return canonicalLead(rec, at)
}

func canonicalLead(rec map[string]any, at time.Time) domain.Lead {
	lead := domain.Lead{
		ID:       strings.TrimSpace(asString(rec["id"])),
		Name:     canonicalName(asString(rec["name"])),
		Contact:  strings.TrimSpace(asString(rec["contact"])),
		Type:     NormalizeType(rec["type"]),
		Status:   NormalizeStatus(rec["status"]),
		Location: strings.TrimSpace(asString(rec["location"])),
		Note:     strings.TrimSpace(asString(rec["note"])),
		Version:  domain.LeadSchemaVersion,
	}
	if lead.ID == "" {
		lead.ID = NewID(at)
	}
	if !domain.IsValidContact(lead.Contact) {
		lead.Note = appendLine(lead.Note, "Kontakt: "+lead.Contact)
		lead.Contact = ""
	}

	created, ok := parseTime(rec["createdAt"])
	if !ok {
		created = at
	}
	lead.CreatedAt = domain.FormatISO(created)
	lead.UpdatedAt = lead.CreatedAt
	if updated, ok := parseTime(rec["updatedAt"]); ok && !updated.Before(domain.ParseISO(lead.CreatedAt)) {
		lead.UpdatedAt = domain.FormatISO(updated)
	}
	return lead
}

// canonicalName trims and bounds a lead name so that it always holds 2-100 runes
func canonicalName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if utf8.RuneCountInString(name) > domain.MaxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:domain.MaxNameLength]))
	}
	switch utf8.RuneCountInString(name) {
	case 0:
		return DefaultLeadName
	case 1:
		return DefaultLeadName + " (" + name + ")"
	}
	return name
}

func appendLine(text, line string) string {
	if text == "" {
		return line
	}
	return text + "\n" + line
}

func leadToMap(l domain.Lead) map[string]any {
	return map[string]any{
		"id":        l.ID,
		"name":      l.Name,
		"contact":   l.Contact,
		"type":      string(l.Type),
		"status":    string(l.Status),
		"location":  l.Location,
		"note":      l.Note,
		"createdAt": l.CreatedAt,
		"updatedAt": l.UpdatedAt,
		"_v":        l.Version,
	}
}
