// Package query filters, searches and sorts in-memory lead lists.
// All functions return new slices and never modify their input.
package query

import (
	"sort"
	"strings"

	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/normalizer"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// StatusAll disables status filtering
const StatusAll = "all"

// SortKey names a sortable lead attribute
type SortKey string

const (
	SortByName      SortKey = "name"
	SortByCreatedAt SortKey = "createdAt"
	SortByStatus    SortKey = "status"
)

// Direction is the sort direction
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection defaults to ascending for anything but "desc"
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Desc)) {
		return Desc
	}
	return Asc
}

// Options combines the three stages
type Options struct {
	Status    string
	Search    string
	SortBy    SortKey
	Direction Direction
}

// Apply filters by status, then searches, then sorts
func Apply(leads []domain.Lead, opts Options) []domain.Lead {
	out := FilterByStatus(leads, opts.Status)
	out = Search(out, opts.Search)
	if opts.SortBy != "" {
		out = Sort(out, opts.SortBy, opts.Direction)
	}
	return out
}

// FilterByStatus keeps leads whose status matches filter. An empty filter or
// StatusAll keeps everything; other values are normalized like stored statuses.
func FilterByStatus(leads []domain.Lead, filter string) []domain.Lead {
	f := strings.TrimSpace(filter)
	if f == "" || strings.EqualFold(f, StatusAll) {
		return clone(leads)
	}
	want := normalizer.NormalizeStatus(f)
	out := make([]domain.Lead, 0, len(leads))
	for _, l := range leads {
		if normalizer.NormalizeStatus(string(l.Status)) == want {
			out = append(out, l)
		}
	}
	return out
}

// Search keeps leads where q occurs case-insensitively in name, contact,
// location or note. A blank query keeps everything.
func Search(leads []domain.Lead, q string) []domain.Lead {
	needle := strings.ToLower(strings.TrimSpace(q))
	if needle == "" {
		return clone(leads)
	}
	out := make([]domain.Lead, 0, len(leads))
	for _, l := range leads {
		if containsAny(needle, l.Name, l.Contact, l.Location, l.Note) {
			out = append(out, l)
		}
	}
	return out
}

// SearchExposes keeps exposes where q occurs in a form value or the generated text
func SearchExposes(exposes []domain.SavedExpose, q string) []domain.SavedExpose {
	needle := strings.ToLower(strings.TrimSpace(q))
	out := make([]domain.SavedExpose, 0, len(exposes))
	for _, e := range exposes {
		if needle == "" || matchesExpose(needle, e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

func matchesExpose(needle string, e domain.SavedExpose) bool {
	if strings.Contains(strings.ToLower(e.Output), needle) {
		return true
	}
	for _, v := range e.FormData {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

func containsAny(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// Sort orders leads by key. Ties fall back to creation time and then id so
// that the order is total. Unknown keys return an unchanged copy.
func Sort(leads []domain.Lead, key SortKey, dir Direction) []domain.Lead {
	out := clone(leads)

	var primary func(a, b domain.Lead) int
	switch key {
	case SortByName:
		c := collator()
		primary = func(a, b domain.Lead) int {
			return c.CompareString(a.Name, b.Name)
		}
	case SortByCreatedAt:
		primary = func(a, b domain.Lead) int {
			return compareTime(a, b)
		}
	case SortByStatus:
		primary = func(a, b domain.Lead) int {
			return a.Status.Priority() - b.Status.Priority()
		}
	default:
		return out
	}

	sign := 1
	if dir == Desc {
		sign = -1
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := primary(a, b); c != 0 {
			return sign*c < 0
		}
		if c := compareTime(a, b); c != 0 {
			return sign*c < 0
		}
		return sign*strings.Compare(a.ID, b.ID) < 0
	})
	return out
}

func compareTime(a, b domain.Lead) int {
	return a.Created().Compare(b.Created())
}

// collator returns a German collator. collate.Collator is not safe for
// concurrent use, so each Sort creates its own.
func collator() *collate.Collator {
	return collate.New(language.German)
}

func clone(leads []domain.Lead) []domain.Lead {
	out := make([]domain.Lead, len(leads))
	copy(out, leads)
	return out
}
