// Package normalizer coerces raw, partial or legacy shaped records into the
// canonical shape. Every function in this package is total: it never returns
// an error and never panics, falling back to defaults instead.
package normalizer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maklermate/maklermate-api/internal/domain"
)

// now is swapped by tests that need deterministic timestamps
var now = time.Now

// NormalizeStatus lower-cases and trims raw; unknown values become neu
func NormalizeStatus(raw any) domain.LeadStatus {
	s := domain.LeadStatus(strings.ToLower(strings.TrimSpace(asString(raw))))
	if s.Valid() {
		return s
	}
	return domain.LeadStatusNew
}

// NormalizeType lower-cases and trims raw; unknown values become mieten
func NormalizeType(raw any) domain.LeadType {
	t := domain.LeadType(strings.ToLower(strings.TrimSpace(asString(raw))))
	if t.Valid() {
		return t
	}
	return domain.LeadTypeRent
}

// NormalizeStyle lower-cases and trims raw; unknown values become emotional
func NormalizeStyle(raw any) domain.ExposeStyle {
	s := domain.ExposeStyle(strings.ToLower(strings.TrimSpace(asString(raw))))
	if s.Valid() {
		return s
	}
	return domain.ExposeStyleEmotional
}

// maxEpochMillis mirrors the range of a JavaScript Date
const maxEpochMillis = 8.64e15

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	"2006-01",
	"2006",
}

// epochMinDigits is the shortest numeric string read as epoch milliseconds.
// Shorter ones such as "2024" are years.
const epochMinDigits = 5

// ToISODate converts raw into a canonical ISO-8601 timestamp.
// Accepted inputs are timestamp strings, epoch milliseconds (as number or
// numeric string) and time.Time values. Anything else yields the current time.
func ToISODate(raw any) string {
	return toISODateAt(raw, now())
}

func toISODateAt(raw any, fallback time.Time) string {
	if t, ok := parseTime(raw); ok {
		return domain.FormatISO(t)
	}
	return domain.FormatISO(fallback)
}

// parseTime accepts only results that the canonical layout can write and read
// back, i.e. years 1 through 9999
func parseTime(raw any) (time.Time, bool) {
	t, ok := parseAnyTime(raw)
	if !ok {
		return time.Time{}, false
	}
	if y := t.UTC().Year(); y < 1 || y > 9999 {
		return time.Time{}, false
	}
	return t, true
}

func parseAnyTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return parseAnyTime(*v)
	case float64:
		return fromEpochMillis(v)
	case float32:
		return fromEpochMillis(float64(v))
	case int:
		return fromEpochMillis(float64(v))
	case int64:
		return fromEpochMillis(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromEpochMillis(f)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && len(strings.TrimLeft(s, "+-")) >= epochMinDigits {
			return fromEpochMillis(f)
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func fromEpochMillis(ms float64) (time.Time, bool) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || math.Abs(ms) > maxEpochMillis {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}

// NewID returns a unique record id made of a millisecond timestamp and a random suffix
func NewID(at time.Time) string {
	return fmt.Sprintf("%d-%s", at.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// asString renders scalar JSON values as strings; containers and nil become ""
func asString(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// present reports whether a field carries a usable value
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	default:
		return true
	}
}

// toMap returns a shallow copy of raw when it is a JSON object, otherwise an empty map
func toMap(raw any) map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out
	case json.RawMessage:
		return decodeMap(v)
	case []byte:
		return decodeMap(v)
	case domain.Lead:
		return leadToMap(v)
	case *domain.Lead:
		if v == nil {
			return map[string]any{}
		}
		return leadToMap(*v)
	case domain.SavedExpose:
		return exposeToMap(v)
	case *domain.SavedExpose:
		if v == nil {
			return map[string]any{}
		}
		return exposeToMap(*v)
	default:
		return map[string]any{}
	}
}

func decodeMap(data []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}
