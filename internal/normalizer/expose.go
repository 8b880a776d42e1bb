package normalizer

import (
	"strings"

	"github.com/maklermate/maklermate-api/internal/domain"
)

// NormalizeExpose coerces a raw saved expose into its canonical shape.
// Non-string image entries are dropped together with their caption, and
// captions are padded or cut so that they line up with the images.
func NormalizeExpose(raw any) domain.SavedExpose {
	rec := toMap(raw)
	at := now()

	e := domain.SavedExpose{
		ID:       strings.TrimSpace(asString(rec["id"])),
		FormData: normalizeFormData(rec["formData"]),
		Output:   asString(firstPresent(rec, "output", "text", "generatedText")),
	}
	e.SelectedStyle = NormalizeStyle(firstPresent(rec, "selectedStyle", "style"))
	if e.ID == "" {
		e.ID = NewID(at)
	}

	images := toSlice(rec["images"])
	captions := toSlice(rec["captions"])
	e.Images = make([]string, 0, len(images))
	e.Captions = make([]string, 0, len(images))
	for i, img := range images {
		ref, ok := img.(string)
		if !ok || strings.TrimSpace(ref) == "" {
			continue
		}
		caption := ""
		if i < len(captions) {
			caption = asString(captions[i])
		}
		e.Images = append(e.Images, ref)
		e.Captions = append(e.Captions, caption)
	}

	e.CreatedAt = toISODateAt(firstPresent(rec, "createdAt", "created"), at)
	e.UpdatedAt = e.CreatedAt
	if updated, ok := parseTime(rec["updatedAt"]); ok && !updated.Before(domain.ParseISO(e.CreatedAt)) {
		e.UpdatedAt = domain.FormatISO(updated)
	}
	return e
}

func normalizeFormData(raw any) map[string]string {
	out := map[string]string{}
	m, ok := raw.(map[string]any)
	if !ok {
		if typed, ok := raw.(map[string]string); ok {
			for k, v := range typed {
				out[k] = v
			}
		}
		return out
	}
	for k, v := range m {
		out[k] = asString(v)
	}
	return out
}

func firstPresent(rec map[string]any, keys ...string) any {
	for _, k := range keys {
		if present(rec[k]) {
			return rec[k]
		}
	}
	return nil
}

func toSlice(raw any) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

func exposeToMap(e domain.SavedExpose) map[string]any {
	formData := make(map[string]any, len(e.FormData))
	for k, v := range e.FormData {
		formData[k] = v
	}
	return map[string]any{
		"id":            e.ID,
		"formData":      formData,
		"output":        e.Output,
		"selectedStyle": string(e.SelectedStyle),
		"images":        toSlice(e.Images),
		"captions":      toSlice(e.Captions),
		"createdAt":     e.CreatedAt,
		"updatedAt":     e.UpdatedAt,
	}
}
