package domain

import "time"

// LeadSchemaVersion is the current schema version stamped on every stored lead
const LeadSchemaVersion = 2

// ISOLayout is the canonical timestamp layout (UTC, millisecond precision)
const ISOLayout = "2006-01-02T15:04:05.000Z"

// FormatISO formats t in the canonical timestamp layout
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// ParseISO parses a canonical timestamp, returning the zero time on failure
func ParseISO(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// LeadStatus represents how warm a lead is
type LeadStatus string

const (
	LeadStatusNew  LeadStatus = "neu"
	LeadStatusWarm LeadStatus = "warm"
	LeadStatusCold LeadStatus = "cold"
	LeadStatusVIP  LeadStatus = "vip"
)

// AllLeadStatuses returns every valid lead status
func AllLeadStatuses() []LeadStatus {
	return []LeadStatus{LeadStatusNew, LeadStatusWarm, LeadStatusCold, LeadStatusVIP}
}

// Valid reports whether s is a known status
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusWarm, LeadStatusCold, LeadStatusVIP:
		return true
	}
	return false
}

// Priority ranks statuses from coldest (0) to hottest (3)
func (s LeadStatus) Priority() int {
	switch s {
	case LeadStatusVIP:
		return 3
	case LeadStatusWarm:
		return 2
	case LeadStatusNew:
		return 1
	default:
		return 0
	}
}

// LeadType represents what the client wants to do with a property
type LeadType string

const (
	LeadTypeRent LeadType = "mieten"
	LeadTypeBuy  LeadType = "kaufen"
	LeadTypeSell LeadType = "verkaufen"
	LeadTypeLet  LeadType = "vermieten"
)

// AllLeadTypes returns every valid lead type
func AllLeadTypes() []LeadType {
	return []LeadType{LeadTypeRent, LeadTypeBuy, LeadTypeSell, LeadTypeLet}
}

// Valid reports whether t is a known type
func (t LeadType) Valid() bool {
	switch t {
	case LeadTypeRent, LeadTypeBuy, LeadTypeSell, LeadTypeLet:
		return true
	}
	return false
}

// ExposeStyle is the tone used when generating marketing copy
type ExposeStyle string

const (
	ExposeStyleEmotional ExposeStyle = "emotional"
	ExposeStyleFactual   ExposeStyle = "sachlich"
	ExposeStyleLuxury    ExposeStyle = "luxus"
)

// AllExposeStyles returns every valid style
func AllExposeStyles() []ExposeStyle {
	return []ExposeStyle{ExposeStyleEmotional, ExposeStyleFactual, ExposeStyleLuxury}
}

// Valid reports whether s is a known style
func (s ExposeStyle) Valid() bool {
	switch s {
	case ExposeStyleEmotional, ExposeStyleFactual, ExposeStyleLuxury:
		return true
	}
	return false
}

// Lead represents a prospective client tracked by an agent.
// Every Lead handed out by the repository has been through the normalizer,
// so all fields hold canonical values.
type Lead struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Contact   string     `json:"contact"`
	Type      LeadType   `json:"type"`
	Status    LeadStatus `json:"status"`
	Location  string     `json:"location"`
	Note      string     `json:"note"`
	CreatedAt string     `json:"createdAt"` // ISO 8601
	UpdatedAt string     `json:"updatedAt"` // ISO 8601
	Version   int        `json:"_v"`
}

// Created returns the creation time
func (l Lead) Created() time.Time {
	return ParseISO(l.CreatedAt)
}

// Updated returns the last modification time
func (l Lead) Updated() time.Time {
	return ParseISO(l.UpdatedAt)
}

// SavedExpose is a generated marketing text bundled with the form inputs that produced it.
// Images and Captions are positionally coupled and always have the same length.
type SavedExpose struct {
	ID            string            `json:"id"`
	FormData      map[string]string `json:"formData"`
	Output        string            `json:"output"`
	SelectedStyle ExposeStyle       `json:"selectedStyle"`
	Images        []string          `json:"images"`
	Captions      []string          `json:"captions"`
	CreatedAt     string            `json:"createdAt"` // ISO 8601
	UpdatedAt     string            `json:"updatedAt"` // ISO 8601
}

// Created returns the creation time
func (e SavedExpose) Created() time.Time {
	return ParseISO(e.CreatedAt)
}

// Title returns a short human readable label for the expose
func (e SavedExpose) Title() string {
	for _, key := range []string{"titel", "title", "adresse", "address", "objektart"} {
		if v := e.FormData[key]; v != "" {
			return v
		}
	}
	return "Exposé " + e.ID
}

// Clone returns a deep copy so callers can mutate without touching shared slices
func (e SavedExpose) Clone() SavedExpose {
	out := e
	out.FormData = make(map[string]string, len(e.FormData))
	for k, v := range e.FormData {
		out.FormData[k] = v
	}
	out.Images = append([]string{}, e.Images...)
	out.Captions = append([]string{}, e.Captions...)
	return out
}

// AddImage appends an image with its caption
func (e *SavedExpose) AddImage(ref, caption string) {
	e.Images = append(e.Images, ref)
	e.Captions = append(e.Captions, caption)
}

// RemoveImage removes the image at index together with its caption
func (e *SavedExpose) RemoveImage(index int) error {
	if index < 0 || index >= len(e.Images) {
		return NewValidationError("index", "Image index out of range")
	}
	e.Images = append(e.Images[:index:index], e.Images[index+1:]...)
	e.Captions = append(e.Captions[:index:index], e.Captions[index+1:]...)
	return nil
}

// MoveImage moves the image (and its caption) from one position to another
func (e *SavedExpose) MoveImage(from, to int) error {
	n := len(e.Images)
	if from < 0 || from >= n {
		return NewValidationError("from", "Image index out of range")
	}
	if to < 0 || to >= n {
		return NewValidationError("to", "Image index out of range")
	}
	if from == to {
		return nil
	}
	e.Images = moveElement(e.Images, from, to)
	e.Captions = moveElement(e.Captions, from, to)
	return nil
}

// SetCaption replaces the caption of the image at index
func (e *SavedExpose) SetCaption(index int, caption string) error {
	if index < 0 || index >= len(e.Captions) {
		return NewValidationError("index", "Image index out of range")
	}
	e.Captions[index] = caption
	return nil
}

func moveElement(s []string, from, to int) []string {
	out := make([]string, 0, len(s))
	item := s[from]
	for i, v := range s {
		if i == from {
			continue
		}
		if i == to && to < from {
			out = append(out, item)
		}
		out = append(out, v)
		if i == to && to > from {
			out = append(out, item)
		}
	}
	return out
}

// DraftForm is the single most-recent working copy of the expose form
type DraftForm map[string]string
