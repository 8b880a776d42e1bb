package domain

// Request and response bodies exchanged with the UI layer

// CreateLeadRequest is the payload for creating a lead.
// Type and Status are coerced case-insensitively, unknown values fall back to defaults.
type CreateLeadRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Contact  string `json:"contact" validate:"omitempty,contact"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Location string `json:"location" validate:"max=200"`
	Note     string `json:"note" validate:"max=5000"`
}

// UpdateLeadRequest is a partial update; nil fields are left untouched
type UpdateLeadRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Contact  *string `json:"contact,omitempty" validate:"omitempty,contact"`
	Type     *string `json:"type,omitempty"`
	Status   *string `json:"status,omitempty"`
	Location *string `json:"location,omitempty" validate:"omitempty,max=200"`
	Note     *string `json:"note,omitempty" validate:"omitempty,max=5000"`
}

// BulkStatusRequest changes the status of several leads at once
type BulkStatusRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,dive,required"`
	Status string   `json:"status" validate:"required"`
}

// BulkDeleteRequest removes several records at once
type BulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// BulkResult reports how many records a bulk operation touched
type BulkResult struct {
	Requested int `json:"requested"`
	Affected  int `json:"affected"`
}

// ImportResult reports the outcome of a JSON import
type ImportResult struct {
	Total    int `json:"total"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// LeadStats counts leads per status
type LeadStats struct {
	Total    int                `json:"total"`
	ByStatus map[LeadStatus]int `json:"byStatus"`
	ByType   map[LeadType]int   `json:"byType"`
}

// CreateExposeRequest stores a generated text together with its form inputs
type CreateExposeRequest struct {
	FormData      map[string]string `json:"formData"`
	Output        string            `json:"output" validate:"required"`
	SelectedStyle string            `json:"selectedStyle"`
	Images        []string          `json:"images" validate:"omitempty,dive,required"`
	Captions      []string          `json:"captions"`
}

// UpdateExposeRequest is a partial update of an expose
type UpdateExposeRequest struct {
	FormData      map[string]string `json:"formData,omitempty"`
	Output        *string           `json:"output,omitempty" validate:"omitempty,min=1"`
	SelectedStyle *string           `json:"selectedStyle,omitempty"`
}

// AddImageRequest appends an image reference with its caption
type AddImageRequest struct {
	Image   string `json:"image" validate:"required"`
	Caption string `json:"caption" validate:"max=300"`
}

// MoveImageRequest reorders images
type MoveImageRequest struct {
	From int `json:"from" validate:"gte=0"`
	To   int `json:"to" validate:"gte=0"`
}

// CaptionRequest replaces a caption
type CaptionRequest struct {
	Caption string `json:"caption" validate:"max=300"`
}

// GenerateExposeRequest asks the text generator for marketing copy
type GenerateExposeRequest struct {
	FormData map[string]string `json:"formData" validate:"required,min=1"`
	Style    string            `json:"style"`
	Save     bool              `json:"save"`
}

// GenerateExposeResponse carries the generated text and, when saved, the stored expose
type GenerateExposeResponse struct {
	Output string       `json:"output"`
	Expose *SavedExpose `json:"expose,omitempty"`
}
