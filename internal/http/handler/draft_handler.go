package handler

import (
	"net/http"

	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/service"
	"go.uber.org/zap"
)

// DraftHandler serves the unsaved expose form of the caller
type DraftHandler struct {
	draftService *service.DraftService
	logger       *zap.Logger
}

func NewDraftHandler(draftService *service.DraftService, logger *zap.Logger) *DraftHandler {
	return &DraftHandler{
		draftService: draftService,
		logger:       logger,
	}
}

func (h *DraftHandler) Get(w http.ResponseWriter, r *http.Request) {
	draft, err := h.draftService.Get(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "load draft")
		return
	}
	respondJSON(w, http.StatusOK, draft)
}

// Save replaces the draft; the body is a flat object of form values
func (h *DraftHandler) Save(w http.ResponseWriter, r *http.Request) {
	var draft domain.DraftForm
	if !decodeJSON(w, r, &draft) {
		return
	}

	saved, err := h.draftService.Save(r.Context(), draft)
	if err != nil {
		respondServiceError(w, h.logger, err, "save draft")
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (h *DraftHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.draftService.Clear(r.Context()); err != nil {
		respondServiceError(w, h.logger, err, "clear draft")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
