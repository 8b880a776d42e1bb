package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/service"
	"go.uber.org/zap"
)

type ExposeHandler struct {
	exposeService *service.ExposeService
	logger        *zap.Logger
}

func NewExposeHandler(exposeService *service.ExposeService, logger *zap.Logger) *ExposeHandler {
	return &ExposeHandler{
		exposeService: exposeService,
		logger:        logger,
	}
}

// List returns the saved exposes matching ?q, newest first
func (h *ExposeHandler) List(w http.ResponseWriter, r *http.Request) {
	exposes, err := h.exposeService.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondServiceError(w, h.logger, err, "list exposes")
		return
	}
	respondJSON(w, http.StatusOK, exposes)
}

func (h *ExposeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateExposeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	expose, err := h.exposeService.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "create expose")
		return
	}

	w.Header().Set("Location", "/api/v1/exposes/"+expose.ID)
	respondJSON(w, http.StatusCreated, expose)
}

func (h *ExposeHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	expose, err := h.exposeService.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "get expose")
		return
	}
	respondJSON(w, http.StatusOK, expose)
}

func (h *ExposeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateExposeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	expose, err := h.exposeService.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "update expose")
		return
	}
	respondJSON(w, http.StatusOK, expose)
}

func (h *ExposeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.exposeService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, h.logger, err, "delete expose")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAll removes every expose of the caller. It requires ?confirm=true.
func (h *ExposeHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !ok {
		respondWithError(w, http.StatusBadRequest, "Deleting all exposes requires confirm=true")
		return
	}
	if err := h.exposeService.DeleteAll(r.Context()); err != nil {
		respondServiceError(w, h.logger, err, "delete exposes")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ExposeHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkDeleteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.exposeService.BulkDelete(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "delete exposes")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *ExposeHandler) AddImage(w http.ResponseWriter, r *http.Request) {
	var req domain.AddImageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	expose, err := h.exposeService.AddImage(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "add image")
		return
	}
	respondJSON(w, http.StatusOK, expose)
}

func (h *ExposeHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	index, ok := imageIndex(w, r)
	if !ok {
		return
	}

	expose, err := h.exposeService.RemoveImage(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		respondServiceError(w, h.logger, err, "remove image")
		return
	}
	respondJSON(w, http.StatusOK, expose)
}

func (h *ExposeHandler) MoveImage(w http.ResponseWriter, r *http.Request) {
	var req domain.MoveImageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	expose, err := h.exposeService.MoveImage(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "move image")
		return
	}
	respondJSON(w, http.StatusOK, expose)
}

func (h *ExposeHandler) SetCaption(w http.ResponseWriter, r *http.Request) {
	index, ok := imageIndex(w, r)
	if !ok {
		return
	}
	var req domain.CaptionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	expose, err := h.exposeService.SetCaption(r.Context(), chi.URLParam(r, "id"), index, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "set caption")
		return
	}
	respondJSON(w, http.StatusOK, expose)
}

func imageIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid image index")
		return 0, false
	}
	return index, true
}

// Generate asks the text generator for an expose text and optionally saves it
func (h *ExposeHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerateExposeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.exposeService.Generate(r.Context(), &req)
	if err != nil {
		if isUpstreamError(err) {
			h.logger.Warn("text generation failed", zap.Error(err))
			respondWithError(w, http.StatusBadGateway, "Textgenerierung fehlgeschlagen, bitte erneut versuchen")
			return
		}
		respondServiceError(w, h.logger, err, "generate expose")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// isUpstreamError reports errors raised by the generator rather than the store
func isUpstreamError(err error) bool {
	for _, known := range []error{
		domain.ErrNotFound,
		domain.ErrValidation,
		domain.ErrInvalidFormat,
		domain.ErrQuotaExceeded,
		service.ErrGeneratorUnavailable,
	} {
		if errors.Is(err, known) {
			return false
		}
	}
	return true
}

// Import merges a JSON array of exposes sent as the raw body
func (h *ExposeHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}

	res, err := h.exposeService.Import(r.Context(), data)
	if err != nil {
		respondServiceError(w, h.logger, err, "import exposes")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Export downloads the exposes matching ?q as ?format=json|csv
func (h *ExposeHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := service.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondServiceError(w, h.logger, err, "export exposes")
		return
	}

	export, err := h.exposeService.Export(r.Context(), format, r.URL.Query().Get("q"))
	if err != nil {
		respondServiceError(w, h.logger, err, "export exposes")
		return
	}
	writeExport(w, export)
}
