package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/query"
	"github.com/maklermate/maklermate-api/internal/service"
	"go.uber.org/zap"
)

type LeadHandler struct {
	leadService *service.LeadService
	logger      *zap.Logger
}

func NewLeadHandler(leadService *service.LeadService, logger *zap.Logger) *LeadHandler {
	return &LeadHandler{
		leadService: leadService,
		logger:      logger,
	}
}

// listOptions reads status, q, sortBy and dir from the query string
func listOptions(r *http.Request) query.Options {
	q := r.URL.Query()
	status := q.Get("status")
	if status == "" {
		status = query.StatusAll
	}
	return query.Options{
		Status:    status,
		Search:    q.Get("q"),
		SortBy:    query.SortKey(q.Get("sortBy")),
		Direction: query.ParseDirection(q.Get("dir")),
	}
}

// List returns the leads filtered by ?status, searched by ?q and sorted by ?sortBy and ?dir
func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	leads, err := h.leadService.List(r.Context(), listOptions(r))
	if err != nil {
		respondServiceError(w, h.logger, err, "list leads")
		return
	}
	respondJSON(w, http.StatusOK, leads)
}

// Create stores a new lead
func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateLeadRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	lead, err := h.leadService.Create(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "create lead")
		return
	}

	w.Header().Set("Location", "/api/v1/leads/"+lead.ID)
	respondJSON(w, http.StatusCreated, lead)
}

func (h *LeadHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	lead, err := h.leadService.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "get lead")
		return
	}
	respondJSON(w, http.StatusOK, lead)
}

// Update applies the fields present in the body
func (h *LeadHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateLeadRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	lead, err := h.leadService.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "update lead")
		return
	}
	respondJSON(w, http.StatusOK, lead)
}

func (h *LeadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.leadService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, h.logger, err, "delete lead")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAll removes every lead of the caller. It requires ?confirm=true.
func (h *LeadHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !ok {
		respondWithError(w, http.StatusBadRequest, "Deleting all leads requires confirm=true")
		return
	}
	if err := h.leadService.DeleteAll(r.Context()); err != nil {
		respondServiceError(w, h.logger, err, "delete leads")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LeadHandler) BulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.leadService.BulkUpdateStatus(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "update lead status")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *LeadHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkDeleteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.leadService.BulkDelete(r.Context(), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "delete leads")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Stats counts leads per status and type
func (h *LeadHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.leadService.Stats(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "get lead stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Import merges a JSON array of leads sent as the raw body
func (h *LeadHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}

	res, err := h.leadService.Import(r.Context(), data)
	if err != nil {
		respondServiceError(w, h.logger, err, "import leads")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Export downloads the leads as ?format=json|csv|txt, honouring the list filters
func (h *LeadHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := service.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondServiceError(w, h.logger, err, "export leads")
		return
	}

	export, err := h.leadService.Export(r.Context(), format, listOptions(r))
	if err != nil {
		respondServiceError(w, h.logger, err, "export leads")
		return
	}
	writeExport(w, export)
}

func writeExport(w http.ResponseWriter, export *service.Export) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}
