package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maklermate/maklermate-api/internal/auth"
	"github.com/maklermate/maklermate-api/internal/config"
	"github.com/maklermate/maklermate-api/internal/domain"
	"github.com/maklermate/maklermate-api/internal/http/handler"
	"github.com/maklermate/maklermate-api/internal/http/middleware"
	"github.com/maklermate/maklermate-api/internal/http/router"
	"github.com/maklermate/maklermate-api/internal/repository"
	"github.com/maklermate/maklermate-api/internal/service"
	"github.com/maklermate/maklermate-api/internal/store"
	"github.com/maklermate/maklermate-api/internal/textgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret-with-enough-entropy"

type stubGenerator struct {
	text string
	err  error
}

func (g *stubGenerator) Generate(_ context.Context, _ string) (string, error) {
	return g.text, g.err
}

type testServer struct {
	handler http.Handler
}

type serverOptions struct {
	authRequired bool
	quotaBytes   int64
	generator    textgen.Generator
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	logger := zap.NewNop()

	cfg := &config.Config{
		App:       config.AppConfig{Environment: "development"},
		Auth:      config.AuthConfig{JWTSecret: testSecret, Required: opts.authRequired},
		Server:    config.ServerConfig{MaxBodyMB: 1},
		RateLimit: config.RateLimitConfig{Enabled: false},
	}

	backend := store.NewMemoryBackend(store.NewMemoryHub(), opts.quotaBytes)
	repoOpts := repository.Options{Debounce: time.Hour, Logger: logger}
	leads := repository.NewLeadRepository(backend, "", repoOpts)
	exposes := repository.NewExposeRepository(backend, "", repoOpts)
	drafts := repository.NewDraftStore(backend, "", repoOpts)
	t.Cleanup(func() {
		leads.Close()
		exposes.Close()
		drafts.Close()
	})

	rt := router.NewRouter(
		cfg,
		logger,
		auth.NewMiddleware(&cfg.Auth, logger),
		middleware.NewRateLimiter(&cfg.RateLimit, logger),
		handler.NewHealthHandler(backend, config.BackendMemory, opts.generator != nil, logger),
		handler.NewLeadHandler(service.NewLeadService(leads, logger), logger),
		handler.NewExposeHandler(service.NewExposeService(exposes, opts.generator, logger), logger),
		handler.NewDraftHandler(service.NewDraftService(drafts, logger), logger),
	)
	return &testServer{handler: rt.Setup()}
}

func token(t *testing.T, subject string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "healthy", body["status"])
}

func TestLeads_CRUD(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w := s.do(t, http.MethodPost, "/api/v1/leads", "", map[string]string{
		"name":    "Anna Schmidt",
		"contact": "anna@example.com",
		"type":    "Kaufen",
		"status":  "VIP",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[domain.Lead](t, w)
	assert.Equal(t, "/api/v1/leads/"+created.ID, w.Header().Get("Location"))
	assert.Equal(t, domain.LeadTypeBuy, created.Type)
	assert.Equal(t, domain.LeadStatusVIP, created.Status)

	w = s.do(t, http.MethodPatch, "/api/v1/leads/"+created.ID, "", map[string]string{"note": "Rückruf Montag"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Rückruf Montag", decode[domain.Lead](t, w).Note)

	w = s.do(t, http.MethodGet, "/api/v1/leads?q=r%C3%BCckruf", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Lead](t, w), 1)

	w = s.do(t, http.MethodGet, "/api/v1/leads?status=cold", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]domain.Lead](t, w))

	w = s.do(t, http.MethodDelete, "/api/v1/leads/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/leads/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.ErrorTypeNotFound, decode[domain.APIError](t, w).Type)
}

func TestLeads_Validation(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	tests := []struct {
		name  string
		body  interface{}
		field string
	}{
		{"name too short", map[string]string{"name": "A"}, "name"},
		{"missing name", map[string]string{"contact": "anna@example.com"}, "name"},
		{"invalid contact", map[string]string{"name": "Anna", "contact": "nicht erreichbar"}, "contact"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/leads", "", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			apiErr := decode[domain.APIError](t, w)
			assert.Equal(t, domain.ErrorTypeValidation, apiErr.Type)
			assert.Contains(t, apiErr.Errors, tt.field)
		})
	}

	w := s.do(t, http.MethodPost, "/api/v1/leads", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrorTypeBadRequest, decode[domain.APIError](t, w).Type)
}

func TestLeads_BulkAndStats(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	var ids []string
	for _, name := range []string{"Anna", "Bernd", "Clara"} {
		w := s.do(t, http.MethodPost, "/api/v1/leads", "", map[string]string{"name": name})
		require.Equal(t, http.StatusCreated, w.Code)
		ids = append(ids, decode[domain.Lead](t, w).ID)
	}

	w := s.do(t, http.MethodPost, "/api/v1/leads/bulk/status", "", map[string]interface{}{
		"ids":    []string{ids[0], ids[1], "unknown"},
		"status": "warm",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.BulkResult{Requested: 3, Affected: 2}, decode[domain.BulkResult](t, w))

	w = s.do(t, http.MethodGet, "/api/v1/leads/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[domain.LeadStats](t, w)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[domain.LeadStatusWarm])

	w = s.do(t, http.MethodPost, "/api/v1/leads/bulk/delete", "", map[string]interface{}{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/leads", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "delete all needs confirmation")

	w = s.do(t, http.MethodDelete, "/api/v1/leads?confirm=true", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/leads", "", nil)
	assert.Empty(t, decode[[]domain.Lead](t, w))
}

func TestLeads_ImportExport(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w := s.do(t, http.MethodPost, "/api/v1/leads/import", "", `[{"id":"l1","name":"Anna Schmidt","status":"warm"},{"id":"l1","name":"Doppelt"}]`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.ImportResult{Total: 2, Imported: 1, Skipped: 1}, decode[domain.ImportResult](t, w))

	w = s.do(t, http.MethodPost, "/api/v1/leads/import", "", `{"id":"l2"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrorTypeInvalidFormat, decode[domain.APIError](t, w).Type)

	w = s.do(t, http.MethodGet, "/api/v1/leads/export?format=csv", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "maklermate-leads-")
	assert.Contains(t, w.Body.String(), `"Anna Schmidt"`)

	w = s.do(t, http.MethodGet, "/api/v1/leads/export?format=txt", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))

	w = s.do(t, http.MethodGet, "/api/v1/leads/export?format=xlsx", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeads_QuotaExceeded(t *testing.T) {
	s := newTestServer(t, serverOptions{quotaBytes: 64})

	w := s.do(t, http.MethodPost, "/api/v1/leads", "", map[string]string{
		"name": "Anna Schmidt",
		"note": strings.Repeat("Sehr lange Notiz. ", 20),
	})
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	apiErr := decode[domain.APIError](t, w)
	assert.Equal(t, domain.ErrorTypeQuota, apiErr.Type)
	assert.Equal(t, handler.QuotaMessage, apiErr.Detail)
}

func TestBodyTooLarge(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	body := `[` + strings.Repeat(`{"name":"Anna Schmidt"},`, 50000) + `{}]`
	w := s.do(t, http.MethodPost, "/api/v1/leads/import", "", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAuth_ScopesCollections(t *testing.T) {
	s := newTestServer(t, serverOptions{authRequired: true})

	w := s.do(t, http.MethodGet, "/api/v1/leads", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code, "health stays public")

	alice, bob := token(t, "alice"), token(t, "bob")

	w = s.do(t, http.MethodPost, "/api/v1/leads", alice, map[string]string{"name": "Anna Schmidt"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[domain.Lead](t, w).ID

	w = s.do(t, http.MethodGet, "/api/v1/leads", alice, nil)
	assert.Len(t, decode[[]domain.Lead](t, w), 1)

	w = s.do(t, http.MethodGet, "/api/v1/leads", bob, nil)
	assert.Empty(t, decode[[]domain.Lead](t, w))

	w = s.do(t, http.MethodGet, "/api/v1/leads/"+id, bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/leads", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExposes(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w := s.do(t, http.MethodPost, "/api/v1/exposes", "", map[string]interface{}{
		"formData":      map[string]string{"adresse": "Hauptstraße 1"},
		"output":        "Charmante Altbauwohnung",
		"selectedStyle": "sachlich",
		"images":        []string{"a.jpg", "b.jpg"},
		"captions":      []string{"Außen"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	e := decode[domain.SavedExpose](t, w)
	assert.Equal(t, []string{"Außen", ""}, e.Captions)

	w = s.do(t, http.MethodPost, "/api/v1/exposes/"+e.ID+"/images", "", map[string]string{"image": "c.jpg", "caption": "Garten"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, decode[domain.SavedExpose](t, w).Images)

	w = s.do(t, http.MethodPost, "/api/v1/exposes/"+e.ID+"/images/move", "", map[string]int{"from": 2, "to": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	moved := decode[domain.SavedExpose](t, w)
	assert.Equal(t, []string{"c.jpg", "a.jpg", "b.jpg"}, moved.Images)
	assert.Equal(t, []string{"Garten", "Außen", ""}, moved.Captions)

	w = s.do(t, http.MethodPut, "/api/v1/exposes/"+e.ID+"/images/2/caption", "", map[string]string{"caption": "Küche"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Küche", decode[domain.SavedExpose](t, w).Captions[2])

	w = s.do(t, http.MethodDelete, "/api/v1/exposes/"+e.ID+"/images/0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, decode[domain.SavedExpose](t, w).Images)

	w = s.do(t, http.MethodDelete, "/api/v1/exposes/"+e.ID+"/images/7", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/exposes/"+e.ID+"/images/first", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/exposes?q=altbau", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.SavedExpose](t, w), 1)

	w = s.do(t, http.MethodGet, "/api/v1/exposes/export?format=txt", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExposes_Generate(t *testing.T) {
	req := map[string]interface{}{
		"formData": map[string]string{"adresse": "Hauptstraße 1"},
		"style":    "luxus",
		"save":     true,
	}

	t.Run("success", func(t *testing.T) {
		s := newTestServer(t, serverOptions{generator: &stubGenerator{text: "Exklusives Wohnen"}})
		w := s.do(t, http.MethodPost, "/api/v1/exposes/generate", "", req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[domain.GenerateExposeResponse](t, w)
		assert.Equal(t, "Exklusives Wohnen", resp.Output)
		require.NotNil(t, resp.Expose)
		assert.Equal(t, domain.ExposeStyleLuxury, resp.Expose.SelectedStyle)
	})

	t.Run("upstream failure", func(t *testing.T) {
		s := newTestServer(t, serverOptions{generator: &stubGenerator{err: errors.New("connection reset")}})
		w := s.do(t, http.MethodPost, "/api/v1/exposes/generate", "", req)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t, serverOptions{})
		w := s.do(t, http.MethodPost, "/api/v1/exposes/generate", "", req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("empty form", func(t *testing.T) {
		s := newTestServer(t, serverOptions{generator: &stubGenerator{text: "x"}})
		w := s.do(t, http.MethodPost, "/api/v1/exposes/generate", "", map[string]interface{}{"formData": map[string]string{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDraft(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	w := s.do(t, http.MethodGet, "/api/v1/draft", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[domain.DraftForm](t, w))

	w = s.do(t, http.MethodPut, "/api/v1/draft", "", map[string]string{"adresse": "Hauptstraße 1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/draft", "", nil)
	assert.Equal(t, domain.DraftForm{"adresse": "Hauptstraße 1"}, decode[domain.DraftForm](t, w))

	w = s.do(t, http.MethodDelete, "/api/v1/draft", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/draft", "", nil)
	assert.Empty(t, decode[domain.DraftForm](t, w))
}
