package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/maklermate/maklermate-api/internal/auth"
	"github.com/maklermate/maklermate-api/internal/config"
	"github.com/maklermate/maklermate-api/internal/http/handler"
	"github.com/maklermate/maklermate-api/internal/http/middleware"
	"go.uber.org/zap"
)

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	authMiddleware *auth.Middleware
	rateLimiter    *middleware.RateLimiter
	healthHandler  *handler.HealthHandler
	leadHandler    *handler.LeadHandler
	exposeHandler  *handler.ExposeHandler
	draftHandler   *handler.DraftHandler
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	healthHandler *handler.HealthHandler,
	leadHandler *handler.LeadHandler,
	exposeHandler *handler.ExposeHandler,
	draftHandler *handler.DraftHandler,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		healthHandler:  healthHandler,
		leadHandler:    leadHandler,
		exposeHandler:  exposeHandler,
		draftHandler:   draftHandler,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(middleware.MaxBody(rt.cfg.Server.MaxBodyMB << 20))

	r.Get("/health", rt.healthHandler.Live)
	r.Get("/health/ready", rt.healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware.Handler)
		r.Use(middleware.TagUser)
		r.Use(rt.rateLimiter.Limit)
		if d := rt.cfg.Server.RequestTimeoutDuration(); d > 0 {
			r.Use(chimw.Timeout(d))
		}

		// Leads
		r.Route("/leads", func(r chi.Router) {
			r.Get("/", rt.leadHandler.List)
			r.Post("/", rt.leadHandler.Create)
			r.Delete("/", rt.leadHandler.DeleteAll)
			r.Get("/stats", rt.leadHandler.Stats)
			r.Get("/export", rt.leadHandler.Export)
			r.Post("/import", rt.leadHandler.Import)
			r.Post("/bulk/status", rt.leadHandler.BulkUpdateStatus)
			r.Post("/bulk/delete", rt.leadHandler.BulkDelete)
			r.Get("/{id}", rt.leadHandler.GetByID)
			r.Patch("/{id}", rt.leadHandler.Update)
			r.Delete("/{id}", rt.leadHandler.Delete)
		})

		// Saved exposes
		r.Route("/exposes", func(r chi.Router) {
			r.Get("/", rt.exposeHandler.List)
			r.Post("/", rt.exposeHandler.Create)
			r.Delete("/", rt.exposeHandler.DeleteAll)
			r.Post("/generate", rt.exposeHandler.Generate)
			r.Get("/export", rt.exposeHandler.Export)
			r.Post("/import", rt.exposeHandler.Import)
			r.Post("/bulk/delete", rt.exposeHandler.BulkDelete)
			r.Get("/{id}", rt.exposeHandler.GetByID)
			r.Patch("/{id}", rt.exposeHandler.Update)
			r.Delete("/{id}", rt.exposeHandler.Delete)

			// Images and captions stay aligned
			r.Post("/{id}/images", rt.exposeHandler.AddImage)
			r.Post("/{id}/images/move", rt.exposeHandler.MoveImage)
			r.Delete("/{id}/images/{index}", rt.exposeHandler.RemoveImage)
			r.Put("/{id}/images/{index}/caption", rt.exposeHandler.SetCaption)
		})

		// Expose form draft
		r.Route("/draft", func(r chi.Router) {
			r.Get("/", rt.draftHandler.Get)
			r.Put("/", rt.draftHandler.Save)
			r.Delete("/", rt.draftHandler.Clear)
		})
	})

	return r
}
