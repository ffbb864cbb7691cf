package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"mindmesh/application/ports"
	"mindmesh/infrastructure/config"
	"mindmesh/interfaces/http/rest/handlers"
	"mindmesh/interfaces/http/rest/middleware"
	"mindmesh/pkg/auth"
	"mindmesh/pkg/observability"
)

// Router creates and configures the HTTP router
type Router struct {
	cfg       *config.Config
	repo      ports.DocumentRepository
	publisher ports.EventPublisher
	issuer    *auth.TokenIssuer
	pusher    handlers.AccessPusher
	wsHandler http.Handler
	metrics   *observability.Collector
	logger    *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	cfg *config.Config,
	repo ports.DocumentRepository,
	publisher ports.EventPublisher,
	issuer *auth.TokenIssuer,
	pusher handlers.AccessPusher,
	wsHandler http.Handler,
	metrics *observability.Collector,
	logger *zap.Logger,
) *Router {
	return &Router{
		cfg:       cfg,
		repo:      repo,
		publisher: publisher,
		issuer:    issuer,
		pusher:    pusher,
		wsHandler: wsHandler,
		metrics:   metrics,
		logger:    logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	if rt.cfg.EnableMetrics {
		router.Use(middleware.Metrics(rt.metrics))
	}

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.mindmesh.app"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	if rt.cfg.EnableMetrics {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	// Room entry; the join token in the query string authenticates
	router.Handle("/ws", rt.wsHandler)

	// API routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.issuer, rt.logger))

		documentHandler := handlers.NewDocumentHandler(rt.repo, rt.publisher, rt.pusher, rt.metrics, rt.logger)
		accessHandler := handlers.NewAccessHandler(rt.repo, rt.issuer, rt.pusher, rt.publisher, rt.logger)

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", documentHandler.ListDocuments)
			r.Route("/{documentID}", func(r chi.Router) {
				r.Get("/", documentHandler.GetDocument)
				r.Put("/", documentHandler.SaveDocument)
				r.Delete("/", documentHandler.DeleteDocument)

				r.Post("/join-token", accessHandler.IssueJoinToken)
				r.Post("/revoke", accessHandler.RevokeAccess)
				r.Put("/public", accessHandler.SetPublicLevel)
				r.Route("/collaborators/{userID}", func(r chi.Router) {
					r.Delete("/", accessHandler.RemoveCollaborator)
					r.Put("/role", accessHandler.ChangeRole)
				})
			})
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
