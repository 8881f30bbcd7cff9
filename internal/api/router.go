package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mehetab-01/apex-ai-sub001/internal/api/middleware"
	"github.com/mehetab-01/apex-ai-sub001/internal/apex"
	"github.com/mehetab-01/apex-ai-sub001/internal/handlers"
	"github.com/mehetab-01/apex-ai-sub001/internal/session"
	"github.com/mehetab-01/apex-ai-sub001/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, db store.DataStore, redisStore *store.RedisStore, registry *session.Registry, client *apex.Client, whitelist []string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // 64KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - the widget is served from the platform frontend
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create handler and auth middleware
	h := handlers.NewHandler(db, redisStore, registry, client)
	var cache middleware.TokenCache
	if redisStore != nil {
		cache = redisStore
	}
	auth := middleware.NewAuthMiddleware(client, cache, logger)

	// Rate limiting (disabled when Redis is not configured)
	var counter middleware.RateCounter
	if redisStore != nil {
		counter = redisStore
	}
	limiter := middleware.NewRateLimiter(counter, logger, whitelist)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required). Stats is the only public route
	// worth limiting, keyed by IP since there is no user yet.
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Get("/stats", h.Stats)
	})

	// Authenticated routes (require a valid platform token). The limiter
	// runs after auth so buckets are keyed per user, not per IP.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Use(limiter.Middleware)

		r.Get("/chat/state", h.GetChatState)
		r.Post("/chat/messages", h.PostMessage)
		r.Delete("/chat/messages", h.ClearMessages)
		r.Post("/chat/new", h.StartNewChat)
		r.Post("/chat/archive", h.SaveAndStartNewChat)

		r.Get("/chat/transcripts", h.ListTranscripts)
		r.Post("/chat/transcripts/{id}/restore", h.RestoreTranscript)
		r.Delete("/chat/transcripts/{id}", h.DeleteTranscript)

		r.Get("/chat/conversations", h.ListConversations)
		r.Post("/chat/conversations/{id}/resume", h.ResumeConversation)
		r.Delete("/chat/conversations/{id}", h.RemoveConversation)
	})

	return r
}
