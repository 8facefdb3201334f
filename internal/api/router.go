package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ssharvesh-steep/cracoe-social-media/internal/api/middleware"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/config"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/handlers"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/live"
	"github.com/ssharvesh-steep/cracoe-social-media/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, logger zerolog.Logger, db store.DataStore, redisStore *store.RedisStore, publisher live.Publisher, hub *live.Hub) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (no-op without Redis)
	limiter := middleware.NewRateLimiter(redisStore, cfg.RateLimitPerMinute, logger)
	r.Use(limiter.Middleware)

	// CORS - the web client calls from its own origin in dev
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create handler and auth middleware
	auth := middleware.NewAuthMiddleware(db, cfg.JWTSecret, cfg.TokenTTL)
	h := handlers.NewHandler(db, redisStore, publisher, hub, auth, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/auth/signup", h.Signup)
	r.Post("/auth/login", h.Login)
	r.Get("/users/{username}", h.GetUser)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/me", h.Me)
		r.Post("/conversations/resolve", h.ResolveConversation)
		r.Get("/conversations", h.ListConversations)
		r.Get("/conversations/{id}/messages", h.ListMessages)
		r.Post("/conversations/{id}/messages", h.SendMessage)
		r.Get("/conversations/{id}/messages/{msgID}", h.GetMessage)
		r.Post("/conversations/{id}/read", h.MarkRead)
		r.Get("/messages/unread-count", h.UnreadCount)
		r.Get("/ws", h.LiveSocket)
	})

	return r
}
