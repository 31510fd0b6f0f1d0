package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/storyloop/backend/internal/auth"
	"github.com/storyloop/backend/internal/config"
	"github.com/storyloop/backend/internal/middleware"
)

// Router holds all handlers and creates the chi router
type Router struct {
	authHandler   *AuthHandler
	storyHandler  *StoryHandler
	socialHandler *SocialHandler
	mediaHandler  *MediaHandler
	wsHandler     *WSHandler
	healthHandler *HealthHandler
	jwtManager    *auth.JWTManager
	rateLimiter   *middleware.RateLimiter
	rateLimits    config.RateLimitConfig
	httpMetrics   middleware.HTTPMetrics
	metricsPage   http.Handler
	logger        *zap.Logger
}

// NewRouter creates a new router
func NewRouter(
	authHandler *AuthHandler,
	storyHandler *StoryHandler,
	socialHandler *SocialHandler,
	mediaHandler *MediaHandler,
	wsHandler *WSHandler,
	healthHandler *HealthHandler,
	jwtManager *auth.JWTManager,
	rateLimiter *middleware.RateLimiter,
	rateLimits config.RateLimitConfig,
	httpMetrics middleware.HTTPMetrics,
	metricsPage http.Handler,
	logger *zap.Logger,
) *Router {
	return &Router{
		authHandler:   authHandler,
		storyHandler:  storyHandler,
		socialHandler: socialHandler,
		mediaHandler:  mediaHandler,
		wsHandler:     wsHandler,
		healthHandler: healthHandler,
		jwtManager:    jwtManager,
		rateLimiter:   rateLimiter,
		rateLimits:    rateLimits,
		httpMetrics:   httpMetrics,
		metricsPage:   metricsPage,
		logger:        logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger, rt.httpMetrics))
	r.Use(middleware.CORSMiddleware())
	r.Use(chimiddleware.Compress(5))

	// Health endpoints (no auth required)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", rt.healthHandler.Health)
		r.Get("/ready", rt.healthHandler.Ready)
		r.Get("/live", rt.healthHandler.Live)
	})

	if rt.metricsPage != nil {
		r.Method(http.MethodGet, "/metrics", rt.metricsPage)
	}

	// Websocket endpoint authenticates via query token inside the handler.
	r.Get("/ws", rt.wsHandler.HandleWebSocket)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", rt.authHandler.Register)
			r.Post("/login", rt.authHandler.Login)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(rt.jwtManager))

			r.Get("/me", rt.authHandler.Me)
			r.Get("/ws/status", rt.wsHandler.Status)

			r.Route("/stories", func(r chi.Router) {
				r.With(rt.rateLimiter.Limit("stories", rt.rateLimits.Stories)).
					Post("/", rt.storyHandler.CreateStory)
				r.Get("/feed", rt.storyHandler.GetFeed)
				r.Get("/stats", rt.storyHandler.Stats)
				r.Get("/{storyId}", rt.storyHandler.GetStory)
				r.Delete("/{storyId}", rt.storyHandler.DeleteStory)
				r.With(rt.rateLimiter.Limit("views", rt.rateLimits.Views)).
					Post("/{storyId}/view", rt.storyHandler.RecordView)
				r.With(rt.rateLimiter.Limit("reactions", rt.rateLimits.Reactions)).
					Post("/{storyId}/reactions", rt.storyHandler.React)
			})

			r.Route("/social", func(r chi.Router) {
				r.With(rt.rateLimiter.Limit("follows", rt.rateLimits.Follows)).
					Post("/follow/{userId}", rt.socialHandler.Follow)
				r.Delete("/follow/{userId}", rt.socialHandler.Unfollow)
				r.Get("/followers", rt.socialHandler.Followers)
				r.Get("/following", rt.socialHandler.Following)
				r.Get("/mutuals", rt.socialHandler.Mutuals)
				r.Get("/counts", rt.socialHandler.Counts)
			})

			r.Route("/media", func(r chi.Router) {
				r.Post("/upload-url", rt.mediaHandler.PresignUpload)
				r.Get("/download-url", rt.mediaHandler.PresignDownload)
			})
		})
	})

	return r
}
