// Package httpapi exposes the chat and user endpoints over HTTP.
//
// Routes:
//
//	POST   /api/chat/message
//	GET    /api/chat/history/{userId}[/{sessionId}]
//	GET    /api/chat/summary/{userId}/{sessionId}
//	DELETE /api/chat/conversation/{userId}/{sessionId}
//	GET    /api/user/profile/{userId}
//	PUT    /api/user/preferences/{userId}
//	GET    /api/user/analytics/{userId}?timeRange=7d
//	POST   /api/user/persona/{userId}
//	GET    /health
package httpapi

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/companionlabs/companion-go/pkg/cache"
	"github.com/companionlabs/companion-go/pkg/chat"
	"github.com/companionlabs/companion-go/pkg/core"
	"github.com/companionlabs/companion-go/pkg/memory"
)

// Server holds the handler dependencies.
type Server struct {
	orchestrator *chat.Orchestrator
	memory       *memory.Service
	logger       *log.Logger
	started      time.Time
}

// NewServer creates the API server.
func NewServer(orchestrator *chat.Orchestrator, svc *memory.Service, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		orchestrator: orchestrator,
		memory:       svc,
		logger:       logger,
		started:      time.Now(),
	}
}

// Handler builds the routed handler with middleware applied.
//
// Parameters:
//   - cfg: server and rate limit configuration
//   - redisCache: optional; enables Redis-backed rate limiting when present
func (s *Server) Handler(cfg *core.Config, redisCache *cache.Cache) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(10 << 20))
	r.Use(middleware.Timeout(60 * time.Second))

	corsOptions := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}
	if origin := cfg.Server.AllowedOrigin; origin != "" && origin != "*" {
		corsOptions.AllowedOrigins = []string{origin}
	} else {
		corsOptions.AllowedOrigins = []string{"*"}
		corsOptions.AllowCredentials = false
	}
	r.Use(cors.New(corsOptions).Handler)

	if redisCache != nil {
		r.Use(s.rateLimit(redisCache, cfg.RateLimit))
	}

	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/message", s.handleSendMessage)
		r.Get("/history/{userId}", s.handleHistory)
		r.Get("/history/{userId}/{sessionId}", s.handleHistory)
		r.Get("/summary/{userId}/{sessionId}", s.handleSummary)
		r.Delete("/conversation/{userId}/{sessionId}", s.handleDeleteConversation)
	})

	r.Route("/api/user", func(r chi.Router) {
		r.Get("/profile/{userId}", s.handleGetProfile)
		r.Put("/preferences/{userId}", s.handleUpdatePreferences)
		r.Get("/analytics/{userId}", s.handleAnalytics)
		r.Post("/persona/{userId}", s.handleGeneratePersona)
	})

	r.Get("/health", s.handleHealth)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Route not found"})
	})

	return r
}
