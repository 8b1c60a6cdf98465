package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ioms/backend/internal/apierrors"
	"github.com/ioms/backend/internal/auth"
	"github.com/ioms/backend/internal/correlation"
	"github.com/ioms/backend/internal/metrics"
	"github.com/ioms/backend/internal/model"
)

// RouterConfig holds the HTTP settings of the router.
type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	RateLimiter    *RateLimiter
	// Health reports the readiness of the backing store.
	Health func(ctx context.Context) error
}

// Handlers groups every endpoint handler.
type Handlers struct {
	JWT           *auth.JWTManager
	Auth          *auth.Handler
	Outages       *OutageHandler
	Applications  *ApplicationHandler
	Notifications *NotificationHandler
	Chat          *ChatHandler
	Reports       *ReportHandler
	Settings      *SettingsHandler
	WS            *WSHandler
}

// NewRouter mounts the API under /api/v1.
func NewRouter(cfg RouterConfig, h Handlers) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlation.Middleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apierrors.ErrorHandler)
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", correlation.HeaderName},
		ExposedHeaders:   []string{"Content-Disposition", correlation.HeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := cfg.Health(ctx); err != nil {
				WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unavailable"})
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	requireAuth := auth.Middleware(h.JWT)

	r.Route("/api/v1", func(r chi.Router) {
		// Websocket connections outlive the request timeout.
		if h.WS != nil {
			r.With(requireAuth).Get("/ws", h.WS.Serve)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			if cfg.RateLimiter != nil {
				r.Use(cfg.RateLimiter.Middleware)
			}

			// Public auth routes
			r.Route("/auth", func(r chi.Router) {
				r.Post("/login", h.Auth.Login)
				r.Post("/signup", h.Auth.Signup)
			})

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)

				r.Get("/auth/me", h.Auth.Me)
				r.Post("/auth/logout", h.Auth.Logout)

				r.Get("/users", h.Auth.ListUsers)
				r.With(auth.RequireRole(model.RoleAdmin)).Post("/users", h.Auth.CreateUser)

				r.Route("/outages", func(r chi.Router) {
					r.Get("/", h.Outages.List)
					r.Post("/", h.Outages.Create)
					r.Get("/calendar", h.Outages.Calendar)
					r.Post("/validate/conflicts", h.Outages.ValidateConflicts)
					r.Get("/{id}", h.Outages.Get)
					r.Patch("/{id}", h.Outages.Update)
					r.Patch("/{id}/approve", h.Outages.Approve)
					r.Patch("/{id}/reject", h.Outages.Reject)
					r.Patch("/{id}/cancel", h.Outages.Cancel)
					r.Patch("/{id}/start", h.Outages.Start)
					r.Patch("/{id}/complete", h.Outages.Complete)
					r.Get("/{id}/approval-check", h.Outages.ApprovalCheck)
					r.Get("/{id}/history", h.Outages.History)
					r.Post("/{id}/comments", h.Outages.AddComment)
				})

				r.Get("/dashboard/summary", h.Outages.Summary)

				r.Route("/applications", func(r chi.Router) {
					r.Get("/", h.Applications.List)
					r.Post("/", h.Applications.Create)
					r.Get("/{id}", h.Applications.Get)
					r.Post("/{id}/environments", h.Applications.AddEnvironment)
					r.Post("/{id}/locations", h.Applications.AddLocation)
					r.Put("/{id}/key-users", h.Applications.SetKeyUsers)
				})

				r.Route("/notifications", func(r chi.Router) {
					r.Get("/", h.Notifications.List)
					r.Get("/unread-count", h.Notifications.UnreadCount)
					r.Patch("/read-all", h.Notifications.MarkAllRead)
					r.Patch("/{id}/read", h.Notifications.MarkRead)
				})

				r.Route("/chat/conversations", func(r chi.Router) {
					r.Get("/", h.Chat.ListConversations)
					r.Post("/", h.Chat.CreateConversation)
					r.Get("/{id}/messages", h.Chat.ListMessages)
					r.Post("/{id}/messages", h.Chat.PostMessage)
				})

				r.Get("/reports/outages.csv", h.Reports.OutagesCSV)

				r.Get("/settings", h.Settings.Get)
				r.Put("/settings", h.Settings.Update)
			})
		})
	})

	return r
}
