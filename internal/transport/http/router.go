package http

import (
	"context"
	"net/http"

	"github.com/estatehub/realtime/internal/config"
	"github.com/estatehub/realtime/internal/domain"
	"github.com/estatehub/realtime/internal/infrastructure/ws"
	"github.com/estatehub/realtime/internal/transport/http/handler"
	appmiddleware "github.com/estatehub/realtime/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. Cancelling ctx closes open sockets.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{appmiddleware.CacheHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 upgrades/second, burst of 10, per client IP.
	upgradeRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)
	responseCache := appmiddleware.ResponseCache(deps.Cache, cfg.Cache.CacheablePaths, cfg.Cache.DefaultTTL)

	healthH := handler.NewHealthHandler(deps.Dispatcher)
	notifH := handler.NewNotificationHandler(deps.Notifications)
	adminH := handler.NewAdminHandler(deps.Coordinator, deps.Cache)
	socketH := handler.NewSocketHandler(handler.SocketDeps{
		Registry: deps.Registry,
		Upgrader: ws.NewUpgrader(cfg.AllowedOrigins),
		Client: ws.Options{
			SendBuffer:   cfg.Realtime.SendBuffer,
			WriteTimeout: cfg.Realtime.WriteTimeout,
			PingInterval: cfg.Realtime.PingInterval,
		},
		CommandRate:  rate.Limit(cfg.Realtime.CommandRate),
		CommandBurst: cfg.Realtime.CommandBurst,
		Base:         ctx,
		Log:          deps.Log,
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		// Socket upgrade; the token may arrive as ?access_token=.
		r.With(upgradeRL.Limit, authMw).Get("/ws", socketH.Serve)

		// ── Cached reads ─────────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.OptionalAuth(deps.JWTProvider))
			r.Use(responseCache)

			r.Get("/stats", healthH.Stats)
			if deps.Mount != nil {
				deps.Mount(r)
			}
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/notifications", notifH.List)
			r.Get("/notifications/unread-count", notifH.UnreadCount)
			r.Put("/notifications/read-all", notifH.MarkAllRead)
			r.Put("/notifications/{id}/read", notifH.MarkRead)
			r.Delete("/notifications/{id}", notifH.Delete)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Post("/admin/notifications", adminH.CreateNotification)
				r.Post("/admin/broadcast", adminH.Broadcast)
				r.Post("/admin/property-events", adminH.PropertyEvent)
				r.Get("/admin/cache/stats", adminH.CacheStats)
				r.Delete("/admin/cache", adminH.InvalidateCache)
			})
		})
	})

	return r
}
