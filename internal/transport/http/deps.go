package http

import (
	"log/slog"

	"github.com/estatehub/realtime/internal/application/delivery"
	"github.com/estatehub/realtime/internal/application/notification"
	"github.com/estatehub/realtime/internal/application/realtime"
	"github.com/estatehub/realtime/internal/config"
	"github.com/estatehub/realtime/internal/infrastructure/cache"
	jwtinfra "github.com/estatehub/realtime/internal/infrastructure/jwt"
	"github.com/estatehub/realtime/internal/infrastructure/metrics"
	"github.com/go-chi/chi/v5"
)

// Deps holds every collaborator the router serves.
type Deps struct {
	Notifications notification.Service
	Registry      *realtime.Registry
	Dispatcher    *realtime.Dispatcher
	Cache         *cache.Cache
	Coordinator   *delivery.Coordinator
	Metrics       *metrics.Metrics
	JWTProvider   *jwtinfra.Provider
	Log           *slog.Logger

	// Mount registers extra read routes under /v1. They sit behind the response cache.
	Mount func(r chi.Router)
}

// NewDeps assembles the delivery graph over repo: one registry and dispatcher per process,
// a response cache sized from cfg, and the coordinator that ties them to the store.
// fwd may be nil.
func NewDeps(cfg *config.Config, repo notification.Repository, fwd delivery.Forwarder, jwt *jwtinfra.Provider, log *slog.Logger) *Deps {
	if log == nil {
		log = slog.Default()
	}
	reg := realtime.NewRegistry()
	disp := realtime.NewDispatcher(reg, log)
	c := cache.New(cache.Options{DefaultTTL: cfg.Cache.DefaultTTL, MaxEntries: cfg.Cache.MaxEntries})
	svc := notification.NewService(notification.ServiceDeps{Repo: repo})
	m := metrics.New(metrics.Sources{Registry: reg, Dispatcher: disp, Cache: c})
	coord := delivery.NewCoordinator(delivery.CoordinatorDeps{
		Notifications:  svc,
		Publisher:      disp,
		Cache:          c,
		Recorder:       m,
		Forwarder:      fwd,
		PersistTimeout: cfg.PersistTimeout,
		Log:            log,
	})
	return &Deps{
		Notifications: svc,
		Registry:      reg,
		Dispatcher:    disp,
		Cache:         c,
		Coordinator:   coord,
		Metrics:       m,
		JWTProvider:   jwt,
		Log:           log,
	}
}
