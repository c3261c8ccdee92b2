package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jasoncmcclain/mcpmp-api/api/controllers"
	"github.com/jasoncmcclain/mcpmp-api/api/middleware"
	"github.com/jasoncmcclain/mcpmp-api/pkg/config"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
	"github.com/jasoncmcclain/mcpmp-api/pkg/metrics"
	"github.com/jasoncmcclain/mcpmp-api/pkg/redis"
)

// Deps is everything the router hands to controllers. Redis and Gatherer are
// optional: without redis, Idempotency-Key is ignored; without a gatherer,
// /metrics is not mounted.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       *redis.Client
	Inventory   controllers.InventoryService
	Blends      controllers.BlendService
	Matcher     controllers.MatchService
	Allocation  controllers.AllocationService
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)
	if d.HTTPMetrics != nil {
		r.Use(middleware.Metrics(d.HTTPMetrics))
	}

	var idempotencyStore redis.IdempotencyStore
	if d.Redis != nil && cfg.FeatureFlags.Idempotency {
		idempotencyStore = d.Redis
	}
	idempotent := middleware.Idempotency(idempotencyStore, cfg.Idempotency.TTL, logg)

	deps := map[string]controllers.Pinger{"db": d.DB}
	if d.Redis != nil {
		deps["redis"] = d.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/", controllers.InventoryList(d.Inventory, logg))
			r.With(idempotent).Post("/", controllers.InventoryIntake(d.Inventory, logg))
			r.Get("/search", controllers.InventorySearch(d.Inventory, logg))
			r.Get("/varietal/{varietal}", controllers.InventoryByVarietal(d.Inventory, logg))
			r.Get("/{id}/reservations", controllers.InventoryReservations(d.Inventory, d.Allocation, logg))
		})

		r.Route("/blends", func(r chi.Router) {
			r.Get("/", controllers.BlendList(d.Blends, logg))
			r.Get("/{id}", controllers.BlendDetail(d.Blends, logg))
			r.Post("/{id}/match", controllers.BlendMatch(d.Blends, d.Matcher, logg))
		})

		r.Post("/match-lots", controllers.MatchLots(d.Matcher, logg))
		r.Post("/ttb-check", controllers.TTBCheck(logg))

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", controllers.RunList(d.Allocation, logg))
			r.With(idempotent).Post("/", controllers.RunCreate(d.Allocation, logg))
			r.Get("/{id}", controllers.RunDetail(d.Allocation, logg))
			r.Post("/{id}/schedule", controllers.RunSchedule(d.Allocation, logg))
			r.Post("/{id}/complete", controllers.RunComplete(d.Allocation, logg))
			r.Post("/{id}/cancel", controllers.RunCancel(d.Allocation, logg))
		})

		r.Route("/reservations", func(r chi.Router) {
			r.With(idempotent).Post("/", controllers.ReservationHold(d.Allocation, logg))
			r.Get("/{id}", controllers.ReservationGet(d.Allocation, logg))
			r.Post("/{id}/release", controllers.ReservationRelease(d.Allocation, logg))
		})
	})

	return r
}
