package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jasoncmcclain/mcpmp-api/api/routes"
	"github.com/jasoncmcclain/mcpmp-api/internal/allocation"
	"github.com/jasoncmcclain/mcpmp-api/internal/blends"
	"github.com/jasoncmcclain/mcpmp-api/internal/inventory"
	"github.com/jasoncmcclain/mcpmp-api/internal/matcher"
	"github.com/jasoncmcclain/mcpmp-api/pkg/config"
	"github.com/jasoncmcclain/mcpmp-api/pkg/db"
	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
	"github.com/jasoncmcclain/mcpmp-api/pkg/metrics"
	"github.com/jasoncmcclain/mcpmp-api/pkg/migrate"
	"github.com/jasoncmcclain/mcpmp-api/pkg/outbox"
	"github.com/jasoncmcclain/mcpmp-api/pkg/redis"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.Bootstrap("api")

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Fields:      map[string]string{"env": cfg.App.Env},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	conn := dbClient.DB()
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	ledger, err := inventory.NewService(inventory.NewRepository(conn), dbClient, events, logg)
	if err != nil {
		logg.Error(ctx, "failed to create inventory service", err)
		os.Exit(1)
	}
	blendSvc, err := blends.NewService(blends.NewRepository(conn))
	if err != nil {
		logg.Error(ctx, "failed to create blend service", err)
		os.Exit(1)
	}
	match, err := matcher.New(ledger, cfg.Allocation.CandidateLimit)
	if err != nil {
		logg.Error(ctx, "failed to create matcher", err)
		os.Exit(1)
	}
	alloc, err := allocation.NewService(allocation.Params{
		Repo:           allocation.NewRepository(conn),
		Ledger:         ledger,
		Tx:             dbClient,
		Outbox:         events,
		Metrics:        metrics.NewAllocationMetrics(reg),
		Logger:         logg,
		ReservationTTL: cfg.Allocation.ReservationTTL,
		HoldTTL:        cfg.Allocation.HoldTTL,
	})
	if err != nil {
		logg.Error(ctx, "failed to create allocation service", err)
		os.Exit(1)
	}

	addr := ":" + cfg.App.Port
	ctx = logg.WithField(ctx, "addr", addr)

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Inventory:   ledger,
			Blends:      blendSvc,
			Matcher:     match,
			Allocation:  alloc,
			HTTPMetrics: metrics.NewHTTPMetrics(reg),
			Gatherer:    reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api server shutdown failed", err)
		return
	}
	logg.Info(shutdownCtx, "api server stopped")
}
