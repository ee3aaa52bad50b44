package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"

	"github.com/teleos-scientific/tlink-backend/api/controllers"
	"github.com/teleos-scientific/tlink-backend/api/routes"
	"github.com/teleos-scientific/tlink-backend/internal/samples"
	"github.com/teleos-scientific/tlink-backend/internal/shipments"
	"github.com/teleos-scientific/tlink-backend/internal/supplies"
	"github.com/teleos-scientific/tlink-backend/pkg/carrier"
	"github.com/teleos-scientific/tlink-backend/pkg/config"
	"github.com/teleos-scientific/tlink-backend/pkg/db"
	"github.com/teleos-scientific/tlink-backend/pkg/logger"
	"github.com/teleos-scientific/tlink-backend/pkg/metrics"
	"github.com/teleos-scientific/tlink-backend/pkg/migrate"
	"github.com/teleos-scientific/tlink-backend/pkg/outbox"
	"github.com/teleos-scientific/tlink-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

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
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	shipmentMetrics := metrics.NewShipmentMetrics(registry)
	carrierMetrics := metrics.NewCarrierMetrics(registry)

	carrierClient, err := carrier.NewClient(context.Background(), cfg.Carrier, logg, carrierMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build carrier client", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	samplesService, err := samples.NewService(samples.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build samples service", err)
		os.Exit(1)
	}

	suppliesRepo := supplies.NewRepository(dbClient.DB())
	suppliesService, err := supplies.NewService(suppliesRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build supplies service", err)
		os.Exit(1)
	}

	threshold, err := decimal.NewFromString(cfg.Hazmat.Threshold)
	if err != nil {
		logg.Error(context.Background(), "invalid hazmat threshold", err)
		os.Exit(1)
	}

	shipmentsService, err := shipments.NewService(shipments.ServiceDeps{
		Repo:     shipments.NewRepository(dbClient.DB()),
		Lots:     samples.NewRepository(dbClient.DB()),
		Reserver: samples.NewLotReserver(),
		Supplies: supplies.NewConsumer(suppliesRepo),
		Stock:    suppliesRepo,
		Tx:       dbClient,
		Outbox:   outboxService,
		Carrier:  carrierClient,
		Quotes:   redisClient,
		Hazmat:   shipments.NewHazmatEvaluator(threshold),
		Metrics:  shipmentMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build shipments service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Samples:   samplesService,
			Supplies:  suppliesService,
			Shipments: shipmentsService,
			Pingers: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Registry: registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
