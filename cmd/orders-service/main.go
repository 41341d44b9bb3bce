package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"

	"orderflow/internal/auth"
	"orderflow/internal/client"
	"orderflow/internal/config"
	"orderflow/internal/events"
	httpapi "orderflow/internal/http"
	"orderflow/internal/idempotency"
	"orderflow/internal/repository"
	"orderflow/internal/service"
	"orderflow/internal/telemetry"
)

type trail interface {
	service.TrailPublisher
	Close() error
}

func main() {
	cfg, err := config.LoadOrders()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := telemetry.NewLogger(os.Stdout, cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("orders service stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Orders, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	shutdownMeter, err := telemetry.SetupMeter(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := errors.Join(shutdownMeter(sctx), shutdownTracer(sctx)); err != nil {
			log.Warn("telemetry shutdown", "err", err)
		}
	}()

	dialect, err := repository.ParseDialect(cfg.DBDriver)
	if err != nil {
		return err
	}
	db, err := repository.Open(ctx, dialect, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	orders := repository.NewSQLOrders(db, dialect)
	if err := orders.Migrate(ctx); err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.ClientTimeout}
	prober := client.NewHTTPProber(httpClient, cfg.HealthPath, cfg.ProbeTimeout, log)
	catalog := client.NewCatalogClient(cfg.CatalogURL, httpClient, prober, log)
	users := client.NewIdentityClient(cfg.IdentityURL, httpClient, prober, log)

	var publisher trail = events.NewLogPublisher(log)
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	}
	defer publisher.Close()

	var svc *service.OrderService
	metrics, err := telemetry.NewOrderMetrics(otel.Meter("orderflow/orders"), func(ctx context.Context) (decimal.Decimal, error) {
		return svc.TotalAmountToday(ctx)
	})
	if err != nil {
		return err
	}
	svc = service.NewOrderService(orders, users, service.NewAssembler(catalog, log), log,
		service.WithRecorder(metrics),
		service.WithTrail(publisher),
	)

	opts := []httpapi.OrderOption{httpapi.WithHealthChecks(
		httpapi.HealthCheck{Name: client.IdentityService, Check: users.Healthy},
		httpapi.HealthCheck{Name: client.CatalogService, Check: catalog.Healthy},
	)}
	if cfg.JWTPublicKeyPath != "" {
		verifier, err := auth.LoadVerifier(cfg.JWTPublicKeyPath)
		if err != nil {
			return err
		}
		opts = append(opts, httpapi.WithVerifier(verifier))
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, keyed requests will be rejected until it recovers", "addr", cfg.RedisAddr, "err", err)
		}
		opts = append(opts, httpapi.WithIdempotency(idempotency.NewStore(rdb, cfg.IdempotencyTTL)))
	}

	srv := httpapi.NewOrderServer(svc, log, opts...)
	return httpapi.Serve(ctx, log, &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Engine()}, cfg.ShutdownTimeout)
}
