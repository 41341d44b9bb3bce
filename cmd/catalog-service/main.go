package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"orderflow/internal/auth"
	"orderflow/internal/config"
	httpapi "orderflow/internal/http"
	"orderflow/internal/repository"
	"orderflow/internal/service"
	"orderflow/internal/telemetry"
)

func main() {
	cfg, err := config.LoadCatalog()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := telemetry.NewLogger(os.Stdout, cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("catalog service stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Catalog, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			log.Warn("telemetry shutdown", "err", err)
		}
	}()

	var verifier *auth.Verifier
	if cfg.JWTPublicKeyPath != "" {
		if verifier, err = auth.LoadVerifier(cfg.JWTPublicKeyPath); err != nil {
			return err
		}
	}

	store := repository.NewMemoryStore()
	products := service.NewProductService(store, repository.NewMemoryTx(store), log)
	srv := httpapi.NewCatalogServer(products, verifier, log)

	return httpapi.Serve(ctx, log, &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Engine()}, cfg.ShutdownTimeout)
}
