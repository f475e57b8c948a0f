package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrops-br/emmytech-marketplace/internal/app/service"
	"github.com/mrops-br/emmytech-marketplace/internal/domain"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/config"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/events"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/http"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/http/handler"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/repository/memory"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/repository/postgres"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Marketplace stopped: %v", err)
		os.Exit(1)
	}
}

// run owns every deferred cleanup, so they have finished by the time main exits non-zero.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	var telem *telemetry.Telemetry
	if cfg.OTLP.Enabled {
		telem, err = telemetry.NewTelemetry(&cfg.OTLP, cfg.Log.Level)
	} else {
		telem, err = telemetry.NewNoOpTelemetry(&cfg.OTLP, cfg.Log.Level)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := telem.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	tracer := telem.TracerProvider.Tracer("emmytech-marketplace")
	meter := telem.MeterProvider.Meter("emmytech-marketplace")
	logger := telem.Logger

	logger.Info("Starting marketplace",
		slog.String("name", cfg.Marketplace.Name),
		slog.String("storage", cfg.Storage.Driver),
	)

	// Sinks come first: the store publishes to them inside its write path.
	journal := events.NewJournal()
	publisher := events.Fanout{journal}
	if cfg.Events.NATS.Enabled {
		nc, js, err := events.ConnectNats(cfg.Events.NATS.URL, cfg.Events.NATS.Timeout)
		if err != nil {
			logger.Error("Failed to connect to NATS", slog.String("error", err.Error()))
			return err
		}
		defer nc.Close()
		if err := events.EnsureStream(ctx, js, cfg.Events.NATS.Stream, cfg.Events.NATS.Subject); err != nil {
			logger.Error("Failed to prepare NATS stream", slog.String("error", err.Error()))
			return err
		}
		publisher = append(publisher, events.NewNatsPublisher(js, cfg.Events.NATS.Subject))
		logger.Info("Publishing events to NATS", slog.String("url", cfg.Events.NATS.URL))
	}

	store, ledger, closeStore, err := openStorage(ctx, cfg, publisher, tracer, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.String("error", err.Error()))
		return err
	}
	defer closeStore()

	marketplace := service.NewMarketplaceService(cfg.Marketplace.Name, store, ledger, journal, tracer, meter, logger)
	marketplaceHandler := handler.NewMarketplaceHandler(marketplace, logger)
	server := http.NewServer(&cfg.Server, marketplaceHandler, telem.MeterProvider, telem.Registry, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Server error", "error", err.Error())
			serverErr <- err
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down server...")
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped")
	select {
	case err := <-serverErr:
		return err
	default:
		return nil
	}
}

// openStorage builds the product store and ledger for the configured driver.
func openStorage(ctx context.Context, cfg *config.Config, publisher domain.EventPublisher, tracer trace.Tracer, logger *slog.Logger) (domain.ProductStore, domain.Ledger, func(), error) {
	if cfg.Storage.Driver != config.StoragePostgres {
		ledger := memory.NewLedger()
		return memory.NewProductRepository(ledger, publisher, tracer, logger), ledger, func() {}, nil
	}

	if err := postgres.Migrate(cfg.Storage.DatabaseURL); err != nil {
		return nil, nil, nil, err
	}
	pool, err := postgres.Connect(ctx, cfg.Storage.DatabaseURL, cfg.Storage.Timeout)
	if err != nil {
		return nil, nil, nil, err
	}
	repo := postgres.NewProductRepository(pool, publisher, tracer, logger)
	return repo, repo, pool.Close, nil
}
