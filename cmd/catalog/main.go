package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/orderflow-saga/internal/catalog"
	"github.com/joao-fontenele/orderflow-saga/internal/config"
	"github.com/joao-fontenele/orderflow-saga/internal/messaging"
	"github.com/joao-fontenele/orderflow-saga/internal/telemetry"
)

const serviceName = "catalog"

func main() {
	ctx := context.Background()

	cfg, err := config.Load("8082")
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()

	if err := cfg.Require("POSTGRES_URL", "KAFKA_BROKERS"); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	metrics, err := telemetry.NewSagaMetrics()
	if err != nil {
		logger.Error("failed to create saga metrics", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenPostgres(ctx, cfg.PostgresURL, "catalog")
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	kafkaBus := messaging.NewKafkaBus(cfg.KafkaBrokers, serviceName, logger)
	defer func() { _ = kafkaBus.Close() }()
	bus := messaging.Instrument(kafkaBus, metrics)

	newRepository := func() catalog.Repository { return catalog.NewProductRepository(db) }
	catalog.NewParticipant(bus, newRepository, logger).Start()
	handler := catalog.NewHandler(newRepository, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	kafkaBus.Start(runCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(handler.HandleListProducts))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(handler.HandleGetProduct))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting catalog service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
