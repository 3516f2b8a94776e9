package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/orderflow-saga/internal/config"
	"github.com/joao-fontenele/orderflow-saga/internal/messaging"
	"github.com/joao-fontenele/orderflow-saga/internal/payments"
	"github.com/joao-fontenele/orderflow-saga/internal/telemetry"
)

const serviceName = "payments"

func main() {
	ctx := context.Background()

	cfg, err := config.Load("8083")
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

	db, err := telemetry.OpenPostgres(ctx, cfg.PostgresURL, "payments")
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var gateway payments.Gateway
	if cfg.StripeSecretKey != "" {
		gateway = payments.NewStripeGateway(cfg.StripeSecretKey, cfg.StripePaymentMethod)
		logger.Info("using stripe gateway", "payment_method", cfg.StripePaymentMethod)
	} else {
		gateway = payments.NewSimulatedGateway(cfg.DeclinedCards)
		logger.Warn("STRIPE_SECRET_KEY not set, using simulated gateway")
	}

	kafkaBus := messaging.NewKafkaBus(cfg.KafkaBrokers, serviceName, logger)
	defer func() { _ = kafkaBus.Close() }()
	bus := messaging.Instrument(kafkaBus, metrics)

	service := payments.NewService(func() payments.Repository { return payments.NewPaymentRepository(db) }, gateway, logger)
	payments.NewParticipant(bus, service, logger).Start()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	kafkaBus.Start(runCtx)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting payments service", "port", cfg.Port)
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
