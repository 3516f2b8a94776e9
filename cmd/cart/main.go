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

	"github.com/joao-fontenele/orderflow-saga/internal/cart"
	"github.com/joao-fontenele/orderflow-saga/internal/config"
	"github.com/joao-fontenele/orderflow-saga/internal/messaging"
	"github.com/joao-fontenele/orderflow-saga/internal/telemetry"
)

const serviceName = "cart"

func main() {
	ctx := context.Background()

	cfg, err := config.Load("8084")
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()

	if err := cfg.Require("REDIS_URL", "KAFKA_BROKERS"); err != nil {
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

	client, err := cart.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	kafkaBus := messaging.NewKafkaBus(cfg.KafkaBrokers, serviceName, logger)
	defer func() { _ = kafkaBus.Close() }()
	bus := messaging.Instrument(kafkaBus, metrics)

	repo := cart.NewRedisRepository(client, cfg.CartTTL)
	cart.NewParticipant(bus, repo, logger).Start()
	handler := cart.NewHandler(repo, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	kafkaBus.Start(runCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /carts/{customerId}", telemetry.WithHTTPRoute(handler.HandleGetCart))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(mux, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting cart service", "port", cfg.Port)
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
