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

	"github.com/joao-fontenele/orderflow-saga/internal/config"
	"github.com/joao-fontenele/orderflow-saga/internal/messaging"
	"github.com/joao-fontenele/orderflow-saga/internal/orders"
	"github.com/joao-fontenele/orderflow-saga/internal/telemetry"
)

const serviceName = "orders"

func main() {
	ctx := context.Background()

	cfg, err := config.Load("8081")
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

	db, err := telemetry.OpenPostgres(ctx, cfg.PostgresURL, "orders")
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	kafkaBus := messaging.NewKafkaBus(cfg.KafkaBrokers, serviceName, logger)
	defer func() { _ = kafkaBus.Close() }()
	bus := messaging.Instrument(kafkaBus, metrics)

	scopes := orders.PostgresScopes(db)
	commands := orders.NewCommandHandler(scopes, bus, logger,
		orders.WithAuthorizationTimeout(cfg.AuthorizationTimeout),
		orders.WithMetrics(metrics),
	)
	handler := orders.NewHandler(commands, scopes, logger)

	orders.NewParticipant(bus, scopes, logger).Start()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	kafkaBus.Start(runCtx)

	relay := orders.NewRelay(orders.NewPostgresAuthorizedOrderQuery(db), bus, logger,
		orders.WithInterval(cfg.RelayInterval),
		orders.WithRedeliverAfter(cfg.RelayRedeliverAfter),
	)
	relay.Start(runCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(handler.HandleSubmit))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleGet))
	mux.HandleFunc("GET /customers/{customerId}/orders", telemetry.WithHTTPRoute(handler.HandleListByCustomer))
	mux.HandleFunc("GET /vouchers/{code}", telemetry.WithHTTPRoute(handler.HandleGetVoucher))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(mux, serviceName, otelhttp.WithSpanNameFormatter(spanName)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.AuthorizationTimeout + 10*time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", cfg.Port)
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

	if err := relay.Stop(shutdownCtx); err != nil {
		logger.Error("relay shutdown error", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func spanName(_ string, r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.Method + " " + r.URL.Path
}
