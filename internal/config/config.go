package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read from the environment. A .env file in the working
// directory is loaded first if present; variables already set win.
type Config struct {
	Port           string
	LogLevel       string
	ServiceVersion string
	OTLPEndpoint   string

	KafkaBrokers []string
	PostgresURL  string
	RedisURL     string

	RelayInterval        time.Duration
	RelayRedeliverAfter  time.Duration
	AuthorizationTimeout time.Duration
	CartTTL              time.Duration

	StripeSecretKey     string
	StripePaymentMethod string
	DeclinedCards       []string

	OrdersServiceURL  string
	CatalogServiceURL string
	CartServiceURL    string
}

func Load(defaultPort string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:                getEnv("PORT", defaultPort),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		ServiceVersion:      getEnv("SERVICE_VERSION", "0.1.0"),
		OTLPEndpoint:        getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		KafkaBrokers:        getEnvAsSlice("KAFKA_BROKERS"),
		PostgresURL:         getEnv("POSTGRES_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripePaymentMethod: getEnv("STRIPE_PAYMENT_METHOD", "pm_card_visa"),
		DeclinedCards:       getEnvAsSlice("DECLINED_CARDS"),
		OrdersServiceURL:    getEnv("ORDERS_SERVICE_URL", ""),
		CatalogServiceURL:   getEnv("CATALOG_SERVICE_URL", ""),
		CartServiceURL:      getEnv("CART_SERVICE_URL", ""),
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"RELAY_INTERVAL", 5 * time.Second, &cfg.RelayInterval},
		{"RELAY_REDELIVERY_AFTER", 5 * time.Minute, &cfg.RelayRedeliverAfter},
		{"PAYMENT_AUTHORIZATION_TIMEOUT", 30 * time.Second, &cfg.AuthorizationTimeout},
		{"CART_TTL", 30 * 24 * time.Hour, &cfg.CartTTL},
	}
	for _, d := range durations {
		v, err := getEnvAsDuration(d.key, d.fallback)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, ok := logLevels[strings.ToLower(c.LogLevel)]; !ok {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	for name, d := range map[string]time.Duration{
		"RELAY_INTERVAL":                c.RelayInterval,
		"RELAY_REDELIVERY_AFTER":        c.RelayRedeliverAfter,
		"PAYMENT_AUTHORIZATION_TIMEOUT": c.AuthorizationTimeout,
		"CART_TTL":                      c.CartTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// Require reports the first of the named variables that has no value.
func (c *Config) Require(names ...string) error {
	for _, name := range names {
		var missing bool
		switch name {
		case "KAFKA_BROKERS":
			missing = len(c.KafkaBrokers) == 0
		case "POSTGRES_URL":
			missing = c.PostgresURL == ""
		case "REDIS_URL":
			missing = c.RedisURL == ""
		case "OTEL_EXPORTER_OTLP_ENDPOINT":
			missing = c.OTLPEndpoint == ""
		case "ORDERS_SERVICE_URL":
			missing = c.OrdersServiceURL == ""
		case "CATALOG_SERVICE_URL":
			missing = c.CatalogServiceURL == ""
		case "CART_SERVICE_URL":
			missing = c.CartServiceURL == ""
		default:
			return fmt.Errorf("unknown setting %s", name)
		}
		if missing {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Logger returns a JSON logger on stdout at the configured level.
func (c *Config) Logger() *slog.Logger {
	return c.newLogger(os.Stdout)
}

func (c *Config) newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevels[strings.ToLower(c.LogLevel)],
	}))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
