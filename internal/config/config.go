// Package config читает настройки сервисов из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Common настройки, общие для обоих процессов
type Common struct {
	ServiceName     string
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string
	OTLPEndpoint    string
}

// Orders настройки сервиса заказов
type Orders struct {
	Common

	CatalogURL    string
	IdentityURL   string
	HealthPath    string
	ProbeTimeout  time.Duration
	ClientTimeout time.Duration

	DBDriver string
	DBDSN    string

	JWTPublicKeyPath string

	RedisAddr      string
	IdempotencyTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string
}

// Catalog настройки сервиса каталога
type Catalog struct {
	Common
	JWTPublicKeyPath string
}

// LookupFunc источник переменных; в тестах подменяется картой
type LookupFunc func(key string) (string, bool)

type reader struct {
	lookup LookupFunc
	errs   []error
}

func (r *reader) str(key, fallback string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (r *reader) duration(key string, fallback time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

func (r *reader) list(key string) []string {
	v := r.str(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *reader) common(service, addr string) Common {
	return Common{
		ServiceName:     r.str("OTEL_SERVICE_NAME", service),
		HTTPAddr:        r.str("HTTP_ADDR", addr),
		ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:        r.str("LOG_LEVEL", "info"),
		OTLPEndpoint:    r.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// LoadOrders читает настройки сервиса заказов из окружения процесса
func LoadOrders() (Orders, error) { return LoadOrdersFrom(os.LookupEnv) }

func LoadOrdersFrom(lookup LookupFunc) (Orders, error) {
	r := &reader{lookup: lookup}
	cfg := Orders{
		Common:           r.common("orders-service", ":8083"),
		CatalogURL:       r.str("CATALOG_URL", "http://localhost:8082"),
		IdentityURL:      r.str("IDENTITY_URL", "http://localhost:8081"),
		HealthPath:       r.str("HEALTH_PATH", "/actuator/health"),
		ProbeTimeout:     r.duration("PROBE_TIMEOUT", 2*time.Second),
		ClientTimeout:    r.duration("CLIENT_TIMEOUT", 5*time.Second),
		DBDriver:         strings.ToLower(r.str("DB_DRIVER", "sqlite")),
		DBDSN:            r.str("DB_DSN", "file:orders.db"),
		JWTPublicKeyPath: r.str("JWT_PUBLIC_KEY_PATH", ""),
		RedisAddr:        r.str("REDIS_ADDR", ""),
		IdempotencyTTL:   r.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		KafkaBrokers:     r.list("KAFKA_BROKERS"),
		KafkaTopic:       r.str("KAFKA_TOPIC", "orders.reservations"),
	}
	switch cfg.DBDriver {
	case "sqlite", "mysql", "postgres":
	default:
		r.errs = append(r.errs, fmt.Errorf("DB_DRIVER: unsupported driver %q", cfg.DBDriver))
	}
	if !strings.HasPrefix(cfg.HealthPath, "/") {
		r.errs = append(r.errs, fmt.Errorf("HEALTH_PATH: must start with '/': %q", cfg.HealthPath))
	}
	for key, u := range map[string]string{"CATALOG_URL": cfg.CatalogURL, "IDENTITY_URL": cfg.IdentityURL} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			r.errs = append(r.errs, fmt.Errorf("%s: must be an http(s) URL: %q", key, u))
		}
	}
	return cfg, errors.Join(r.errs...)
}

// LoadCatalog читает настройки сервиса каталога из окружения процесса
func LoadCatalog() (Catalog, error) { return LoadCatalogFrom(os.LookupEnv) }

func LoadCatalogFrom(lookup LookupFunc) (Catalog, error) {
	r := &reader{lookup: lookup}
	cfg := Catalog{
		Common:           r.common("catalog-service", ":8082"),
		JWTPublicKeyPath: r.str("JWT_PUBLIC_KEY_PATH", ""),
	}
	return cfg, errors.Join(r.errs...)
}
