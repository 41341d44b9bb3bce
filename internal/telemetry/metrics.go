package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"orderflow/internal/domain"
)

// SetupMeter регистрирует глобальный MeterProvider с периодическим OTLP
// экспортом. Пустой endpoint оставляет noop-провайдер.
func SetupMeter(ctx context.Context, serviceName, endpoint string) (ShutdownFunc, error) {
	if endpoint == "" {
		return noopShutdown, nil
	}
	conn, err := dial(endpoint)
	if err != nil {
		return nil, err
	}
	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}
	res, err := newResource(serviceName)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), conn.Close())
	}, nil
}

// TodayTotalFunc сумма заказов за текущие сутки
type TodayTotalFunc func(ctx context.Context) (decimal.Decimal, error)

// OrderMetrics инструменты сервиса заказов
type OrderMetrics struct {
	created  metric.Int64Counter
	orphaned metric.Int64Counter
}

// NewOrderMetrics регистрирует счётчики и наблюдаемый gauge дневной выручки
func NewOrderMetrics(meter metric.Meter, today TodayTotalFunc) (*OrderMetrics, error) {
	created, err := meter.Int64Counter("orders.created.total",
		metric.WithDescription("Orders created, by resulting status"))
	if err != nil {
		return nil, err
	}
	orphaned, err := meter.Int64Counter("orders.reservations.partial",
		metric.WithDescription("Stock reservations left without a persisted order"))
	if err != nil {
		return nil, err
	}
	if today != nil {
		_, err = meter.Float64ObservableGauge("orders.total.amount.today",
			metric.WithDescription("Sum of today's order totals"),
			metric.WithFloat64Callback(func(ctx context.Context, o metric.Float64Observer) error {
				total, err := today(ctx)
				if err != nil {
					return err
				}
				o.Observe(total.InexactFloat64())
				return nil
			}))
		if err != nil {
			return nil, err
		}
	}
	return &OrderMetrics{created: created, orphaned: orphaned}, nil
}

func (m *OrderMetrics) OrderCreated(ctx context.Context, status domain.OrderStatus) {
	m.created.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func (m *OrderMetrics) ReservationsOrphaned(ctx context.Context, count int) {
	m.orphaned.Add(ctx, int64(count))
}
