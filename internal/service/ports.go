package service

import (
	"context"

	"orderflow/internal/auth"
	"orderflow/internal/domain"
	"orderflow/internal/events"
)

// ProductCatalog возможности каталога, нужные сборке заказа
type ProductCatalog interface {
	ProductExists(ctx context.Context, cred auth.Credential, id int64) (bool, error)
	FetchProduct(ctx context.Context, cred auth.Credential, id int64) (domain.ProductSnapshot, error)
	AdjustStock(ctx context.Context, cred auth.Credential, id int64, delta int) (domain.ProductSnapshot, error)
}

// UserDirectory проверка существования покупателя
type UserDirectory interface {
	UserExists(ctx context.Context, cred auth.Credential, id int64) (bool, error)
}

// Recorder метрики жизненного цикла заказа
type Recorder interface {
	OrderCreated(ctx context.Context, status domain.OrderStatus)
	ReservationsOrphaned(ctx context.Context, count int)
}

// TrailPublisher публикует резервы, оставшиеся без заказа
type TrailPublisher interface {
	PublishOrphaned(ctx context.Context, ev events.ReservationsOrphaned) error
}

type nopRecorder struct{}

func (nopRecorder) OrderCreated(context.Context, domain.OrderStatus) {}
func (nopRecorder) ReservationsOrphaned(context.Context, int)        {}
