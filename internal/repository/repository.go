package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"orderflow/internal/domain"
)

// ErrNotFound возвращается, когда сущность не найдена
var ErrNotFound = errors.New("not found")

// ProductFilter параметры фильтрации списка товаров
type ProductFilter struct {
	NameSubstring string
	Category      domain.Category
	AvailableOnly bool
}

// ProductRepository интерфейс репозитория товаров каталога
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	Update(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f ProductFilter) ([]domain.Product, error)
	// AdjustStock атомарно прибавляет delta к остатку
	AdjustStock(ctx context.Context, id int64, delta int) (*domain.Product, error)
	CountLowStock(ctx context.Context, threshold int) (int, error)
}

// OrderRepository интерфейс репозитория заказов. Позиции сохраняются и
// удаляются вместе с заказом.
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]domain.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
	// ListPlacedBetween заказы с order_date в [from, to)
	ListPlacedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error)
}

// TxManager абстракция транзакции. Для in-memory: глобальная блокировка записи.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func (f ProductFilter) match(p domain.Product) bool {
	if !containsIgnoreCase(p.Name, f.NameSubstring) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(string(p.Category), string(f.Category)) {
		return false
	}
	if f.AvailableOnly && (!p.Active || p.Stock <= 0) {
		return false
	}
	return true
}
