package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"orderflow/internal/auth"
	"orderflow/internal/domain"
)

// catalogService имя каталога в ошибках сборки
const catalogService = "product-service"

// Assembler собирает заказ: резервирует позиции в каталоге по порядку
// запроса и считает суммы. Откат резервов не выполняется.
type Assembler struct {
	catalog ProductCatalog
	log     *slog.Logger
	now     func() time.Time
}

func NewAssembler(catalog ProductCatalog, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{catalog: catalog, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// BuildOrder возвращает готовый к сохранению заказ и резервы, подтверждённые
// каталогом. При ошибке резервы возвращаются тоже: это всё, что было
// списано до сбоя, в порядке списания.
func (a *Assembler) BuildOrder(ctx context.Context, cred auth.Credential, req domain.OrderRequest) (domain.Order, []domain.Reservation, error) {
	status := domain.OrderStatusPending
	if req.Status != "" {
		st, err := domain.ParseStatus(req.Status)
		if err != nil {
			return domain.Order{}, nil, err
		}
		status = st
	}

	reservations := make([]domain.Reservation, 0, len(req.Items))
	items := make([]domain.OrderItem, 0, len(req.Items))
	total := decimal.Zero

	for i, line := range req.Items {
		snap, err := a.catalog.FetchProduct(ctx, cred, line.ProductID)
		if err != nil {
			return domain.Order{}, reservations, fmt.Errorf("line %d: %w", i, err)
		}
		if !snap.Price.IsPositive() || !domain.FitsMoneyScale(snap.Price) {
			return domain.Order{}, reservations, fmt.Errorf("line %d: %w", i, &domain.DependencyError{
				Service:  catalogService,
				Resource: "productId",
				Value:    strconv.FormatInt(line.ProductID, 10),
				Err:      fmt.Errorf("unusable price %s", snap.Price),
			})
		}
		if line.Quantity > snap.Stock {
			return domain.Order{}, reservations, fmt.Errorf("line %d: %w", i,
				&domain.StockError{ProductID: line.ProductID, Available: snap.Stock, Requested: line.Quantity})
		}
		if _, err := a.catalog.AdjustStock(ctx, cred, line.ProductID, -line.Quantity); err != nil {
			return domain.Order{}, reservations, fmt.Errorf("line %d: reserve: %w", i, err)
		}
		reservations = append(reservations, domain.Reservation{ProductID: line.ProductID, Quantity: line.Quantity, At: a.now()})

		item := domain.NewOrderItem(snap, line.Quantity)
		items = append(items, item)
		total = total.Add(item.Subtotal)
		a.log.DebugContext(ctx, "line reserved", "productId", line.ProductID, "quantity", line.Quantity, "subtotal", item.Subtotal.String())
	}

	order := domain.Order{
		UserID:          req.UserID,
		OrderDate:       a.now(),
		Status:          status,
		TotalAmount:     total,
		ShippingAddress: req.ShippingAddress,
		Items:           items,
	}
	if !order.TotalAmount.Equal(order.SumSubtotals()) {
		return domain.Order{}, reservations, fmt.Errorf("order total %s does not match line subtotals %s", order.TotalAmount, order.SumSubtotals())
	}
	return order, reservations, nil
}
