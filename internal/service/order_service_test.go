package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/auth"
	"orderflow/internal/domain"
	"orderflow/internal/repository"
)

var buyerCred = auth.Credential{Token: "buyer-token"}

type fixture struct {
	products *ProductService
	catalog  *localCatalog
	users    *fakeUsers
	orders   *repository.MemoryOrders
	metrics  *countingRecorder
	trail    *captureTrail
	svc      *OrderService
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	ps := NewProductService(store, repository.NewMemoryTx(store), nil)
	f := &fixture{
		products: ps,
		catalog:  &localCatalog{ps: ps},
		users:    &fakeUsers{known: map[int64]bool{1: true}},
		orders:   repository.NewMemoryOrders(repository.NewMemoryStore()),
		metrics:  &countingRecorder{},
		trail:    &captureTrail{},
	}
	f.svc = NewOrderService(f.orders, f.users, NewAssembler(f.catalog, nil), nil,
		WithRecorder(f.metrics), WithTrail(f.trail))
	return f
}

func (f *fixture) product(t *testing.T, name, price string, stock int) *domain.Product {
	t.Helper()
	p, err := f.products.Create(context.Background(), domain.Product{
		Name: name, Price: decimal.RequireFromString(price), Stock: stock, Category: domain.CategoryOther, Active: true,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.products.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func request(userID int64, items ...domain.OrderItemRequest) domain.OrderRequest {
	return domain.OrderRequest{UserID: userID, ShippingAddress: "1 Main St", Items: items}
}

func TestCreate_WidgetScenario(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	for i := 0; i < 4; i++ {
		f.product(t, "filler", "1.00", 1)
	}
	widget := f.product(t, "Widget", "9.99", 10)
	require.Equal(t, int64(5), widget.ID)

	o, err := f.svc.Create(ctx, buyerCred, request(1, domain.OrderItemRequest{ProductID: 5, Quantity: 2}))
	require.NoError(t, err)

	assert.NotZero(t, o.ID)
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	require.Len(t, o.Items, 1)
	it := o.Items[0]
	assert.Equal(t, "Widget", it.ProductName)
	assert.Equal(t, "9.99", it.UnitPrice.StringFixed(2))
	assert.Equal(t, 2, it.Quantity)
	assert.Equal(t, "19.98", it.Subtotal.StringFixed(2))
	assert.Equal(t, "19.98", o.TotalAmount.StringFixed(2))
	assert.Equal(t, 8, f.stock(t, 5))

	stored, err := f.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "19.98", stored.TotalAmount.StringFixed(2))
	assert.Equal(t, 1, f.metrics.created[domain.OrderStatusPending])
	assert.Empty(t, f.trail.events)
}

func TestCreate_TotalUsesPricesAtCreation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "0.10", 100)
	b := f.product(t, "B", "0.20", 100)
	c := f.product(t, "C", "1234.56", 100)

	o, err := f.svc.Create(ctx, buyerCred, request(1,
		domain.OrderItemRequest{ProductID: a.ID, Quantity: 3},
		domain.OrderItemRequest{ProductID: b.ID, Quantity: 7},
		domain.OrderItemRequest{ProductID: c.ID, Quantity: 1},
	))
	require.NoError(t, err)

	want := decimal.RequireFromString("0.30").Add(decimal.RequireFromString("1.40")).Add(decimal.RequireFromString("1234.56"))
	assert.True(t, o.TotalAmount.Equal(want), "total %s", o.TotalAmount)
	assert.True(t, o.TotalAmount.Equal(o.SumSubtotals()))
	// порядок позиций совпадает с запросом
	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, []int64{o.Items[0].ProductID, o.Items[1].ProductID, o.Items[2].ProductID})

	// цена в каталоге меняется, исторический заказ нет
	a.Price = decimal.RequireFromString("99.99")
	_, err = f.products.Update(ctx, *a)
	require.NoError(t, err)

	got, err := f.svc.GetByID(ctx, buyerCred, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.10", got.Items[0].UnitPrice.StringFixed(2))
	assert.True(t, got.TotalAmount.Equal(want))
}

// fixedCatalog отдаёт один и тот же снимок на любой id
type fixedCatalog struct {
	snap    domain.ProductSnapshot
	adjusts int
}

func (c *fixedCatalog) ProductExists(context.Context, auth.Credential, int64) (bool, error) {
	return true, nil
}

func (c *fixedCatalog) FetchProduct(context.Context, auth.Credential, int64) (domain.ProductSnapshot, error) {
	return c.snap, nil
}

func (c *fixedCatalog) AdjustStock(_ context.Context, _ auth.Credential, _ int64, delta int) (domain.ProductSnapshot, error) {
	c.adjusts++
	c.snap.Stock += delta
	return c.snap, nil
}

func TestBuildOrder_RejectsPriceBeyondMoneyScale(t *testing.T) {
	for _, p := range []string{"0.333", "0", "-1"} {
		cat := &fixedCatalog{snap: domain.ProductSnapshot{ID: 5, Name: "Third", Price: decimal.RequireFromString(p), Stock: 10}}
		_, reserved, err := NewAssembler(cat, nil).BuildOrder(context.Background(), buyerCred,
			request(1, domain.OrderItemRequest{ProductID: 5, Quantity: 3}))
		require.Error(t, err, p)
		assert.ErrorIs(t, err, domain.ErrDependencyUnavailable, p)
		assert.Empty(t, reserved, p)
		assert.Zero(t, cat.adjusts, "price %s must not reserve stock", p)
	}
}

func TestCreate_UnknownBuyerTouchesNoStock(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "Widget", "9.99", 10)

	_, err := f.svc.Create(ctx, buyerCred, request(2, domain.OrderItemRequest{ProductID: p.ID, Quantity: 1}))
	require.ErrorIs(t, err, domain.ErrResourceNotFound)
	assert.EqualError(t, err, "User not found with id: 2")
	assert.Empty(t, f.catalog.calls)
	assert.Equal(t, 10, f.stock(t, p.ID))

	_, err = f.svc.ListByUser(ctx, buyerCred, 2)
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)

	// заказ существует, но его покупатель удалён из сервиса пользователей
	o, err := f.svc.Create(ctx, buyerCred, request(1, domain.OrderItemRequest{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)
	f.users.known[1] = false
	_, err = f.svc.GetByID(ctx, buyerCred, o.ID)
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)
	assert.Equal(t, 1, f.catalog.adjusts)
}

func TestCreate_InsufficientStockKeepsEarlierReservations(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	first := f.product(t, "First", "5.00", 10)
	scarce := f.product(t, "Scarce", "3.00", 1)
	never := f.product(t, "Never", "1.00", 10)

	_, err := f.svc.Create(ctx, buyerCred, request(1,
		domain.OrderItemRequest{ProductID: first.ID, Quantity: 4},
		domain.OrderItemRequest{ProductID: scarce.ID, Quantity: 2},
		domain.OrderItemRequest{ProductID: never.ID, Quantity: 1},
	))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var serr *domain.StockError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 1, serr.Available)
	assert.Equal(t, 2, serr.Requested)

	// не атомарно: первая позиция осталась списанной
	assert.Equal(t, 6, f.stock(t, first.ID))
	assert.Equal(t, 1, f.stock(t, scarce.ID))
	assert.Equal(t, 10, f.stock(t, never.ID))

	all, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.Len(t, f.trail.events, 1)
	ev := f.trail.events[0]
	assert.Equal(t, int64(1), ev.UserID)
	require.Len(t, ev.Reservations, 1)
	assert.Equal(t, first.ID, ev.Reservations[0].ProductID)
	assert.Equal(t, 4, ev.Reservations[0].Quantity)
	assert.Contains(t, ev.Cause, "out of stock")
	assert.Equal(t, 1, f.metrics.orphaned)
}

func TestCreate_ReservationFailureMidway(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.product(t, "A", "1.00", 5)
	b := f.product(t, "B", "1.00", 5)
	f.catalog.failOn = map[int64]error{b.ID: &domain.CredentialError{Service: "product-service"}}

	_, err := f.svc.Create(ctx, buyerCred, request(1,
		domain.OrderItemRequest{ProductID: a.ID, Quantity: 1},
		domain.OrderItemRequest{ProductID: b.ID, Quantity: 1},
	))
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
	assert.Equal(t, 4, f.stock(t, a.ID))
	assert.Equal(t, 5, f.stock(t, b.ID))
	require.Len(t, f.trail.events, 1)
}

func TestCreate_CatalogDown(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "Widget", "9.99", 10)
	f.catalog.down = true

	_, err := f.svc.Create(ctx, buyerCred, request(1, domain.OrderItemRequest{ProductID: p.ID, Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	assert.Equal(t, 10, f.stock(t, p.ID))
	assert.Empty(t, f.trail.events)
}

func TestCreate_UnknownProduct(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Create(context.Background(), buyerCred, request(1, domain.OrderItemRequest{ProductID: 404, Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)
	assert.ErrorContains(t, err, "Product not found with id: 404")
}

func TestCreate_ValidationBeforeAnyRemoteCall(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Create(context.Background(), buyerCred, domain.OrderRequest{UserID: 1, ShippingAddress: " "})
	require.ErrorIs(t, err, domain.ErrValidation)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "shippingAddress")
	assert.Contains(t, verr.Fields, "orderItems")
	assert.Zero(t, f.users.calls)
	assert.Empty(t, f.catalog.calls)
}

func TestCreate_CallerSuppliedStatusAndCredential(t *testing.T) {
	f := setup(t)
	p := f.product(t, "Widget", "9.99", 10)
	req := request(1, domain.OrderItemRequest{ProductID: p.ID, Quantity: 1})
	req.Status = "confirmed"

	o, err := f.svc.Create(context.Background(), buyerCred, req)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, o.Status)
	assert.Equal(t, 1, f.metrics.created[domain.OrderStatusConfirmed])
	for _, tok := range f.catalog.tokens {
		assert.Equal(t, "buyer-token", tok)
	}
}

func TestCreate_RejectedCredential(t *testing.T) {
	f := setup(t)
	f.users.reject = true
	_, err := f.svc.Create(context.Background(), buyerCred, request(1, domain.OrderItemRequest{ProductID: 1, Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
	assert.Empty(t, f.catalog.calls)
}

func TestUpdateStatus_DeliveredOrderCannotBeCancelled(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	for i := 0; i < 7; i++ {
		o := domain.Order{UserID: 1, Status: domain.OrderStatusPending, ShippingAddress: "x"}
		require.NoError(t, f.orders.Create(ctx, &o))
	}
	seven, err := f.orders.GetByID(ctx, 7)
	require.NoError(t, err)
	seven.Status = domain.OrderStatusDelivered
	require.NoError(t, f.orders.Update(ctx, seven))

	_, err = f.svc.UpdateStatus(ctx, 7, "CANCELLED")
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
	var terr *domain.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.OrderStatusDelivered, terr.From)
	assert.Contains(t, err.Error(), "delivered")

	again, _ := f.orders.GetByID(ctx, 7)
	assert.Equal(t, domain.OrderStatusDelivered, again.Status)
}

func TestUpdateStatus_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	o := domain.Order{UserID: 1, Status: domain.OrderStatusPending, ShippingAddress: "x"}
	require.NoError(t, f.orders.Create(ctx, &o))

	for _, next := range []string{"confirmed", "SHIPPED", "Delivered"} {
		got, err := f.svc.UpdateStatus(ctx, o.ID, next)
		require.NoError(t, err, next)
		assert.Equal(t, strings.ToUpper(next), string(got.Status))
	}
	stored, err := f.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, stored.Status)
	assert.True(t, stored.Status.Terminal())
}

func TestUpdateStatus_Errors(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	o := domain.Order{UserID: 1, Status: domain.OrderStatusPending, ShippingAddress: "x"}
	require.NoError(t, f.orders.Create(ctx, &o))

	_, err := f.svc.UpdateStatus(ctx, o.ID, "LOST")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = f.svc.UpdateStatus(ctx, 999, "CONFIRMED")
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)

	_, err = f.svc.UpdateStatus(ctx, o.ID, "PENDING")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestListByStatus(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	for _, st := range []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusShipped, domain.OrderStatusPending} {
		o := domain.Order{UserID: 1, Status: st, ShippingAddress: "x"}
		require.NoError(t, f.orders.Create(ctx, &o))
	}
	got, err := f.svc.ListByStatus(ctx, "pending")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = f.svc.ListByStatus(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.product(t, "Widget", "9.99", 10)
	o, err := f.svc.Create(ctx, buyerCred, request(1, domain.OrderItemRequest{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, o.ID))
	_, err = f.svc.GetByID(ctx, buyerCred, o.ID)
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)
	assert.True(t, errors.Is(f.svc.Delete(ctx, o.ID), domain.ErrResourceNotFound))
	// удаление не возвращает остаток
	assert.Equal(t, 9, f.stock(t, p.ID))
}

func TestTotalAmountToday(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	f := setup(t)
	f.svc = NewOrderService(f.orders, f.users, NewAssembler(f.catalog, nil), nil, WithClock(func() time.Time { return now }))

	for _, o := range []domain.Order{
		{UserID: 1, OrderDate: now, TotalAmount: decimal.RequireFromString("19.98")},
		{UserID: 1, OrderDate: now, TotalAmount: decimal.RequireFromString("0.02")},
		{UserID: 1, OrderDate: now.Add(-time.Nanosecond), TotalAmount: decimal.RequireFromString("100")},
		{UserID: 1, OrderDate: now.Add(24 * time.Hour), TotalAmount: decimal.RequireFromString("7")},
	} {
		o := o
		require.NoError(t, f.orders.Create(ctx, &o))
	}
	total, err := f.svc.TotalAmountToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20.00", total.StringFixed(2))
}
