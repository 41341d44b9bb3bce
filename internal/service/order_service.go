package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"orderflow/internal/auth"
	"orderflow/internal/domain"
	"orderflow/internal/events"
	"orderflow/internal/repository"
	"orderflow/internal/telemetry"
)

// OrderService жизненный цикл заказа: создание через сборку с резервом в
// каталоге, чтение, смена статуса по таблице переходов, удаление.
// Атомарность есть только у локальной записи заказа.
type OrderService struct {
	orders    repository.OrderRepository
	users     UserDirectory
	assembler *Assembler
	metrics   Recorder
	trail     TrailPublisher
	log       *slog.Logger
	now       func() time.Time
}

// Option настройка OrderService
type Option func(*OrderService)

func WithRecorder(r Recorder) Option { return func(s *OrderService) { s.metrics = r } }

func WithTrail(p TrailPublisher) Option { return func(s *OrderService) { s.trail = p } }

func WithClock(now func() time.Time) Option { return func(s *OrderService) { s.now = now } }

func NewOrderService(orders repository.OrderRepository, users UserDirectory, assembler *Assembler, log *slog.Logger, opts ...Option) *OrderService {
	if log == nil {
		log = slog.Default()
	}
	s := &OrderService{
		orders:    orders,
		users:     users,
		assembler: assembler,
		metrics:   nopRecorder{},
		trail:     events.NewLogPublisher(log),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create проверяет запрос и покупателя, собирает заказ с резервом остатков
// и сохраняет его. Если после части резервов что-то упало, резервы не
// откатываются: они логируются и уходят в след для сверки.
func (s *OrderService) Create(ctx context.Context, cred auth.Credential, req domain.OrderRequest) (*domain.Order, error) {
	s.log.DebugContext(ctx, "create order", "userId", req.UserID, "items", len(req.Items))
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureBuyer(ctx, cred, req.UserID); err != nil {
		return nil, err
	}

	order, reserved, err := s.assembler.BuildOrder(ctx, cred, req)
	if err != nil {
		s.orphan(ctx, req.UserID, reserved, err)
		return nil, err
	}
	if err := s.orders.Create(ctx, &order); err != nil {
		err = fmt.Errorf("persist order: %w", err)
		s.orphan(ctx, req.UserID, reserved, err)
		return nil, err
	}

	s.metrics.OrderCreated(ctx, order.Status)
	s.log.InfoContext(ctx, "order created",
		"orderId", order.ID, "userId", order.UserID, "status", order.Status, "total", order.TotalAmount.String())
	return &order, nil
}

// orphan фиксирует резервы, для которых заказ так и не появился
func (s *OrderService) orphan(ctx context.Context, userID int64, reserved []domain.Reservation, cause error) {
	if len(reserved) == 0 {
		return
	}
	s.log.WarnContext(ctx, "stock reserved without order",
		"userId", userID, "reservations", reserved, "err", cause)
	s.metrics.ReservationsOrphaned(ctx, len(reserved))

	// запрос мог быть уже отменён, а след терять нельзя
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	ev := events.NewReservationsOrphaned(userID, telemetry.RequestID(ctx), reserved, cause)
	if err := s.trail.PublishOrphaned(pubCtx, ev); err != nil {
		s.log.ErrorContext(ctx, "reservation trail publish failed", "eventId", ev.EventID, "err", err)
	}
}

func (s *OrderService) ensureBuyer(ctx context.Context, cred auth.Credential, userID int64) error {
	ok, err := s.users.UserExists(ctx, cred, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFound("User", userID)
	}
	return nil
}

// GetByID загружает заказ и проверяет, что его покупатель существует
func (s *OrderService) GetByID(ctx context.Context, cred auth.Credential, id int64) (*domain.Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureBuyer(ctx, cred, o.UserID); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderService) List(ctx context.Context) ([]domain.Order, error) {
	return s.orders.List(ctx)
}

// ListByUser заказы покупателя; покупатель должен существовать
func (s *OrderService) ListByUser(ctx context.Context, cred auth.Credential, userID int64) ([]domain.Order, error) {
	if err := s.ensureBuyer(ctx, cred, userID); err != nil {
		return nil, err
	}
	return s.orders.ListByUser(ctx, userID)
}

func (s *OrderService) ListByStatus(ctx context.Context, status string) ([]domain.Order, error) {
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return s.orders.ListByStatus(ctx, st)
}

// UpdateStatus переводит заказ в новый статус по таблице переходов
func (s *OrderService) UpdateStatus(ctx context.Context, id int64, status string) (*domain.Order, error) {
	next, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := o.Status
	if o.Status, err = prev.Transition(next); err != nil {
		return nil, err
	}
	if err := s.orders.Update(ctx, o); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("Order", id)
		}
		return nil, fmt.Errorf("update order %d: %w", id, err)
	}
	s.log.InfoContext(ctx, "order status changed", "orderId", id, "from", prev, "to", o.Status)
	return o, nil
}

// Delete удаляет заказ вместе с позициями
func (s *OrderService) Delete(ctx context.Context, id int64) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFound("Order", id)
		}
		return fmt.Errorf("delete order %d: %w", id, err)
	}
	s.log.InfoContext(ctx, "order deleted", "orderId", id)
	return nil
}

// TotalAmountToday сумма заказов, размещённых с начала текущих суток (UTC)
func (s *OrderService) TotalAmountToday(ctx context.Context) (decimal.Decimal, error) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	orders, err := s.orders.ListPlacedBetween(ctx, start, start.Add(24*time.Hour))
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.TotalAmount)
	}
	return total, nil
}

func (s *OrderService) load(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("Order", id)
		}
		return nil, fmt.Errorf("load order %d: %w", id, err)
	}
	return o, nil
}
