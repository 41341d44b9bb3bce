package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orderflow/internal/domain"
)

// querier общий интерфейс *sql.DB и *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLOrders OrderRepository поверх database/sql. Заказ и его позиции
// пишутся и удаляются в одной транзакции.
type SQLOrders struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLOrders(db *sql.DB, dialect Dialect) *SQLOrders {
	return &SQLOrders{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
}

var _ OrderRepository = (*SQLOrders)(nil)

// Migrate создаёт таблицы, если их нет
func (s *SQLOrders) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: migrate: %w", s.dialect, err)
		}
	}
	return nil
}

func (s *SQLOrders) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// insert возвращает сгенерированный id; postgres не поддерживает LastInsertId
func (s *SQLOrders) insert(ctx context.Context, q querier, query string, args ...any) (int64, error) {
	if s.dialect == DialectPostgres {
		var id int64
		err := q.QueryRowContext(ctx, s.dialect.rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// money сумма для колонки со шкалой MoneyScale. Лишние знаки не
// округляются: такая сумма отклоняется.
func money(field string, d decimal.Decimal) (string, error) {
	if !domain.FitsMoneyScale(d) {
		return "", fmt.Errorf("%s %s has more than %d fraction digits", field, d, domain.MoneyScale)
	}
	return d.StringFixed(domain.MoneyScale), nil
}

type itemAmounts struct{ unit, subtotal string }

func orderAmounts(o *domain.Order) (string, []itemAmounts, error) {
	total, err := money("total amount", o.TotalAmount)
	if err != nil {
		return "", nil, err
	}
	items := make([]itemAmounts, len(o.Items))
	for i, it := range o.Items {
		if items[i].unit, err = money(fmt.Sprintf("item %d unit price", i), it.UnitPrice); err != nil {
			return "", nil, err
		}
		if items[i].subtotal, err = money(fmt.Sprintf("item %d subtotal", i), it.Subtotal); err != nil {
			return "", nil, err
		}
	}
	return total, items, nil
}

func (s *SQLOrders) Create(ctx context.Context, o *domain.Order) error {
	total, amounts, err := orderAmounts(o)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	now := s.now()
	if o.OrderDate.IsZero() {
		o.OrderDate = now
	}
	o.CreatedAt = now
	o.UpdatedAt = now

	return s.withTx(ctx, func(q querier) error {
		id, err := s.insert(ctx, q,
			`INSERT INTO orders (user_id, order_date, status, total_amount, shipping_address, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			o.UserID, s.dialect.timeArg(o.OrderDate), string(o.Status), total,
			o.ShippingAddress, s.dialect.timeArg(o.CreatedAt), s.dialect.timeArg(o.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		o.ID = id
		for i := range o.Items {
			it := &o.Items[i]
			itemID, err := s.insert(ctx, q,
				`INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity, subtotal)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				o.ID, it.ProductID, it.ProductName, amounts[i].unit, it.Quantity, amounts[i].subtotal)
			if err != nil {
				return fmt.Errorf("insert order item %d: %w", i, err)
			}
			it.ID = itemID
		}
		return nil
	})
}

const orderColumns = `id, user_id, order_date, status, total_amount, shipping_address, created_at, updated_at`

func (s *SQLOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	orders, err := s.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrNotFound
	}
	return &orders[0], nil
}

// Update сохраняет статус и адрес; позиции и сумма не переписываются
func (s *SQLOrders) Update(ctx context.Context, o *domain.Order) error {
	o.UpdatedAt = s.now()
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`UPDATE orders SET status = ?, shipping_address = ?, updated_at = ? WHERE id = ?`),
		string(o.Status), o.ShippingAddress, s.dialect.timeArg(o.UpdatedAt), o.ID)
	if err != nil {
		return fmt.Errorf("update order %d: %w", o.ID, err)
	}
	return expectOne(res)
}

func (s *SQLOrders) Delete(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(q querier) error {
		// позиции удаляются явно: sqlite без foreign_keys каскад не выполняет
		if _, err := q.ExecContext(ctx, s.dialect.rebind(`DELETE FROM order_items WHERE order_id = ?`), id); err != nil {
			return fmt.Errorf("delete items of order %d: %w", id, err)
		}
		res, err := q.ExecContext(ctx, s.dialect.rebind(`DELETE FROM orders WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete order %d: %w", id, err)
		}
		return expectOne(res)
	})
}

func (s *SQLOrders) List(ctx context.Context) ([]domain.Order, error) {
	return s.query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
}

func (s *SQLOrders) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	return s.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY id`, userID)
}

func (s *SQLOrders) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return s.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = ? ORDER BY id`, string(status))
}

func (s *SQLOrders) ListPlacedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	return s.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_date >= ? AND order_date < ? ORDER BY id`,
		s.dialect.timeArg(from), s.dialect.timeArg(to))
}

func (s *SQLOrders) query(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Order, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var (
			o      domain.Order
			status string
		)
		if err := rows.Scan(&o.ID, &o.UserID, dbTime{&o.OrderDate}, &status, &o.TotalAmount,
			&o.ShippingAddress, dbTime{&o.CreatedAt}, dbTime{&o.UpdatedAt}); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = domain.OrderStatus(status)
		o.Items = make([]domain.OrderItem, 0)
		index[o.ID] = len(out)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}
	if err := s.loadItems(ctx, out, index); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLOrders) loadItems(ctx context.Context, orders []domain.Order, index map[int64]int) error {
	ids := make([]any, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT id, order_id, product_id, product_name, unit_price, quantity, subtotal
		 FROM order_items WHERE order_id IN (`+placeholders+`) ORDER BY id`), ids...)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it      domain.OrderItem
			orderID int64
		)
		if err := rows.Scan(&it.ID, &orderID, &it.ProductID, &it.ProductName, &it.UnitPrice, &it.Quantity, &it.Subtotal); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	return rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
