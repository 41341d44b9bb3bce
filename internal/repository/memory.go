package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"orderflow/internal/domain"
)

// MemoryStore объединённое in-memory хранилище и простой генератор ID
type MemoryStore struct {
	mu           sync.RWMutex
	nextProdID   int64
	nextOrderID  int64
	nextItemID   int64
	productsByID map[int64]domain.Product
	ordersByID   map[int64]domain.Order
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextProdID:   1,
		nextOrderID:  1,
		nextItemID:   1,
		productsByID: make(map[int64]domain.Product),
		ordersByID:   make(map[int64]domain.Order),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// transaction-aware locking helpers
type txKey struct{}

func isTx(ctx context.Context) bool {
	v := ctx.Value(txKey{})
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Unlock()
	}
}

var _ ProductRepository = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p.ID = m.nextProdID
	m.nextProdID++
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	m.productsByID[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	prev, ok := m.productsByID[p.ID]
	if !ok {
		return ErrNotFound
	}
	p.CreatedAt = prev.CreatedAt
	p.UpdatedAt = m.now()
	m.productsByID[p.ID] = *p
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.productsByID[id]; !ok {
		return ErrNotFound
	}
	delete(m.productsByID, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]domain.Product, 0)
	for _, p := range m.productsByID {
		if f.match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AdjustStock проверка и изменение остатка под одной блокировкой записи,
// поэтому параллельные списания не уводят остаток в минус.
func (m *MemoryStore) AdjustStock(ctx context.Context, id int64, delta int) (*domain.Product, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Stock+delta < 0 {
		return nil, &domain.StockError{ProductID: id, Available: p.Stock, Requested: -delta}
	}
	p.Stock += delta
	p.UpdatedAt = m.now()
	m.productsByID[id] = p
	cp := p
	return &cp, nil
}

func (m *MemoryStore) CountLowStock(ctx context.Context, threshold int) (int, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	n := 0
	for _, p := range m.productsByID {
		if p.Active && p.Stock < threshold {
			n++
		}
	}
	return n, nil
}

// MemoryOrders OrderRepository поверх общего MemoryStore
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o.ID = mo.store.nextOrderID
	mo.store.nextOrderID++
	for i := range o.Items {
		o.Items[i].ID = mo.store.nextItemID
		mo.store.nextItemID++
	}
	o.CreatedAt = mo.store.now()
	o.UpdatedAt = o.CreatedAt
	if o.OrderDate.IsZero() {
		o.OrderDate = o.CreatedAt
	}
	mo.store.ordersByID[o.ID] = cloneOrder(*o)
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

// Update меняет статус и адрес; позиции и сумма после создания неизменны
func (mo *MemoryOrders) Update(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	prev, ok := mo.store.ordersByID[o.ID]
	if !ok {
		return ErrNotFound
	}
	prev.Status = o.Status
	prev.ShippingAddress = o.ShippingAddress
	prev.UpdatedAt = mo.store.now()
	mo.store.ordersByID[o.ID] = prev
	o.UpdatedAt = prev.UpdatedAt
	return nil
}

func (mo *MemoryOrders) Delete(ctx context.Context, id int64) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	if _, ok := mo.store.ordersByID[id]; !ok {
		return ErrNotFound
	}
	delete(mo.store.ordersByID, id)
	return nil
}

func (mo *MemoryOrders) List(ctx context.Context) ([]domain.Order, error) {
	return mo.filter(ctx, func(domain.Order) bool { return true })
}

func (mo *MemoryOrders) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	return mo.filter(ctx, func(o domain.Order) bool { return o.UserID == userID })
}

func (mo *MemoryOrders) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return mo.filter(ctx, func(o domain.Order) bool { return o.Status == status })
}

func (mo *MemoryOrders) ListPlacedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	return mo.filter(ctx, func(o domain.Order) bool {
		return !o.OrderDate.Before(from) && o.OrderDate.Before(to)
	})
}

func (mo *MemoryOrders) filter(ctx context.Context, keep func(domain.Order) bool) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	out := make([]domain.Order, 0)
	for _, o := range mo.store.ordersByID {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

// MemoryTx эмулирует транзакцию блокировкой записи
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if isTx(ctx) {
		return fn(ctx)
	}
	// репозитории внутри fn видят метку в контексте и пропускают свои локи
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	ctx = context.WithValue(ctx, txKey{}, true)
	return fn(ctx)
}
