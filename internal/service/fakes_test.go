package service

import (
	"context"
	"sync"

	"orderflow/internal/auth"
	"orderflow/internal/domain"
	"orderflow/internal/events"
)

// localCatalog ProductCatalog поверх ProductService в том же процессе
type localCatalog struct {
	ps *ProductService

	mu      sync.Mutex
	calls   []string
	tokens  []string
	down    bool
	failOn  map[int64]error
	adjusts int
}

func (c *localCatalog) record(call string, cred auth.Credential) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	c.tokens = append(c.tokens, cred.Token)
	if c.down {
		return &domain.DependencyError{Service: "product-service", Resource: "productId"}
	}
	return nil
}

func (c *localCatalog) ProductExists(ctx context.Context, cred auth.Credential, id int64) (bool, error) {
	if err := c.record("exists", cred); err != nil {
		return false, err
	}
	_, err := c.ps.GetByID(ctx, id)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (c *localCatalog) FetchProduct(ctx context.Context, cred auth.Credential, id int64) (domain.ProductSnapshot, error) {
	if err := c.record("fetch", cred); err != nil {
		return domain.ProductSnapshot{}, err
	}
	p, err := c.ps.GetByID(ctx, id)
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	return p.Snapshot(), nil
}

func (c *localCatalog) AdjustStock(ctx context.Context, cred auth.Credential, id int64, delta int) (domain.ProductSnapshot, error) {
	if err := c.record("adjust", cred); err != nil {
		return domain.ProductSnapshot{}, err
	}
	if err := c.failOn[id]; err != nil {
		return domain.ProductSnapshot{}, err
	}
	p, err := c.ps.AdjustStock(ctx, id, delta)
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	c.mu.Lock()
	c.adjusts++
	c.mu.Unlock()
	return p.Snapshot(), nil
}

type fakeUsers struct {
	mu     sync.Mutex
	known  map[int64]bool
	calls  int
	reject bool
}

func (u *fakeUsers) UserExists(_ context.Context, cred auth.Credential, id int64) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.reject {
		return false, &domain.CredentialError{Service: "user-service"}
	}
	return u.known[id], nil
}

type countingRecorder struct {
	mu       sync.Mutex
	created  map[domain.OrderStatus]int
	orphaned int
}

func (r *countingRecorder) OrderCreated(_ context.Context, st domain.OrderStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.created == nil {
		r.created = map[domain.OrderStatus]int{}
	}
	r.created[st]++
}

func (r *countingRecorder) ReservationsOrphaned(_ context.Context, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphaned += n
}

type captureTrail struct {
	mu     sync.Mutex
	events []events.ReservationsOrphaned
}

func (c *captureTrail) PublishOrphaned(_ context.Context, ev events.ReservationsOrphaned) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}
