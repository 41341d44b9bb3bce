// Package idempotency хранит ключи Idempotency-Key в Redis, чтобы повтор
// запроса на создание заказа не резервировал остатки второй раз.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL время жизни ключа
const DefaultTTL = 24 * time.Hour

type setNXer interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Store ключ занимается один раз и не освобождается до истечения TTL:
// неудачная попытка могла уже списать остатки.
type Store struct {
	rdb setNXer
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return newStore(rdb, ttl)
}

func newStore(rdb setNXer, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(scope, key string) string {
	return fmt.Sprintf("idem:%s:%s", scope, key)
}

// Claim true, если ключ занят этим вызовом впервые
func (s *Store) Claim(ctx context.Context, scope, key, owner string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.Key(scope, key), owner, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency claim %q: %w", key, err)
	}
	return ok, nil
}
