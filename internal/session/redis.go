package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore хранит ожидающие выборы в Redis с истечением по TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore создаёт хранилище поверх клиента Redis.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(accountID string) string {
	return s.prefix + accountID
}

// Put сохраняет выбор командой SET EX.
func (s *RedisStore) Put(ctx context.Context, accountID string, p Pending, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending: %w", err)
	}
	return s.client.Set(ctx, s.key(accountID), data, ttl).Err()
}

// Take извлекает выбор командой GETDEL.
func (s *RedisStore) Take(ctx context.Context, accountID string) (*Pending, error) {
	data, err := s.client.GetDel(ctx, s.key(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoPending
	}
	if err != nil {
		return nil, fmt.Errorf("getdel pending: %w", err)
	}

	var p Pending
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pending: %w", err)
	}
	return &p, nil
}
