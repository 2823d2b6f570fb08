package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const resetKeyPrefix = "pwreset:"

// RedisResetStore keeps password reset tokens in Redis with a TTL. A token
// can be consumed once.
type RedisResetStore struct {
	client *redis.Client
}

// NewRedisResetStore creates a reset token store.
func NewRedisResetStore(client *redis.Client) *RedisResetStore {
	return &RedisResetStore{client: client}
}

// Save stores token -> accountID for ttl.
func (s *RedisResetStore) Save(ctx context.Context, token, accountID string, ttl time.Duration) error {
	return s.client.Set(ctx, resetKeyPrefix+token, accountID, ttl).Err()
}

// Consume returns the account id for token and deletes it.
func (s *RedisResetStore) Consume(ctx context.Context, token string) (string, error) {
	id, err := s.client.GetDel(ctx, resetKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrInvalidResetToken
		}
		return "", err
	}
	return id, nil
}

func newResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
