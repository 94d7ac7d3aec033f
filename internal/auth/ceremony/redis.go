package ceremony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces ceremony sessions within a shared Redis instance.
const redisKeyPrefix = "signbridge:ceremony:"

// RedisStore is a SessionStore backed by Redis, for deployments running more
// than one instance behind a load balancer. Sessions expire server-side via
// the key TTL; Take additionally enforces expiry for clock skew between
// instances.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		now:    time.Now,
	}
}

// Put implements SessionStore. The key TTL is derived from the session's
// ExpiresAt so abandoned ceremonies clean themselves up.
func (r *RedisStore) Put(ctx context.Context, id string, session Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("ceremony: encode session: %w", err)
	}
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("ceremony: session already expired at %s", session.ExpiresAt)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+id, payload, ttl).Err(); err != nil {
		return fmt.Errorf("ceremony: store session: %w", err)
	}
	return nil
}

// Take implements SessionStore using GETDEL so the read-once guarantee holds
// across concurrent completion attempts.
func (r *RedisStore) Take(ctx context.Context, id string, kind Kind) (Session, error) {
	payload, err := r.client.GetDel(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("ceremony: load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		return Session{}, fmt.Errorf("ceremony: decode session: %w", err)
	}
	if session.Kind != kind {
		return Session{}, ErrSessionNotFound
	}
	if r.now().After(session.ExpiresAt) {
		return Session{}, ErrSessionExpired
	}
	return session, nil
}

// Ensure RedisStore implements SessionStore at compile time.
var _ SessionStore = (*RedisStore)(nil)
