package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements UserStore on the same Redis instance the REST side
// writes user records to.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new RedisStore.
func NewRedisStore(client *redis.Client) UserStore {
	return &RedisStore{client: client}
}

func userKey(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

// GetUser retrieves a user record from Redis.
func (s *RedisStore) GetUser(ctx context.Context, userID string) (*User, error) {
	data, err := s.client.Get(ctx, userKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Not found is not an error
		}
		return nil, err
	}

	var user User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// SetOnline flips the stored record to online with a fresh last-seen.
func (s *RedisStore) SetOnline(ctx context.Context, userID string) error {
	return s.setStatus(ctx, userID, true, time.Now())
}

// SetOffline flips the stored record to offline and records last-seen.
func (s *RedisStore) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	return s.setStatus(ctx, userID, false, lastSeen)
}

func (s *RedisStore) setStatus(ctx context.Context, userID string, online bool, lastSeen time.Time) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		// The user record vanished between handshake and status flip.
		// Nothing to persist; the hub logs and moves on.
		return fmt.Errorf("user %s not found", userID)
	}

	user.Online = online
	user.LastSeen = lastSeen

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	return s.client.Set(ctx, userKey(userID), data, 0).Err()
}
