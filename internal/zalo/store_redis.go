package zalo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultCredentialsKey = "zalo:oa:credentials"

// RedisCredentialStore keeps the credential triple as one JSON value so that
// a SET replaces all fields together.
type RedisCredentialStore struct {
	redis *redis.Client
	key   string
}

// NewRedisCredentialStore creates a store under key (default zalo:oa:credentials).
func NewRedisCredentialStore(client *redis.Client, key string) *RedisCredentialStore {
	if client == nil {
		panic("zalo: redis client required")
	}
	if key == "" {
		key = defaultCredentialsKey
	}
	return &RedisCredentialStore{redis: client, key: key}
}

// Load returns the stored credentials, or the zero value when the key is absent.
func (s *RedisCredentialStore) Load(ctx context.Context) (Credentials, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("zalo: get credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("zalo: unmarshal credentials: %w", err)
	}
	return creds, nil
}

// Save overwrites the stored credentials.
func (s *RedisCredentialStore) Save(ctx context.Context, creds Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("zalo: marshal credentials: %w", err)
	}
	if err := s.redis.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("zalo: set credentials: %w", err)
	}
	return nil
}

// Seed writes creds only when the key does not exist yet.
func (s *RedisCredentialStore) Seed(ctx context.Context, creds Credentials) (bool, error) {
	data, err := json.Marshal(creds)
	if err != nil {
		return false, fmt.Errorf("zalo: marshal credentials: %w", err)
	}
	ok, err := s.redis.SetNX(ctx, s.key, data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("zalo: seed credentials: %w", err)
	}
	return ok, nil
}
