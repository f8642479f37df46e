package storage

import (
	"context"
	"fmt"
	"time"

	redis "github.com/go-redis/redis/v8"
)

// RedisCodeStore keeps short-lived confirmation codes in Redis
type RedisCodeStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCodeStore connects to Redis and verifies the connection
func NewRedisCodeStore(config RedisConfig) (*RedisCodeStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		DB:       config.Database,
		Password: config.Password,
		Username: config.Username,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCodeStoreFromClient(client, config.KeyPrefix), nil
}

// NewRedisCodeStoreFromClient wraps an existing client
func NewRedisCodeStoreFromClient(client *redis.Client, prefix string) *RedisCodeStore {
	if prefix == "" {
		prefix = "chatledger"
	}
	return &RedisCodeStore{client: client, prefix: prefix}
}

func (s *RedisCodeStore) key(owner string) string {
	return fmt.Sprintf("%s:confirm:%s", s.prefix, owner)
}

// Save stores code for owner, replacing any previous one
func (s *RedisCodeStore) Save(ctx context.Context, owner, code string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(owner), code, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store confirmation code: %w", err)
	}
	return nil
}

// consumeScript deletes KEYS[1] only when it holds ARGV[1]
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Consume deletes the code of owner if it equals code, in one round trip
func (s *RedisCodeStore) Consume(ctx context.Context, owner, code string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{s.key(owner)}, code).Int()
	if err != nil {
		return false, fmt.Errorf("failed to consume confirmation code: %w", err)
	}
	return n == 1, nil
}

// Health pings Redis
func (s *RedisCodeStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client
func (s *RedisCodeStore) Close() error {
	return s.client.Close()
}
