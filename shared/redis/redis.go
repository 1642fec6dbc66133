package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key does not exist
var ErrCacheMiss = errors.New("cache miss")

// Config holds connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
}

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(cfg Config) *RedisClient {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisClient{client: client}
}

// Ping checks connectivity
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// SetJSON stores v encoded as JSON
func (r *RedisClient) SetJSON(ctx context.Context, key string, v any, expiration time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.Set(ctx, key, data, expiration)
}

// GetJSON decodes the value at key into v
func (r *RedisClient) GetJSON(ctx context.Context, key string, v any) error {
	val, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), v)
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
