package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sing3demons/oryfm/internal/config"
	"github.com/sing3demons/oryfm/pkg/logAction"
	"github.com/sing3demons/oryfm/pkg/logger"
	"github.com/sing3demons/oryfm/pkg/mlog"
)

const redisDependency = "redis"

type RedisClient struct {
	client *redis.Client
}

type IRedisClient interface {
	Close() error
	Ping() error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// redisMasking hides identity-store session tokens held in cached values.
var redisMasking = []logger.MaskingRule{
	{Field: "data", Type: logger.MaskingTypePartial},
	{Field: "value", Type: logger.MaskingTypePartial},
}

func NewRedisClient(cfg config.RedisConfig) (IRedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("%w: redis %s: %v", ErrConnection, cfg.Addr, err)
	}

	return &RedisClient{client: rdb}, nil
}

// WrapRedis adapts an existing go-redis client.
func WrapRedis(rdb *redis.Client) IRedisClient {
	return &RedisClient{client: rdb}
}

func (c *RedisClient) GetClient() *redis.Client {
	return c.client
}

func (c *RedisClient) Close() error {
	return c.client.Close()
}

func (c *RedisClient) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

// Get returns ErrNotFound for a missing key.
func (c *RedisClient) Get(ctx context.Context, key string) (string, error) {
	log := mlog.L(ctx)
	start := time.Now()

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: redisDependency,
	}).Debug(logAction.DB_REQUEST(logAction.DB_READ, "redis GET "+key), map[string]any{
		"key": key,
	})

	val, err := c.client.Get(ctx, key).Result()
	elapsedMs := time.Since(start).Milliseconds()

	var result map[string]any
	switch {
	case errors.Is(err, redis.Nil):
		result = map[string]any{"data": nil}
		err = ErrNotFound
	case err != nil:
		result = map[string]any{"error": err.Error()}
	default:
		result = map[string]any{"data": val}
	}

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   redisDependency,
		ResponseTime: elapsedMs,
	}).Debug(logAction.DB_RESPONSE(logAction.DB_READ, "redis response"), result, redisMasking...)
	return val, err
}

func (c *RedisClient) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	log := mlog.L(ctx)
	start := time.Now()

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: redisDependency,
	}).Debug(logAction.DB_REQUEST(logAction.DB_CREATE, "redis SET "+key), map[string]any{
		"key":        key,
		"value":      fmt.Sprint(value),
		"expiration": expiration.String(),
	}, redisMasking...)

	err := c.client.Set(ctx, key, value, expiration).Err()
	elapsedMs := time.Since(start).Milliseconds()

	result := map[string]any{"data": "OK"}
	if err != nil {
		result = map[string]any{"error": err.Error()}
	}

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   redisDependency,
		ResponseTime: elapsedMs,
	}).Debug(logAction.DB_RESPONSE(logAction.DB_CREATE, "redis response"), result)

	return err
}

func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	log := mlog.L(ctx)
	start := time.Now()
	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: redisDependency,
	}).Debug(logAction.DB_REQUEST(logAction.DB_DELETE, "redis DEL"), map[string]any{
		"keys": keys,
	})

	err := c.client.Del(ctx, keys...).Err()
	elapsedMs := time.Since(start).Milliseconds()

	result := map[string]any{"data": "OK"}
	if err != nil {
		result = map[string]any{"error": err.Error()}
	}

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   redisDependency,
		ResponseTime: elapsedMs,
	}).Debug(logAction.DB_RESPONSE(logAction.DB_DELETE, "redis response"), result)
	return err
}
