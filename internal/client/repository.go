package client

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/sing3demons/oryfm/internal/database"
	"github.com/sing3demons/oryfm/internal/hydra"
)

// ICacheRepository stores client metadata by id.
type ICacheRepository interface {
	Get(ctx context.Context, clientID string) (*hydra.OAuth2Client, bool)
	Set(ctx context.Context, c *hydra.OAuth2Client)
	Close()
}

// RedisCacheRepository shares the cache between replicas.
type RedisCacheRepository struct {
	redis database.IRedisClient
	ttl   time.Duration
}

func NewRedisCacheRepository(redis database.IRedisClient) *RedisCacheRepository {
	return &RedisCacheRepository{redis: redis, ttl: CacheTTL}
}

func (r *RedisCacheRepository) Get(ctx context.Context, clientID string) (*hydra.OAuth2Client, bool) {
	val, err := r.redis.Get(ctx, cacheKey(clientID))
	if err != nil || val == "" {
		return nil, false
	}
	var c hydra.OAuth2Client
	if err := json.Unmarshal([]byte(val), &c); err != nil {
		return nil, false
	}
	return &c, true
}

func (r *RedisCacheRepository) Set(ctx context.Context, c *hydra.OAuth2Client) {
	raw, err := json.Marshal(c)
	if err != nil {
		return
	}
	// a failed write only costs the next lookup a round trip; the client logs it
	_ = r.redis.Set(ctx, cacheKey(c.ClientID), string(raw), r.ttl)
}

func (r *RedisCacheRepository) Close() {}

// MemoryCacheRepository is the single-replica cache.
type MemoryCacheRepository struct {
	cache *ttlcache.Cache[string, hydra.OAuth2Client]
}

func NewMemoryCacheRepository(ttl time.Duration) *MemoryCacheRepository {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, hydra.OAuth2Client](ttl),
		ttlcache.WithDisableTouchOnHit[string, hydra.OAuth2Client](),
	)
	go cache.Start()
	return &MemoryCacheRepository{cache: cache}
}

func (m *MemoryCacheRepository) Get(_ context.Context, clientID string) (*hydra.OAuth2Client, bool) {
	item := m.cache.Get(cacheKey(clientID))
	if item == nil || item.IsExpired() {
		return nil, false
	}
	c := item.Value()
	return &c, true
}

func (m *MemoryCacheRepository) Set(_ context.Context, c *hydra.OAuth2Client) {
	m.cache.Set(cacheKey(c.ClientID), *c, ttlcache.DefaultTTL)
}

// Close stops the expiry goroutine.
func (m *MemoryCacheRepository) Close() {
	m.cache.Stop()
}

var ErrClientNotFound = errors.New("client_not_found")
