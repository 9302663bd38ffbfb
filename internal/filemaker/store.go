package filemaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sing3demons/oryfm/internal/database"
)

// Session is a Data API access token and the time it was last used
// successfully.
type Session struct {
	Token   string    `json:"token"`
	LastUse time.Time `json:"lastUse"`
}

// TokenStore holds at most one session for one credential pair.
type TokenStore interface {
	Load(ctx context.Context) (Session, bool, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context) error
}

// MemoryTokenStore keeps the session in process memory.
type MemoryTokenStore struct {
	mu      sync.RWMutex
	session *Session
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Load(context.Context) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, false, nil
	}
	return *m.session, true, nil
}

func (m *MemoryTokenStore) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &s
	return nil
}

func (m *MemoryTokenStore) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// RedisTokenStore shares the service-account session between replicas. The
// key expires together with the token so stale entries clean themselves up.
type RedisTokenStore struct {
	redis database.IRedisClient
	key   string
	ttl   time.Duration
}

func NewRedisTokenStore(redis database.IRedisClient, username string) *RedisTokenStore {
	return &RedisTokenStore{
		redis: redis,
		key:   "oryfm:filemaker:session:" + username,
		ttl:   TokenTimeout,
	}
}

func (r *RedisTokenStore) Load(ctx context.Context) (Session, bool, error) {
	raw, err := r.redis.Get(ctx, r.key)
	if errors.Is(err, database.ErrNotFound) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	return s, true, nil
}

func (r *RedisTokenStore) Save(ctx context.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, r.key, string(raw), r.ttl)
}

func (r *RedisTokenStore) Delete(ctx context.Context) error {
	return r.redis.Del(ctx, r.key)
}
