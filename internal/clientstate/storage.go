package clientstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Storage is the key/value store standing in for browser-local storage. Writes are last-write-wins.
type Storage interface {
	// Load returns nil data without error when key is absent.
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryStorage keeps state in process memory.
type MemoryStorage struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStorage constructs an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: map[string][]byte{}}
}

func (m *MemoryStorage) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	m.items[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

const (
	defaultRedisPrefix = "storefront:state:"
	defaultRedisTTL    = 30 * 24 * time.Hour
)

// RedisStorage persists state in Redis with a sliding expiry.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStorage wraps a Redis client. A zero ttl keeps the 30 day default.
func NewRedisStorage(client redis.UniversalClient, ttl time.Duration) *RedisStorage {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStorage{client: client, prefix: defaultRedisPrefix, ttl: ttl}
}

func (r *RedisStorage) key(key string) string {
	return r.prefix + key
}

func (r *RedisStorage) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clientstate: redis get %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisStorage) Save(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, r.key(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("clientstate: redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("clientstate: redis del %s: %w", key, err)
	}
	return nil
}

// NewBrowserID mints a namespace id for a new browser.
func NewBrowserID() string {
	return strings.ToLower(ulid.Make().String())
}

// ValidBrowserID reports whether id was minted by NewBrowserID.
func ValidBrowserID(id string) bool {
	_, err := ulid.ParseStrict(strings.ToUpper(id))
	return err == nil
}

func namespacedKey(browserID, key string) string {
	return browserID + ":" + key
}
