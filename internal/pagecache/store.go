package pagecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/redis/go-redis/v9"
)

// Entry is a cached response.
type Entry struct {
	Status      int       `json:"status"`
	ContentType string    `json:"contentType"`
	Body        []byte    `json:"body"`
	StoredAt    time.Time `json:"storedAt"`
}

// Store caches responses by key and indexes them by URL path so a path can be purged across all
// of its query variants.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, path, key string, entry Entry, ttl time.Duration) error
	InvalidatePaths(ctx context.Context, paths []string) (int, error)
}

// DefaultMaxEntries bounds a MemoryStore built with NewMemoryStore.
const DefaultMaxEntries = 4096

const sweepInterval = time.Minute

// MemoryStore is an in-process Store holding at most a fixed number of entries. The least recently
// used entry is dropped when it is full, expired entries are dropped when read and swept on write.
type MemoryStore struct {
	mu        sync.Mutex
	entries   *simplelru.LRU[string, memoryEntry]
	byPath    map[string]map[string]struct{}
	now       func() time.Time
	nextSweep time.Time
}

type memoryEntry struct {
	entry   Entry
	path    string
	expires time.Time
}

// NewMemoryStore constructs an empty MemoryStore bounded by DefaultMaxEntries.
func NewMemoryStore() *MemoryStore {
	return NewBoundedMemoryStore(DefaultMaxEntries)
}

// NewBoundedMemoryStore constructs an empty MemoryStore holding at most maxEntries.
func NewBoundedMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	m := &MemoryStore{byPath: map[string]map[string]struct{}{}, now: time.Now}
	// only fails for a non-positive size
	m.entries, _ = simplelru.NewLRU[string, memoryEntry](maxEntries, m.unindex)
	return m
}

// unindex runs under mu whenever the LRU drops a key.
func (m *MemoryStore) unindex(key string, e memoryEntry) {
	keys := m.byPath[e.path]
	delete(keys, key)
	if len(keys) == 0 {
		delete(m.byPath, e.path)
	}
}

// Len reports how many entries are held, expired ones included until they are dropped.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	if !m.now().Before(e.expires) {
		m.entries.Remove(key)
		return Entry{}, false, nil
	}
	return e.entry, true, nil
}

func (m *MemoryStore) Set(_ context.Context, path, key string, entry Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if !now.Before(m.nextSweep) {
		m.sweep(now)
		m.nextSweep = now.Add(sweepInterval)
	}
	if old, ok := m.entries.Peek(key); ok && old.path != path {
		m.entries.Remove(key)
	}
	m.entries.Add(key, memoryEntry{entry: entry, path: path, expires: now.Add(ttl)})
	keys, ok := m.byPath[path]
	if !ok {
		keys = map[string]struct{}{}
		m.byPath[path] = keys
	}
	keys[key] = struct{}{}
	return nil
}

func (m *MemoryStore) sweep(now time.Time) {
	for _, key := range m.entries.Keys() {
		if e, ok := m.entries.Peek(key); ok && !now.Before(e.expires) {
			m.entries.Remove(key)
		}
	}
}

func (m *MemoryStore) InvalidatePaths(_ context.Context, paths []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for _, p := range paths {
		for key := range m.byPath[p] {
			if m.entries.Remove(key) {
				purged++
			}
		}
		delete(m.byPath, p)
	}
	return purged, nil
}

const defaultRedisPrefix = "storefront:pagecache:"

// RedisStore shares cached pages across instances.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps a Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: defaultRedisPrefix}
}

func (r *RedisStore) entryKey(key string) string { return r.prefix + "entry:" + key }
func (r *RedisStore) pathKey(path string) string { return r.prefix + "path:" + path }

func (r *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("pagecache: redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("pagecache: decode entry: %w", err)
	}
	return e, true, nil
}

func (r *RedisStore) Set(ctx context.Context, path, key string, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("pagecache: encode entry: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.entryKey(key), raw, ttl)
		pipe.SAdd(ctx, r.pathKey(path), key)
		pipe.Expire(ctx, r.pathKey(path), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("pagecache: redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) InvalidatePaths(ctx context.Context, paths []string) (int, error) {
	purged := 0
	for _, p := range paths {
		keys, err := r.client.SMembers(ctx, r.pathKey(p)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return purged, fmt.Errorf("pagecache: redis smembers: %w", err)
		}
		toDelete := make([]string, 0, len(keys)+1)
		for _, k := range keys {
			toDelete = append(toDelete, r.entryKey(k))
		}
		toDelete = append(toDelete, r.pathKey(p))
		n, err := r.client.Del(ctx, toDelete...).Result()
		if err != nil {
			return purged, fmt.Errorf("pagecache: redis del: %w", err)
		}
		// Del counts the index key too when it existed.
		if len(keys) > 0 {
			n--
		}
		purged += int(n)
	}
	return purged, nil
}
