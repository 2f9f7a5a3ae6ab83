// Package idempotency replays the first response to a cart mutation when the client retries it with
// the same Idempotency-Key, so a double-clicked "Add to cart" adds the item once.
package idempotency

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

// DefaultTTL is how long a key is remembered.
const DefaultTTL = 24 * time.Hour

// State of a reservation.
type State int

const (
	// StateNew means the caller owns the key and must Complete or Release it.
	StateNew State = iota
	// StatePending means another request holds the key.
	StatePending
	// StateCompleted means a response was stored and should be replayed.
	StateCompleted
)

// Record is what a key holds: the request fingerprint and, once complete, the response.
type Record struct {
	Fingerprint string `json:"fingerprint"`
	Completed   bool   `json:"completed"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Store reserves keys and keeps completed responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (State, Record, error)
	Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

func stateOf(rec Record) State {
	if rec.Completed {
		return StateCompleted
	}
	return StatePending
}

// DefaultMaxKeys bounds a MemoryStore.
const DefaultMaxKeys = 10000

const sweepInterval = time.Minute

// MemoryStore is an in-process Store holding at most DefaultMaxKeys keys. Expired keys are dropped
// when reserved again and swept periodically; past the bound the least recently used key goes first.
type MemoryStore struct {
	mu        sync.Mutex
	records   *simplelru.LRU[string, memoryRecord]
	now       func() time.Time
	nextSweep time.Time
}

type memoryRecord struct {
	rec     Record
	expires time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	records, _ := simplelru.NewLRU[string, memoryRecord](DefaultMaxKeys, nil)
	return &MemoryStore{records: records, now: time.Now}
}

func (m *MemoryStore) Reserve(_ context.Context, key, fingerprint string, ttl time.Duration) (State, Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	if existing, ok := m.records.Get(key); ok && now.Before(existing.expires) {
		return stateOf(existing.rec), existing.rec, nil
	}
	rec := Record{Fingerprint: fingerprint}
	m.records.Add(key, memoryRecord{rec: rec, expires: now.Add(ttl)})
	return StateNew, rec, nil
}

func (m *MemoryStore) Complete(_ context.Context, key string, rec Record, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Completed = true
	m.records.Add(key, memoryRecord{rec: rec, expires: m.now().Add(ttl)})
	return nil
}

func (m *MemoryStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records.Remove(key)
	return nil
}

// Len reports how many keys are held.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records.Len()
}

// sweep drops expired keys at most once per sweepInterval. Callers hold mu.
func (m *MemoryStore) sweep(now time.Time) {
	if now.Before(m.nextSweep) {
		return
	}
	m.nextSweep = now.Add(sweepInterval)
	for _, key := range m.records.Keys() {
		if r, ok := m.records.Peek(key); ok && !now.Before(r.expires) {
			m.records.Remove(key)
		}
	}
}

const redisPrefix = "storefront:idempotency:"

// RedisStore shares keys across instances. Reservation is a SET NX so concurrent retries race safely.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps a Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Reserve(ctx context.Context, key, fingerprint string, ttl time.Duration) (State, Record, error) {
	rec := Record{Fingerprint: fingerprint}
	raw, err := json.Marshal(rec)
	if err != nil {
		return 0, Record{}, fmt.Errorf("idempotency: encode record: %w", err)
	}
	created, err := r.client.SetNX(ctx, redisPrefix+key, raw, ttl).Result()
	if err != nil {
		return 0, Record{}, fmt.Errorf("idempotency: redis setnx: %w", err)
	}
	if created {
		return StateNew, rec, nil
	}

	existing, err := r.client.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; treat as pending so the client retries
		return StatePending, rec, nil
	}
	if err != nil {
		return 0, Record{}, fmt.Errorf("idempotency: redis get: %w", err)
	}
	var stored Record
	if err := json.Unmarshal(existing, &stored); err != nil {
		return 0, Record{}, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return stateOf(stored), stored, nil
}

func (r *RedisStore) Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	rec.Completed = true
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	if err := r.client.Set(ctx, redisPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisPrefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency: redis del: %w", err)
	}
	return nil
}
