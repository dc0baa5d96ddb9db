// Package store holds the order ledger, the per-customer order-number
// allocator, download tokens and review aggregates on top of a small
// key-value capability interface.
//
// Two implementations exist: RedisStore against the remote durable backend,
// and MemoryStore, a process-local fallback used when the backend is not
// configured or not reachable. Selection happens per call, not once at
// startup, so a backend that comes back mid-flight is picked up again.
package store

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound marks a missing entity or index entry. Lookups treat it
	// as an expected outcome, never as a failure worth logging.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an attempt to bind a payment id already owned by a
	// different order.
	ErrConflict = errors.New("conflict")
	// ErrExpired marks a download token redeemed past its TTL.
	ErrExpired = errors.New("expired")
)

// Store is the key-value capability both backends implement.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
	SAdd(ctx context.Context, key, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Backends pairs the durable backend (nil when not configured) with the
// in-process fallback. The fallback is never shared across instances and
// never durable across restarts; it is a best-effort cache, not a source
// of truth.
type Backends struct {
	Durable  Store
	Fallback Store
}

func NewBackends(durable Store) Backends {
	return Backends{Durable: durable, Fallback: NewMemoryStore()}
}

// ======================
// REDIS BACKEND
// ======================

type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the durable backend. Unlike a hard dependency,
// a failed ping only logs: every operation retries the backend and falls
// back to memory on error.
func NewRedisStore(url, token string) *RedisStore {
	var opts *redis.Options
	if parsed, err := redis.ParseURL(url); err == nil {
		opts = parsed
		if token != "" {
			opts.Password = token
		}
	} else {
		opts = &redis.Options{Addr: url, Password: token}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️ durable backend not reachable at startup: %v", err)
	} else {
		log.Println("Durable backend connected (order-service)")
	}

	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *RedisStore) SAdd(ctx context.Context, key, member string) error {
	return s.client.SAdd(ctx, key, member).Err()
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.client.Keys(ctx, pattern).Result()
}

// ======================
// IN-MEMORY FALLBACK
// ======================

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	sets    map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		sets:    make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value}
	return nil
}

func (s *MemoryStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	delete(s.sets, key)
	return nil
}

// Incr is atomic under the store mutex, matching the durable backend's
// single-increment guarantee for order-number allocation. The counter stays
// readable through Get, like a Redis string key.
func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, _ := strconv.ParseInt(s.entries[key].value, 10, 64)
	count++
	s.entries[key] = memoryEntry{value: strconv.FormatInt(count, 10)}
	return count, nil
}

func (s *MemoryStore) SAdd(ctx context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (s *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]string, 0, len(s.sets[key]))
	for member := range s.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	entry.expiresAt = time.Now().Add(ttl)
	s.entries[key] = entry
	return nil
}

// Keys supports only the prefix patterns the stores use ("order:*").
func (s *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
