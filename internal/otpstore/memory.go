package otpstore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore is a single-process Store for tests and local development.
type MemoryStore struct {
	// mu serializes read-modify-write sequences; the cache locks itself
	// only per call.
	mu    sync.Mutex
	cache *ttlcache.Cache[string, string]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: ttlcache.New[string, string](
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
}

func (s *MemoryStore) Put(_ context.Context, key string, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.DeleteExpired()
	s.cache.Set(key, code, ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	item := s.cache.Get(key)
	if item == nil {
		return "", ErrNotFound
	}
	return item.Value(), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.cache.Get(key) != nil
	s.cache.Delete(key)
	return live, nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	if item := s.cache.Get(key); item != nil {
		if remaining := time.Until(item.ExpiresAt()); remaining > 0 {
			count, _ = strconv.ParseInt(item.Value(), 10, 64)
			ttl = remaining
		}
	}
	count++
	s.cache.Set(key, strconv.FormatInt(count, 10), ttl)
	return count, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
