package cache

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/channelhub/backend/internal/domain/shared"
)

const inMemorySweepInterval = 5 * time.Minute

// InMemoryIdempotencyStore keeps delivery keys in a local map. Suitable for
// single-instance deployments and tests; state is not shared across
// processes.
type InMemoryIdempotencyStore struct {
	mu        stdsync.RWMutex
	expiries  map[string]time.Time
	stop      chan struct{}
	wg        stdsync.WaitGroup
	closeOnce stdsync.Once
}

// NewInMemoryIdempotencyStore creates the store and starts a background
// sweep of expired keys
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		expiries: make(map[string]time.Time),
		stop:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop()
	return s
}

// Reserve claims the delivery key for the TTL. An expired claim is treated
// as free and overwritten.
func (s *InMemoryIdempotencyStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, ok := s.expiries[key]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	s.expiries[key] = time.Now().Add(ttl)
	return true, nil
}

// Release frees the delivery key so a redelivery can claim it again
func (s *InMemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expiries, key)
	return nil
}

// Close stops the sweep goroutine. Safe to call more than once.
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}

// Size returns the number of live keys, for tests
func (s *InMemoryIdempotencyStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.expiries)
}

func (s *InMemoryIdempotencyStore) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(inMemorySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryIdempotencyStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, expiry := range s.expiries {
		if now.After(expiry) {
			delete(s.expiries, key)
		}
	}
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
