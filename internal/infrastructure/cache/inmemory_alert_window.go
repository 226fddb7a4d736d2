package cache

import (
	"context"
	"sync"
	"time"

	"github.com/marketsync/backend/internal/domain/shared"
)

// entry represents a claimed alert slot with expiration
type entry struct {
	expiresAt time.Time
}

// InMemoryAlertWindowStore implements AlertWindowStore using an in-memory map
// This is suitable for single-instance deployments and testing
type InMemoryAlertWindowStore struct {
	mu        sync.RWMutex
	entries   map[string]entry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryAlertWindowStore creates a new in-memory alert window store
// It starts a background goroutine to clean up expired entries
func NewInMemoryAlertWindowStore() *InMemoryAlertWindowStore {
	store := &InMemoryAlertWindowStore{
		entries:  make(map[string]entry),
		stopChan: make(chan struct{}),
	}

	// Start cleanup goroutine
	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

// Acquire claims the alert slot for a key within the rolling window.
// Returns true if the slot was newly claimed, false if an alert already
// fired inside the window.
func (s *InMemoryAlertWindowStore) Acquire(ctx context.Context, key string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.entries[key]; exists {
		if time.Now().Before(e.expiresAt) {
			return false, nil // Alert already fired inside the window
		}
		// Entry exists but expired, will be overwritten
	}

	s.entries[key] = entry{
		expiresAt: time.Now().Add(window),
	}

	return true, nil
}

// Close stops the cleanup goroutine and releases resources
// Safe to call multiple times
func (s *InMemoryAlertWindowStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired entries
func (s *InMemoryAlertWindowStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired entries from the store
func (s *InMemoryAlertWindowStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// Size returns the number of entries in the store (for testing/monitoring)
func (s *InMemoryAlertWindowStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure InMemoryAlertWindowStore implements AlertWindowStore
var _ shared.AlertWindowStore = (*InMemoryAlertWindowStore)(nil)
