package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/scorimmo/email-verifier/internal/core"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a cache entry is not found or has expired
var ErrNotFound = errors.New("cache entry not found")

// MemoryCache is an in-memory implementation of the CacheRepository interface
type MemoryCache struct {
	entries     map[string]*core.CacheEntry
	mu          sync.RWMutex
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(logger *zap.Logger, cleanupFreq time.Duration) *MemoryCache {
	cache := &MemoryCache{
		entries:     make(map[string]*core.CacheEntry),
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	// Start background cleanup
	go cache.startCleanupTask()

	return cache
}

// Get retrieves a cached entry by address hash
func (c *MemoryCache) Get(ctx context.Context, emailHash string) (*core.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[emailHash]
	if !ok {
		return nil, ErrNotFound
	}

	// An expired entry is a miss
	if time.Now().After(entry.ExpiresAt) {
		return nil, ErrNotFound
	}

	return entry, nil
}

// Set stores a cache entry, replacing any previous verdict for the hash
func (c *MemoryCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[entry.EmailHash] = entry
	return nil
}

// Delete removes a cache entry
func (c *MemoryCache) Delete(ctx context.Context, emailHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, emailHash)
	return nil
}

// Cleanup removes expired entries
func (c *MemoryCache) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	expiredCount := 0

	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			expiredCount++
		}
	}

	c.logger.Debug("Cleaned up expired cache entries", zap.Int("expired_count", expiredCount))
	return nil
}

// startCleanupTask starts a background task to clean up expired entries
func (c *MemoryCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				c.logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task
func (c *MemoryCache) Stop() {
	close(c.stopCh)
}
