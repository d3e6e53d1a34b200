package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryTokenStore implements TokenStore using ttlcache. Expired entries are
// invisible to Get immediately and reclaimed by the cache's own cleanup loop.
// Entries are copied on the way in and out; mu serializes access to the
// mutable fields of stored entries and makes find-then-delete sequences
// atomic.
type MemoryTokenStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *TokenEntry]
}

// NewMemoryTokenStore creates a new in-memory token store with automatic cleanup.
//
//nolint:ireturn
func NewMemoryTokenStore(cleanupInterval time.Duration) TokenStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *TokenEntry](cleanupInterval),
		ttlcache.WithDisableTouchOnHit[string, *TokenEntry](),
	)

	go cache.Start()

	return &MemoryTokenStore{
		cache: cache,
	}
}

// Set stores a copy of the entry, keyed by the hashed access token. The cache
// TTL runs to the later of the access and refresh deadlines so the refresh
// token stays redeemable after the access token expires.
func (s *MemoryTokenStore) Set(_ context.Context, token *TokenEntry) error {
	deadline := token.ExpiresAt
	if token.RefreshExpiresAt.After(deadline) {
		deadline = token.RefreshExpiresAt
	}

	entry := *token
	s.cache.Set(HashToken(token.TokenValue), &entry, time.Until(deadline))
	return nil
}

// Get returns a copy of the entry for the access token, stamping LastUsedAt
// on the stored entry under the lock.
func (s *MemoryTokenStore) Get(_ context.Context, token string) (*TokenEntry, error) {
	item := s.cache.Get(HashToken(token))
	if item == nil {
		return nil, ErrTokenNotFound
	}

	s.mu.Lock()
	entry := item.Value()
	entry.LastUsedAt = time.Now()
	out := *entry
	s.mu.Unlock()

	return &out, nil
}

// TakeByRefreshToken finds the entry whose refresh token matches and deletes
// it in the same critical section, so a race between two redemptions of the
// same refresh token yields exactly one winner.
func (s *MemoryTokenStore) TakeByRefreshToken(_ context.Context, refreshToken string) (*TokenEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key string
	var found *TokenEntry
	s.cache.Range(func(item *ttlcache.Item[string, *TokenEntry]) bool {
		if item.Value().RefreshToken == refreshToken {
			key = item.Key()
			out := *item.Value()
			found = &out
			return false
		}
		return true
	})
	if found == nil {
		return nil, ErrTokenNotFound
	}

	s.cache.Delete(key)
	return found, nil
}

// Delete removes a token from the cache.
func (s *MemoryTokenStore) Delete(_ context.Context, token string) error {
	s.cache.Delete(HashToken(token))
	return nil
}

// DeleteExpired removes all expired tokens from the cache.
func (s *MemoryTokenStore) DeleteExpired(_ context.Context) error {
	s.cache.DeleteExpired()
	return nil
}

// Count counts the number of live tokens in the cache.
func (s *MemoryTokenStore) Count(_ context.Context) int {
	return s.cache.Len()
}

// Close stops the cleanup goroutine.
func (s *MemoryTokenStore) Close() error {
	s.cache.Stop()
	return nil
}
