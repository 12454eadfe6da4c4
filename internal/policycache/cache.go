// Package policycache implements the read-through TTL cache of per-chat
// moderation policy that sits in front of store.DAO.
package policycache

import (
	"context"
	"sync"
	"time"

	"github.com/modsentry/modsentry/internal/store"
)

// DefaultTTL is the cache freshness window before a re-query is forced.
const DefaultTTL = 5 * time.Minute

type entry struct {
	policy  store.ChatPolicy
	fetched time.Time
}

// Cache is a read-through map from chat id to policy, guarded by a
// sync.RWMutex.
type Cache struct {
	dao store.DAO
	ttl time.Duration

	mu      sync.RWMutex
	entries map[int64]entry
}

// New wraps dao with a read-through cache using ttl (DefaultTTL if zero).
func New(dao store.DAO, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		dao:     dao,
		ttl:     ttl,
		entries: make(map[int64]entry),
	}
}

// Get returns the chat's policy, serving from cache within TTL and falling
// through to the DAO on miss or expiry. store.ErrChatNotFound is passed
// through unchanged — it is not itself cached, so a chat registered shortly
// after a miss is visible on the very next call.
func (c *Cache) Get(ctx context.Context, chatID int64) (*store.ChatPolicy, error) {
	if p, ok := c.lookup(chatID); ok {
		return &p, nil
	}

	policy, err := c.dao.GetChatPolicy(ctx, chatID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[chatID] = entry{policy: *policy, fetched: time.Now()}
	c.mu.Unlock()

	return policy, nil
}

func (c *Cache) lookup(chatID int64) (store.ChatPolicy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[chatID]
	if !ok || time.Since(e.fetched) >= c.ttl {
		return store.ChatPolicy{}, false
	}
	return e.policy, true
}

// Invalidate drops chatID from the cache; admin-command writers call this
// immediately after a DAO write so the next Get re-queries instead of waiting
// out the TTL.
func (c *Cache) Invalidate(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, chatID)
}

// Set seeds or overwrites the cached entry directly, used after a local
// mutation (e.g. a counter increment this process just performed) to avoid
// an immediate re-query.
func (c *Cache) Set(chatID int64, policy store.ChatPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[chatID] = entry{policy: policy, fetched: time.Now()}
}
