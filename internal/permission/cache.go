package permission

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CacheTTL is the default time-to-live for cached masks.
const CacheTTL = 300 * time.Second

type cacheKey struct {
	userID    uuid.UUID
	channelID uuid.UUID
}

type cacheEntry struct {
	perm    Permission
	expires time.Time
}

// Cache holds computed masks per user+channel. Entries expire after the TTL
// and are dropped lazily on read. Mutations that change what a mask depends
// on must invalidate through the Invalidator.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[cacheKey]cacheEntry
	now     func() time.Time
}

// NewCache creates a cache with the given TTL. A zero ttl uses CacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = CacheTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[cacheKey]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached mask for a user+channel pair, if present and fresh.
func (c *Cache) Get(userID, channelID uuid.UUID) (Permission, bool) {
	key := cacheKey{userID: userID, channelID: channelID}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return 0, false
	}
	return entry.perm, true
}

// Set stores a mask for a user+channel pair.
func (c *Cache) Set(userID, channelID uuid.UUID, perm Permission) {
	key := cacheKey{userID: userID, channelID: channelID}
	c.mu.Lock()
	c.entries[key] = cacheEntry{perm: perm, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// DeleteUser drops every cached mask of one user, including the server-level
// entry.
func (c *Cache) DeleteUser(userID uuid.UUID) {
	c.mu.Lock()
	for key := range c.entries {
		if key.userID == userID {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// DeleteChannel drops every cached mask of one channel across all users.
func (c *Cache) DeleteChannel(channelID uuid.UUID) {
	c.mu.Lock()
	for key := range c.entries {
		if key.channelID == channelID {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// DeleteExact drops one user+channel entry.
func (c *Cache) DeleteExact(userID, channelID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, cacheKey{userID: userID, channelID: channelID})
	c.mu.Unlock()
}

// Reset drops every entry. Role permission edits use this because a role can
// reach any number of users and channels.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[cacheKey]cacheEntry)
	c.mu.Unlock()
}

// Len reports the number of live entries, counting expired ones not yet
// swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
