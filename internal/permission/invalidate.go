package permission

import "github.com/google/uuid"

// Invalidator is the write-side companion to the cache. Mutation handlers
// call it after commit so stale masks never outlive the data they were
// computed from. The cache is process-local, so invalidation is a direct
// call rather than a broadcast.
type Invalidator struct {
	cache *Cache
}

// NewInvalidator creates an invalidator over the given cache.
func NewInvalidator(cache *Cache) *Invalidator {
	return &Invalidator{cache: cache}
}

// User drops all cached masks of one user. Member role assignment and
// kick/ban paths use this.
func (inv *Invalidator) User(userID uuid.UUID) {
	inv.cache.DeleteUser(userID)
}

// Channel drops all cached masks of one channel. Channel override writes and
// channel category moves use this.
func (inv *Invalidator) Channel(channelID uuid.UUID) {
	inv.cache.DeleteChannel(channelID)
}

// UserChannel drops one user+channel entry.
func (inv *Invalidator) UserChannel(userID, channelID uuid.UUID) {
	inv.cache.DeleteExact(userID, channelID)
}

// All drops everything. Role permission edits and role deletes use this: a
// role reaches an unbounded set of user+channel pairs.
func (inv *Invalidator) All() {
	inv.cache.Reset()
}
