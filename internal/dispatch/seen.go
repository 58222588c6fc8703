package dispatch

import "fmt"

// DefaultDedupCacheSize bounds the seen-message set.
const DefaultDedupCacheSize = 250

// DedupeCache is a fixed-capacity set of recently seen message identities.
// Insertion order is tracked in a ring; once the cache is full the oldest
// entry is evicted first. Not safe for concurrent use; the buffer serializes
// access under its own lock.
type DedupeCache struct {
	capacity int
	ring     []string
	head     int
	size     int
	seen     map[string]struct{}
}

// NewDedupeCache creates a cache holding at most capacity identities.
// Non-positive capacities fall back to DefaultDedupCacheSize.
func NewDedupeCache(capacity int) *DedupeCache {
	if capacity <= 0 {
		capacity = DefaultDedupCacheSize
	}
	return &DedupeCache{
		capacity: capacity,
		ring:     make([]string, capacity),
		seen:     make(map[string]struct{}, capacity),
	}
}

// IsDuplicate reports whether the identity has been seen before, recording it
// when new. When the cache is full, recording evicts the oldest identity.
func (c *DedupeCache) IsDuplicate(identity string) bool {
	if _, ok := c.seen[identity]; ok {
		return true
	}
	if c.size == c.capacity {
		delete(c.seen, c.ring[c.head])
	} else {
		c.size++
	}
	c.ring[c.head] = identity
	c.head = (c.head + 1) % c.capacity
	c.seen[identity] = struct{}{}
	return false
}

// Len returns the number of identities currently held.
func (c *DedupeCache) Len() int {
	return c.size
}

// dedupIdentity scopes a platform message ID to its conversation so IDs from
// unrelated chats cannot collide.
func dedupIdentity(conversationKey string, messageID int64) string {
	return fmt.Sprintf("%s|%d", conversationKey, messageID)
}
