// Package presence tracks which chat usernames are currently live. Chat
// activity and NAMES lists touch entries, a Helix chatters poller replaces
// them wholesale, and anything not seen within the TTL is considered gone.
package presence

import (
	"strings"
	"sync"
	"time"

	"github.com/onnwee/modkeeper/telemetry"
)

// DefaultTTL is how long a username stays live without fresh activity.
const DefaultTTL = 10 * time.Minute

// Cache is a concurrency-safe TTL set of lower-cased usernames.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.RWMutex
	seen   map[string]time.Time
	pinned map[string]bool
}

// New returns an empty cache. ttl <= 0 selects DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:    ttl,
		now:    time.Now,
		seen:   make(map[string]time.Time),
		pinned: make(map[string]bool),
	}
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Pin keeps names live forever (the bot, the owner and the channel).
func (c *Cache) Pin(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		if k := key(n); k != "" {
			c.pinned[k] = true
		}
	}
}

// Touch marks names as seen now.
func (c *Cache) Touch(names ...string) {
	now := c.now()
	c.mu.Lock()
	for _, n := range names {
		if k := key(n); k != "" {
			c.seen[k] = now
		}
	}
	size := len(c.seen)
	c.mu.Unlock()
	telemetry.SetPresenceSize(size)
}

// Replace makes names the complete live set: everything else is dropped.
func (c *Cache) Replace(names []string) {
	now := c.now()
	next := make(map[string]time.Time, len(names))
	for _, n := range names {
		if k := key(n); k != "" {
			next[k] = now
		}
	}
	c.mu.Lock()
	c.seen = next
	c.mu.Unlock()
	telemetry.SetPresenceSize(len(next))
}

// Has reports whether name is pinned or was seen within the TTL.
func (c *Cache) Has(name string) bool {
	k := key(name)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pinned[k] {
		return true
	}
	t, ok := c.seen[k]
	return ok && c.now().Sub(t) < c.ttl
}

// Remove forgets name. Pinned names stay live.
func (c *Cache) Remove(name string) {
	c.mu.Lock()
	delete(c.seen, key(name))
	size := len(c.seen)
	c.mu.Unlock()
	telemetry.SetPresenceSize(size)
}

// Prune drops expired entries and returns how many were removed.
func (c *Cache) Prune() int {
	now := c.now()
	c.mu.Lock()
	n := 0
	for k, t := range c.seen {
		if now.Sub(t) >= c.ttl {
			delete(c.seen, k)
			n++
		}
	}
	size := len(c.seen)
	c.mu.Unlock()
	telemetry.SetPresenceSize(size)
	return n
}

// Len returns the number of tracked (possibly expired) entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seen)
}
