package httpaas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// dedupCache remembers the hash of the last value this provider itself
// wrote to (submodelID, idShort), for a bounded time, so that the polling
// and MQTT ingestion paths can suppress the write-back loop described in
// spec.md §5 ("dedup cache ... implementations must serialize access").
// Access is guarded by a single mutex since multiple producers (the poll
// loop and the MQTT callback) may hit it concurrently.
type dedupCache struct {
	mu      sync.Mutex
	enabled bool
	ttl     time.Duration
	maxSize int
	entries map[string]dedupEntry
}

type dedupEntry struct {
	hash   string
	expiry time.Time
}

func newDedupCache(enabled bool, ttl time.Duration, maxSize int) *dedupCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &dedupCache{
		enabled: enabled,
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]dedupEntry),
	}
}

func dedupKey(submodelID, idShort string) string {
	return submodelID + "\x00" + idShort
}

func hashValue(value interface{}) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%#v", value)))
	return hex.EncodeToString(sum[:])
}

// Remember records that value was just written to (submodelID, idShort) by
// this provider.
func (c *dedupCache) Remember(submodelID, idShort string, value interface{}) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictExpiredLocked()
	}
	c.entries[dedupKey(submodelID, idShort)] = dedupEntry{
		hash:   hashValue(value),
		expiry: time.Now().Add(c.ttl),
	}
}

// Seen reports whether value matches the last value this provider wrote to
// (submodelID, idShort), within the TTL window.
func (c *dedupCache) Seen(submodelID, idShort string, value interface{}) bool {
	if !c.enabled {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[dedupKey(submodelID, idShort)]
	if !ok {
		return false
	}
	if time.Now().After(entry.expiry) {
		delete(c.entries, dedupKey(submodelID, idShort))
		return false
	}
	return entry.hash == hashValue(value)
}

func (c *dedupCache) evictExpiredLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiry) {
			delete(c.entries, k)
		}
	}
}
