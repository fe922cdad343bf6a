package weather

import (
	"fmt"
	"sync"
	"time"

	"delaywatch/internal/types"
)

// stationCache is a thread-safe LRU of resolved stations with a TTL so
// upstream station list changes are eventually picked up.
type stationCache struct {
	maxEntries int
	ttl        time.Duration
	clock      types.Clock

	mu      sync.Mutex
	entries map[string]*cacheEntry
	head    *cacheEntry // most recently used
	tail    *cacheEntry // least recently used
}

type cacheEntry struct {
	key       string
	station   types.Station
	expiresAt time.Time
	prev      *cacheEntry
	next      *cacheEntry
}

func newStationCache(maxEntries int, ttl time.Duration, clock types.Clock) *stationCache {
	return &stationCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		clock:      clock,
		entries:    make(map[string]*cacheEntry),
	}
}

// stationKey rounds to four decimals (about 11m), the precision the points
// endpoint accepts.
func stationKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}

func (c *stationCache) get(key string) (types.Station, bool) {
	if c == nil || c.maxEntries <= 0 {
		return types.Station{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return types.Station{}, false
	}
	if c.ttl > 0 && !c.clock.Now().Before(e.expiresAt) {
		c.remove(e)
		delete(c.entries, key)
		return types.Station{}, false
	}
	c.moveToFront(e)
	return e.station, true
}

func (c *stationCache) put(key string, s types.Station) {
	if c == nil || c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.clock.Now().Add(c.ttl)
	if e, ok := c.entries[key]; ok {
		e.station = s
		e.expiresAt = expires
		c.moveToFront(e)
		return
	}

	e := &cacheEntry{key: key, station: s, expiresAt: expires}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *stationCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *stationCache) moveToFront(e *cacheEntry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *stationCache) addToFront(e *cacheEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *stationCache) remove(e *cacheEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *stationCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
