package dedup

import (
	"container/list"
	"sync"
	"time"
)

// Reason records why an id stopped waiting for its response.
type Reason string

const (
	ReasonTimeout   Reason = "timeout"
	ReasonTeardown  Reason = "teardown"
	ReasonAbandoned Reason = "abandoned"
)

// Defaults.
const (
	DefaultTTL     = 10 * time.Minute
	DefaultMaxSize = 10000
)

type entry struct {
	reason  Reason
	expires time.Time
	element *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited set of ids.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// New creates a cache and starts its background sweeper.
// Zero values select the defaults; now may be nil.
func New(ttl time.Duration, maxSize int, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if now == nil {
		now = time.Now
	}

	c := &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Mark records id with reason, refreshing its expiry if already present.
func (c *Cache) Mark(id string, reason Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if e, ok := c.entries[id]; ok {
		e.reason = reason
		e.expires = expires
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.entries[id] = &entry{
		reason:  reason,
		expires: expires,
		element: c.order.PushBack(id),
	}
}

// Take removes id and returns its reason. A late response is reported once.
func (c *Cache) Take(id string) (Reason, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return "", false
	}
	c.order.Remove(e.element)
	delete(c.entries, id)

	if !c.now().Before(e.expires) {
		return "", false
	}
	return e.reason, true
}

// Len returns the number of tracked ids, including ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, id)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

// Sweep drops expired entries.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	// Expiry is monotonic in insertion order, so stop at the first live entry.
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		id, _ := front.Value.(string)
		if now.Before(c.entries[id].expires) {
			return
		}
		c.order.Remove(front)
		delete(c.entries, id)
	}
}

// Close stops the sweeper. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
