// ABOUTME: Thread-safe TTL replay guard for streaming execution ids
// ABOUTME: Size-limited with O(1) oldest-first eviction via a linked list

package stream

import (
	"container/list"
	"sync"
	"time"
)

// guardEntry stores the timestamp and list element for a tracked key.
type guardEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Guard tracks recently seen execution ids so a replayed start request is
// rejected before it publishes any events. Entries expire after a TTL and
// the guard is size-limited, evicting oldest-first.
type Guard struct {
	mu      sync.Mutex
	seen    map[string]*guardEntry
	order   *list.List
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// NewGuard creates a replay guard with the given TTL and maximum size.
// A background goroutine periodically removes expired entries.
func NewGuard(ttl time.Duration, maxSize int) *Guard {
	g := &Guard{
		seen:    make(map[string]*guardEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go g.cleanup()
	return g
}

// CheckAndMark atomically checks whether an execution id was already seen
// and marks it if not. Returns true for a replay.
func (g *Guard) CheckAndMark(executionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.seen[executionID]
	if ok && time.Since(entry.timestamp) < g.ttl {
		return true
	}
	g.markLocked(executionID)
	return false
}

// markLocked records a key. Must be called with mu held.
func (g *Guard) markLocked(key string) {
	now := time.Now()

	if entry, exists := g.seen[key]; exists {
		entry.timestamp = now
		g.order.MoveToBack(entry.element)
		return
	}

	if len(g.seen) >= g.maxSize {
		g.evictOldest()
	}

	elem := g.order.PushBack(key)
	g.seen[key] = &guardEntry{timestamp: now, element: elem}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (g *Guard) evictOldest() {
	front := g.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	g.order.Remove(front)
	delete(g.seen, key)
}

func (g *Guard) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.runCleanup()
		case <-g.done:
			return
		}
	}
}

func (g *Guard) runCleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for key, entry := range g.seen {
		if now.Sub(entry.timestamp) > g.ttl {
			g.order.Remove(entry.element)
			delete(g.seen, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		close(g.done)
		g.closed = true
	}
}
