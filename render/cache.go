package render

import (
	"container/list"
	"image"
	"sync"

	"github.com/wudi/docview/observability"
)

// CacheStats is a point-in-time snapshot of cache behavior.
type CacheStats struct {
	Entries   int
	Bytes     int64
	Budget    int64
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Pending   int
}

type cacheEntry struct {
	key  Key
	img  image.Image
	size int64
}

// Cache is the page-image cache: RenderKey to most recent image, bounded
// by a total byte budget with LRU eviction. Entries can be marked pending
// to signal an in-flight request for the same key, letting the viewport
// draw a placeholder instead of re-submitting.
type Cache struct {
	mu        sync.Mutex
	budget    int64
	bytes     int64
	ll        *list.List // front is most recently used
	entries   map[Key]*list.Element
	pending   map[Key]struct{}
	hits      uint64
	misses    uint64
	evictions uint64
	logger    observability.Logger
}

// NewCache builds a cache with the given byte budget.
func NewCache(budget int64, logger observability.Logger) *Cache {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Cache{
		budget:  budget,
		ll:      list.New(),
		entries: make(map[Key]*list.Element),
		pending: make(map[Key]struct{}),
		logger:  logger,
	}
}

// Get returns the cached image for key, or nil. A hit refreshes the
// entry's recency.
func (c *Cache) Get(key Key) image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil
	}
	c.hits++
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).img
}

// Contains reports whether key is cached without touching recency.
func (c *Cache) Contains(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Put inserts or replaces the entry for key, then evicts least-recently
// used entries (never the one just inserted) until the byte budget holds.
func (c *Cache) Put(key Key, img image.Image) {
	if img == nil {
		return
	}
	size := imageBytes(img)
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		old := el.Value.(*cacheEntry)
		c.bytes += size - old.size
		old.img = img
		old.size = size
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(&cacheEntry{key: key, img: img, size: size})
		c.entries[key] = el
		c.bytes += size
	}
	delete(c.pending, key)

	for c.bytes > c.budget {
		back := c.ll.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*cacheEntry)
		if victim.key == key {
			// Never evict the entry being inserted; an oversized single
			// image is allowed to exceed the budget momentarily.
			if back.Prev() == nil {
				break
			}
			back = back.Prev()
			victim = back.Value.(*cacheEntry)
		}
		c.ll.Remove(back)
		delete(c.entries, victim.key)
		c.bytes -= victim.size
		c.evictions++
	}
}

// Remove drops the entry for key if present.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.bytes -= el.Value.(*cacheEntry).size
		c.ll.Remove(el)
		delete(c.entries, key)
	}
	delete(c.pending, key)
}

// RemoveDocument drops every entry and pending mark belonging to a
// document. Called on document close.
func (c *Cache) RemoveDocument(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.entries {
		if key.DocID == docID {
			c.bytes -= el.Value.(*cacheEntry).size
			c.ll.Remove(el)
			delete(c.entries, key)
		}
	}
	for key := range c.pending {
		if key.DocID == docID {
			delete(c.pending, key)
		}
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.entries = make(map[Key]*list.Element)
	c.pending = make(map[Key]struct{})
	c.bytes = 0
}

// MarkPending flags key as having an in-flight render.
func (c *Cache) MarkPending(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[key] = struct{}{}
}

// ClearPending removes the in-flight flag for key.
func (c *Cache) ClearPending(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, key)
}

// IsPending reports whether a render for key is in flight.
func (c *Cache) IsPending(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:   len(c.entries),
		Bytes:     c.bytes,
		Budget:    c.budget,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Pending:   len(c.pending),
	}
}

// imageBytes estimates the pixel-buffer size of an image. Known raster
// types report their backing slice; anything else is costed as RGBA.
func imageBytes(img image.Image) int64 {
	switch m := img.(type) {
	case *image.RGBA:
		return int64(len(m.Pix))
	case *image.NRGBA:
		return int64(len(m.Pix))
	case *image.Gray:
		return int64(len(m.Pix))
	case *image.CMYK:
		return int64(len(m.Pix))
	default:
		b := img.Bounds()
		return int64(b.Dx()) * int64(b.Dy()) * 4
	}
}
