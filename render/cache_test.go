package render

import (
	"fmt"
	"image"
	"testing"
)

func rgba(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestCachePutGet(t *testing.T) {
	c := NewCache(1<<20, nil)
	k := Key{DocID: "a", Page: 0, Width: 100, Height: 100}
	if c.Get(k) != nil {
		t.Fatal("unexpected hit on empty cache")
	}
	img := rgba(100, 100)
	c.Put(k, img)
	if got := c.Get(k); got != img {
		t.Fatal("lookup did not return the stored image")
	}
	if !c.Contains(k) {
		t.Fatal("Contains missed stored key")
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Entries != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestCacheBudgetNeverExceeded(t *testing.T) {
	// Each 100x100 RGBA image is 40 000 bytes; budget fits three.
	c := NewCache(130_000, nil)
	for i := 0; i < 10; i++ {
		c.Put(Key{DocID: "a", Page: i, Width: 100, Height: 100}, rgba(100, 100))
		if st := c.Stats(); st.Bytes > st.Budget {
			t.Fatalf("budget exceeded after insert %d: %+v", i, st)
		}
	}
	st := c.Stats()
	if st.Entries != 3 {
		t.Fatalf("entries = %d, want 3", st.Entries)
	}
	if st.Evictions != 7 {
		t.Fatalf("evictions = %d, want 7", st.Evictions)
	}
}

func TestCacheLRUOrder(t *testing.T) {
	c := NewCache(130_000, nil)
	keys := make([]Key, 4)
	for i := range keys {
		keys[i] = Key{DocID: "a", Page: i, Width: 100, Height: 100}
	}
	c.Put(keys[0], rgba(100, 100))
	c.Put(keys[1], rgba(100, 100))
	c.Put(keys[2], rgba(100, 100))
	// Touch key 0 so key 1 becomes the eviction victim.
	if c.Get(keys[0]) == nil {
		t.Fatal("expected hit")
	}
	c.Put(keys[3], rgba(100, 100))
	if !c.Contains(keys[0]) {
		t.Fatal("recently used entry was evicted")
	}
	if c.Contains(keys[1]) {
		t.Fatal("least recently used entry survived")
	}
}

func TestCacheNeverEvictsInsertedEntry(t *testing.T) {
	c := NewCache(MinBudgetForTest(), nil)
	big := rgba(500, 500) // 1 MB, larger than the budget
	k := Key{DocID: "a", Page: 0, Width: 500, Height: 500}
	c.Put(k, big)
	if !c.Contains(k) {
		t.Fatal("oversized entry evicted on insert")
	}
}

// MinBudgetForTest returns a budget smaller than a 500x500 RGBA image.
func MinBudgetForTest() int64 { return 100_000 }

func TestCachePending(t *testing.T) {
	c := NewCache(1<<20, nil)
	k := Key{DocID: "a", Page: 0, Width: 10, Height: 10}
	c.MarkPending(k)
	if !c.IsPending(k) {
		t.Fatal("pending mark lost")
	}
	c.Put(k, rgba(10, 10))
	if c.IsPending(k) {
		t.Fatal("insert did not clear pending mark")
	}
}

func TestCacheRemoveDocument(t *testing.T) {
	c := NewCache(1<<20, nil)
	for i := 0; i < 3; i++ {
		c.Put(Key{DocID: "a", Page: i, Width: 10, Height: 10}, rgba(10, 10))
		c.Put(Key{DocID: "b", Page: i, Width: 10, Height: 10}, rgba(10, 10))
	}
	c.RemoveDocument("a")
	st := c.Stats()
	if st.Entries != 3 {
		t.Fatalf("entries = %d, want 3", st.Entries)
	}
	for i := 0; i < 3; i++ {
		if c.Contains(Key{DocID: "a", Page: i, Width: 10, Height: 10}) {
			t.Fatalf("document a page %d survived RemoveDocument", i)
		}
	}
}

func TestCacheStatsString(t *testing.T) {
	c := NewCache(1<<20, nil)
	c.Put(Key{DocID: "x", Width: 10, Height: 10}, rgba(10, 10))
	st := c.Stats()
	if s := fmt.Sprintf("%d/%d", st.Bytes, st.Budget); s == "" {
		t.Fatal("unreachable")
	}
	if st.Bytes != 400 {
		t.Fatalf("bytes = %d, want 400", st.Bytes)
	}
}
