package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestCache_GetSet(t *testing.T) {
	c := New[int](4)

	if _, ok := c.Get("missing"); ok {
		t.Error("Expected miss for absent key")
	}

	c.Set("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Errorf("Expected (1, true), got (%d, %v)", v, ok)
	}

	c.Set("a", 2)
	v, _ = c.Get("a")
	if v != 2 {
		t.Errorf("Expected overwrite to 2, got %d", v)
	}
	if c.Len() != 1 {
		t.Errorf("Expected length 1, got %d", c.Len())
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](2)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a is now most recently used
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("Expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("Expected a to survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("Expected c to be present")
	}
}

func TestCache_ZeroCapacityDisables(t *testing.T) {
	c := New[int](0)
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Error("Expected zero-capacity cache to never store")
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New[string](8)
	c.Set("user1|content", "x")
	c.Set("user1|records", "y")
	c.Set("user2|content", "z")

	c.Invalidate("user1|content")
	if _, ok := c.Get("user1|content"); ok {
		t.Error("Expected invalidated key to be gone")
	}

	c.InvalidatePrefix("user1|")
	if _, ok := c.Get("user1|records"); ok {
		t.Error("Expected prefix invalidation to remove user1 keys")
	}
	if _, ok := c.Get("user2|content"); !ok {
		t.Error("Expected user2 key to survive prefix invalidation")
	}
}

func TestCache_Flush(t *testing.T) {
	c := New[int](8)
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	c.Flush()
	if c.Len() != 0 {
		t.Errorf("Expected empty cache after flush, got %d entries", c.Len())
	}
}

func TestCache_Stats(t *testing.T) {
	c := New[int](2)
	c.Set("a", 1)
	c.Get("a")
	c.Get("b")

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d and %d", hits, misses)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](64)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%32)
				c.Set(key, i)
				c.Get(key)
				if i%50 == 0 {
					c.Invalidate(key)
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Errorf("Cache exceeded capacity: %d", c.Len())
	}
}
