package cache

import (
	"testing"
	"time"
)

func TestLRUCache_SetGet(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v", v, ok)
	}

	// "a" was just used, so adding "c" evicts "b".
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) after eviction = %d, %v", v, ok)
	}
}

func TestLRUCache_TTLAndStale(t *testing.T) {
	c := NewLRUCache[string](10, 10*time.Millisecond)

	c.Set("rate", "1.08")
	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get("rate"); ok {
		t.Fatal("expected expired value to miss on Get")
	}
	if v, ok := c.GetStale("rate"); !ok || v != "1.08" {
		t.Fatalf("GetStale = %q, %v; want last known value", v, ok)
	}
}

func TestLRUCache_Delete(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("a", 1)
	c.Delete("a")

	if _, ok := c.GetStale("a"); ok {
		t.Fatal("expected deleted key to be gone even for stale reads")
	}
	if c.Size() != 0 {
		t.Fatalf("Size = %d, want 0", c.Size())
	}
}
