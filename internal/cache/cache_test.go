package cache

import (
	"testing"
	"time"
)

func TestSetGetExpire(t *testing.T) {
	c := New(time.Hour)
	t.Cleanup(c.Close)

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("preset:policy", 42, time.Minute)
	if v, ok := c.Get("preset:policy"); !ok || v.(int) != 42 {
		t.Fatalf("Get = %v, %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("preset:policy"); ok {
		t.Fatal("expected entry to expire")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed, len=%d", c.Len())
	}
}

func TestCleanupAndDelete(t *testing.T) {
	c := New(time.Hour)
	t.Cleanup(c.Close)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)
	c.Set("c", 3, time.Hour)

	now = now.Add(time.Minute)
	c.cleanup()
	c.Delete("c")

	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("b should survive cleanup")
	}
	c.Close()
	c.Close()
}

func TestExpiredGetKeepsRefreshedEntry(t *testing.T) {
	c := New(time.Hour)
	t.Cleanup(c.Close)

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("preset:policy", "old", time.Minute)
	now = now.Add(2 * time.Minute)

	// a Get has seen the stale entry; a Set lands before it evicts
	c.Set("preset:policy", "new", time.Minute)
	c.deleteIfExpired("preset:policy")

	if v, ok := c.Get("preset:policy"); !ok || v.(string) != "new" {
		t.Fatalf("Get = %v, %v; refreshed entry was evicted", v, ok)
	}
}
