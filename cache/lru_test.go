package cache

import (
	"fmt"
	"testing"
	"time"
)

func newEntry(value string, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{Value: value, CreatedAt: now, ExpiresAt: now.Add(ttl)}
}

func TestLRUCache_Basic(t *testing.T) {
	cache := NewLRUCache(3)

	cache.Set("key1", newEntry("v1", time.Minute))

	got, ok := cache.Get("key1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Value != "v1" {
		t.Errorf("expected v1, got %s", got.Value)
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	cache := NewLRUCache(2)

	cache.Set("key1", newEntry("1", time.Minute))
	cache.Set("key2", newEntry("2", time.Minute))
	cache.Set("key3", newEntry("3", time.Minute)) // 应该驱逐 key1

	if _, ok := cache.Get("key1"); ok {
		t.Error("key1 should have been evicted")
	}
	if _, ok := cache.Get("key2"); !ok {
		t.Error("key2 should exist")
	}
	if _, ok := cache.Get("key3"); !ok {
		t.Error("key3 should exist")
	}
}

func TestLRUCache_RecentlyAccessedSurvives(t *testing.T) {
	cache := NewLRUCache(2)

	cache.Set("key1", newEntry("1", time.Minute))
	cache.Set("key2", newEntry("2", time.Minute))

	// 访问 key1 使其成为最近使用
	if _, ok := cache.Get("key1"); !ok {
		t.Fatal("expected key1 hit")
	}

	cache.Set("key3", newEntry("3", time.Minute)) // 应该驱逐 key2

	if _, ok := cache.Get("key1"); !ok {
		t.Error("key1 should survive, it was recently accessed")
	}
	if _, ok := cache.Get("key2"); ok {
		t.Error("key2 should have been evicted")
	}
}

func TestLRUCache_CapacityBound(t *testing.T) {
	const capacity = 5
	cache := NewLRUCache(capacity)

	// 插入 capacity + m 个键
	for i := 0; i < capacity+3; i++ {
		cache.Set(Key(fmt.Sprintf("key%d", i)), newEntry("v", time.Minute))
	}

	if got := cache.Len(); got != capacity {
		t.Errorf("expected exactly %d entries, got %d", capacity, got)
	}

	// 留下的是最近插入的 capacity 个
	for i := 3; i < capacity+3; i++ {
		if _, ok := cache.Get(Key(fmt.Sprintf("key%d", i))); !ok {
			t.Errorf("key%d should remain", i)
		}
	}
}

func TestLRUCache_TTL(t *testing.T) {
	cache := NewLRUCache(10)

	cache.Set("key1", newEntry("v", 10*time.Millisecond))

	// 立即获取应该成功
	if _, ok := cache.Get("key1"); !ok {
		t.Error("expected cache hit")
	}

	// 等待过期
	time.Sleep(20 * time.Millisecond)

	if _, ok := cache.Get("key1"); ok {
		t.Error("expected cache miss after TTL")
	}
}

func TestLRUCache_Clear(t *testing.T) {
	cache := NewLRUCache(10)
	cache.Set("key1", newEntry("v", time.Minute))
	cache.Clear()

	if cache.Len() != 0 {
		t.Error("expected empty cache after Clear")
	}
	if _, ok := cache.Get("key1"); ok {
		t.Error("expected miss after Clear")
	}
}
