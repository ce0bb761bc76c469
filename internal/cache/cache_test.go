package cache

import (
	"strings"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	a := Key("mlscore", "gao", "Title", "body")
	b := Key("mlscore", "gao", "Title", "body")
	if a != b {
		t.Error("Key is not deterministic")
	}
	if !strings.HasPrefix(a, "signalwatch:v1:mlscore:") {
		t.Errorf("unexpected prefix: %s", a)
	}
	// part boundaries matter
	if Key("x", "ab", "c") == Key("x", "a", "bc") {
		t.Error("parts must not run together")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("empty cache returned a value")
	}
	_ = c.Set("k", []byte("v"), 0)
	if v, ok := c.Get("k"); !ok || string(v) != "v" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("deleted key still present")
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	now := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := Key("mlscore", "a")
	if err := c.Set(key, []byte(`{"overall_score":0.4}`), 0); err != nil {
		t.Fatal(err)
	}
	if v, ok := c.Get(key); !ok || string(v) != `{"overall_score":0.4}` {
		t.Fatalf("Get = %q, %v", v, ok)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(key); ok {
		t.Error("expired entry returned")
	}
	if err := c.Delete(key); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	disk := NewDiskCache(dir, time.Hour)
	_ = disk.Set("k", []byte("v"), 0)

	c := &LayeredCache{memory: NewMemoryCache(time.Minute, time.Minute), disk: disk}
	if v, ok := c.Get("k"); !ok || string(v) != "v" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	if v, ok := c.memory.Get("k"); !ok || string(v) != "v" {
		t.Error("disk hit not promoted to memory")
	}
}
