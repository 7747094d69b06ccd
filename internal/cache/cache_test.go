package cache

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lnkbike/crashes/internal/model"
)

func TestKey(t *testing.T) {
	a := Key("geocode", "https://nominatim.example", "27TH & VINE, Lincoln, NE")
	b := Key("geocode", "https://nominatim.example", "27th  &  vine, lincoln, ne")
	if a != b {
		t.Errorf("expected case and spacing to be folded, got %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "crashes:geocode:v1:") {
		t.Errorf("unexpected prefix: %s", a)
	}
	if Key("geocode", "x", "y") == Key("geocode", "xy") {
		t.Error("parts must not run together")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss")
	}
	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Errorf("expected hit with v, got %q %v", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}

	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after delete")
	}

	_ = c.Set("a", []byte("1"), 0)
	_ = c.Set("b", []byte("2"), 0)
	_ = c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after clear, got %d", c.Len())
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	_ = c.Set("k", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestDiskCache(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := Key("geocode", "q")

	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss")
	}
	if err := c.Set(key, []byte(`[{"lat":"40.8"}]`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := c.Get(key)
	if !ok || string(got) != `[{"lat":"40.8"}]` {
		t.Errorf("unexpected value %q %v", got, ok)
	}

	// Survives a new instance over the same directory
	if _, ok := NewDiskCache(dir, time.Hour).Get(key); !ok {
		t.Error("expected entry to persist on disk")
	}

	if err := c.Delete(key); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if err := c.Delete(key); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set("crashes:geocode:v1:aa11", []byte("v"), time.Minute)
	_ = c.Set("crashes:geocode:v1:bb22", []byte("v"), 2*time.Hour)

	now = now.Add(time.Hour)
	if _, ok := c.Get("crashes:geocode:v1:aa11"); ok {
		t.Error("expected expired entry to miss")
	}

	_ = c.Set("crashes:geocode:v1:cc33", []byte("v"), time.Minute)
	now = now.Add(30 * time.Minute)
	removed, err := c.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 pruned entry, got %d", removed)
	}
	if _, ok := c.Get("crashes:geocode:v1:bb22"); !ok {
		t.Error("live entry should survive prune")
	}
}

func TestDiskCache_CorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := "crashes:geocode:v1:abcd"
	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(key); ok {
		t.Error("corrupt entry should miss")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt entry should be removed")
	}
}

func TestDiskCache_PruneMissingDir(t *testing.T) {
	c := NewDiskCache(filepath.Join(t.TempDir(), "never-created"), time.Hour)
	if removed, err := c.Prune(); err != nil || removed != 0 {
		t.Errorf("expected no-op prune, got %d %v", removed, err)
	}
}

func TestLayeredCache_PromotesFromDisk(t *testing.T) {
	mem := NewMemoryCache(time.Minute, time.Minute)
	disk := NewDiskCache(t.TempDir(), time.Hour)
	c := NewLayered(mem, disk, time.Minute)

	_ = disk.Set("k", []byte("v"), 0)
	if _, ok := mem.Get("k"); ok {
		t.Fatal("memory should start empty")
	}
	if got, ok := c.Get("k"); !ok || string(got) != "v" {
		t.Fatalf("expected disk hit, got %q %v", got, ok)
	}
	if _, ok := mem.Get("k"); !ok {
		t.Error("expected entry promoted to memory")
	}
}

func TestLayeredCache_SetDeleteClear(t *testing.T) {
	c := NewLayered(NewMemoryCache(time.Minute, time.Minute), NewDiskCache(t.TempDir(), time.Hour), time.Minute)

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := c.disk.Get("k"); !ok {
		t.Error("expected write-through to disk")
	}
	if err := c.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after delete")
	}

	_ = c.Set("k2", []byte("v"), 0)
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := c.Get("k2"); ok {
		t.Error("expected miss after clear")
	}
}

func TestFromConfig(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	if c := FromConfig(model.CacheConfig{Enabled: false}, log); c != nil {
		t.Error("disabled cache should be nil")
	}
	if _, ok := FromConfig(model.CacheConfig{Enabled: true, TTL: time.Hour}, log).(*MemoryCache); !ok {
		t.Error("cache without a directory should be memory only")
	}
	if _, ok := FromConfig(model.CacheConfig{Enabled: true, Dir: t.TempDir(), TTL: time.Hour}, log).(*LayeredCache); !ok {
		t.Error("cache with a directory should be layered")
	}
}

func TestFromConfig_PrunesExpiredEntries(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	dir := t.TempDir()

	stale := NewDiskCache(dir, time.Hour)
	stale.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	_ = stale.Set("crashes:geocode:v1:aa11", []byte("old"), time.Hour)
	_ = NewDiskCache(dir, time.Hour).Set("crashes:geocode:v1:bb22", []byte("new"), time.Hour)

	FromConfig(model.CacheConfig{Enabled: true, Dir: dir, TTL: time.Hour}, log)

	if _, err := os.Stat(stale.path("crashes:geocode:v1:aa11")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed when the cache is opened")
	}
	if _, err := os.Stat(stale.path("crashes:geocode:v1:bb22")); err != nil {
		t.Errorf("live entry should survive: %v", err)
	}
}
