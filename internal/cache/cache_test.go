package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cfph/ngocms-go/internal/rtdb"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Minute})
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "blog:list", []byte(`[{"id":"a"}]`), 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, err := c.Get(ctx, "blog:list")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(got) != `[{"id":"a"}]` {
		t.Errorf("Get = %s", got)
	}

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("miss error = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Minute})
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expired entry error = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheDeleteByPrefix(t *testing.T) {
	c := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Minute})
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "blog:list", []byte("a"), 0)
	_ = c.Set(ctx, "blog:item:1", []byte("b"), 0)
	_ = c.Set(ctx, "faqs:list", []byte("c"), 0)

	if err := c.DeleteByPrefix(ctx, "blog:"); err != nil {
		t.Fatalf("DeleteByPrefix error: %v", err)
	}

	if _, err := c.Get(ctx, "blog:list"); !errors.Is(err, ErrCacheMiss) {
		t.Error("blog:list survived prefix delete")
	}
	if _, err := c.Get(ctx, "faqs:list"); err != nil {
		t.Error("faqs:list should not be touched by blog prefix delete")
	}
}

func TestMemoryCacheClosed(t *testing.T) {
	c := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Minute})
	_ = c.Close()

	if _, err := c.Get(context.Background(), "k"); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("closed cache Get error = %v, want ErrCacheClosed", err)
	}
	if err := c.Set(context.Background(), "k", nil, 0); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("closed cache Set error = %v, want ErrCacheClosed", err)
	}
}

func TestMemoryCacheStats(t *testing.T) {
	c := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Minute})
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), 0)
	_, _ = c.Get(ctx, "k")
	_, _ = c.Get(ctx, "nope")

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Sets != 1 {
		t.Errorf("stats = %+v, want 1 hit, 1 miss, 1 set", stats)
	}
}

func TestFactoryDefaultsToMemory(t *testing.T) {
	c, err := NewCache(DefaultCacheConfig())
	if err != nil {
		t.Fatalf("NewCache error: %v", err)
	}
	defer c.Close()

	if _, ok := c.(*MemoryCache); !ok {
		t.Fatalf("NewCache returned %T, want *MemoryCache", c)
	}
}

func TestInvalidatorClearsOnChange(t *testing.T) {
	db, err := rtdb.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB error: %v", err)
	}
	defer db.Close()
	if err := rtdb.Migrate(db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	store, err := rtdb.Open(db)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer store.Close()

	c := NewMemoryCache(MemoryCacheOptions{DefaultTTL: time.Minute})
	defer c.Close()
	ctx := context.Background()

	inv, err := NewInvalidator(store, c, []string{"blog"})
	if err != nil {
		t.Fatalf("NewInvalidator error: %v", err)
	}
	defer inv.Close()

	// Let the initial snapshot land before seeding.
	time.Sleep(50 * time.Millisecond)
	_ = c.Set(ctx, Key("blog", "list"), []byte("cached"), 0)

	if _, err := store.PushChild(ctx, "blog", rtdb.Value{"title": "New post"}); err != nil {
		t.Fatalf("PushChild error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := c.Get(ctx, Key("blog", "list")); errors.Is(err, ErrCacheMiss) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("cached list not invalidated after collection change")
}
